// Package dupcheck implements the advisory duplicate/similarity scan run at
// intake time. It is best effort by contract: any failure degrades to a
// permissive result and never blocks the intake path.
package dupcheck

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"clubatlas/pkg/domain"
)

const (
	// DefaultThreshold is the minimum similarity score reported as a match.
	DefaultThreshold = 0.35
	// DefaultMaxMatches bounds the candidate list on a result.
	DefaultMaxMatches = 5
)

// Checker scores a candidate payload against currently published records.
//
// Scoring is normalized token overlap (Jaccard) across the name and
// university fields. Tokenization lowercases, splits on non-letter/non-digit
// boundaries, and breaks CJK runs into single-rune tokens so that club names
// written without whitespace still compare meaningfully. The comparison is
// deterministic and linear in the number of published records.
type Checker struct {
	store      domain.PersistentStore
	threshold  float64
	maxMatches int
	logger     *slog.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithThreshold overrides the match threshold.
func WithThreshold(t float64) Option {
	return func(c *Checker) {
		if t > 0 {
			c.threshold = t
		}
	}
}

// WithMaxMatches overrides the candidate list bound.
func WithMaxMatches(n int) Option {
	return func(c *Checker) {
		if n > 0 {
			c.maxMatches = n
		}
	}
}

// NewChecker constructs a checker over the given store.
func NewChecker(store domain.PersistentStore, logger *slog.Logger, opts ...Option) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Checker{
		store:      store,
		threshold:  DefaultThreshold,
		maxMatches: DefaultMaxMatches,
		logger:     logger.With("component", "dupcheck"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check scans published records for likely duplicates of the candidate
// payload. A store failure is absorbed: the degraded result passes with no
// matches and the failure is logged.
func (c *Checker) Check(ctx context.Context, payload domain.ClubPayload) domain.DupCheckResult {
	candidate := tokens(payload.Name, payload.University)
	var matches []domain.DupMatch
	err := c.store.View(ctx, func(view domain.TransactionView) error {
		for _, rec := range view.ListClubRecords() {
			score := jaccard(candidate, tokens(rec.Payload.Name, rec.Payload.University))
			if score >= c.threshold {
				matches = append(matches, domain.DupMatch{RecordID: rec.ID, Name: rec.Payload.Name, Score: score})
			}
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("duplicate check degraded", "error", err)
		return domain.DupCheckResult{Passed: true}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].RecordID < matches[j].RecordID
		}
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > c.maxMatches {
		matches = matches[:c.maxMatches]
	}
	return domain.DupCheckResult{Passed: len(matches) == 0, Matches: matches}
}

// tokens produces the normalized token set for similarity comparison.
func tokens(fields ...string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, field := range fields {
		var word strings.Builder
		flush := func() {
			if word.Len() > 0 {
				set[word.String()] = struct{}{}
				word.Reset()
			}
		}
		for _, r := range strings.ToLower(field) {
			switch {
			case unicode.Is(unicode.Han, r):
				flush()
				set[string(r)] = struct{}{}
			case unicode.IsLetter(r) || unicode.IsDigit(r):
				word.WriteRune(r)
			default:
				flush()
			}
		}
		flush()
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for t := range a {
		if _, ok := b[t]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

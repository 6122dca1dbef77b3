package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"clubatlas/pkg/domain"
)

// MigrateStats summarizes a bulk snapshot import.
type MigrateStats struct {
	Scanned   int
	Created   int
	Updated   int
	Unchanged int
}

// MigrateActor is recorded as the approver on records created by Migrate.
const MigrateActor = "snapshot-migration"

// Migrate bulk-loads an existing snapshot file into the authoritative store.
// Entries are matched against existing published records by natural key
// (name + university) to decide between create and update, so re-running the
// migration against the same source is a no-op on already-present entries.
// This is an operational bootstrap tool, not part of the steady-state path.
func Migrate(ctx context.Context, store domain.PersistentStore, path string, logger *slog.Logger) (MigrateStats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "snapshot_migrate")

	entries, err := ReadFile(path)
	if err != nil {
		return MigrateStats{}, err
	}

	var stats MigrateStats
	for _, entry := range entries {
		stats.Scanned++
		payload := payloadFromEntry(entry)
		key := domain.NaturalKeyOf(payload.Name, payload.University)
		_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			existing, ok := tx.FindClubRecordByKey(key)
			if !ok {
				_, err := tx.CreateClubRecord(domain.ClubRecord{
					Payload:    payload,
					ApprovedBy: MigrateActor,
				})
				if err != nil {
					return err
				}
				stats.Created++
				return nil
			}
			if reflect.DeepEqual(existing.Payload, payload) {
				stats.Unchanged++
				return nil
			}
			_, err := tx.UpdateClubRecord(existing.ID, func(rec *domain.ClubRecord) error {
				rec.Payload = payload
				return nil
			})
			if err != nil {
				return err
			}
			stats.Updated++
			return nil
		})
		if err != nil {
			return stats, fmt.Errorf("migrate entry %s/%s: %w", entry.Name, entry.University, err)
		}
	}
	logger.Info("snapshot migration complete",
		"scanned", stats.Scanned,
		"created", stats.Created,
		"updated", stats.Updated,
		"unchanged", stats.Unchanged)
	return stats, nil
}

func payloadFromEntry(entry Entry) domain.ClubPayload {
	return domain.ClubPayload{
		Name:             entry.Name,
		University:       entry.University,
		Province:         entry.Province,
		City:             entry.City,
		Longitude:        entry.Coordinates[0],
		Latitude:         entry.Coordinates[1],
		ShortDescription: entry.ShortDescription,
		LongDescription:  entry.LongDescription,
		Tags:             entry.Tags,
		MediaPath:        entry.MediaPath,
		Links:            entry.Links,
		Contact:          entry.Contact,
	}
}

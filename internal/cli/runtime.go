package cli

import (
	"context"
	"fmt"
	"io"

	"clubatlas/internal/blob"
	"clubatlas/internal/config"
	"clubatlas/internal/core"
	"clubatlas/internal/dupcheck"
	"clubatlas/internal/infra/persistence/memory"
	"clubatlas/internal/infra/persistence/postgres"
	"clubatlas/internal/infra/persistence/sqlite"
	"clubatlas/internal/intake"
	"clubatlas/internal/snapshot"
)

// runtime wires the pipeline components for one CLI invocation.
type runtime struct {
	store      core.PersistentStore
	buffer     *intake.Buffer
	service    *core.Service
	reconciler *intake.Reconciler
	syncer     *snapshot.Syncer
}

func openRuntime(ctx context.Context) (*runtime, error) {
	store, err := openStore(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open authoritative store: %w", err)
	}
	blobStore, err := openBlob(ctx, cfg.Buffer)
	if err != nil {
		closeStore(store)
		return nil, fmt.Errorf("open durable buffer: %w", err)
	}

	buffer := intake.NewBuffer(blobStore, logger)
	checker := dupcheck.NewChecker(store, logger,
		dupcheck.WithThreshold(cfg.DupCheck.Threshold),
		dupcheck.WithMaxMatches(cfg.DupCheck.MaxMatches))
	syncer := snapshot.NewSyncer(store, cfg.Snapshot.Path, cfg.Snapshot.BackupPath, logger)
	service := core.NewService(store, buffer, checker, syncer, logger,
		core.WithStoreTimeout(cfg.Storage.Timeout))
	reconciler := intake.NewReconciler(buffer, store, cfg.Sweep.Grace, logger)

	return &runtime{
		store:      store,
		buffer:     buffer,
		service:    service,
		reconciler: reconciler,
		syncer:     syncer,
	}, nil
}

// Close waits for in-flight snapshot rebuilds and releases the store.
func (rt *runtime) Close() {
	rt.service.WaitRebuilds()
	closeStore(rt.store)
}

func openStore(sc config.StorageConfig) (core.PersistentStore, error) {
	engine := core.NewDefaultGuardEngine()
	switch core.StorageDriver(sc.Driver) {
	case core.StorageMemory:
		return memory.NewStore(engine), nil
	case core.StorageSQLite:
		return sqlite.NewStore(sc.SQLitePath, engine)
	case core.StoragePostgres:
		return postgres.NewStore(sc.PostgresDSN, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", sc.Driver)
	}
}

func closeStore(store core.PersistentStore) {
	if closer, ok := store.(io.Closer); ok {
		_ = closer.Close()
	}
}

func openBlob(ctx context.Context, bc config.BufferConfig) (blob.Store, error) {
	switch blob.Driver(bc.Driver) {
	case blob.DriverFilesystem:
		return blob.NewFilesystem(bc.Root)
	case blob.DriverMemory:
		return blob.NewMemory(), nil
	case blob.DriverS3:
		return blob.NewS3(ctx, blob.S3Config{
			Bucket:    bc.Bucket,
			Region:    bc.Region,
			Endpoint:  bc.Endpoint,
			PathStyle: bc.PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown buffer driver %s", bc.Driver)
	}
}

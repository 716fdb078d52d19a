package cmd

import (
	"fmt"

	"github.com/scanio-git/orchestrator/internal/config"
	"github.com/scanio-git/orchestrator/internal/persistence"
	"github.com/scanio-git/orchestrator/internal/persistence/filestore"
	"github.com/scanio-git/orchestrator/internal/persistence/s3store"
)

// openStore builds the persistence.Store the config's storage.backend
// selects, following the teacher's cmd/run.go choice between a local
// results directory and an S3 upload target for the same scan output.
func openStore(cfg *config.Config) (persistence.Store, error) {
	switch cfg.Storage.Backend {
	case "", "file":
		return filestore.New(cfg.Paths.ResultsHome)
	case "s3":
		store, err := s3store.New(cfg.Storage.S3Bucket, cfg.Storage.S3Prefix, cfg.Storage.S3Region)
		if err != nil {
			return nil, fmt.Errorf("open s3 store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q, want \"file\" or \"s3\"", cfg.Storage.Backend)
	}
}

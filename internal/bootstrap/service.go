// Package bootstrap assembles the schedule service from environment
// configuration: search space, backend registry, trace archiver, and the
// session manager.
package bootstrap

import (
	"fmt"

	"github.com/jqzhao7/SUPERSONIC/internal/archive"
	"github.com/jqzhao7/SUPERSONIC/internal/backend"
	"github.com/jqzhao7/SUPERSONIC/internal/config"
	"github.com/jqzhao7/SUPERSONIC/internal/session"
	"github.com/jqzhao7/SUPERSONIC/internal/space"
)

func NewManagerFromEnv(cfg config.Config) (*session.Manager, *backend.Registry, error) {
	sp, err := space.LoadFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("load schedule space: %w", err)
	}

	reg := backend.NewRegistry()
	reg.Register(backend.AlgorithmScheduling, backend.NewLocalScheduler(sp))
	reg.SetSequential(backend.NewLocalSequential(int32(cfg.TvmMaxLen)))
	reg.SetCostSearch(backend.NewLocalCostSearch(int32(cfg.StokeActionSpace)))

	sink, err := archive.New(archive.Config{
		Backend:        cfg.ArchiveBackend,
		LocalRoot:      cfg.ArchiveLocalRoot,
		MinIOEndpoint:  cfg.MinIOEndpoint,
		MinIOAccessKey: cfg.MinIOAccessKey,
		MinIOSecretKey: cfg.MinIOSecretKey,
		MinIOBucket:    cfg.MinIOBucket,
		MinIOUseSSL:    cfg.MinIOUseSSL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build trace archive: %w", err)
	}

	mgr := session.NewManager(reg, sp, session.Options{
		StepDeadline: cfg.StepDeadline,
		CancelGrace:  cfg.CancelGrace,
		MaxSessions:  cfg.MaxSessions,
		IdleTTL:      cfg.SessionIdleTTL,
		Archive:      archive.BestEffort(sink),
	})
	return mgr, reg, nil
}

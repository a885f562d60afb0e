package store

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/config"
	"github.com/clinicdesk/clinicdesk/internal/platform/db"
)

// Open selects a backend once at startup: Postgres when DATABASE_URL
// is set and reachable, otherwise the file backend under DATA_DIR.
// The choice holds for the process lifetime; there is no mid-run
// failover. Returns the store and the name of the chosen backend.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (Store, string, error) {
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err == nil {
			pg, perr := NewPGStore(ctx, pool, log)
			if perr == nil {
				log.Info().Msg("document store: postgres backend")
				return pg, BackendPostgres, nil
			}
			pool.Close()
			err = perr
		}
		log.Warn().Err(err).Msg("postgres unavailable, falling back to file backend")
	}

	fs, err := NewFileStore(cfg.DataDir, cfg.Poll(), log)
	if err != nil {
		return nil, "", err
	}
	log.Info().Str("dir", cfg.DataDir).Dur("poll", cfg.Poll()).Msg("document store: file backend")
	return fs, BackendFile, nil
}

// Package metastore provides direct access to the relational metadata store.
//
// Only two concerns of the wider application's database are touched from
// here: the generic key/value configuration table that holds the tiering
// policy record, and the OIDC credential tables pruned by the cleaner. All
// access goes through parameterized statements on a plain *sql.DB; the ORM
// layer used elsewhere in the application is deliberately bypassed.
package metastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/egibi/tierd/internal/errors"
	"github.com/egibi/tierd/internal/logging"
	"github.com/egibi/tierd/internal/tiering"
)

var log = logging.Component("metastore")

// tieringConfigKey is the well-known name of the policy record inside the
// generic key/value configuration table.
const tieringConfigKey = "storage.tiering"

// Store persists the tiering policy as a single versioned record.
type Store struct {
	db *sql.DB
}

// NewStore creates a store over an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Init creates the key/value configuration table when it does not exist.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS app_config (
			name       VARCHAR PRIMARY KEY,
			value      VARCHAR NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("create app_config table: %v: %w", err, errors.ErrDatabase)
	}
	return nil
}

// TieringConfig loads the persisted policy. It never fails: when nothing has
// been persisted, or the stored record cannot be read or decoded, the
// defaults are returned and the condition is logged.
func (s *Store) TieringConfig(ctx context.Context) tiering.TieringConfig {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM app_config WHERE name = $1`, tieringConfigKey,
	).Scan(&raw)
	if err != nil {
		if err != sql.ErrNoRows {
			log.Warn("load tiering config failed, using defaults", "error", err)
		}
		return tiering.DefaultTieringConfig()
	}

	var cfg tiering.TieringConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		log.Warn("decode tiering config failed, using defaults", "error", err)
		return tiering.DefaultTieringConfig()
	}

	return cfg
}

// SaveTieringConfig persists the policy record and returns the saved value.
// Range validation happens at the API boundary before this is called.
func (s *Store) SaveTieringConfig(ctx context.Context, cfg tiering.TieringConfig) (tiering.TieringConfig, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return cfg, errors.Wrap(err, "encode tiering config")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO app_config (name, value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		tieringConfigKey, string(raw), time.Now().UTC())
	if err != nil {
		return cfg, fmt.Errorf("upsert tiering config: %v: %w", err, errors.ErrDatabase)
	}

	return cfg, nil
}

package crops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"coldtrace/internal/config"
	"coldtrace/internal/types"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx, so the
// store works the same inside and outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store mirrors the crop rule catalog in PostgreSQL. Deployments without a
// database skip it entirely and read the embedded catalog.
type Store struct {
	db     DBTX
	logger *slog.Logger
}

// NewStore creates a Store backed by the given connection (pool or
// transaction).
func NewStore(db DBTX, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// EnsureSchema creates the crop_rules table if it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS crop_rules (
			name         TEXT PRIMARY KEY,
			category     TEXT NOT NULL,
			temp_min_c   DOUBLE PRECISION NOT NULL,
			temp_max_c   DOUBLE PRECISION NOT NULL,
			humidity_min DOUBLE PRECISION NOT NULL,
			humidity_max DOUBLE PRECISION NOT NULL,
			notes        TEXT NOT NULL DEFAULT '',
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to ensure crop_rules schema", err)
	}
	return nil
}

// Sync upserts every rule, keyed by name. Existing rows are overwritten so
// the database always reflects the shipped catalog after deployment.
func (s *Store) Sync(ctx context.Context, rules []types.Crop) (int, error) {
	for i, rule := range rules {
		_, err := s.db.Exec(ctx, `
			INSERT INTO crop_rules (name, category, temp_min_c, temp_max_c, humidity_min, humidity_max, notes, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
			ON CONFLICT (name) DO UPDATE SET
				category = EXCLUDED.category,
				temp_min_c = EXCLUDED.temp_min_c,
				temp_max_c = EXCLUDED.temp_max_c,
				humidity_min = EXCLUDED.humidity_min,
				humidity_max = EXCLUDED.humidity_max,
				notes = EXCLUDED.notes,
				updated_at = NOW()`,
			rule.Name, rule.Category,
			rule.TempMinC, rule.TempMaxC,
			rule.HumidityMin, rule.HumidityMax,
			rule.Notes,
		)
		if err != nil {
			return i, types.NewAppError(types.ErrCodeInternalDB,
				fmt.Sprintf("failed to sync crop rule %q", rule.Name), err)
		}
	}
	s.logger.Info("crop rules synchronized", "count", len(rules))
	return len(rules), nil
}

// Get fetches one rule by name, matched case-insensitively.
func (s *Store) Get(ctx context.Context, name string) (types.Crop, error) {
	var crop types.Crop
	err := s.db.QueryRow(ctx, `
		SELECT name, category, temp_min_c, temp_max_c, humidity_min, humidity_max, notes
		FROM crop_rules
		WHERE LOWER(name) = LOWER($1)`,
		name,
	).Scan(
		&crop.Name, &crop.Category,
		&crop.TempMinC, &crop.TempMaxC,
		&crop.HumidityMin, &crop.HumidityMax,
		&crop.Notes,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Crop{}, types.NewAppError(types.ErrCodeNotFoundCrop,
				fmt.Sprintf("no storage rule for crop %q", name), nil)
		}
		return types.Crop{}, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch crop rule", err)
	}
	return crop, nil
}

// List returns every stored rule ordered by name.
func (s *Store) List(ctx context.Context) ([]types.Crop, error) {
	rows, err := s.db.Query(ctx, `
		SELECT name, category, temp_min_c, temp_max_c, humidity_min, humidity_max, notes
		FROM crop_rules
		ORDER BY name ASC`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list crop rules", err)
	}
	defer rows.Close()

	var results []types.Crop
	for rows.Next() {
		var crop types.Crop
		if err := rows.Scan(
			&crop.Name, &crop.Category,
			&crop.TempMinC, &crop.TempMaxC,
			&crop.HumidityMin, &crop.HumidityMax,
			&crop.Notes,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan crop rule row", err)
		}
		results = append(results, crop)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating crop rule rows", err)
	}

	return results, nil
}

// NewPool opens a pgx connection pool tuned from DatabaseConfig and
// verifies connectivity before returning it.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "invalid database URL", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create database pool", err)
	}

	pingCtx := ctx
	if cfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.AcquireTimeout)
		defer cancel()
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, types.NewAppError(types.ErrCodeInternalDB, "database not reachable", err)
	}

	return pool, nil
}

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// DB wraps a PostgreSQL connection pool for run auditing.
type DB struct {
	pool *pgxpool.Pool
}

// New creates a new database connection pool.
func New(ctx context.Context, dsn string) (*DB, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database DSN: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	log.Info().Msg("connected to PostgreSQL")
	return &DB{pool: pool}, nil
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Healthy checks database connectivity.
func (db *DB) Healthy(ctx context.Context) bool {
	return db.pool.Ping(ctx) == nil
}

// InsertRun inserts a completed remediation run into the audit log.
func (db *DB) InsertRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO runs (id, hostname, domain, expected_site_code, management_point,
			installer_path, install_args, uninstall_first, force_install,
			initial_site_code, final_site_code, initial_service_state, final_service_state,
			passed, remediated, journal, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	_, err := db.pool.Exec(ctx, query,
		run.ID, run.Hostname, run.Domain, run.ExpectedSiteCode, run.ManagementPoint,
		run.InstallerPath, run.InstallArgs, run.UninstallFirst, run.ForceInstall,
		run.InitialSiteCode, run.FinalSiteCode, run.InitialServiceState, run.FinalServiceState,
		run.Passed, run.Remediated, run.Journal,
		run.StartedAt, run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// GetRun retrieves a single run by ID.
func (db *DB) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `
		SELECT id, hostname, domain, expected_site_code, management_point,
			installer_path, install_args, uninstall_first, force_install,
			initial_site_code, final_site_code, initial_service_state, final_service_state,
			passed, remediated, journal, started_at, completed_at
		FROM runs WHERE id = $1`

	var run Run
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&run.ID, &run.Hostname, &run.Domain, &run.ExpectedSiteCode, &run.ManagementPoint,
		&run.InstallerPath, &run.InstallArgs, &run.UninstallFirst, &run.ForceInstall,
		&run.InitialSiteCode, &run.FinalSiteCode, &run.InitialServiceState, &run.FinalServiceState,
		&run.Passed, &run.Remediated, &run.Journal,
		&run.StartedAt, &run.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("querying run %s: %w", id, err)
	}
	return &run, nil
}

// ListRuns queries runs with optional filters.
func (db *DB) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `
		SELECT id, hostname, domain, expected_site_code, management_point,
			initial_site_code, final_site_code, final_service_state,
			passed, remediated, started_at, completed_at
		FROM runs
		WHERE ($1 = '' OR expected_site_code = $1)
		  AND ($2::boolean IS NULL OR remediated = $2)
		  AND ($3::timestamptz IS NULL OR started_at >= $3)
		ORDER BY started_at DESC
		LIMIT $4 OFFSET $5`

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := db.pool.Query(ctx, query,
		filter.SiteCode, filter.Remediated, filter.Since, limit, filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var results []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(
			&run.ID, &run.Hostname, &run.Domain, &run.ExpectedSiteCode, &run.ManagementPoint,
			&run.InitialSiteCode, &run.FinalSiteCode, &run.FinalServiceState,
			&run.Passed, &run.Remediated,
			&run.StartedAt, &run.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		results = append(results, run)
	}

	return results, rows.Err()
}

package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"arb-route-alerts/internal/signal"
)

const (
	stateBlobName = "default"

	upsertStateSQL = `INSERT INTO watcher_state (name, payload, updated_at)
    VALUES ($1, $2, now())
    ON CONFLICT (name) DO UPDATE
    SET payload = EXCLUDED.payload,
        updated_at = EXCLUDED.updated_at;`

	selectStateSQL = `SELECT payload FROM watcher_state WHERE name = $1;`

	insertSampleSQL = `INSERT INTO opportunity_samples (
        bucket_ts,
        scope,
        asset,
        buy_venue,
        sell_venue,
        trade_size,
        profit_pct,
        gas_cost,
        no_route
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    );`

	listSamplesBetweenSQL = `SELECT
        bucket_ts,
        scope,
        asset,
        buy_venue,
        sell_venue,
        trade_size,
        profit_pct,
        gas_cost,
        no_route,
        created_at
    FROM opportunity_samples
    WHERE bucket_ts >= $1
      AND bucket_ts < $2
    ORDER BY bucket_ts;`

	listRecentSamplesSQL = `SELECT
        bucket_ts,
        scope,
        asset,
        buy_venue,
        sell_venue,
        trade_size,
        profit_pct,
        gas_cost,
        no_route,
        created_at
    FROM opportunity_samples
    ORDER BY bucket_ts DESC
    LIMIT $1;`

	insertAlertSQL = `INSERT INTO alerts (
        sent_at,
        scope,
        asset,
        buy_venue,
        sell_venue,
        profit_pct,
        reason,
        recipients
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    RETURNING id, sent_at, scope, asset, buy_venue, sell_venue, profit_pct, reason, recipients, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        sent_at,
        scope,
        asset,
        buy_venue,
        sell_venue,
        profit_pct,
        reason,
        recipients,
        created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// SampleStore defines persistence for per-tick route observations.
type SampleStore interface {
	InsertSample(ctx context.Context, sample OpportunitySample) error
	ListSamplesBetween(ctx context.Context, from, to time.Time) ([]OpportunitySample, error)
	ListRecentSamples(ctx context.Context, limit int) ([]OpportunitySample, error)
}

// AlertAuditStore defines persistence for emitted alerts.
type AlertAuditStore interface {
	InsertAlert(ctx context.Context, alert AlertAudit) (AlertAudit, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertAudit, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers for overlapping-run
// exclusion.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// PostgresStore keeps the state blob, sample history, and alert audit in
// Postgres.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresStore wires a pgx pool into a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, logger zerolog.Logger) *PostgresStore {
	return &PostgresStore{
		pool:   pool,
		logger: logger.With().Str("component", "state_postgres").Logger(),
	}
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *PostgresStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// Load reads the state blob; missing or corrupt payloads fall back to an
// empty state.
func (s *PostgresStore) Load(ctx context.Context) (*signal.State, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var payload []byte
	if err := pool.QueryRow(ctx, selectStateSQL, stateBlobName).Scan(&payload); err != nil {
		if err == pgx.ErrNoRows {
			return signal.NewState(), nil
		}
		return nil, fmt.Errorf("load state: %w", err)
	}

	state := signal.NewState()
	if err := json.Unmarshal(payload, state); err != nil {
		s.logger.Warn().Err(err).Msg("state payload corrupt, starting fresh")
		return signal.NewState(), nil
	}
	state.Normalize()
	return state, nil
}

// Save upserts the state blob.
func (s *PostgresStore) Save(ctx context.Context, state *signal.State) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	if _, err := pool.Exec(ctx, upsertStateSQL, stateBlobName, payload); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts a postgres advisory lock and returns a release
// func.
func (s *PostgresStore) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; the connection release drops it anyway
		}
		conn.Release()
	}
	return unlock, true, nil
}

// InsertSample persists one per-tick route observation.
func (s *PostgresStore) InsertSample(ctx context.Context, sample OpportunitySample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, insertSampleSQL,
		sample.Bucket,
		sample.Scope,
		sample.Asset,
		sample.BuyVenue,
		sample.SellVenue,
		sample.Size.String(),
		sample.ProfitPct.String(),
		sample.GasCost.String(),
		sample.NoRoute,
	)
	if execErr != nil {
		return fmt.Errorf("insert opportunity sample: %w", execErr)
	}
	return nil
}

// ListSamplesBetween lists samples within a time window.
func (s *PostgresStore) ListSamplesBetween(ctx context.Context, from, to time.Time) ([]OpportunitySample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSamplesBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list samples between: %w", queryErr)
	}
	defer rows.Close()

	return collectSamples(rows, 0)
}

// ListRecentSamples lists the most recent samples, newest first.
func (s *PostgresStore) ListRecentSamples(ctx context.Context, limit int) ([]OpportunitySample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSamplesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent samples: %w", queryErr)
	}
	defer rows.Close()

	return collectSamples(rows, limit)
}

func collectSamples(rows pgx.Rows, capacity int) ([]OpportunitySample, error) {
	samples := make([]OpportunitySample, 0, capacity)
	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

func scanSample(rows pgx.Rows) (OpportunitySample, error) {
	var (
		sample    OpportunitySample
		sizeStr   string
		profitStr string
		gasStr    string
	)

	if err := rows.Scan(
		&sample.Bucket,
		&sample.Scope,
		&sample.Asset,
		&sample.BuyVenue,
		&sample.SellVenue,
		&sizeStr,
		&profitStr,
		&gasStr,
		&sample.NoRoute,
		&sample.CreatedAt,
	); err != nil {
		return OpportunitySample{}, err
	}

	var err error
	if sample.Size, err = decimal.NewFromString(sizeStr); err != nil {
		return OpportunitySample{}, fmt.Errorf("parse trade size: %w", err)
	}
	if sample.ProfitPct, err = decimal.NewFromString(profitStr); err != nil {
		return OpportunitySample{}, fmt.Errorf("parse profit pct: %w", err)
	}
	if sample.GasCost, err = decimal.NewFromString(gasStr); err != nil {
		return OpportunitySample{}, fmt.Errorf("parse gas cost: %w", err)
	}
	return sample, nil
}

// InsertAlert persists an alert emission.
func (s *PostgresStore) InsertAlert(ctx context.Context, alert AlertAudit) (AlertAudit, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertAudit{}, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.SentAt,
		alert.Scope,
		alert.Asset,
		alert.BuyVenue,
		alert.SellVenue,
		alert.ProfitPct.String(),
		alert.Reason,
		alert.Recipients,
	)

	rec, err := scanAlert(row)
	if err != nil {
		return AlertAudit{}, fmt.Errorf("insert alert: %w", err)
	}
	return rec, nil
}

// ListRecentAlerts lists the most recent alert emissions.
func (s *PostgresStore) ListRecentAlerts(ctx context.Context, limit int) ([]AlertAudit, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertAudit, 0, limit)
	for rows.Next() {
		rec, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore deletes historical alert records.
func (s *PostgresStore) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

func scanAlert(row pgx.Row) (AlertAudit, error) {
	var rec AlertAudit
	var profitStr string

	if err := row.Scan(
		&rec.ID,
		&rec.SentAt,
		&rec.Scope,
		&rec.Asset,
		&rec.BuyVenue,
		&rec.SellVenue,
		&profitStr,
		&rec.Reason,
		&rec.Recipients,
		&rec.CreatedAt,
	); err != nil {
		return AlertAudit{}, err
	}

	var err error
	if rec.ProfitPct, err = decimal.NewFromString(profitStr); err != nil {
		return AlertAudit{}, fmt.Errorf("parse profit pct: %w", err)
	}
	return rec, nil
}

var (
	_ Store           = (*PostgresStore)(nil)
	_ SampleStore     = (*PostgresStore)(nil)
	_ AlertAuditStore = (*PostgresStore)(nil)
	_ AdvisoryLocker  = (*PostgresStore)(nil)
)

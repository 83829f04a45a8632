package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"spotplot/internal/pricing"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createSchemaSQL = `CREATE TABLE IF NOT EXISTS spot_prices (
        observed_at         TIMESTAMPTZ NOT NULL,
        region              TEXT        NOT NULL,
        availability_zone   TEXT        NOT NULL,
        instance_type       TEXT        NOT NULL,
        product_description TEXT        NOT NULL,
        price               NUMERIC     NOT NULL,
        created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
        PRIMARY KEY (observed_at, availability_zone, instance_type, product_description)
    );`

	upsertPriceSQL = `INSERT INTO spot_prices (
        observed_at,
        region,
        availability_zone,
        instance_type,
        product_description,
        price
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (observed_at, availability_zone, instance_type, product_description) DO UPDATE
    SET
        region = EXCLUDED.region,
        price  = EXCLUDED.price;`

	listPricesBetweenSQL = `SELECT
        observed_at,
        region,
        availability_zone,
        instance_type,
        product_description,
        price::text,
        created_at
    FROM spot_prices
    WHERE ($1 = '' OR region = $1)
      AND instance_type = $2
      AND ($3 = '' OR product_description = $3)
      AND observed_at >= $4
      AND observed_at < $5
    ORDER BY observed_at DESC;`

	listRecentPricesSQL = `SELECT
        observed_at,
        region,
        availability_zone,
        instance_type,
        product_description,
        price::text,
        created_at
    FROM spot_prices
    WHERE ($1 = '' OR instance_type = $1)
    ORDER BY observed_at DESC
    LIMIT $2;`

	countPricesSQL = `SELECT COUNT(*) FROM spot_prices;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// PriceArchive defines operations for spot price persistence.
type PriceArchive interface {
	UpsertPrices(ctx context.Context, records []PriceRecord) error
	ListObservationsBetween(ctx context.Context, region, instanceType, productDescription string, from, to time.Time) ([]pricing.Observation, error)
	ListRecentPrices(ctx context.Context, instanceType string, limit int) ([]PriceRecord, error)
	CountPrices(ctx context.Context) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store archives spot prices in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the archive table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, createSchemaSQL); execErr != nil {
		return fmt.Errorf("ensure schema: %w", execErr)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
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
		// best effort; the lock dies with the session anyway
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// UpsertPrices stores records in a single batch.
func (s *Store) UpsertPrices(ctx context.Context, records []PriceRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(upsertPriceSQL,
			rec.ObservedAt,
			rec.Region,
			rec.AvailabilityZone,
			rec.InstanceType,
			rec.ProductDescription,
			rec.Price.String(),
		)
	}

	if err := pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert spot prices: %w", err)
	}
	return nil
}

// ListObservationsBetween lists archived observations of one market in
// [from, to), newest first like the EC2 API returns them. An empty region
// matches every region.
func (s *Store) ListObservationsBetween(ctx context.Context, region, instanceType, productDescription string, from, to time.Time) ([]pricing.Observation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listPricesBetweenSQL, region, instanceType, productDescription, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list spot prices between: %w", queryErr)
	}
	defer rows.Close()

	observations := make([]pricing.Observation, 0)
	for rows.Next() {
		rec, scanErr := scanPriceRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		observations = append(observations, rec.Observation())
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return observations, nil
}

// ListRecentPrices lists the most recent records, optionally for one instance type.
func (s *Store) ListRecentPrices(ctx context.Context, instanceType string, limit int) ([]PriceRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentPricesSQL, instanceType, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent spot prices: %w", queryErr)
	}
	defer rows.Close()

	records := make([]PriceRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanPriceRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// CountPrices counts archived records.
func (s *Store) CountPrices(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countPricesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count spot prices: %w", scanErr)
	}
	return count, nil
}

func scanPriceRecord(rows pgx.Rows) (PriceRecord, error) {
	var (
		rec      PriceRecord
		priceStr string
	)
	if err := rows.Scan(
		&rec.ObservedAt,
		&rec.Region,
		&rec.AvailabilityZone,
		&rec.InstanceType,
		&rec.ProductDescription,
		&priceStr,
		&rec.CreatedAt,
	); err != nil {
		return PriceRecord{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return PriceRecord{}, fmt.Errorf("parse price: %w", err)
	}
	rec.Price = price
	rec.ObservedAt = rec.ObservedAt.UTC()
	return rec, nil
}

var _ PriceArchive = (*Store)(nil)
var _ AdvisoryLocker = (*Store)(nil)

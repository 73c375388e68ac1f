package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertDepthSQL = `INSERT INTO depths (token, buy_depth, sell_depth, timestamp)
    VALUES ($1, $2, $3, $4);`

	latestDepthSQL = `SELECT token, buy_depth, sell_depth, timestamp
    FROM depths
    WHERE token = $1
    ORDER BY timestamp DESC
    LIMIT 1;`

	depthsSinceSQL = `SELECT token, buy_depth, sell_depth, timestamp
    FROM depths
    WHERE token = $1
      AND timestamp >= $2
    ORDER BY timestamp;`

	listTokensSQL = `SELECT DISTINCT token FROM depths ORDER BY token;`

	lastUpdatedSQL = `SELECT MAX(timestamp) FROM depths;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// DepthStore defines the persistence contract for depth records: durable
// appends plus the reads the warm start and the visualization layer need.
type DepthStore interface {
	InsertDepth(ctx context.Context, record DepthRecord) error
	LatestDepth(ctx context.Context, token string) (*DepthRecord, error)
	DepthsSince(ctx context.Context, token string, since time.Time) ([]DepthRecord, error)
	ListTokens(ctx context.Context) ([]string, error)
	LastUpdated(ctx context.Context) (*time.Time, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store provides access to the depths relation.
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
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

// InsertDepth appends a depth record. Records are never updated or deleted.
func (s *Store) InsertDepth(ctx context.Context, record DepthRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, insertDepthSQL,
		record.Token,
		record.BuyDepthUSD,
		record.SellDepthUSD,
		record.Timestamp,
	)
	if execErr != nil {
		return fmt.Errorf("insert depth: %w", execErr)
	}
	return nil
}

// LatestDepth returns the most recent record for a token, or nil when the
// token has no history yet.
func (s *Store) LatestDepth(ctx context.Context, token string) (*DepthRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, latestDepthSQL, token)
	if queryErr != nil {
		return nil, fmt.Errorf("latest depth: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return nil, rows.Err()
		}
		return nil, nil
	}

	record, scanErr := scanDepthRecord(rows)
	if scanErr != nil {
		return nil, scanErr
	}
	return &record, rows.Err()
}

// DepthsSince lists a token's records from a point in time onward, ascending
// by timestamp.
func (s *Store) DepthsSince(ctx context.Context, token string, since time.Time) ([]DepthRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, depthsSinceSQL, token, since)
	if queryErr != nil {
		return nil, fmt.Errorf("depths since: %w", queryErr)
	}
	defer rows.Close()

	records := make([]DepthRecord, 0)
	for rows.Next() {
		record, scanErr := scanDepthRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, record)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// ListTokens returns every token that has at least one record.
func (s *Store) ListTokens(ctx context.Context) ([]string, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listTokensSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list tokens: %w", queryErr)
	}
	defer rows.Close()

	tokens := make([]string, 0)
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return tokens, nil
}

// LastUpdated returns the global maximum record timestamp, or nil when the
// relation is empty.
func (s *Store) LastUpdated(ctx context.Context) (*time.Time, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var last *time.Time
	if scanErr := pool.QueryRow(ctx, lastUpdatedSQL).Scan(&last); scanErr != nil {
		return nil, fmt.Errorf("last updated: %w", scanErr)
	}
	return last, nil
}

// scanDepthRecord relies on decimal.Decimal's sql.Scanner implementation to
// read the numeric columns directly.
func scanDepthRecord(rows pgx.Rows) (DepthRecord, error) {
	var record DepthRecord
	if err := rows.Scan(&record.Token, &record.BuyDepthUSD, &record.SellDepthUSD, &record.Timestamp); err != nil {
		return DepthRecord{}, err
	}
	return record, nil
}

var _ DepthStore = (*Store)(nil)
var _ AdvisoryLocker = (*Store)(nil)

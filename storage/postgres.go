package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cnb_scraper/identity"
	"cnb_scraper/models"
)

// PostgresStore keeps the latest scrape of every auction as JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 4
	config.MinConns = 1
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	sql := `
	CREATE TABLE IF NOT EXISTS auction_records (
		auction_id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		title TEXT,
		auction_status TEXT,
		highest_bid TEXT,
		content_hash TEXT NOT NULL,
		record JSONB NOT NULL,
		run_id UUID,
		first_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_auction_records_status ON auction_records(auction_status);
	`
	if _, err := s.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

const upsertRecordSQL = `
	INSERT INTO auction_records (
		auction_id, url, title, auction_status, highest_bid, content_hash, record, run_id
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (auction_id) DO UPDATE SET
		url = EXCLUDED.url,
		title = COALESCE(EXCLUDED.title, auction_records.title),
		auction_status = COALESCE(EXCLUDED.auction_status, auction_records.auction_status),
		highest_bid = COALESCE(EXCLUDED.highest_bid, auction_records.highest_bid),
		content_hash = EXCLUDED.content_hash,
		record = EXCLUDED.record,
		run_id = EXCLUDED.run_id,
		updated_at = NOW()
	WHERE auction_records.content_hash <> EXCLUDED.content_hash`

// UpsertRecords stores each record under its auction id. Rows whose content
// hash is unchanged are left alone; the count of inserted or changed rows is
// returned.
func (s *PostgresStore) UpsertRecords(ctx context.Context, runID uuid.UUID, records []models.AuctionRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	batch, err := upsertBatch(runID, records)
	if err != nil {
		return 0, err
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	return countChanged(results, len(records))
}

func upsertBatch(runID uuid.UUID, records []models.AuctionRecord) (*pgx.Batch, error) {
	batch := &pgx.Batch{}
	for i := range records {
		rec := &records[i]
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", rec.URL, err)
		}
		var status *string
		if rec.Stats.AuctionStatus != nil {
			v := string(*rec.Stats.AuctionStatus)
			status = &v
		}
		batch.Queue(upsertRecordSQL,
			identity.AuctionID(rec.URL), rec.URL, rec.Title, status, rec.Stats.HighestBid,
			identity.Fingerprint(rec), data, runID,
		)
	}
	return batch, nil
}

// countChanged sums the rows touched by n queued upserts. An upsert skipped
// by the content_hash guard affects no rows.
func countChanged(results pgx.BatchResults, n int) (int, error) {
	changed := 0
	for i := 0; i < n; i++ {
		tag, err := results.Exec()
		if err != nil {
			return changed, fmt.Errorf("batch upsert failed at row %d: %w", i, err)
		}
		changed += int(tag.RowsAffected())
	}
	return changed, nil
}

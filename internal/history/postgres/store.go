// Package postgres persists history entries to Postgres.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"liquidityCore/internal/model"
)

// Store provides Postgres persistence for pair history.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// AppendEntries inserts a batch of history entries.
func (s *Store) AppendEntries(entries []model.HistoryEntry) error {
	return s.AppendEntriesContext(context.Background(), entries)
}

// AppendEntriesContext inserts a batch of history entries with a caller
// context.
func (s *Store) AppendEntriesContext(ctx context.Context, entries []model.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, entry := range entries {
		batch.Queue(`
			INSERT INTO pair_history (
				token, paired_token, price, balance0, balance1, volume0, volume1, observed_at, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, to_timestamp($8), now())
		`,
			entry.Pair.Token.Hex(),
			entry.Pair.Paired.Hex(),
			entry.Price.String(),
			entry.Balance0.String(),
			entry.Balance1.String(),
			entry.Volume0.String(),
			entry.Volume1.String(),
			entry.Timestamp,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range entries {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

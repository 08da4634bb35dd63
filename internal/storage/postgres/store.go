package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rowantis/kura-alert/internal/model"
)

// Store provides Postgres persistence for alerts and the tracked pool
// set.
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

// Record inserts one dispatched alert.
func (s *Store) Record(ctx context.Context, rec model.AlertRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alerts (
			kind, pool_address, pool_label, usd_value, threshold_usd,
			sender, team_account, block_number, tx_hash, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
	`,
		rec.Kind,
		rec.Pool,
		rec.PoolLabel,
		rec.USDValue,
		rec.ThresholdUSD,
		rec.Sender,
		rec.TeamAccount,
		int64(rec.BlockNumber),
		rec.TxHash,
	)
	return err
}

// UpsertPools mirrors the tracked pool snapshot into Postgres so the
// alert history can be joined against pool metadata.
func (s *Store) UpsertPools(ctx context.Context, pools []model.Pool) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pool := range pools {
		batch.Queue(`
			INSERT INTO pools (
				pool_address, token0, token1, dex_kind, is_stable, tick_spacing, tvl_usd, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
			ON CONFLICT (pool_address)
			DO UPDATE SET
				token0 = EXCLUDED.token0,
				token1 = EXCLUDED.token1,
				dex_kind = EXCLUDED.dex_kind,
				is_stable = EXCLUDED.is_stable,
				tick_spacing = EXCLUDED.tick_spacing,
				tvl_usd = EXCLUDED.tvl_usd,
				updated_at = now()
		`,
			pool.Address,
			pool.Key.Token0,
			pool.Key.Token1,
			string(pool.Key.Dex.Kind),
			pool.Key.Dex.Stable,
			pool.Key.Dex.TickSpacing,
			pool.TVL,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range pools {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

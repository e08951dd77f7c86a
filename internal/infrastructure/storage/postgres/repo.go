package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"xspread/internal/application/port"
	"xspread/internal/domain/model"
)

type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS latest_spreads (
  side TEXT NOT NULL,
  idx INTEGER NOT NULL,
  symbol TEXT NOT NULL,
  spot_price DOUBLE PRECISION NOT NULL,
  perp_price DOUBLE PRECISION NOT NULL,
  abs_diff DOUBLE PRECISION NOT NULL,
  pct_diff DOUBLE PRECISION NOT NULL,
  ts_ms BIGINT NOT NULL,
  PRIMARY KEY(side, idx)
);
CREATE TABLE IF NOT EXISTS latest_ranking (
  id INTEGER PRIMARY KEY CHECK (id = 1),
  tracked INTEGER NOT NULL,
  spot_count INTEGER NOT NULL,
  perp_count INTEGER NOT NULL,
  ts_ms BIGINT NOT NULL
);
`)
	return err
}

func (r *Repo) PublishRanking(ctx context.Context, rk model.Ranking) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	ts := rk.Ts.UnixMilli()
	if _, err := tx.ExecContext(ctx, `DELETE FROM latest_spreads`); err != nil {
		return fmt.Errorf("clear latest_spreads: %w", err)
	}

	insert := func(side string, rows []model.SpreadRecord) error {
		for i, rec := range rows {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO latest_spreads(side, idx, symbol, spot_price, perp_price, abs_diff, pct_diff, ts_ms)
				VALUES($1, $2, $3, $4, $5, $6, $7, $8)
			`, side, i+1, rec.Symbol, rec.SpotPrice, rec.PerpPrice, rec.AbsoluteDiff, rec.PercentDiff, ts)
			if err != nil {
				return fmt.Errorf("insert %s #%d: %w", side, i+1, err)
			}
		}
		return nil
	}
	if err := insert("positive", rk.Positive); err != nil {
		return err
	}
	if err := insert("negative", rk.Negative); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO latest_ranking(id, tracked, spot_count, perp_count, ts_ms)
		VALUES(1, $1, $2, $3, $4)
		ON CONFLICT(id) DO UPDATE SET
		tracked=EXCLUDED.tracked, spot_count=EXCLUDED.spot_count, perp_count=EXCLUDED.perp_count, ts_ms=EXCLUDED.ts_ms
	`, rk.Tracked, rk.SpotCount, rk.PerpCount, ts); err != nil {
		return fmt.Errorf("upsert latest_ranking: %w", err)
	}

	return tx.Commit()
}

var _ port.Publisher = (*Repo)(nil)

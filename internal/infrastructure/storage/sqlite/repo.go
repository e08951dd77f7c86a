package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"xspread/internal/application/port"
	"xspread/internal/domain/model"
)

const (
	sidePositive = "positive"
	sideNegative = "negative"
)

// Repo 只保存最新一次 ranking，每次发布整表替换
type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

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
  spot_price REAL NOT NULL,
  perp_price REAL NOT NULL,
  abs_diff REAL NOT NULL,
  pct_diff REAL NOT NULL,
  ts_ms INTEGER NOT NULL,
  PRIMARY KEY(side, idx)
);

CREATE TABLE IF NOT EXISTS latest_ranking (
  id INTEGER PRIMARY KEY CHECK (id = 1),
  tracked INTEGER NOT NULL,
  spot_count INTEGER NOT NULL,
  perp_count INTEGER NOT NULL,
  ts_ms INTEGER NOT NULL
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

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO latest_spreads(side, idx, symbol, spot_price, perp_price, abs_diff, pct_diff, ts_ms)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for side, rows := range map[string][]model.SpreadRecord{sidePositive: rk.Positive, sideNegative: rk.Negative} {
		for i, rec := range rows {
			if _, err := stmt.ExecContext(ctx, side, i+1, rec.Symbol, rec.SpotPrice, rec.PerpPrice, rec.AbsoluteDiff, rec.PercentDiff, ts); err != nil {
				return fmt.Errorf("insert %s #%d: %w", side, i+1, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO latest_ranking(id, tracked, spot_count, perp_count, ts_ms)
		VALUES(1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		tracked=excluded.tracked, spot_count=excluded.spot_count, perp_count=excluded.perp_count, ts_ms=excluded.ts_ms
	`, rk.Tracked, rk.SpotCount, rk.PerpCount, ts); err != nil {
		return fmt.Errorf("upsert latest_ranking: %w", err)
	}

	return tx.Commit()
}

// LatestRanking 读回当前镜像的 ranking；没有发布过时返回 sql.ErrNoRows
func (r *Repo) LatestRanking(ctx context.Context) (model.Ranking, error) {
	var rk model.Ranking
	var ts int64
	err := r.db.QueryRowContext(ctx, `SELECT tracked, spot_count, perp_count, ts_ms FROM latest_ranking WHERE id = 1`).
		Scan(&rk.Tracked, &rk.SpotCount, &rk.PerpCount, &ts)
	if err != nil {
		return model.Ranking{}, err
	}
	rk.Ts = time.UnixMilli(ts)

	rows, err := r.db.QueryContext(ctx, `
		SELECT side, symbol, spot_price, perp_price, abs_diff, pct_diff
		FROM latest_spreads ORDER BY side, idx
	`)
	if err != nil {
		return model.Ranking{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var side string
		var rec model.SpreadRecord
		if err := rows.Scan(&side, &rec.Symbol, &rec.SpotPrice, &rec.PerpPrice, &rec.AbsoluteDiff, &rec.PercentDiff); err != nil {
			return model.Ranking{}, err
		}
		if side == sidePositive {
			rk.Positive = append(rk.Positive, rec)
		} else {
			rk.Negative = append(rk.Negative, rec)
		}
	}
	return rk, rows.Err()
}

var _ port.Publisher = (*Repo)(nil)

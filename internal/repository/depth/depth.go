package depth

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/tradewire/dexstream/pkg/model"
)

// --- Models corresponding to DB tables ---
type DepthLevelRecord struct {
	PoolID     int64           `db:"pool_id"`
	ChainID    int64           `db:"chain_id"`
	Side       int8            `db:"side"` // 0 = BID, 1 = ASK
	Price      decimal.Decimal `db:"price"`
	Amount     decimal.Decimal `db:"amount"`
	OrderCount int             `db:"order_count"`
	UpdatedAt  int64           `db:"updated_at"` // unix ms
}

// --- Repository Interface ---
type DepthRepository interface {
	Upsert(ctx context.Context, rec DepthLevelRecord) error
	// ListSide returns non-empty levels for one side, best price first
	// (bids descending, asks ascending), capped at limit.
	ListSide(ctx context.Context, poolID, chainID int64, side model.Side, limit int) ([]DepthLevelRecord, error)
}

// --- Implementation ---
type depthRepositoryImpl struct {
	db *sqlx.DB
}

func NewDepthRepository(db *sqlx.DB) DepthRepository {
	return &depthRepositoryImpl{db: db}
}

func (r *depthRepositoryImpl) Upsert(ctx context.Context, rec DepthLevelRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO depth_levels (pool_id, chain_id, side, price, amount, order_count, updated_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7)
         ON CONFLICT (pool_id, chain_id, side, price)
         DO UPDATE SET amount=$5, order_count=$6, updated_at=$7`,
		rec.PoolID, rec.ChainID, rec.Side, rec.Price, rec.Amount, rec.OrderCount, rec.UpdatedAt)
	return err
}

func (r *depthRepositoryImpl) ListSide(ctx context.Context, poolID, chainID int64, side model.Side, limit int) ([]DepthLevelRecord, error) {
	order := "ASC"
	if side == model.BID {
		order = "DESC"
	}
	var levels []DepthLevelRecord
	err := r.db.SelectContext(ctx, &levels,
		`SELECT pool_id, chain_id, side, price, amount, order_count, updated_at
         FROM depth_levels
         WHERE pool_id=$1 AND chain_id=$2 AND side=$3 AND amount > 0
         ORDER BY price `+order+` LIMIT $4`,
		poolID, chainID, int8(side), limit)
	return levels, err
}

package order

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/tradewire/dexstream/pkg/model"
)

// --- Models corresponding to DB tables ---
type ActiveOrderRecord struct {
	ID       int64           `db:"id"`
	PoolID   int64           `db:"pool_id"`
	ChainID  int64           `db:"chain_id"`
	Side     int8            `db:"side"` // 0 = BID, 1 = ASK
	Price    decimal.Decimal `db:"price"`
	Quantity decimal.Decimal `db:"quantity"`
	Filled   decimal.Decimal `db:"filled"`
	Status   string          `db:"status"`
}

// Remaining is the order's open quantity still resting on the book.
func (o ActiveOrderRecord) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.Filled)
}

// --- Repository Interface ---
// Read-only: order writes happen in the matching/persistence layer, the depth
// aggregator only scans active orders to recompute levels.
type OrderRepository interface {
	ListActiveByPool(ctx context.Context, poolID, chainID int64) ([]ActiveOrderRecord, error)
	ListActiveAtPrice(ctx context.Context, poolID, chainID int64, side model.Side, price decimal.Decimal) ([]ActiveOrderRecord, error)
}

// --- Implementation ---
type orderRepositoryImpl struct {
	db *sqlx.DB
}

func NewOrderRepository(db *sqlx.DB) OrderRepository {
	return &orderRepositoryImpl{db: db}
}

func activeStatuses() []string {
	out := make([]string, len(model.ActiveOrderStatuses))
	for i, s := range model.ActiveOrderStatuses {
		out[i] = string(s)
	}
	return out
}

func (r *orderRepositoryImpl) ListActiveByPool(ctx context.Context, poolID, chainID int64) ([]ActiveOrderRecord, error) {
	var orders []ActiveOrderRecord
	err := r.db.SelectContext(ctx, &orders,
		`SELECT id, pool_id, chain_id, side, price, quantity, filled, status
         FROM orders
         WHERE pool_id=$1 AND chain_id=$2 AND status = ANY($3)`,
		poolID, chainID, pq.Array(activeStatuses()))
	return orders, err
}

func (r *orderRepositoryImpl) ListActiveAtPrice(ctx context.Context, poolID, chainID int64, side model.Side, price decimal.Decimal) ([]ActiveOrderRecord, error) {
	var orders []ActiveOrderRecord
	err := r.db.SelectContext(ctx, &orders,
		`SELECT id, pool_id, chain_id, side, price, quantity, filled, status
         FROM orders
         WHERE pool_id=$1 AND chain_id=$2 AND side=$3 AND price=$4 AND status = ANY($5)`,
		poolID, chainID, int8(side), price, pq.Array(activeStatuses()))
	return orders, err
}

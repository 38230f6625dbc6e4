package depth

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	depthRepository "github.com/tradewire/dexstream/internal/repository/depth"
	orderRepository "github.com/tradewire/dexstream/internal/repository/order"
	snapshotRepository "github.com/tradewire/dexstream/internal/repository/snapshot"
	"github.com/tradewire/dexstream/internal/stream"
	"github.com/tradewire/dexstream/pkg/model"
)

const (
	DefaultSnapshotIntervalMs = 100
	DefaultRetentionMs        = 100_000
	DefaultLevelCap           = 50
	DefaultCleanupBatch       = 1000
)

type DepthAggregator interface {
	// Apply folds one normalized order event into the depth store and
	// publishes the resulting single-level diff.
	Apply(ctx context.Context, ev model.OrderEvent)

	// RebuildPoolDepth recomputes every touched price level for the pool from
	// the currently-active order set.
	RebuildPoolDepth(ctx context.Context, poolID, chainID, asOfMs int64) error

	// MaybeSnapshot persists a top-N snapshot unless one was taken for this
	// pool within the configured minimum interval.
	MaybeSnapshot(ctx context.Context, poolID, chainID, nowMs int64)

	// CleanupSnapshots drops snapshots older than cutoffMs, bounded per call.
	CleanupSnapshots(ctx context.Context, poolID, chainID, cutoffMs int64)

	// DepthAtInterval returns the newest snapshot at least intervalMs old,
	// falling back to live depth when none exists.
	DepthAtInterval(ctx context.Context, poolID, chainID, intervalMs int64) model.Depth

	// CurrentDepth reads the live book, each side capped at the level cap.
	CurrentDepth(ctx context.Context, poolID, chainID int64) model.Depth
}

type AggregatorOpts struct {
	DepthRepo    depthRepository.DepthRepository
	SnapshotRepo snapshotRepository.SnapshotRepository
	OrderRepo    orderRepository.OrderRepository
	Logger       *log.Logger

	SnapshotIntervalMs int64
	RetentionMs        int64
	LevelCap           int
	CleanupBatch       int
}

type poolKey struct {
	poolID  int64
	chainID int64
}

type depthAggregatorImpl struct {
	depthRepo    depthRepository.DepthRepository
	snapshotRepo snapshotRepository.SnapshotRepository
	orderRepo    orderRepository.OrderRepository
	logger       *log.Logger

	snapshotIntervalMs int64
	retentionMs        int64
	levelCap           int
	cleanupBatch       int

	seq atomic.Int64 // global snapshot sequence, never reused

	mu         sync.Mutex
	lastSnapMs map[poolKey]int64 // grows one entry per pool, never evicted
}

func NewDepthAggregator(ctx context.Context, opts AggregatorOpts) DepthAggregator {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.SnapshotIntervalMs <= 0 {
		opts.SnapshotIntervalMs = DefaultSnapshotIntervalMs
	}
	if opts.RetentionMs <= 0 {
		opts.RetentionMs = DefaultRetentionMs
	}
	if opts.LevelCap <= 0 {
		opts.LevelCap = DefaultLevelCap
	}
	if opts.CleanupBatch <= 0 {
		opts.CleanupBatch = DefaultCleanupBatch
	}

	a := &depthAggregatorImpl{
		depthRepo:          opts.DepthRepo,
		snapshotRepo:       opts.SnapshotRepo,
		orderRepo:          opts.OrderRepo,
		logger:             opts.Logger,
		snapshotIntervalMs: opts.SnapshotIntervalMs,
		retentionMs:        opts.RetentionMs,
		levelCap:           opts.LevelCap,
		cleanupBatch:       opts.CleanupBatch,
		lastSnapMs:         make(map[poolKey]int64),
	}

	// seed from storage so sequences stay strictly increasing across restarts
	seq, err := a.snapshotRepo.MaxSequence(ctx)
	if err != nil {
		a.logger.Printf("depth: seed snapshot sequence: %v", err)
	}
	a.seq.Store(seq)
	return a
}

func (a *depthAggregatorImpl) Apply(ctx context.Context, ev model.OrderEvent) {
	orders, err := a.orderRepo.ListActiveAtPrice(ctx, ev.PoolID, ev.ChainID, ev.Side, ev.Price)
	if err != nil {
		a.logger.Printf("depth: recompute level %d/%d %s@%s: %v",
			ev.PoolID, ev.ChainID, ev.Side, ev.Price, err)
		return
	}

	amount := decimal.Zero
	count := 0
	for _, o := range orders {
		rem := o.Remaining()
		if rem.IsPositive() {
			amount = amount.Add(rem)
			count++
		}
	}

	rec := depthRepository.DepthLevelRecord{
		PoolID:     ev.PoolID,
		ChainID:    ev.ChainID,
		Side:       int8(ev.Side),
		Price:      ev.Price,
		Amount:     amount,
		OrderCount: count,
		UpdatedAt:  ev.BlockTimeMs,
	}
	if err := a.depthRepo.Upsert(ctx, rec); err != nil {
		a.logger.Printf("depth: upsert level %d/%d %s@%s: %v",
			ev.PoolID, ev.ChainID, ev.Side, ev.Price, err)
		return
	}

	if ev.Symbol != "" {
		level := model.PriceLevel{ev.Price.String(), amount.String()}
		if ev.Side == model.BID {
			stream.PublishDepth(ev.Symbol, []model.PriceLevel{level}, nil, ev.BlockTimeMs)
		} else {
			stream.PublishDepth(ev.Symbol, nil, []model.PriceLevel{level}, ev.BlockTimeMs)
		}
	}

	a.MaybeSnapshot(ctx, ev.PoolID, ev.ChainID, ev.BlockTimeMs)
}

type levelGroup struct {
	side   model.Side
	price  decimal.Decimal
	amount decimal.Decimal
	count  int
}

func (a *depthAggregatorImpl) RebuildPoolDepth(ctx context.Context, poolID, chainID, asOfMs int64) error {
	orders, err := a.orderRepo.ListActiveByPool(ctx, poolID, chainID)
	if err != nil {
		a.logger.Printf("depth: rebuild %d/%d: list orders: %v", poolID, chainID, err)
		return err
	}

	// group by (side, canonical price key); String() collapses "100.00"/"100"
	groups := make(map[string]*levelGroup)
	for _, o := range orders {
		rem := o.Remaining()
		if !rem.IsPositive() {
			continue
		}
		key := strconv.Itoa(int(o.Side)) + "|" + o.Price.String()
		g, ok := groups[key]
		if !ok {
			g = &levelGroup{side: model.Side(o.Side), price: o.Price}
			groups[key] = g
		}
		g.amount = g.amount.Add(rem)
		g.count++
	}

	for _, g := range groups {
		rec := depthRepository.DepthLevelRecord{
			PoolID:     poolID,
			ChainID:    chainID,
			Side:       int8(g.side),
			Price:      g.price,
			Amount:     g.amount,
			OrderCount: g.count,
			UpdatedAt:  asOfMs,
		}
		if err := a.depthRepo.Upsert(ctx, rec); err != nil {
			a.logger.Printf("depth: rebuild %d/%d: upsert %s@%s: %v",
				poolID, chainID, g.side, g.price, err)
			return err
		}
	}
	return nil
}

func (a *depthAggregatorImpl) MaybeSnapshot(ctx context.Context, poolID, chainID, nowMs int64) {
	key := poolKey{poolID, chainID}

	a.mu.Lock()
	last, ok := a.lastSnapMs[key]
	if ok && nowMs-last < a.snapshotIntervalMs {
		a.mu.Unlock()
		return
	}
	// claim the slot before releasing the lock so a concurrent caller
	// inside the interval backs off instead of double-snapshotting
	a.lastSnapMs[key] = nowMs
	a.mu.Unlock()

	inserted := false
	defer func() {
		if inserted {
			return
		}
		// failed attempts must not consume the throttle window
		a.mu.Lock()
		if a.lastSnapMs[key] == nowMs {
			if ok {
				a.lastSnapMs[key] = last
			} else {
				delete(a.lastSnapMs, key)
			}
		}
		a.mu.Unlock()
	}()

	d := a.CurrentDepth(ctx, poolID, chainID)
	bids, err := json.Marshal(d.Bids)
	if err != nil {
		a.logger.Printf("depth: marshal snapshot bids %d/%d: %v", poolID, chainID, err)
		return
	}
	asks, err := json.Marshal(d.Asks)
	if err != nil {
		a.logger.Printf("depth: marshal snapshot asks %d/%d: %v", poolID, chainID, err)
		return
	}

	rec := snapshotRepository.SnapshotRecord{
		PoolID:      poolID,
		ChainID:     chainID,
		Seq:         a.seq.Add(1),
		Bids:        string(bids),
		Asks:        string(asks),
		LevelCount:  len(d.Bids) + len(d.Asks),
		CreatedAtMs: nowMs,
	}
	if err := a.snapshotRepo.Insert(ctx, rec); err != nil {
		a.logger.Printf("depth: insert snapshot %d/%d seq=%d: %v", poolID, chainID, rec.Seq, err)
		return
	}
	inserted = true

	a.CleanupSnapshots(ctx, poolID, chainID, nowMs-a.retentionMs)
}

func (a *depthAggregatorImpl) CleanupSnapshots(ctx context.Context, poolID, chainID, cutoffMs int64) {
	n, err := a.snapshotRepo.DeleteOlderThan(ctx, poolID, chainID, cutoffMs, a.cleanupBatch)
	if err != nil {
		a.logger.Printf("depth: cleanup snapshots %d/%d: %v", poolID, chainID, err)
		return
	}
	if n > 0 {
		a.logger.Printf("depth: pruned %d snapshots for %d/%d", n, poolID, chainID)
	}
}

func (a *depthAggregatorImpl) DepthAtInterval(ctx context.Context, poolID, chainID, intervalMs int64) model.Depth {
	cutoff := time.Now().UnixMilli() - intervalMs
	rec, err := a.snapshotRepo.LatestBefore(ctx, poolID, chainID, cutoff)
	if err != nil {
		a.logger.Printf("depth: snapshot lookup %d/%d: %v", poolID, chainID, err)
	}
	if rec == nil {
		return a.CurrentDepth(ctx, poolID, chainID)
	}

	d := emptyDepth(rec.CreatedAtMs)
	if err := json.Unmarshal([]byte(rec.Bids), &d.Bids); err != nil {
		a.logger.Printf("depth: decode snapshot bids seq=%d: %v", rec.Seq, err)
		return a.CurrentDepth(ctx, poolID, chainID)
	}
	if err := json.Unmarshal([]byte(rec.Asks), &d.Asks); err != nil {
		a.logger.Printf("depth: decode snapshot asks seq=%d: %v", rec.Seq, err)
		return a.CurrentDepth(ctx, poolID, chainID)
	}
	if d.Bids == nil {
		d.Bids = []model.PriceLevel{}
	}
	if d.Asks == nil {
		d.Asks = []model.PriceLevel{}
	}
	return d
}

// emptyDepth keeps both sides as [] in serialized form, never null.
func emptyDepth(tsMs int64) model.Depth {
	return model.Depth{
		Bids:      []model.PriceLevel{},
		Asks:      []model.PriceLevel{},
		Timestamp: tsMs,
	}
}

func (a *depthAggregatorImpl) CurrentDepth(ctx context.Context, poolID, chainID int64) model.Depth {
	d := emptyDepth(time.Now().UnixMilli())

	bids, err := a.depthRepo.ListSide(ctx, poolID, chainID, model.BID, a.levelCap)
	if err != nil {
		a.logger.Printf("depth: read bids %d/%d: %v", poolID, chainID, err)
		return emptyDepth(d.Timestamp)
	}
	asks, err := a.depthRepo.ListSide(ctx, poolID, chainID, model.ASK, a.levelCap)
	if err != nil {
		a.logger.Printf("depth: read asks %d/%d: %v", poolID, chainID, err)
		return emptyDepth(d.Timestamp)
	}

	for _, lvl := range bids {
		d.Bids = append(d.Bids, model.PriceLevel{lvl.Price.String(), lvl.Amount.String()})
	}
	for _, lvl := range asks {
		d.Asks = append(d.Asks, model.PriceLevel{lvl.Price.String(), lvl.Amount.String()})
	}
	return d
}

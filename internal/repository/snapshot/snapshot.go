package snapshot

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// --- Models corresponding to DB tables ---
type SnapshotRecord struct {
	PoolID      int64  `db:"pool_id"`
	ChainID     int64  `db:"chain_id"`
	Seq         int64  `db:"seq"`
	Bids        string `db:"bids"` // JSON: [["price","qty"], ...] best first
	Asks        string `db:"asks"`
	LevelCount  int    `db:"level_count"`
	CreatedAtMs int64  `db:"created_at_ms"`
}

// --- Repository Interface ---
// Snapshot rows are immutable once inserted; there is no update path.
type SnapshotRepository interface {
	Insert(ctx context.Context, rec SnapshotRecord) error
	// LatestBefore returns the newest snapshot taken at or before cutoffMs,
	// or nil when the pool has none that old.
	LatestBefore(ctx context.Context, poolID, chainID, cutoffMs int64) (*SnapshotRecord, error)
	// DeleteOlderThan removes at most limit snapshots strictly older than
	// cutoffMs and reports how many rows went away.
	DeleteOlderThan(ctx context.Context, poolID, chainID, cutoffMs int64, limit int) (int64, error)
	// MaxSequence returns the highest sequence number ever stored (0 when empty).
	MaxSequence(ctx context.Context) (int64, error)
}

// --- Implementation ---
type snapshotRepositoryImpl struct {
	db *sqlx.DB
}

func NewSnapshotRepository(db *sqlx.DB) SnapshotRepository {
	return &snapshotRepositoryImpl{db: db}
}

func (r *snapshotRepositoryImpl) Insert(ctx context.Context, rec SnapshotRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO depth_snapshots (pool_id, chain_id, seq, bids, asks, level_count, created_at_ms)
         VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		rec.PoolID, rec.ChainID, rec.Seq, rec.Bids, rec.Asks, rec.LevelCount, rec.CreatedAtMs)
	return err
}

func (r *snapshotRepositoryImpl) LatestBefore(ctx context.Context, poolID, chainID, cutoffMs int64) (*SnapshotRecord, error) {
	var rec SnapshotRecord
	err := r.db.GetContext(ctx, &rec,
		`SELECT pool_id, chain_id, seq, bids, asks, level_count, created_at_ms
         FROM depth_snapshots
         WHERE pool_id=$1 AND chain_id=$2 AND created_at_ms <= $3
         ORDER BY created_at_ms DESC LIMIT 1`,
		poolID, chainID, cutoffMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *snapshotRepositoryImpl) DeleteOlderThan(ctx context.Context, poolID, chainID, cutoffMs int64, limit int) (int64, error) {
	// ctid subselect keeps the delete bounded; plain DELETE has no LIMIT in postgres.
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM depth_snapshots WHERE ctid IN (
             SELECT ctid FROM depth_snapshots
             WHERE pool_id=$1 AND chain_id=$2 AND created_at_ms < $3
             ORDER BY created_at_ms ASC LIMIT $4)`,
		poolID, chainID, cutoffMs, limit)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *snapshotRepositoryImpl) MaxSequence(ctx context.Context) (int64, error) {
	var seq int64
	err := r.db.GetContext(ctx, &seq, `SELECT COALESCE(MAX(seq), 0) FROM depth_snapshots`)
	return seq, err
}

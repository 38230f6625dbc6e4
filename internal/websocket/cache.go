package websocket

import (
	"strings"
	"sync"

	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"github.com/tradewire/dexstream/pkg/model"
)

// bookLevel is one cached price level; bid trees order best (highest) first.
type bookLevel struct {
	price decimal.Decimal
	qty   string
	bid   bool
}

func (l *bookLevel) Less(than btree.Item) bool {
	other := than.(*bookLevel)
	if l.bid {
		return l.price.GreaterThan(other.price) // Reverse
	}
	return l.price.LessThan(other.price)
}

type symbolBook struct {
	bids         *btree.BTree
	asks         *btree.BTree
	lastUpdateID int64
}

// BookCache holds the last published book per symbol so the REST snapshot
// endpoint never touches storage. Update ids are monotonic per symbol; a
// stale or replayed diff is ignored.
type BookCache struct {
	mu    sync.RWMutex
	books map[string]*symbolBook // keyed by upper symbol
}

func NewBookCache() *BookCache {
	return &BookCache{books: make(map[string]*symbolBook)}
}

func (bc *BookCache) Apply(symbol string, bids, asks []model.PriceLevel, updateID int64) {
	key := strings.ToUpper(symbol)

	bc.mu.Lock()
	defer bc.mu.Unlock()

	book, ok := bc.books[key]
	if !ok {
		book = &symbolBook{bids: btree.New(32), asks: btree.New(32)}
		bc.books[key] = book
	}
	if updateID <= book.lastUpdateID {
		return
	}
	book.lastUpdateID = updateID

	applyLevels(book.bids, bids, true)
	applyLevels(book.asks, asks, false)
}

func applyLevels(tree *btree.BTree, levels []model.PriceLevel, bid bool) {
	for _, lvl := range levels {
		price, err := decimal.NewFromString(lvl[0])
		if err != nil {
			continue
		}
		qty, err := decimal.NewFromString(lvl[1])
		if err != nil {
			continue
		}
		if qty.IsZero() {
			tree.Delete(&bookLevel{price: price, bid: bid})
		} else {
			tree.ReplaceOrInsert(&bookLevel{price: price, qty: lvl[1], bid: bid})
		}
	}
}

// Snapshot returns the cached book for symbol, each side truncated to limit.
// The second return is false when the symbol has never been published.
func (bc *BookCache) Snapshot(symbol string, limit int) (model.BookSnapshot, bool) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	book, ok := bc.books[strings.ToUpper(symbol)]
	if !ok {
		return model.BookSnapshot{}, false
	}

	snap := model.BookSnapshot{
		LastUpdateID: book.lastUpdateID,
		Bids:         collectLevels(book.bids, limit),
		Asks:         collectLevels(book.asks, limit),
	}
	return snap, true
}

func collectLevels(tree *btree.BTree, limit int) []model.PriceLevel {
	out := make([]model.PriceLevel, 0, min(limit, tree.Len()))
	tree.Ascend(func(item btree.Item) bool {
		if len(out) >= limit {
			return false // Stop iteration
		}
		lvl := item.(*bookLevel)
		out = append(out, model.PriceLevel{lvl.price.String(), lvl.qty})
		return true
	})
	return out
}

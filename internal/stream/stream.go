package stream

import (
	"encoding/json"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tradewire/dexstream/pkg/model"
)

// Gateway is the delivery surface the publishers write to. The live websocket
// hub implements it; until a gateway is started a no-op sits here so the
// event-consuming layer can run (and be tested) without any transport.
type Gateway interface {
	Emit(topic string, payload []byte)
	EmitToUser(userID string, payload []byte)
	UpdateBook(symbol string, bids, asks []model.PriceLevel, lastUpdateID int64)
}

type nopGateway struct{}

func (nopGateway) Emit(string, []byte)       {}
func (nopGateway) EmitToUser(string, []byte) {}
func (nopGateway) UpdateBook(string, []model.PriceLevel, []model.PriceLevel, int64) {}

// Noop returns the inert gateway (useful for restoring state in tests).
func Noop() Gateway { return nopGateway{} }

var (
	gwMu   sync.RWMutex
	gw     Gateway     = nopGateway{}
	logger *log.Logger = log.Default()
)

// Use installs the live gateway and the logger marshal failures report to.
// Call once after the hub is running; a nil logger keeps the current one.
func Use(g Gateway, l *log.Logger) {
	gwMu.Lock()
	gw = g
	if l != nil {
		logger = l
	}
	gwMu.Unlock()
}

func current() (Gateway, *log.Logger) {
	gwMu.RLock()
	defer gwMu.RUnlock()
	return gw, logger
}

// Topic builds the public stream name, e.g. "ethusdc@depth".
func Topic(symbol, channel string) string {
	return strings.ToLower(symbol) + "@" + channel
}

var updateIDs sync.Map // map[string]*int64, keyed by upper symbol

// nextUpdateID allocates the next per-symbol lastUpdateId. Depth and kline
// publishes share the counter so ids stay monotonic within a symbol.
func nextUpdateID(symbol string) int64 {
	v, _ := updateIDs.LoadOrStore(strings.ToUpper(symbol), new(int64))
	return atomic.AddInt64(v.(*int64), 1)
}

type streamEnvelope struct {
	Stream string `json:"stream"`
	Data   any    `json:"data"`
}

func emitStream(topic string, data any) {
	g, l := current()
	b, err := json.Marshal(streamEnvelope{Stream: topic, Data: data})
	if err != nil {
		l.Printf("stream: marshal %s: %v", topic, err)
		return
	}
	g.Emit(topic, b)
}

func emitUser(userID string, data any) {
	g, l := current()
	// user-scoped frames are raw objects, no stream envelope
	b, err := json.Marshal(data)
	if err != nil {
		l.Printf("stream: marshal user payload: %v", err)
		return
	}
	g.EmitToUser(userID, b)
}

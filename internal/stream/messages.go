package stream

import (
	"strings"

	"github.com/tradewire/dexstream/pkg/model"
)

// Outbound payloads mirror the Binance stream convention; the single-letter
// field names are part of the wire contract.

type TradeMessage struct {
	EventType  string `json:"e"`
	EventTime  int64  `json:"E"`
	Symbol     string `json:"s"`
	TradeID    int64  `json:"t"`
	Price      string `json:"p"`
	Quantity   string `json:"q"`
	TradeTime  int64  `json:"T"`
	BuyerMaker bool   `json:"m"`
}

type DepthMessage struct {
	EventType     string             `json:"e"`
	EventTime     int64              `json:"E"`
	Symbol        string             `json:"s"`
	FirstUpdateID int64              `json:"U"`
	FinalUpdateID int64              `json:"u"`
	Bids          []model.PriceLevel `json:"b"`
	Asks          []model.PriceLevel `json:"a"`
}

type Kline struct {
	OpenTime    int64  `json:"t"`
	CloseTime   int64  `json:"T"`
	Symbol      string `json:"s"`
	Interval    string `json:"i"`
	Open        string `json:"o"`
	Close       string `json:"c"`
	High        string `json:"h"`
	Low         string `json:"l"`
	Volume      string `json:"v"`
	TradeCount  int64  `json:"n"`
	Closed      bool   `json:"x"`
	QuoteVolume string `json:"q"`
}

type KlineMessage struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Kline     Kline  `json:"k"`
}

type MiniTickerMessage struct {
	EventType   string `json:"e"`
	EventTime   int64  `json:"E"`
	Symbol      string `json:"s"`
	Close       string `json:"c"`
	Open        string `json:"o"`
	High        string `json:"h"`
	Low         string `json:"l"`
	Volume      string `json:"v"`
	QuoteVolume string `json:"q"`
}

type ExecutionReport struct {
	EventType     string `json:"e"`
	EventTime     int64  `json:"E"`
	Symbol        string `json:"s"`
	Side          string `json:"S"` // "BUY" / "SELL"
	OrderType     string `json:"o"`
	OrigQuantity  string `json:"q"`
	Price         string `json:"p"`
	Status        string `json:"X"`
	OrderID       int64  `json:"i"`
	LastFilledQty string `json:"l"`
	CumFilledQty  string `json:"z"`
	LastFillPrice string `json:"L"`
	TradeTime     int64  `json:"T"`
}

type BalanceUpdate struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Asset     string `json:"a"`
	Delta     string `json:"d"`
	ClearTime int64  `json:"T"`
}

// PublishTrade pushes a public trade to <symbol>@trade subscribers.
func PublishTrade(symbol string, msg TradeMessage) {
	msg.EventType = "trade"
	msg.Symbol = strings.ToUpper(symbol)
	emitStream(Topic(symbol, "trade"), msg)
}

// PublishDepth pushes a depth diff to <symbol>@depth subscribers and refreshes
// the gateway's in-memory book so REST snapshots stay current. The allocated
// lastUpdateId is returned so callers can correlate.
func PublishDepth(symbol string, bids, asks []model.PriceLevel, eventTimeMs int64) int64 {
	// an untouched side goes out as [], never null
	if bids == nil {
		bids = []model.PriceLevel{}
	}
	if asks == nil {
		asks = []model.PriceLevel{}
	}
	id := nextUpdateID(symbol)
	g, _ := current()
	g.UpdateBook(symbol, bids, asks, id)
	emitStream(Topic(symbol, "depth"), DepthMessage{
		EventType:     "depthUpdate",
		EventTime:     eventTimeMs,
		Symbol:        strings.ToUpper(symbol),
		FirstUpdateID: id,
		FinalUpdateID: id,
		Bids:          bids,
		Asks:          asks,
	})
	return id
}

// PublishKline pushes a candle update to <symbol>@kline_<interval>.
func PublishKline(symbol, interval string, eventTimeMs int64, k Kline) {
	// allocate an id so per-symbol update ids stay monotonic across channels;
	// the kline payload itself carries none.
	nextUpdateID(symbol)
	k.Symbol = strings.ToUpper(symbol)
	k.Interval = interval
	emitStream(Topic(symbol, "kline_"+interval), KlineMessage{
		EventType: "kline",
		EventTime: eventTimeMs,
		Symbol:    strings.ToUpper(symbol),
		Kline:     k,
	})
}

// PublishMiniTicker pushes a rolling-window ticker to <symbol>@miniTicker.
func PublishMiniTicker(symbol string, msg MiniTickerMessage) {
	msg.EventType = "24hrMiniTicker"
	msg.Symbol = strings.ToUpper(symbol)
	emitStream(Topic(symbol, "miniTicker"), msg)
}

// PublishExecutionReport delivers a private fill report to every connection
// owned by userID.
func PublishExecutionReport(userID string, msg ExecutionReport) {
	msg.EventType = "executionReport"
	emitUser(userID, msg)
}

// PublishBalanceUpdate delivers a private balance delta to userID's connections.
func PublishBalanceUpdate(userID string, msg BalanceUpdate) {
	msg.EventType = "balanceUpdate"
	emitUser(userID, msg)
}

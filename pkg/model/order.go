package model

import (
	"github.com/shopspring/decimal"
)

type Side int8

const (
	BID Side = 0
	ASK Side = 1
)

func (s Side) String() string {
	if s == BID {
		return "BID"
	}
	return "ASK"
}

type OrderStatus string

const (
	// ORDER_NEW is a legacy spelling of ORDER_OPEN still present in older rows.
	ORDER_NEW              OrderStatus = "NEW"
	ORDER_OPEN             OrderStatus = "OPEN"
	ORDER_PARTIALLY_FILLED OrderStatus = "PARTIALLY_FILLED"
	ORDER_FILLED           OrderStatus = "FILLED"
	ORDER_CANCELLED        OrderStatus = "CANCELLED"
)

// ActiveOrderStatuses is the canonical set of statuses that contribute to depth.
var ActiveOrderStatuses = []OrderStatus{ORDER_NEW, ORDER_OPEN, ORDER_PARTIALLY_FILLED}

type EventKind string

const (
	EVENT_ORDER_PLACED    EventKind = "placed"
	EVENT_ORDER_MATCHED   EventKind = "matched"
	EVENT_ORDER_CANCELLED EventKind = "cancelled"
	EVENT_ORDER_UPDATED   EventKind = "updated"
)

// OrderEvent is one normalized record from the chain-event layer. Records for a
// given pool arrive already serialized in block order; the symbol is resolved
// upstream by the token metadata layer.
type OrderEvent struct {
	Kind        EventKind
	PoolID      int64
	ChainID     int64
	Symbol      string
	Side        Side
	Price       decimal.Decimal
	Quantity    decimal.Decimal
	Filled      decimal.Decimal
	Status      OrderStatus
	BlockTimeMs int64
}

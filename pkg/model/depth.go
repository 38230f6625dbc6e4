package model

// PriceLevel is one aggregated (price, quantity) pair, serialized the way the
// wire protocol expects: decimal strings, no exponent tricks.
type PriceLevel [2]string

// Depth represents one side-sorted view of a pool's book.
type Depth struct {
	Bids      []PriceLevel `json:"bids"` // highest price first
	Asks      []PriceLevel `json:"asks"` // lowest price first
	Timestamp int64        `json:"timestamp"`
}

// BookSnapshot is the REST depth response shape.
type BookSnapshot struct {
	LastUpdateID int64        `json:"lastUpdateId"`
	Bids         []PriceLevel `json:"bids"`
	Asks         []PriceLevel `json:"asks"`
}

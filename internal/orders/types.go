package orders

import (
	"time"

	"github.com/google/uuid"
)

// Status is the order lifecycle state. Settlement only ever drives
// Pending → Paid; later states belong to fulfillment.
type Status string

const (
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
	StatusShipped  Status = "shipped"
	StatusRefunded Status = "refunded"
	StatusCanceled Status = "canceled"
)

// ListingType distinguishes standard storefront items from peer-to-peer
// resale listings, which earn the seller a non-monetary point bonus.
const (
	ListingStandard = "standard"
	ListingPeer     = "peer"
)

// LineItem is a purchase line copied from the catalog at checkout time.
// Immutable once copied: catalog price changes never affect historical orders.
type LineItem struct {
	ID             uuid.UUID
	CatalogItemID  uuid.UUID
	Quantity       int
	UnitPriceCents int64
	ListingType    string
}

type Order struct {
	ID            uuid.UUID
	BuyerID       uuid.UUID
	SellerID      uuid.UUID
	SubtotalCents int64
	ShippingCents int64
	TotalCents    int64
	Status        Status
	CheckoutRef   string
	PaymentRef    string
	ReviewReason  string
	CreatedAt     time.Time
	PaidAt        *time.Time
	LineItems     []LineItem
}

// AllPeerListings reports whether every line item is a peer-to-peer listing.
func (o *Order) AllPeerListings() bool {
	if len(o.LineItems) == 0 {
		return false
	}
	for _, li := range o.LineItems {
		if li.ListingType != ListingPeer {
			return false
		}
	}
	return true
}

package ledger

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Side indicates which side of the books an entry posts to
type Side string

const (
	SideDebit  Side = "debit"
	SideCredit Side = "credit"
)

const (
	// CategoryCODMarkedPaid tags entries created when a cash-on-delivery
	// order is marked paid
	CategoryCODMarkedPaid = "cod_marked_paid"

	// CommissionAccountKey is the platform commission account
	CommissionAccountKey = "platform:commission"

	sellerAccountPrefix = "seller:"
)

// Entry is one immutable, append-only ledger posting. The settlement engine
// only ever reads entries; they are written by the order/payment services.
type Entry struct {
	ID         primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	PostedAt   time.Time          `json:"posted_at" bson:"posted_at"`
	AccountKey string             `json:"account_key" bson:"account_key"`
	DC         Side               `json:"dc" bson:"dc"`
	Amount     int64              `json:"amount" bson:"amount"` // Minor units, never negative
	Category   string             `json:"category" bson:"category"`
	Reference  string             `json:"reference,omitempty" bson:"reference,omitempty"`
	CreatedAt  time.Time          `json:"created_at" bson:"created_at"`
}

// SellerID extracts the seller id from an account key of the form
// "seller:<id>". The second return is false for any other key shape.
func SellerID(accountKey string) (string, bool) {
	if !strings.HasPrefix(accountKey, sellerAccountPrefix) {
		return "", false
	}
	id := accountKey[len(sellerAccountPrefix):]
	if id == "" {
		return "", false
	}
	return id, true
}

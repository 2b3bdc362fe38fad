package activation

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const DefaultDurationDays = 30

var (
	ErrNotFound        = errors.New("activation key not found")
	ErrInvalidKey      = errors.New("activation key is unknown or already redeemed")
	ErrAlreadyReplaced = errors.New("activation key was already replaced")
	ErrProductNotFound = errors.New("product not found")
)

type Key struct {
	ID           uuid.UUID     `json:"id"`
	Key          string        `json:"key"`
	ProductID    uuid.UUID     `json:"product_id"`
	DurationDays int           `json:"duration_days"`
	IsRedeemed   bool          `json:"is_redeemed"`
	CreatedAt    time.Time     `json:"created_at"`
	GeneratedBy  uuid.NullUUID `json:"generated_by"`
	RedeemedBy   uuid.NullUUID `json:"redeemed_by"`
	IsFree       bool          `json:"is_free"`
	PricePaid    float64       `json:"price_paid"`
	OrderID      uuid.NullUUID `json:"order_id"`
	ReplacedBy   uuid.NullUUID `json:"replaced_by"`
}

// ExpiresAt is the end of the access window that starts when the key is
// redeemed at now.
func (k Key) ExpiresAt(now time.Time) time.Time {
	return now.UTC().AddDate(0, 0, k.DurationDays)
}

type IssueRequest struct {
	ProductID    uuid.UUID `json:"product_id"`
	IsFree       bool      `json:"is_free"`
	DurationDays *int      `json:"duration_days"`
}

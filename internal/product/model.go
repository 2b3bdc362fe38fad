package product

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("product not found")

type Product struct {
	ID              uuid.UUID `json:"id"`
	Identifier      string    `json:"identifier"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	Price           float64   `json:"price"`
	Size            string    `json:"size"`
	Color           string    `json:"color"`
	ImageURL        *string   `json:"image_url"`
	Category        *string   `json:"category"`
	InStock         bool      `json:"in_stock"`
	IsDiscounted    bool      `json:"is_discounted"`
	DiscountedPrice *float64  `json:"discounted_price"`
	Frozen          bool      `json:"frozen"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Input struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Price           float64  `json:"price"`
	Size            string   `json:"size"`
	Color           string   `json:"color"`
	ImageURL        *string  `json:"image_url"`
	Category        *string  `json:"category"`
	InStock         bool     `json:"in_stock"`
	IsDiscounted    bool     `json:"is_discounted"`
	DiscountedPrice *float64 `json:"discounted_price"`
}

// Patch is a partial update; nil fields keep their stored value.
type Patch struct {
	Name            *string  `json:"name"`
	Description     *string  `json:"description"`
	Price           *float64 `json:"price"`
	Size            *string  `json:"size"`
	Color           *string  `json:"color"`
	ImageURL        *string  `json:"image_url"`
	Category        *string  `json:"category"`
	InStock         *bool    `json:"in_stock"`
	IsDiscounted    *bool    `json:"is_discounted"`
	DiscountedPrice *float64 `json:"discounted_price"`
}

package catalog

import (
	"errors"
	"time"
)

// Product is a storefront item. Prices are in minor units (cents); no
// floats for money.
type Product struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	PriceCents  int64   `json:"price_cents"`
	Stock       int     `json:"stock"`
	AvgRating   float64 `json:"avg_rating"`
}

// Image is one stored product image. Position 1 is the cover.
type Image struct {
	ID       int64  `json:"id"`
	Position int    `json:"position"`
	Data     []byte `json:"data"`
}

// Detail is a product with its images and active promotion, as served by
// the single-product endpoint.
type Detail struct {
	Product
	Images    []Image    `json:"images"`
	Promotion *Promotion `json:"promotion,omitempty"`
}

// Summary is a product with its cover image, as served by the listing.
type Summary struct {
	Product
	CoverImage []byte `json:"cover_image,omitempty"`
}

// Category groups products.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Promotion is a per-product discount window. At most one row exists per
// product; re-applying a promotion updates it in place.
type Promotion struct {
	ID                   int64      `json:"id"`
	ProductID            int64      `json:"product_id"`
	DiscountPercent      float64    `json:"discount_percent"`
	DiscountedPriceCents *int64     `json:"discounted_price_cents,omitempty"`
	Active               bool       `json:"active"`
	Position             int        `json:"position"`
	StartsAt             time.Time  `json:"starts_at"`
	EndsAt               *time.Time `json:"ends_at,omitempty"`
}

// Deal is an active promotion joined with its product, price computed.
type Deal struct {
	Product   Product   `json:"product"`
	Promotion Promotion `json:"promotion"`
	// FinalPriceCents is the explicit discounted price when set, otherwise
	// the percentage applied to the list price.
	FinalPriceCents int64 `json:"final_price_cents"`
}

// ProductInput carries create/update fields. Images are base64 on the
// wire; RemoveImageIDs only applies to updates.
type ProductInput struct {
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	PriceCents     int64           `json:"price_cents"`
	Stock          int             `json:"stock"`
	Images         [][]byte        `json:"images"`
	RemoveImageIDs []int64         `json:"remove_image_ids,omitempty"`
	CategoryIDs    []int64         `json:"category_ids,omitempty"`
	Promotion      *PromotionInput `json:"promotion,omitempty"`
}

// PromotionInput marks a product as promoted.
type PromotionInput struct {
	DiscountPercent      float64    `json:"discount_percent"`
	DiscountedPriceCents *int64     `json:"discounted_price_cents,omitempty"`
	EndsAt               *time.Time `json:"ends_at,omitempty"`
}

// CategoryInput carries category create/update fields.
type CategoryInput struct {
	Name string `json:"name"`
}

const maxImageBytes = 5 << 20

var (
	ErrNotFound      = errors.New("catalog: not found")
	ErrCategoryTaken = errors.New("catalog: category name already exists")
)

// ValidationError reports a caller-fault input problem.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "catalog: " + e.Field + ": " + e.Message
}

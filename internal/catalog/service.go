package catalog

import (
	"context"
	"fmt"
	"time"

	"lojinha.org/internal/audit"
	"lojinha.org/internal/auth"
)

// Service owns catalog mutations and the history side effects they leave
// behind. Admin authorization happens at the HTTP boundary; the service
// receives the already-authorized actor for attribution only.
type Service struct {
	store    Store
	recorder *audit.Recorder
	now      func() time.Time
}

// NewService constructs a Service.
func NewService(store Store, recorder *audit.Recorder) *Service {
	return &Service{store: store, recorder: recorder, now: time.Now}
}

// snapshot is the field set captured in history records.
type snapshot struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
	Stock       int    `json:"stock"`
}

func snapshotOf(p Product) snapshot {
	return snapshot{
		Name:        p.Name,
		Description: p.Description,
		PriceCents:  p.PriceCents,
		Stock:       p.Stock,
	}
}

// ListProducts returns all products with their cover image.
func (s *Service) ListProducts(ctx context.Context) ([]Summary, error) {
	return s.store.ListProducts(ctx)
}

// GetProduct returns one product with images and active promotion.
func (s *Service) GetProduct(ctx context.Context, id int64) (*Detail, error) {
	return s.store.GetProduct(ctx, id)
}

// CreateProduct validates input, creates the product (with images and
// category links), records a "created" history entry and applies the
// optional promotion. The history write is strictly additive: its failure
// never rolls the creation back.
func (s *Service) CreateProduct(ctx context.Context, actor auth.Identity, in ProductInput) (*Detail, error) {
	if err := validateProductInput(in, true); err != nil {
		return nil, err
	}

	p := &Product{
		Name:        in.Name,
		Description: in.Description,
		PriceCents:  in.PriceCents,
		Stock:       in.Stock,
	}
	if err := s.store.CreateProduct(ctx, p, in.Images, in.CategoryIDs); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	// The record goes in as soon as the insert commits: a promotion failure
	// below must not leave a persisted product with no "created" entry.
	after := snapshotOf(*p)
	s.recorder.Record(ctx, p.ID, actor.ID, audit.ActionCreated, nil, after,
		fmt.Sprintf("product created by %s", actor.Name))

	if in.Promotion != nil {
		if err := s.applyPromotion(ctx, p.ID, *in.Promotion); err != nil {
			return nil, err
		}
	}

	return s.store.GetProduct(ctx, p.ID)
}

// UpdateProduct captures the prior state, applies the edit (field update,
// image add/remove, promotion upsert or deactivation) and records an
// "edited" history entry carrying both snapshots.
func (s *Service) UpdateProduct(ctx context.Context, actor auth.Identity, id int64, in ProductInput) (*Detail, error) {
	prior, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := validateProductInput(in, false); err != nil {
		return nil, err
	}

	p := &Product{
		ID:          id,
		Name:        in.Name,
		Description: in.Description,
		PriceCents:  in.PriceCents,
		Stock:       in.Stock,
	}
	if err := s.store.UpdateProduct(ctx, p, in.Images, in.RemoveImageIDs, in.CategoryIDs); err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}

	if in.Promotion != nil {
		if err := s.applyPromotion(ctx, id, *in.Promotion); err != nil {
			return nil, err
		}
	} else if err := s.store.DeactivatePromotion(ctx, id); err != nil {
		return nil, fmt.Errorf("deactivate promotion: %w", err)
	}

	before := snapshotOf(prior.Product)
	after := snapshotOf(*p)
	s.recorder.Record(ctx, id, actor.ID, audit.ActionEdited, before, after,
		fmt.Sprintf("product edited by %s", actor.Name))

	return s.store.GetProduct(ctx, id)
}

// DeleteProduct removes the product (images and promotions go with it) and
// records a "deleted" history entry with the prior state. The record is
// written after the delete succeeds, never speculatively.
func (s *Service) DeleteProduct(ctx context.Context, actor auth.Identity, id int64) error {
	prior, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteProduct(ctx, id); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	before := snapshotOf(prior.Product)
	s.recorder.Record(ctx, id, actor.ID, audit.ActionDeleted, before, nil,
		fmt.Sprintf("product deleted by %s", actor.Name))
	return nil
}

// ProductHistory lists a product's history, newest first.
func (s *Service) ProductHistory(ctx context.Context, productID int64) ([]audit.Record, error) {
	return s.recorder.ListForProduct(ctx, productID)
}

// ActorHistory lists the mutations performed by a user, newest first.
func (s *Service) ActorHistory(ctx context.Context, actorID int64) ([]audit.Record, error) {
	return s.recorder.ListForActor(ctx, actorID)
}

// ListDeals returns active promotions within their time window.
func (s *Service) ListDeals(ctx context.Context) ([]Deal, error) {
	return s.store.ListActivePromotions(ctx, s.now().UTC())
}

// ListCategories returns all categories ordered by name.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	return s.store.ListCategories(ctx)
}

// CreateCategory adds a category.
func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (*Category, error) {
	if in.Name == "" {
		return nil, &ValidationError{Field: "name", Message: "category name is required"}
	}
	c := &Category{Name: in.Name}
	if err := s.store.CreateCategory(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateCategory renames a category.
func (s *Service) UpdateCategory(ctx context.Context, id int64, in CategoryInput) (*Category, error) {
	if in.Name == "" {
		return nil, &ValidationError{Field: "name", Message: "category name is required"}
	}
	c := &Category{ID: id, Name: in.Name}
	if err := s.store.UpdateCategory(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteCategory removes a category and its product links.
func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	return s.store.DeleteCategory(ctx, id)
}

func (s *Service) applyPromotion(ctx context.Context, productID int64, in PromotionInput) error {
	promo := &Promotion{
		ProductID:            productID,
		DiscountPercent:      in.DiscountPercent,
		DiscountedPriceCents: in.DiscountedPriceCents,
		StartsAt:             s.now().UTC(),
		EndsAt:               in.EndsAt,
	}
	if err := s.store.UpsertPromotion(ctx, promo); err != nil {
		return fmt.Errorf("upsert promotion: %w", err)
	}
	return nil
}

func validateProductInput(in ProductInput, requireImages bool) error {
	if in.Name == "" {
		return &ValidationError{Field: "name", Message: "product name is required"}
	}
	if in.Description == "" {
		return &ValidationError{Field: "description", Message: "product description is required"}
	}
	if in.PriceCents <= 0 {
		return &ValidationError{Field: "price_cents", Message: "price must be greater than zero"}
	}
	if in.Stock < 0 {
		return &ValidationError{Field: "stock", Message: "stock must not be negative"}
	}
	if requireImages && len(in.Images) == 0 {
		return &ValidationError{Field: "images", Message: "at least one image is required"}
	}
	for i, img := range in.Images {
		if len(img) > maxImageBytes {
			return &ValidationError{Field: "images", Message: fmt.Sprintf("image %d exceeds the 5MB limit", i+1)}
		}
	}
	if in.Promotion != nil {
		if in.Promotion.DiscountPercent < 0 || in.Promotion.DiscountPercent > 100 {
			return &ValidationError{Field: "promotion.discount_percent", Message: "discount must be between 0 and 100"}
		}
		if dp := in.Promotion.DiscountedPriceCents; dp != nil && (*dp < 0 || *dp > in.PriceCents) {
			return &ValidationError{Field: "promotion.discounted_price_cents", Message: "discounted price must be between 0 and the list price"}
		}
	}
	return nil
}

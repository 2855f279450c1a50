package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Store persists the catalog. Implementations: InMemory below and the
// PostgreSQL store under internal/store/pg.
type Store interface {
	CreateProduct(ctx context.Context, p *Product, images [][]byte, categoryIDs []int64) error
	GetProduct(ctx context.Context, id int64) (*Detail, error)
	ListProducts(ctx context.Context) ([]Summary, error)
	UpdateProduct(ctx context.Context, p *Product, addImages [][]byte, removeImageIDs []int64, categoryIDs []int64) error
	DeleteProduct(ctx context.Context, id int64) error

	UpsertPromotion(ctx context.Context, promo *Promotion) error
	DeactivatePromotion(ctx context.Context, productID int64) error
	ListActivePromotions(ctx context.Context, now time.Time) ([]Deal, error)

	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, c *Category) error
	UpdateCategory(ctx context.Context, c *Category) error
	DeleteCategory(ctx context.Context, id int64) error
}

// InMemory implements Store with in-process concurrency safety. Tests and
// local runs use it in place of PostgreSQL.
type InMemory struct {
	mu sync.Mutex

	nextProductID  int64
	nextImageID    int64
	nextCategoryID int64
	nextPromoID    int64

	products   map[int64]*Product
	images     map[int64][]Image            // product id -> images
	categories map[int64]*Category
	links      map[int64][]int64            // product id -> category ids
	promos     map[int64]*Promotion         // product id -> promotion
}

// NewInMemory creates an empty catalog.
func NewInMemory() *InMemory {
	return &InMemory{
		products:   make(map[int64]*Product),
		images:     make(map[int64][]Image),
		categories: make(map[int64]*Category),
		links:      make(map[int64][]int64),
		promos:     make(map[int64]*Promotion),
	}
}

func (s *InMemory) CreateProduct(ctx context.Context, p *Product, images [][]byte, categoryIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextProductID++
	p.ID = s.nextProductID
	cp := *p
	s.products[p.ID] = &cp

	for i, data := range images {
		s.nextImageID++
		s.images[p.ID] = append(s.images[p.ID], Image{ID: s.nextImageID, Position: i + 1, Data: data})
	}
	if len(categoryIDs) > 0 {
		s.links[p.ID] = append([]int64(nil), categoryIDs...)
	}
	return nil
}

func (s *InMemory) GetProduct(ctx context.Context, id int64) (*Detail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	d := &Detail{Product: *p}
	d.Images = append(d.Images, s.images[id]...)
	if promo, ok := s.promos[id]; ok && promo.Active {
		cp := *promo
		d.Promotion = &cp
	}
	return d, nil
}

func (s *InMemory) ListProducts(ctx context.Context) ([]Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Summary, 0, len(s.products))
	for id, p := range s.products {
		sum := Summary{Product: *p}
		for _, img := range s.images[id] {
			if img.Position == 1 {
				sum.CoverImage = img.Data
				break
			}
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) UpdateProduct(ctx context.Context, p *Product, addImages [][]byte, removeImageIDs []int64, categoryIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[p.ID]
	if !ok {
		return ErrNotFound
	}
	p.AvgRating = existing.AvgRating
	cp := *p
	s.products[p.ID] = &cp

	if len(removeImageIDs) > 0 {
		remove := make(map[int64]bool, len(removeImageIDs))
		for _, id := range removeImageIDs {
			remove[id] = true
		}
		var kept []Image
		for _, img := range s.images[p.ID] {
			if !remove[img.ID] {
				kept = append(kept, img)
			}
		}
		s.images[p.ID] = kept
	}

	maxPos := 0
	for _, img := range s.images[p.ID] {
		if img.Position > maxPos {
			maxPos = img.Position
		}
	}
	for i, data := range addImages {
		s.nextImageID++
		s.images[p.ID] = append(s.images[p.ID], Image{ID: s.nextImageID, Position: maxPos + i + 1, Data: data})
	}

	if categoryIDs != nil {
		s.links[p.ID] = append([]int64(nil), categoryIDs...)
	}
	return nil
}

func (s *InMemory) DeleteProduct(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return ErrNotFound
	}
	delete(s.products, id)
	delete(s.images, id)
	delete(s.links, id)
	delete(s.promos, id)
	return nil
}

func (s *InMemory) UpsertPromotion(ctx context.Context, promo *Promotion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[promo.ProductID]; !ok {
		return ErrNotFound
	}
	if existing, ok := s.promos[promo.ProductID]; ok {
		promo.ID = existing.ID
		promo.Position = existing.Position
	} else {
		s.nextPromoID++
		promo.ID = s.nextPromoID
		maxPos := 0
		for _, existing := range s.promos {
			if existing.Position > maxPos {
				maxPos = existing.Position
			}
		}
		promo.Position = maxPos + 1
	}
	promo.Active = true
	cp := *promo
	s.promos[promo.ProductID] = &cp
	return nil
}

func (s *InMemory) DeactivatePromotion(ctx context.Context, productID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if promo, ok := s.promos[productID]; ok {
		promo.Active = false
	}
	return nil
}

func (s *InMemory) ListActivePromotions(ctx context.Context, now time.Time) ([]Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deals []Deal
	for productID, promo := range s.promos {
		if !promo.Active || promo.StartsAt.After(now) {
			continue
		}
		if promo.EndsAt != nil && promo.EndsAt.Before(now) {
			continue
		}
		p, ok := s.products[productID]
		if !ok {
			continue
		}
		deals = append(deals, Deal{
			Product:         *p,
			Promotion:       *promo,
			FinalPriceCents: finalPrice(*p, *promo),
		})
	}
	sort.Slice(deals, func(i, j int) bool {
		if deals[i].Promotion.Position != deals[j].Promotion.Position {
			return deals[i].Promotion.Position < deals[j].Promotion.Position
		}
		return deals[i].Promotion.ID < deals[j].Promotion.ID
	})
	return deals, nil
}

func (s *InMemory) ListCategories(ctx context.Context) ([]Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemory) CreateCategory(ctx context.Context, c *Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.categories {
		if strings.EqualFold(existing.Name, c.Name) {
			return ErrCategoryTaken
		}
	}
	s.nextCategoryID++
	c.ID = s.nextCategoryID
	cp := *c
	s.categories[c.ID] = &cp
	return nil
}

func (s *InMemory) UpdateCategory(ctx context.Context, c *Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[c.ID]; !ok {
		return ErrNotFound
	}
	for id, existing := range s.categories {
		if id != c.ID && strings.EqualFold(existing.Name, c.Name) {
			return ErrCategoryTaken
		}
	}
	cp := *c
	s.categories[c.ID] = &cp
	return nil
}

func (s *InMemory) DeleteCategory(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[id]; !ok {
		return ErrNotFound
	}
	delete(s.categories, id)
	for productID, ids := range s.links {
		var kept []int64
		for _, cid := range ids {
			if cid != id {
				kept = append(kept, cid)
			}
		}
		s.links[productID] = kept
	}
	return nil
}

func finalPrice(p Product, promo Promotion) int64 {
	if promo.DiscountedPriceCents != nil {
		return *promo.DiscountedPriceCents
	}
	return int64(float64(p.PriceCents) * (1 - promo.DiscountPercent/100))
}

package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"lojinha.org/internal/audit"
	"lojinha.org/internal/auth"
)

func newTestService() (*Service, *audit.InMemoryStore) {
	auditStore := audit.NewInMemoryStore()
	svc := NewService(NewInMemory(), audit.NewRecorder(auditStore))
	return svc, auditStore
}

func admin() auth.Identity {
	return auth.Identity{ID: 3, Name: "Ana", Email: "ana@example.com", Admin: true}
}

func validProduct() ProductInput {
	return ProductInput{
		Name:        "Mug",
		Description: "Ceramic mug",
		PriceCents:  2500,
		Stock:       10,
		Images:      [][]byte{[]byte("img-1")},
	}
}

func TestCreateProductRecordsHistory(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	d, err := svc.CreateProduct(ctx, admin(), validProduct())
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	if d.ID == 0 {
		t.Fatal("expected assigned product id")
	}
	if len(d.Images) != 1 || d.Images[0].Position != 1 {
		t.Fatalf("unexpected images: %+v", d.Images)
	}

	records, err := svc.ProductHistory(ctx, d.ID)
	if err != nil {
		t.Fatalf("ProductHistory: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 history record, got %d", len(records))
	}
	rec := records[0]
	if rec.Action != audit.ActionCreated {
		t.Fatalf("unexpected action: %s", rec.Action)
	}
	if rec.ActorID != 3 {
		t.Fatalf("unexpected actor: %d", rec.ActorID)
	}
	if rec.Before != nil {
		t.Fatal("created record must have no before snapshot")
	}
	var after map[string]any
	if err := json.Unmarshal(rec.After, &after); err != nil {
		t.Fatalf("decode after snapshot: %v", err)
	}
	if after["name"] != "Mug" || after["price_cents"] != float64(2500) {
		t.Fatalf("unexpected snapshot: %v", after)
	}
}

func TestCreateProductValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	cases := []struct {
		field  string
		mutate func(*ProductInput)
	}{
		{"name", func(in *ProductInput) { in.Name = "" }},
		{"description", func(in *ProductInput) { in.Description = "" }},
		{"price_cents", func(in *ProductInput) { in.PriceCents = 0 }},
		{"stock", func(in *ProductInput) { in.Stock = -1 }},
		{"images", func(in *ProductInput) { in.Images = nil }},
		{"images", func(in *ProductInput) { in.Images = [][]byte{make([]byte, maxImageBytes+1)} }},
		{"promotion.discount_percent", func(in *ProductInput) {
			in.Promotion = &PromotionInput{DiscountPercent: 150}
		}},
	}
	for _, tc := range cases {
		in := validProduct()
		tc.mutate(&in)
		_, err := svc.CreateProduct(ctx, admin(), in)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("%s: expected ValidationError, got %v", tc.field, err)
		}
		if vErr.Field != tc.field {
			t.Fatalf("expected field %s, got %s", tc.field, vErr.Field)
		}
	}
}

func TestUpdateProductRecordsBeforeAndAfter(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	d, err := svc.CreateProduct(ctx, admin(), validProduct())
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	in := validProduct()
	in.Name = "Big Mug"
	in.PriceCents = 3000
	in.Images = nil
	updated, err := svc.UpdateProduct(ctx, admin(), d.ID, in)
	if err != nil {
		t.Fatalf("UpdateProduct: %v", err)
	}
	if updated.Name != "Big Mug" || updated.PriceCents != 3000 {
		t.Fatalf("update not applied: %+v", updated.Product)
	}

	records, err := svc.ProductHistory(ctx, d.ID)
	if err != nil {
		t.Fatalf("ProductHistory: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	edit := records[0]
	if edit.Action != audit.ActionEdited {
		t.Fatalf("expected edited first, got %s", edit.Action)
	}
	var before, after map[string]any
	if err := json.Unmarshal(edit.Before, &before); err != nil {
		t.Fatalf("decode before: %v", err)
	}
	if err := json.Unmarshal(edit.After, &after); err != nil {
		t.Fatalf("decode after: %v", err)
	}
	if before["name"] != "Mug" || after["name"] != "Big Mug" {
		t.Fatalf("snapshots wrong: before=%v after=%v", before, after)
	}
}

func TestUpdateUnknownProduct(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.UpdateProduct(context.Background(), admin(), 99, validProduct()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteProductRecordsHistory(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	d, err := svc.CreateProduct(ctx, admin(), validProduct())
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	if err := svc.DeleteProduct(ctx, admin(), d.ID); err != nil {
		t.Fatalf("DeleteProduct: %v", err)
	}
	if _, err := svc.GetProduct(ctx, d.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	records, err := svc.ProductHistory(ctx, d.ID)
	if err != nil {
		t.Fatalf("ProductHistory: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected create+delete records, got %d", len(records))
	}
	del := records[0]
	if del.Action != audit.ActionDeleted {
		t.Fatalf("expected deleted first, got %s", del.Action)
	}
	if del.After != nil {
		t.Fatal("deleted record must have no after snapshot")
	}
	if del.Before == nil {
		t.Fatal("deleted record must carry the prior state")
	}
}

func TestDeleteUnknownProductWritesNoRecord(t *testing.T) {
	svc, auditStore := newTestService()
	ctx := context.Background()

	if err := svc.DeleteProduct(ctx, admin(), 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	records, err := auditStore.ListByProduct(ctx, 42)
	if err != nil {
		t.Fatalf("ListByProduct: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("failed delete must not leave a record, got %d", len(records))
	}
}

func TestPromotionLifecycle(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	in := validProduct()
	in.Promotion = &PromotionInput{DiscountPercent: 20}
	d, err := svc.CreateProduct(ctx, admin(), in)
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	if d.Promotion == nil || !d.Promotion.Active {
		t.Fatalf("expected active promotion, got %+v", d.Promotion)
	}
	firstID := d.Promotion.ID

	deals, err := svc.ListDeals(ctx)
	if err != nil {
		t.Fatalf("ListDeals: %v", err)
	}
	if len(deals) != 1 {
		t.Fatalf("expected 1 deal, got %d", len(deals))
	}
	if deals[0].FinalPriceCents != 2000 {
		t.Fatalf("expected 20%% off 2500 = 2000, got %d", deals[0].FinalPriceCents)
	}

	// re-applying updates the same row
	upd := validProduct()
	upd.Images = nil
	price := int64(1500)
	upd.Promotion = &PromotionInput{DiscountedPriceCents: &price}
	d2, err := svc.UpdateProduct(ctx, admin(), d.ID, upd)
	if err != nil {
		t.Fatalf("UpdateProduct: %v", err)
	}
	if d2.Promotion == nil || d2.Promotion.ID != firstID {
		t.Fatalf("promotion must be upserted in place: %+v", d2.Promotion)
	}
	deals, _ = svc.ListDeals(ctx)
	if len(deals) != 1 || deals[0].FinalPriceCents != 1500 {
		t.Fatalf("explicit discounted price must win: %+v", deals)
	}

	// updating without a promotion deactivates it
	plain := validProduct()
	plain.Images = nil
	d3, err := svc.UpdateProduct(ctx, admin(), d.ID, plain)
	if err != nil {
		t.Fatalf("UpdateProduct: %v", err)
	}
	if d3.Promotion != nil {
		t.Fatalf("expected deactivated promotion, got %+v", d3.Promotion)
	}
	deals, _ = svc.ListDeals(ctx)
	if len(deals) != 0 {
		t.Fatalf("deactivated promotion must not be listed: %+v", deals)
	}
}

type promoFailStore struct {
	*InMemory
}

func (s *promoFailStore) UpsertPromotion(ctx context.Context, promo *Promotion) error {
	return errors.New("promotion storage unavailable")
}

func TestCreateRecordsHistoryWhenPromotionFails(t *testing.T) {
	store := &promoFailStore{InMemory: NewInMemory()}
	svc := NewService(store, audit.NewRecorder(audit.NewInMemoryStore()))
	ctx := context.Background()

	in := validProduct()
	in.Promotion = &PromotionInput{DiscountPercent: 20}
	if _, err := svc.CreateProduct(ctx, admin(), in); err == nil {
		t.Fatal("expected promotion failure to surface")
	}

	// the product persisted, so the trail must say it was created
	if _, err := store.GetProduct(ctx, 1); err != nil {
		t.Fatalf("product must persist past the promotion failure: %v", err)
	}
	records, err := svc.ProductHistory(ctx, 1)
	if err != nil {
		t.Fatalf("ProductHistory: %v", err)
	}
	if len(records) != 1 || records[0].Action != audit.ActionCreated {
		t.Fatalf("expected a created record, got %+v", records)
	}
}

func TestPromotionPositionsFollowInsertOrder(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	for _, name := range []string{"Mug", "Plate"} {
		in := validProduct()
		in.Name = name
		in.Promotion = &PromotionInput{DiscountPercent: 10}
		if _, err := svc.CreateProduct(ctx, admin(), in); err != nil {
			t.Fatalf("CreateProduct %s: %v", name, err)
		}
	}

	deals, err := svc.ListDeals(ctx)
	if err != nil {
		t.Fatalf("ListDeals: %v", err)
	}
	if len(deals) != 2 {
		t.Fatalf("expected 2 deals, got %d", len(deals))
	}
	if deals[0].Promotion.Position != 1 || deals[1].Promotion.Position != 2 {
		t.Fatalf("positions must follow insert order: %d, %d",
			deals[0].Promotion.Position, deals[1].Promotion.Position)
	}
	if deals[0].Product.Name != "Mug" || deals[1].Product.Name != "Plate" {
		t.Fatalf("unexpected deal order: %s, %s", deals[0].Product.Name, deals[1].Product.Name)
	}
}

func TestExpiredPromotionNotListed(t *testing.T) {
	store := NewInMemory()
	svc := NewService(store, audit.NewRecorder(audit.NewInMemoryStore()))
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return current }
	ctx := context.Background()

	ends := current.Add(time.Hour)
	in := validProduct()
	in.Promotion = &PromotionInput{DiscountPercent: 10, EndsAt: &ends}
	if _, err := svc.CreateProduct(ctx, admin(), in); err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	deals, err := svc.ListDeals(ctx)
	if err != nil {
		t.Fatalf("ListDeals: %v", err)
	}
	if len(deals) != 1 {
		t.Fatalf("expected deal inside window, got %d", len(deals))
	}

	current = current.Add(2 * time.Hour)
	deals, err = svc.ListDeals(ctx)
	if err != nil {
		t.Fatalf("ListDeals: %v", err)
	}
	if len(deals) != 0 {
		t.Fatalf("expected no deals past ends_at, got %d", len(deals))
	}
}

func TestCategoryCRUD(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	c, err := svc.CreateCategory(ctx, CategoryInput{Name: "Kitchen"})
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	if _, err := svc.CreateCategory(ctx, CategoryInput{Name: "kitchen"}); !errors.Is(err, ErrCategoryTaken) {
		t.Fatalf("expected ErrCategoryTaken, got %v", err)
	}
	if _, err := svc.CreateCategory(ctx, CategoryInput{}); err == nil {
		t.Fatal("expected validation error for empty name")
	}

	renamed, err := svc.UpdateCategory(ctx, c.ID, CategoryInput{Name: "Home"})
	if err != nil {
		t.Fatalf("UpdateCategory: %v", err)
	}
	if renamed.Name != "Home" {
		t.Fatalf("rename not applied: %+v", renamed)
	}

	cats, err := svc.ListCategories(ctx)
	if err != nil {
		t.Fatalf("ListCategories: %v", err)
	}
	if len(cats) != 1 || cats[0].Name != "Home" {
		t.Fatalf("unexpected categories: %+v", cats)
	}

	if err := svc.DeleteCategory(ctx, c.ID); err != nil {
		t.Fatalf("DeleteCategory: %v", err)
	}
	if err := svc.DeleteCategory(ctx, c.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestImageAddAndRemove(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	in := validProduct()
	in.Images = [][]byte{[]byte("cover"), []byte("side")}
	d, err := svc.CreateProduct(ctx, admin(), in)
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	if len(d.Images) != 2 {
		t.Fatalf("expected 2 images, got %d", len(d.Images))
	}

	upd := validProduct()
	upd.Images = [][]byte{[]byte("back")}
	upd.RemoveImageIDs = []int64{d.Images[0].ID}
	d2, err := svc.UpdateProduct(ctx, admin(), d.ID, upd)
	if err != nil {
		t.Fatalf("UpdateProduct: %v", err)
	}
	if len(d2.Images) != 2 {
		t.Fatalf("expected 2 images after swap, got %d", len(d2.Images))
	}
	for _, img := range d2.Images {
		if img.ID == d.Images[0].ID {
			t.Fatal("removed image still present")
		}
	}

	sums, err := svc.ListProducts(ctx)
	if err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if len(sums) != 1 {
		t.Fatalf("expected 1 product, got %d", len(sums))
	}
}

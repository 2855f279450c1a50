package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"lojinha.org/internal/catalog"
)

// Store is the Postgres catalog backend.
type Store struct {
	db *sql.DB
}

var _ catalog.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing pool. Used by tests and by callers that share
// one *sql.DB across stores.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) CreateProduct(ctx context.Context, p *catalog.Product, images [][]byte, categoryIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		insert into products(name, description, price_cents, stock)
		values ($1,$2,$3,$4)
		returning id
	`, p.Name, p.Description, p.PriceCents, p.Stock).Scan(&p.ID)
	if err != nil {
		return err
	}
	if err := insertImages(ctx, tx, p.ID, images, 1); err != nil {
		return err
	}
	if err := linkCategories(ctx, tx, p.ID, categoryIDs); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*catalog.Detail, error) {
	var d catalog.Detail
	err := s.db.QueryRowContext(ctx, `
		select id, name, description, price_cents, stock, avg_rating
		from products where id=$1
	`, id).Scan(&d.ID, &d.Name, &d.Description, &d.PriceCents, &d.Stock, &d.AvgRating)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		select id, position, data
		from product_images
		where product_id=$1
		order by position
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var img catalog.Image
		if err := rows.Scan(&img.ID, &img.Position, &img.Data); err != nil {
			return nil, err
		}
		d.Images = append(d.Images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	promo, err := s.activePromotion(ctx, id)
	if err != nil {
		return nil, err
	}
	d.Promotion = promo
	return &d, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]catalog.Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.name, p.description, p.price_cents, p.stock, p.avg_rating,
		       (select i.data from product_images i
		        where i.product_id = p.id
		        order by i.position limit 1) as cover
		from products p
		order by p.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.Summary
	for rows.Next() {
		var sm catalog.Summary
		var cover []byte
		if err := rows.Scan(&sm.ID, &sm.Name, &sm.Description, &sm.PriceCents, &sm.Stock, &sm.AvgRating, &cover); err != nil {
			return nil, err
		}
		sm.CoverImage = cover
		out = append(out, sm)
	}
	return out, rows.Err()
}

func (s *Store) UpdateProduct(ctx context.Context, p *catalog.Product, addImages [][]byte, removeImageIDs []int64, categoryIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update products
		set name=$2, description=$3, price_cents=$4, stock=$5
		where id=$1
	`, p.ID, p.Name, p.Description, p.PriceCents, p.Stock)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return catalog.ErrNotFound
	}

	for _, imgID := range removeImageIDs {
		if _, err := tx.ExecContext(ctx, `
			delete from product_images where id=$1 and product_id=$2
		`, imgID, p.ID); err != nil {
			return err
		}
	}

	var next int
	if err := tx.QueryRowContext(ctx, `
		select coalesce(max(position),0)+1 from product_images where product_id=$1
	`, p.ID).Scan(&next); err != nil {
		return err
	}
	if err := insertImages(ctx, tx, p.ID, addImages, next); err != nil {
		return err
	}

	if categoryIDs != nil {
		if _, err := tx.ExecContext(ctx, `
			delete from product_categories where product_id=$1
		`, p.ID); err != nil {
			return err
		}
		if err := linkCategories(ctx, tx, p.ID, categoryIDs); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	// Images, category links and promotions cascade in the schema.
	res, err := s.db.ExecContext(ctx, `delete from products where id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (s *Store) UpsertPromotion(ctx context.Context, promo *catalog.Promotion) error {
	err := s.db.QueryRowContext(ctx, `
		insert into promotions(product_id, discount_percent, discounted_price_cents, active, position, starts_at, ends_at)
		values ($1,$2,$3,true,
		        (select coalesce(max(position),0)+1 from promotions),
		        $4,$5)
		on conflict (product_id) do update
		set discount_percent = excluded.discount_percent,
		    discounted_price_cents = excluded.discounted_price_cents,
		    active = true,
		    starts_at = excluded.starts_at,
		    ends_at = excluded.ends_at
		returning id, position
	`, promo.ProductID, promo.DiscountPercent, promo.DiscountedPriceCents, promo.StartsAt, promo.EndsAt).
		Scan(&promo.ID, &promo.Position)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return catalog.ErrNotFound
		}
		return err
	}
	promo.Active = true
	return nil
}

func (s *Store) DeactivatePromotion(ctx context.Context, productID int64) error {
	_, err := s.db.ExecContext(ctx, `
		update promotions set active=false where product_id=$1
	`, productID)
	return err
}

func (s *Store) ListActivePromotions(ctx context.Context, now time.Time) ([]catalog.Deal, error) {
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.name, p.description, p.price_cents, p.stock, p.avg_rating,
		       pr.id, pr.discount_percent, pr.discounted_price_cents, pr.position, pr.starts_at, pr.ends_at
		from promotions pr
		join products p on p.id = pr.product_id
		where pr.active
		  and pr.starts_at <= $1
		  and (pr.ends_at is null or pr.ends_at > $1)
		order by pr.position, pr.id
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.Deal
	for rows.Next() {
		var d catalog.Deal
		var discounted sql.NullInt64
		var ends sql.NullTime
		if err := rows.Scan(
			&d.Product.ID, &d.Product.Name, &d.Product.Description, &d.Product.PriceCents, &d.Product.Stock, &d.Product.AvgRating,
			&d.Promotion.ID, &d.Promotion.DiscountPercent, &discounted, &d.Promotion.Position, &d.Promotion.StartsAt, &ends,
		); err != nil {
			return nil, err
		}
		d.Promotion.ProductID = d.Product.ID
		d.Promotion.Active = true
		if discounted.Valid {
			v := discounted.Int64
			d.Promotion.DiscountedPriceCents = &v
		}
		if ends.Valid {
			t := ends.Time
			d.Promotion.EndsAt = &t
		}
		if d.Promotion.DiscountedPriceCents != nil {
			d.FinalPriceCents = *d.Promotion.DiscountedPriceCents
		} else {
			d.FinalPriceCents = int64(float64(d.Product.PriceCents) * (1 - d.Promotion.DiscountPercent/100))
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) ListCategories(ctx context.Context) ([]catalog.Category, error) {
	rows, err := s.db.QueryContext(ctx, `select id, name from categories order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.Category
	for rows.Next() {
		var c catalog.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CreateCategory(ctx context.Context, c *catalog.Category) error {
	err := s.db.QueryRowContext(ctx, `
		insert into categories(name) values ($1) returning id
	`, c.Name).Scan(&c.ID)
	return mapCategoryErr(err)
}

func (s *Store) UpdateCategory(ctx context.Context, c *catalog.Category) error {
	res, err := s.db.ExecContext(ctx, `update categories set name=$2 where id=$1`, c.ID, c.Name)
	if err != nil {
		return mapCategoryErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `delete from categories where id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (s *Store) activePromotion(ctx context.Context, productID int64) (*catalog.Promotion, error) {
	var p catalog.Promotion
	var discounted sql.NullInt64
	var ends sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		select id, product_id, discount_percent, discounted_price_cents, position, starts_at, ends_at
		from promotions
		where product_id=$1 and active
	`, productID).Scan(&p.ID, &p.ProductID, &p.DiscountPercent, &discounted, &p.Position, &p.StartsAt, &ends)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Active = true
	if discounted.Valid {
		v := discounted.Int64
		p.DiscountedPriceCents = &v
	}
	if ends.Valid {
		t := ends.Time
		p.EndsAt = &t
	}
	return &p, nil
}

func insertImages(ctx context.Context, tx *sql.Tx, productID int64, images [][]byte, startPos int) error {
	for i, data := range images {
		if _, err := tx.ExecContext(ctx, `
			insert into product_images(product_id, position, data)
			values ($1,$2,$3)
		`, productID, startPos+i, data); err != nil {
			return err
		}
	}
	return nil
}

func linkCategories(ctx context.Context, tx *sql.Tx, productID int64, categoryIDs []int64) error {
	for _, cid := range categoryIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into product_categories(product_id, category_id)
			values ($1,$2)
			on conflict do nothing
		`, productID, cid); err != nil {
			return err
		}
	}
	return nil
}

func mapCategoryErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return catalog.ErrCategoryTaken
	}
	return err
}

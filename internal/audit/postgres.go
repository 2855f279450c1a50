package audit

import (
	"context"
	"database/sql"
	"fmt"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store on the product_history table. The table has no
// foreign key to products: history must outlive the rows it describes.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Append(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		insert into product_history(id, product_id, actor_id, action, occurred_at, before, after, note)
		values($1,$2,$3,$4,$5,$6,$7,nullif($8,''))
	`, rec.ID, rec.ProductID, rec.ActorID, string(rec.Action), rec.OccurredAt,
		nullableJSON(rec.Before), nullableJSON(rec.After), rec.Note)
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}
	return nil
}

const historyColumns = `id, product_id, actor_id, action, occurred_at, before, after, coalesce(note, '')`

func (s *PGStore) ListByProduct(ctx context.Context, productID int64) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+historyColumns+`
		from product_history
		where product_id = $1
		order by occurred_at desc, id desc
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("query product history: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *PGStore) ListByActor(ctx context.Context, actorID int64) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+historyColumns+`
		from product_history
		where actor_id = $1
		order by occurred_at desc, id desc
	`, actorID)
	if err != nil {
		return nil, fmt.Errorf("query actor history: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var recs []Record
	for rows.Next() {
		var (
			rec           Record
			action        string
			before, after []byte
		)
		if err := rows.Scan(&rec.ID, &rec.ProductID, &rec.ActorID, &action,
			&rec.OccurredAt, &before, &after, &rec.Note); err != nil {
			return nil, fmt.Errorf("scan history record: %w", err)
		}
		rec.Action = Action(action)
		rec.Before = before
		rec.After = after
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history records: %w", err)
	}
	return recs, nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

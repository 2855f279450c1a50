package audit

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGStoreAppend(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectExec("insert into product_history").
		WithArgs("01H", int64(5), int64(3), "created", now, nil, []byte(`{"name":"Mug"}`), "made it").
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPGStore(db)
	err = store.Append(context.Background(), Record{
		ID:         "01H",
		ProductID:  5,
		ActorID:    3,
		Action:     ActionCreated,
		OccurredAt: now,
		After:      []byte(`{"name":"Mug"}`),
		Note:       "made it",
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreListByProduct(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "product_id", "actor_id", "action", "occurred_at", "before", "after", "note",
	}).
		AddRow("01B", int64(5), int64(3), "edited", now, []byte(`{}`), []byte(`{}`), "").
		AddRow("01A", int64(5), int64(3), "created", now.Add(-time.Minute), nil, []byte(`{}`), "note")

	mock.ExpectQuery("from product_history").
		WithArgs(int64(5)).
		WillReturnRows(rows)

	store := NewPGStore(db)
	recs, err := store.ListByProduct(context.Background(), 5)
	if err != nil {
		t.Fatalf("ListByProduct: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Action != ActionEdited || recs[1].Note != "note" {
		t.Fatalf("unexpected records: %+v", recs)
	}
	if recs[1].Before != nil {
		t.Fatal("null before must scan to nil")
	}
}

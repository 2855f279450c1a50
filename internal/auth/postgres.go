package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var _ UserStore = (*PGStore)(nil)

// PGStore implements UserStore using PostgreSQL. Email and national-id
// uniqueness is enforced by the schema; a concurrent duplicate insert fails
// here with a unique violation rather than in application code.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const userColumns = `id, name, email, phone_hash, password_hash, national_id_hash, birth_date, admin, registered_at, admin_granted_at`

func (s *PGStore) Create(ctx context.Context, u *User) error {
	err := s.db.QueryRowContext(ctx, `
		insert into users(name, email, phone_hash, password_hash, national_id_hash, birth_date, admin, registered_at, admin_granted_at)
		values($1,$2,$3,$4,$5,$6,$7,now(), case when $7 = 1 then now() end)
		returning id, registered_at, admin_granted_at
	`, u.Name, u.Email, u.PhoneHash, u.PasswordHash, u.NationalIDHash, u.BirthDate, boolToFlag(u.Admin)).
		Scan(&u.ID, &u.RegisteredAt, &u.AdminGrantedAt)
	if err != nil {
		return mapUniqueViolation(err)
	}
	return nil
}

func (s *PGStore) FindByID(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id=$1`, id)
	return scanUser(row)
}

func (s *PGStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where email=$1`, email)
	return scanUser(row)
}

func (s *PGStore) SetAdmin(ctx context.Context, id int64, admin bool) (*User, error) {
	// admin_granted_at is written on the first grant only and never
	// cleared; the coalesce keeps it monotonic with the flag.
	row := s.db.QueryRowContext(ctx, `
		update users
		set admin = $2,
		    admin_granted_at = case when $2 = 1 then coalesce(admin_granted_at, now()) else admin_granted_at end
		where id = $1
		returning `+userColumns, id, boolToFlag(admin))
	return scanUser(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		u         User
		adminFlag int16
		grantedAt sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PhoneHash, &u.PasswordHash,
		&u.NationalIDHash, &u.BirthDate, &adminFlag, &u.RegisteredAt, &grantedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	// Legacy column is a 0/1 smallint; normalize here so everything
	// downstream is a plain bool check.
	u.Admin = adminFlag != 0
	if grantedAt.Valid {
		t := grantedAt.Time
		u.AdminGrantedAt = &t
	}
	return &u, nil
}

func boolToFlag(b bool) int16 {
	if b {
		return 1
	}
	return 0
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch {
		case strings.Contains(pgErr.ConstraintName, "email"):
			return ErrEmailTaken
		case strings.Contains(pgErr.ConstraintName, "national_id"):
			return ErrNationalIDTaken
		}
	}
	return err
}

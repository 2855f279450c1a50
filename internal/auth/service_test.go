package auth

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	tokens, err := NewTokenService("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return NewService(NewInMemoryStore(), tokens)
}

func validInput() RegisterInput {
	return RegisterInput{
		Name:       "Ana Silva",
		Email:      "ana@example.com",
		Password:   "s3cret",
		Phone:      "(11) 91234-5678",
		NationalID: "123.456.789-00",
		BirthDate:  "1990-04-15",
	}
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	sess, err := svc.Register(ctx, validInput())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if sess.User.ID == 0 {
		t.Fatal("expected assigned user id")
	}
	if sess.Token == "" {
		t.Fatal("expected session token")
	}
	if sess.User.PasswordHash == "s3cret" {
		t.Fatal("password stored in plaintext")
	}
	if sess.User.NationalIDHash == "123.456.789-00" {
		t.Fatal("national id stored raw")
	}
	if sess.User.Admin {
		t.Fatal("admin must default to false")
	}

	login, err := svc.Login(ctx, "ana@example.com", "s3cret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if login.User.ID != sess.User.ID {
		t.Fatalf("login resolved wrong user: %d", login.User.ID)
	}

	if _, err := svc.Login(ctx, "ana@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "s3cret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		field  string
		mutate func(*RegisterInput)
	}{
		{"name", func(in *RegisterInput) { in.Name = "  " }},
		{"email", func(in *RegisterInput) { in.Email = "" }},
		{"password", func(in *RegisterInput) { in.Password = "" }},
		{"phone", func(in *RegisterInput) { in.Phone = "" }},
		{"national_id", func(in *RegisterInput) { in.NationalID = "" }},
		{"birth_date", func(in *RegisterInput) { in.BirthDate = "15/04/1990" }},
	}
	for _, tc := range cases {
		in := validInput()
		tc.mutate(&in)
		_, err := svc.Register(ctx, in)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("%s: expected ValidationError, got %v", tc.field, err)
		}
		if vErr.Field != tc.field {
			t.Fatalf("expected field %s, got %s", tc.field, vErr.Field)
		}
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, validInput()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	dup := validInput()
	dup.NationalID = "999.888.777-66"
	if _, err := svc.Register(ctx, dup); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestRegisterDuplicateNationalID(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, validInput()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	dup := validInput()
	dup.Email = "other@example.com"
	// same digits, different formatting
	dup.NationalID = "12345678900"
	if _, err := svc.Register(ctx, dup); !errors.Is(err, ErrNationalIDTaken) {
		t.Fatalf("expected ErrNationalIDTaken, got %v", err)
	}
}

func TestAuthenticateHeaderParsing(t *testing.T) {
	svc := newTestService(t)
	sess, err := svc.Register(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	id, err := svc.Authenticate("Bearer " + sess.Token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id.ID != sess.User.ID || id.Email != "ana@example.com" {
		t.Fatalf("unexpected identity: %+v", id)
	}

	if _, err := svc.Authenticate(""); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("empty header: expected ErrMissingCredentials, got %v", err)
	}

	malformed := []string{
		sess.Token,
		"bearer " + sess.Token,
		"Bearer",
		"Bearer  " + sess.Token,
		"Basic " + sess.Token,
		"Bearer " + sess.Token + " extra",
	}
	for _, h := range malformed {
		if _, err := svc.Authenticate(h); !errors.Is(err, ErrMalformedCredentials) {
			t.Fatalf("Authenticate(%q): expected ErrMalformedCredentials, got %v", h, err)
		}
	}

	if _, err := svc.Authenticate("Bearer garbage"); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
	}
}

func TestRequireAdmin(t *testing.T) {
	if err := RequireAdmin(Identity{ID: 1, Admin: true}); err != nil {
		t.Fatalf("admin rejected: %v", err)
	}
	if err := RequireAdmin(Identity{ID: 1}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestSetAdminGrantTimestampOnce(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	sess, err := svc.Register(ctx, validInput())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	u, err := svc.SetAdmin(ctx, sess.User.ID, true)
	if err != nil {
		t.Fatalf("SetAdmin: %v", err)
	}
	if !u.Admin || u.AdminGrantedAt == nil {
		t.Fatalf("expected granted admin with timestamp, got %+v", u)
	}
	granted := *u.AdminGrantedAt

	u, err = svc.SetAdmin(ctx, sess.User.ID, false)
	if err != nil {
		t.Fatalf("SetAdmin revoke: %v", err)
	}
	if u.Admin {
		t.Fatal("expected revoked admin")
	}
	if u.AdminGrantedAt == nil || !u.AdminGrantedAt.Equal(granted) {
		t.Fatalf("grant timestamp must survive revocation: %v", u.AdminGrantedAt)
	}

	u, err = svc.SetAdmin(ctx, sess.User.ID, true)
	if err != nil {
		t.Fatalf("SetAdmin regrant: %v", err)
	}
	if !u.AdminGrantedAt.Equal(granted) {
		t.Fatalf("grant timestamp must be set exactly once, got %v", u.AdminGrantedAt)
	}

	if _, err := svc.SetAdmin(ctx, 9999, true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFlexBoolUnmarshal(t *testing.T) {
	cases := []struct {
		raw  string
		want bool
	}{
		{`true`, true},
		{`false`, false},
		{`1`, true},
		{`0`, false},
		{`2`, true},
		{`"true"`, true},
		{`"false"`, false},
		{`"1"`, true},
		{`"0"`, false},
		{`null`, false},
	}
	for _, tc := range cases {
		var b FlexBool
		if err := json.Unmarshal([]byte(tc.raw), &b); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.raw, err)
		}
		if b.Bool() != tc.want {
			t.Fatalf("unmarshal %s = %v, want %v", tc.raw, b.Bool(), tc.want)
		}
	}

	var b FlexBool
	if err := json.Unmarshal([]byte(`"maybe"`), &b); err == nil {
		t.Fatal("expected error for non-boolean string")
	}

	out, err := json.Marshal(FlexBool(true))
	if err != nil || string(out) != "true" {
		t.Fatalf("marshal = %s, %v", out, err)
	}
}

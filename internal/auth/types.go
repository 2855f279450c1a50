package auth

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// User is a storefront account. Hash fields never leave the process: the
// JSON shape returned by register/login carries no fingerprints.
type User struct {
	ID             int64      `json:"id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	PhoneHash      string     `json:"-"`
	PasswordHash   string     `json:"-"`
	NationalIDHash string     `json:"-"`
	BirthDate      time.Time  `json:"birth_date"`
	Admin          bool       `json:"admin"`
	RegisteredAt   time.Time  `json:"registered_at"`
	AdminGrantedAt *time.Time `json:"admin_granted_at,omitempty"`
}

// Identity is the authenticated principal for the rest of a request,
// decoded from a verified token. Admin is already normalized to a plain
// bool here; downstream code never sees 0/1 forms.
type Identity struct {
	ID    int64
	Email string
	Name  string
	Admin bool
}

// RegisterInput carries the fields required to create an account. Admin is
// a FlexBool because clients send both true/false and 0/1.
type RegisterInput struct {
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	Password   string   `json:"password"`
	Phone      string   `json:"phone"`
	NationalID string   `json:"national_id"`
	BirthDate  string   `json:"birth_date"`
	Admin      FlexBool `json:"admin"`
}

// FlexBool accepts JSON true/false as well as 0/1 (and their string forms),
// normalizing the legacy integer admin flag at the decoding boundary.
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	s := string(bytes.TrimSpace(data))
	switch s {
	case "true", `"true"`:
		*b = true
		return nil
	case "false", `"false"`, "null":
		*b = false
		return nil
	}
	n, err := strconv.ParseFloat(strings.Trim(s, `"`), 64)
	if err != nil {
		return fmt.Errorf("cannot decode %s as bool", s)
	}
	*b = n != 0
	return nil
}

func (b FlexBool) MarshalJSON() ([]byte, error) {
	if b {
		return []byte("true"), nil
	}
	return []byte("false"), nil
}

func (b FlexBool) Bool() bool { return bool(b) }

package auth

import "testing"

func TestFingerprintNormalizesFormatting(t *testing.T) {
	base := Fingerprint("12345678900")
	variants := []string{
		"123.456.789-00",
		"123 456 789 00",
		"(123) 456789-00",
		"12345678900",
	}
	for _, v := range variants {
		if got := Fingerprint(v); got != base {
			t.Fatalf("Fingerprint(%q) = %s, want %s", v, got, base)
		}
	}
	if Fingerprint("12345678901") == base {
		t.Fatal("different digits must not collide")
	}
}

func TestFingerprintIsHexDigest(t *testing.T) {
	got := Fingerprint("+55 (11) 91234-5678")
	if len(got) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(got))
	}
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "s3cret" {
		t.Fatal("hash must not equal plaintext")
	}
	if err := VerifyPassword(hash, "s3cret"); err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if err := VerifyPassword(hash, "wrong"); err == nil {
		t.Fatal("expected mismatch error")
	}
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	if _, err := HashPassword(""); err == nil {
		t.Fatal("expected error for empty password")
	}
}

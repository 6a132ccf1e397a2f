package auth

import "testing"

func TestPasswordRoundtrip(t *testing.T) {
	hash, err := HashPassword("sesame123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "sesame123" {
		t.Fatalf("password stored in clear")
	}
	if !VerifyPassword("sesame123", hash) {
		t.Fatalf("correct password rejected")
	}
	if VerifyPassword("sesame124", hash) {
		t.Fatalf("wrong password accepted")
	}
}

func TestPasswordMinimumLength(t *testing.T) {
	if _, err := HashPassword("short"); err == nil {
		t.Fatalf("five-character password accepted")
	}
}

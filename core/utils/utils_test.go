package utils

import "testing"

func TestValidateUsername(t *testing.T) {
	valid := []string{"casey", "alpha-team", "a1.b_c", "x99"}
	for _, u := range valid {
		if err := ValidateUsername(u); err != nil {
			t.Errorf("ValidateUsername(%q) = %v, want nil", u, err)
		}
	}
	invalid := []string{"", "ab", "-leading", ".leading", "has space", "UPPER CASE!", "über"}
	for _, u := range invalid {
		if err := ValidateUsername(u); err == nil {
			t.Errorf("ValidateUsername(%q) = nil, want error", u)
		}
	}
}

func TestValidateEmail(t *testing.T) {
	if err := ValidateEmail("casey@example.org"); err != nil {
		t.Fatalf("valid email rejected: %v", err)
	}
	for _, e := range []string{"", "plain", "a@b", "a b@example.org", "@example.org"} {
		if err := ValidateEmail(e); err == nil {
			t.Errorf("ValidateEmail(%q) = nil, want error", e)
		}
	}
}

func TestRandString(t *testing.T) {
	a, err := RandString(16)
	if err != nil {
		t.Fatalf("rand: %v", err)
	}
	if len(a) != 32 {
		t.Fatalf("len = %d, want 32", len(a))
	}
	b, _ := RandString(16)
	if a == b {
		t.Fatalf("two random strings identical")
	}
}

package validate

import "testing"

func TestNormalizeEmail(t *testing.T) {
	cases := map[string]string{
		"  Alice@Example.COM ": "alice@example.com",
		"bob@example.com":      "bob@example.com",
	}
	for in, want := range cases {
		if got := NormalizeEmail(in); got != want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsKeyIDAndFingerprint(t *testing.T) {
	if !IsKeyID("0123456789abcdef") {
		t.Error("expected valid 16-char hex key id to pass")
	}
	if IsKeyID("0123456789abcde") {
		t.Error("expected 15-char string to fail key id check")
	}
	if IsKeyID("0123456789ABCDEF") {
		t.Error("expected uppercase hex to fail key id check")
	}
	fp := "0123456789abcdef0123456789abcdef0123456a"
	if len(fp) != 40 {
		t.Fatalf("test fixture fingerprint is %d chars, want 40", len(fp))
	}
	if !IsFingerprint(fp) {
		t.Errorf("expected %q to be a valid fingerprint", fp)
	}
}

func TestKeyIDFromFingerprint(t *testing.T) {
	fp := "0123456789abcdef0123456789abcdef0123456a"
	want := "89abcdef0123456a"
	if got := KeyIDFromFingerprint(fp); got != want {
		t.Errorf("KeyIDFromFingerprint(%q) = %q, want %q", fp, got, want)
	}
}

func TestNewNonceIsLowerHex32(t *testing.T) {
	nonce, err := NewNonce()
	if err != nil {
		t.Fatalf("NewNonce returned error: %v", err)
	}
	if !IsHex(nonce, 32) {
		t.Errorf("NewNonce() = %q, want 32 lowercase hex characters", nonce)
	}
}

func TestDomainPolicy(t *testing.T) {
	p, err := NewDomainPolicy(`@example\.com$`)
	if err != nil {
		t.Fatalf("NewDomainPolicy: %v", err)
	}
	if !p.Matches("alice@example.com") {
		t.Error("expected alice@example.com to match")
	}
	if p.Matches("alice@example.org") {
		t.Error("expected alice@example.org not to match")
	}
}

func TestDomainPolicyEmptyPatternNeverMatches(t *testing.T) {
	p, err := NewDomainPolicy("")
	if err != nil {
		t.Fatalf("NewDomainPolicy: %v", err)
	}
	if p.Matches("anyone@example.com") {
		t.Error("expected empty pattern to never match")
	}
}

func TestDomainPolicyNilReceiver(t *testing.T) {
	var p *DomainPolicy
	if p.Matches("anyone@example.com") {
		t.Error("expected nil DomainPolicy to never match")
	}
}

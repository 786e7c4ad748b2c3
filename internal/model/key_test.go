package model

import "testing"

func TestHasVerifiedUserID(t *testing.T) {
	k := &Key{UserIDs: []UserID{{Email: "a@example.com"}, {Email: "b@example.com", Verified: true}}}
	if !k.HasVerifiedUserID() {
		t.Error("expected HasVerifiedUserID to be true")
	}
	k2 := &Key{UserIDs: []UserID{{Email: "a@example.com"}}}
	if k2.HasVerifiedUserID() {
		t.Error("expected HasVerifiedUserID to be false")
	}
}

func TestVerifiedEmails(t *testing.T) {
	k := &Key{UserIDs: []UserID{
		{Email: "a@example.com", Verified: true},
		{Email: "b@example.com"},
		{Email: "c@example.com", Verified: true},
	}}
	got := k.VerifiedEmails()
	want := []string{"a@example.com", "c@example.com"}
	if len(got) != len(want) {
		t.Fatalf("VerifiedEmails() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("VerifiedEmails()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFindByNonce(t *testing.T) {
	k := &Key{UserIDs: []UserID{{Email: "a@example.com", Nonce: "aaa"}, {Email: "b@example.com", Nonce: "bbb"}}}
	if idx := k.FindByNonce("bbb"); idx != 1 {
		t.Errorf("FindByNonce(bbb) = %d, want 1", idx)
	}
	if idx := k.FindByNonce("missing"); idx != -1 {
		t.Errorf("FindByNonce(missing) = %d, want -1", idx)
	}
}

func TestStripRemovesInternalFields(t *testing.T) {
	k := &Key{
		ID:      "doc-id",
		KeyID:   "89abcdef0123456a",
		UserIDs: []UserID{{Email: "a@example.com", Nonce: "secret", PublicKeyArmored: "shadow"}},
		PendingSignatures: &PendingSignatures{
			Nonce: "batch-secret",
			Sigs:  []PendingSig{{User: Signer{UserID: "Carol <carol@example.com>"}}},
		},
	}
	stripped := k.Strip()
	if stripped.ID != "" {
		t.Error("expected Strip to clear ID")
	}
	if stripped.UserIDs[0].Nonce != "" || stripped.UserIDs[0].PublicKeyArmored != "" {
		t.Error("expected Strip to clear per-user-id nonce and shadow armor")
	}
	if stripped.PendingSignatures.Nonce != "" {
		t.Error("expected Strip to clear the pending-signatures batch nonce")
	}
	if len(stripped.PendingSignatures.Sigs) != 1 {
		t.Error("expected Strip to retain the pending signatures themselves")
	}
	// the original must be untouched
	if k.UserIDs[0].Nonce != "secret" {
		t.Error("Strip must not mutate the receiver")
	}
}

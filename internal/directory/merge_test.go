package directory

import (
	"testing"

	"keydirectory/internal/model"
)

func TestMergeUserIDsKeepsVerifiedUntouched(t *testing.T) {
	existing := []model.UserID{{Email: "alice@example.com", Verified: true, Name: "Alice"}}
	parsed := []model.UserID{{Email: "alice@example.com", Name: "Alice Revised", Status: model.StatusValid}}

	merged := mergeUserIDs(existing, parsed)
	if len(merged) != 1 {
		t.Fatalf("len(merged) = %d, want 1", len(merged))
	}
	if merged[0].Name != "Alice" {
		t.Errorf("expected the verified identity's existing Name to survive, got %q", merged[0].Name)
	}
	if !merged[0].Verified {
		t.Error("expected the existing verified user id to stay verified")
	}
}

func TestMergeUserIDsAdmitsNewValidIdentity(t *testing.T) {
	existing := []model.UserID{{Email: "alice@example.com", Verified: true}}
	parsed := []model.UserID{
		{Email: "alice@example.com", Status: model.StatusValid},
		{Email: "alice-work@example.com", Status: model.StatusValid},
	}

	merged := mergeUserIDs(existing, parsed)
	if len(merged) != 2 {
		t.Fatalf("len(merged) = %d, want 2", len(merged))
	}
	var fresh *model.UserID
	for i := range merged {
		if merged[i].Email == "alice-work@example.com" {
			fresh = &merged[i]
		}
	}
	if fresh == nil {
		t.Fatal("expected the new email to be admitted")
	}
	if fresh.Verified {
		t.Error("expected the newly admitted user id to start unverified")
	}
	if !fresh.Notify {
		t.Error("expected the newly admitted user id to be flagged for dispatch")
	}
}

func TestMergeUserIDsDropsInvalidNewIdentity(t *testing.T) {
	existing := []model.UserID{{Email: "alice@example.com", Verified: true}}
	parsed := []model.UserID{
		{Email: "alice@example.com", Status: model.StatusValid},
		{Email: "mallory@example.com", Status: model.StatusRevoked},
	}
	merged := mergeUserIDs(existing, parsed)
	if len(merged) != 1 {
		t.Fatalf("len(merged) = %d, want 1 (revoked identity must be dropped)", len(merged))
	}
}

func TestMergeUserIDsPreservesExistingPendingNonce(t *testing.T) {
	existing := []model.UserID{
		{Email: "alice@example.com", Verified: true},
		{Email: "bob@example.com", Verified: false, Nonce: "already-pending"},
	}
	parsed := []model.UserID{
		{Email: "alice@example.com", Status: model.StatusValid},
		{Email: "bob@example.com", Status: model.StatusValid},
	}
	merged := mergeUserIDs(existing, parsed)
	for _, u := range merged {
		if u.Email == "bob@example.com" && u.Nonce != "already-pending" {
			t.Errorf("expected bob's pending nonce to survive re-upload, got %q", u.Nonce)
		}
	}
}

func TestContainsSig(t *testing.T) {
	sigs := []model.PendingSig{{Signature: []byte("one")}, {Signature: []byte("two")}}
	if !containsSig(sigs, model.PendingSig{Signature: []byte("two")}) {
		t.Error("expected containsSig to find an existing signature")
	}
	if containsSig(sigs, model.PendingSig{Signature: []byte("three")}) {
		t.Error("expected containsSig to reject an absent signature")
	}
}

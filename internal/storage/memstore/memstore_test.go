package memstore

import (
	"context"
	"strings"
	"testing"

	"keydirectory/internal/storage"
)

func TestCreateGetUpdateRemove(t *testing.T) {
	ctx := context.Background()
	s := New()

	res, err := s.Create(ctx, []byte(`{"keyId":"abc123","userIds":[{"email":"a@example.com","verified":false}]}`), storage.PublicKeyType)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.InsertedCount != 1 {
		t.Fatalf("InsertedCount = %d, want 1", res.InsertedCount)
	}

	doc, err := s.Get(ctx, storage.Eq("keyId", "abc123"), storage.PublicKeyType)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(doc) == 0 {
		t.Fatal("expected a non-empty document")
	}

	sel := storage.ElemMatch("userIds", storage.Eq("email", "a@example.com"))
	patch := storage.Patch{"userIds.$.verified": true}
	if err := s.Update(ctx, sel, patch, storage.PublicKeyType); err != nil {
		t.Fatalf("Update: %v", err)
	}

	doc, err = s.Get(ctx, storage.Eq("keyId", "abc123"), storage.PublicKeyType)
	if err != nil {
		t.Fatalf("Get after update: %v", err)
	}
	if !strings.Contains(string(doc), `"verified":true`) {
		t.Errorf("expected patched document to report verified:true, got %s", doc)
	}

	n, err := s.Remove(ctx, storage.Eq("keyId", "abc123"), storage.PublicKeyType)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if n != 1 {
		t.Errorf("Remove count = %d, want 1", n)
	}

	if _, err := s.Get(ctx, storage.Eq("keyId", "abc123"), storage.PublicKeyType); err != storage.ErrNotFound {
		t.Errorf("expected ErrNotFound after removal, got %v", err)
	}
}

func TestGetNotFound(t *testing.T) {
	s := New()
	if _, err := s.Get(context.Background(), storage.Eq("keyId", "missing"), storage.PublicKeyType); err != storage.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

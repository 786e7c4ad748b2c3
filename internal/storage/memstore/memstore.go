// Package memstore is an in-memory Storage Port implementation used by the
// directory package's tests, so the merge engine can be exercised without a
// running Postgres or an on-disk LevelDB file.
package memstore

import (
	"context"
	"sync"

	simplejson "github.com/bitly/go-simplejson"

	"keydirectory/internal/storage"
)

// Store is a Storage Port backed by an in-process map. Safe for concurrent
// use; it does not attempt per-keyId locking (spec section 5 leaves that to
// the directory layer).
type Store struct {
	mu   sync.Mutex
	docs map[string][]byte
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{docs: make(map[string][]byte)}
}

func (s *Store) Create(ctx context.Context, doc []byte, typ storage.DocType) (storage.CreateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	js, err := simplejson.NewJson(doc)
	if err != nil {
		return storage.CreateResult{}, err
	}
	id := storage.NewDocID()
	js.Set("_id", id)
	encoded, err := js.MarshalJSON()
	if err != nil {
		return storage.CreateResult{}, err
	}
	s.docs[id] = encoded
	return storage.CreateResult{InsertedCount: 1}, nil
}

func (s *Store) Get(ctx context.Context, sel storage.Selector, typ storage.DocType) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range s.docs {
		js, err := simplejson.NewJson(doc)
		if err != nil {
			continue
		}
		if storage.Matches(js, sel) {
			return doc, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) Update(ctx context.Context, sel storage.Selector, patch storage.Patch, typ storage.DocType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, doc := range s.docs {
		js, err := simplejson.NewJson(doc)
		if err != nil {
			continue
		}
		if !storage.Matches(js, sel) {
			continue
		}
		elemIdx := storage.MatchingElemMatchIndex(js, sel)
		storage.ApplyPatch(js, patch, elemIdx)
		encoded, err := js.MarshalJSON()
		if err != nil {
			return err
		}
		s.docs[id] = encoded
		return nil
	}
	return storage.ErrNotFound
}

func (s *Store) Remove(ctx context.Context, sel storage.Selector, typ storage.DocType) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var toDelete []string
	for id, doc := range s.docs {
		js, err := simplejson.NewJson(doc)
		if err != nil {
			continue
		}
		if storage.Matches(js, sel) {
			toDelete = append(toDelete, id)
		}
	}
	for _, id := range toDelete {
		delete(s.docs, id)
	}
	return len(toDelete), nil
}

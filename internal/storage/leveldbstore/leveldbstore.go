// Package leveldbstore is the embedded, single-process Storage Port
// implementation, for dev/test deployments that don't want a Postgres
// dependency. It is built on the teacher's own github.com/syndtr/goleveldb,
// storing the same JSON documents keyed by their generated document id.
// Every lookup scans all stored documents.
package leveldbstore

import (
	"context"

	simplejson "github.com/bitly/go-simplejson"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"keydirectory/internal/storage"
)

// Store is a Storage Port backed by an embedded LevelDB database.
type Store struct {
	db *leveldb.DB
}

// Open opens (creating if necessary) a LevelDB database at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "opening leveldb database")
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Create(ctx context.Context, doc []byte, typ storage.DocType) (storage.CreateResult, error) {
	js, err := simplejson.NewJson(doc)
	if err != nil {
		return storage.CreateResult{}, errors.Wrap(err, "decoding document")
	}
	id := storage.NewDocID()
	js.Set("_id", id)
	encoded, err := js.MarshalJSON()
	if err != nil {
		return storage.CreateResult{}, errors.Wrap(err, "encoding document")
	}
	if err := s.db.Put([]byte(id), encoded, nil); err != nil {
		return storage.CreateResult{}, errors.Wrap(err, "writing publickey record")
	}
	return storage.CreateResult{InsertedCount: 1}, nil
}

func (s *Store) Get(ctx context.Context, sel storage.Selector, typ storage.DocType) ([]byte, error) {
	doc, _, err := s.findOne(sel)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Store) Update(ctx context.Context, sel storage.Selector, patch storage.Patch, typ storage.DocType) error {
	_, js, err := s.findOneJSON(sel)
	if err != nil {
		return err
	}
	elemIdx := storage.MatchingElemMatchIndex(js, sel)
	storage.ApplyPatch(js, patch, elemIdx)
	id, err := js.Get("_id").String()
	if err != nil {
		return errors.Wrap(err, "document missing _id")
	}
	encoded, err := js.MarshalJSON()
	if err != nil {
		return errors.Wrap(err, "encoding patched document")
	}
	return errors.Wrap(s.db.Put([]byte(id), encoded, nil), "writing patched publickey record")
}

func (s *Store) Remove(ctx context.Context, sel storage.Selector, typ storage.DocType) (int, error) {
	iter := s.db.NewIterator(util.BytesPrefix(nil), nil)
	defer iter.Release()
	var toDelete [][]byte
	for iter.Next() {
		js, err := simplejson.NewJson(iter.Value())
		if err != nil {
			continue
		}
		if storage.Matches(js, sel) {
			key := make([]byte, len(iter.Key()))
			copy(key, iter.Key())
			toDelete = append(toDelete, key)
		}
	}
	if err := iter.Error(); err != nil {
		return 0, errors.Wrap(err, "scanning leveldb")
	}
	for _, key := range toDelete {
		if err := s.db.Delete(key, nil); err != nil {
			return 0, errors.Wrap(err, "deleting publickey record")
		}
	}
	return len(toDelete), nil
}

func (s *Store) findOne(sel storage.Selector) ([]byte, []byte, error) {
	iter := s.db.NewIterator(util.BytesPrefix(nil), nil)
	defer iter.Release()
	for iter.Next() {
		js, err := simplejson.NewJson(iter.Value())
		if err != nil {
			continue
		}
		if storage.Matches(js, sel) {
			key := make([]byte, len(iter.Key()))
			copy(key, iter.Key())
			val := make([]byte, len(iter.Value()))
			copy(val, iter.Value())
			return val, key, nil
		}
	}
	if err := iter.Error(); err != nil {
		return nil, nil, errors.Wrap(err, "scanning leveldb")
	}
	return nil, nil, storage.ErrNotFound
}

func (s *Store) findOneJSON(sel storage.Selector) (string, *simplejson.Json, error) {
	doc, key, err := s.findOne(sel)
	if err != nil {
		return "", nil, err
	}
	js, err := simplejson.NewJson(doc)
	if err != nil {
		return "", nil, errors.Wrap(err, "decoding document")
	}
	return string(key), js, nil
}

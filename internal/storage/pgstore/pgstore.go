// Package pgstore is the Postgres-backed Storage Port implementation: one
// `publickey` table with a jsonb document column, matching the teacher's
// own choice of github.com/lib/pq for its persistence layer.
package pgstore

import (
	"context"
	"database/sql"

	simplejson "github.com/bitly/go-simplejson"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"keydirectory/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS publickey (
	id          text PRIMARY KEY,
	key_id      text,
	fingerprint text,
	document    jsonb NOT NULL
);
CREATE INDEX IF NOT EXISTS publickey_key_id_idx ON publickey (key_id);
CREATE INDEX IF NOT EXISTS publickey_fingerprint_idx ON publickey (fingerprint);
`

// Store is a Storage Port backed by Postgres.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres via the given DSN and ensures the schema
// exists.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "opening postgres connection")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating publickey table")
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Create(ctx context.Context, doc []byte, typ storage.DocType) (storage.CreateResult, error) {
	js, err := simplejson.NewJson(doc)
	if err != nil {
		return storage.CreateResult{}, errors.Wrap(err, "decoding document")
	}
	id := storage.NewDocID()
	js.Set("_id", id)
	keyID, _ := js.Get("keyId").String()
	fingerprint, _ := js.Get("fingerprint").String()
	encoded, err := js.MarshalJSON()
	if err != nil {
		return storage.CreateResult{}, errors.Wrap(err, "encoding document")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO publickey (id, key_id, fingerprint, document) VALUES ($1, $2, $3, $4)`,
		id, keyID, fingerprint, encoded,
	)
	if err != nil {
		return storage.CreateResult{}, errors.Wrap(err, "inserting publickey row")
	}
	return storage.CreateResult{InsertedCount: 1}, nil
}

// Get scans every row and applies the full selector predicate in Go
// (storage.Matches) so $or/$elemMatch behave identically across backends.
// The key_id and fingerprint columns are not used to narrow the scan.
func (s *Store) Get(ctx context.Context, sel storage.Selector, typ storage.DocType) ([]byte, error) {
	rows, err := s.scanAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, doc := range rows {
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
	id, js, err := s.findOne(ctx, sel)
	if err != nil {
		return err
	}
	elemIdx := storage.MatchingElemMatchIndex(js, sel)
	storage.ApplyPatch(js, patch, elemIdx)
	encoded, err := js.MarshalJSON()
	if err != nil {
		return errors.Wrap(err, "encoding patched document")
	}
	keyID, _ := js.Get("keyId").String()
	fingerprint, _ := js.Get("fingerprint").String()
	_, err = s.db.ExecContext(ctx,
		`UPDATE publickey SET document = $1, key_id = $2, fingerprint = $3 WHERE id = $4`,
		encoded, keyID, fingerprint, id,
	)
	return errors.Wrap(err, "updating publickey row")
}

func (s *Store) Remove(ctx context.Context, sel storage.Selector, typ storage.DocType) (int, error) {
	rows, err := s.scanAllWithIDs(ctx)
	if err != nil {
		return 0, err
	}
	var toDelete []string
	for id, doc := range rows {
		js, err := simplejson.NewJson(doc)
		if err != nil {
			continue
		}
		if storage.Matches(js, sel) {
			toDelete = append(toDelete, id)
		}
	}
	if len(toDelete) == 0 {
		return 0, nil
	}
	for _, id := range toDelete {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM publickey WHERE id = $1`, id); err != nil {
			return 0, errors.Wrap(err, "deleting publickey row")
		}
	}
	return len(toDelete), nil
}

func (s *Store) findOne(ctx context.Context, sel storage.Selector) (string, *simplejson.Json, error) {
	rows, err := s.scanAllWithIDs(ctx)
	if err != nil {
		return "", nil, err
	}
	for id, doc := range rows {
		js, err := simplejson.NewJson(doc)
		if err != nil {
			continue
		}
		if storage.Matches(js, sel) {
			return id, js, nil
		}
	}
	return "", nil, storage.ErrNotFound
}

func (s *Store) scanAll(ctx context.Context) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT document FROM publickey`)
	if err != nil {
		return nil, errors.Wrap(err, "scanning publickey rows")
	}
	defer rows.Close()
	var out [][]byte
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, errors.Wrap(err, "scanning publickey row")
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *Store) scanAllWithIDs(ctx context.Context) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, document FROM publickey`)
	if err != nil {
		return nil, errors.Wrap(err, "scanning publickey rows")
	}
	defer rows.Close()
	out := make(map[string][]byte)
	for rows.Next() {
		var id string
		var doc []byte
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, errors.Wrap(err, "scanning publickey row")
		}
		out[id] = doc
	}
	return out, rows.Err()
}

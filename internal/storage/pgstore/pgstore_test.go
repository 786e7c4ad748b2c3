package pgstore

import (
	"context"
	"flag"
	"fmt"
	"testing"

	"github.com/bmizerany/assert"

	"keydirectory/internal/storage"
)

var pgUser = flag.String("pguser", "", "postgres username")
var pgPass = flag.String("pgpass", "", "postgres password")
var pgHost = flag.String("pghost", "localhost", "postgres hostname")
var pgPort = flag.Int("pgport", 5432, "postgres port")
var pgDb = flag.String("pgdb", "keydirectory_test", "postgres database name")

func openTestStore(t *testing.T) *Store {
	dsn := fmt.Sprintf("user=%s dbname=%s password=%s host=%s port=%d sslmode=disable",
		*pgUser, *pgDb, *pgPass, *pgHost, *pgPort)
	store, err := Open(dsn)
	if err != nil {
		t.Skipf("skipping, no postgres reachable at %s:%d: %v", *pgHost, *pgPort, err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateGetUpdateRemove(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	res, err := store.Create(ctx, []byte(`{"keyId":"pgtest1","userIds":[{"email":"a@example.com","verified":false}]}`), storage.PublicKeyType)
	assert.Equal(t, err, nil)
	assert.Equal(t, 1, res.InsertedCount)

	doc, err := store.Get(ctx, storage.Eq("keyId", "pgtest1"), storage.PublicKeyType)
	assert.Equal(t, err, nil)
	assert.T(t, len(doc) > 0)

	sel := storage.ElemMatch("userIds", storage.Eq("email", "a@example.com"))
	err = store.Update(ctx, sel, storage.Patch{"userIds.$.verified": true}, storage.PublicKeyType)
	assert.Equal(t, err, nil)

	doc, err = store.Get(ctx, storage.Eq("keyId", "pgtest1"), storage.PublicKeyType)
	assert.Equal(t, err, nil)
	assert.T(t, string(doc) != "")

	n, err := store.Remove(ctx, storage.Eq("keyId", "pgtest1"), storage.PublicKeyType)
	assert.Equal(t, err, nil)
	assert.Equal(t, 1, n)

	_, err = store.Get(ctx, storage.Eq("keyId", "pgtest1"), storage.PublicKeyType)
	assert.Equal(t, err, storage.ErrNotFound)
}

func TestGetNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Get(context.Background(), storage.Eq("keyId", "pgtest-missing"), storage.PublicKeyType)
	assert.Equal(t, err, storage.ErrNotFound)
}

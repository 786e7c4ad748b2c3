package openpgp

import (
	"crypto/sha256"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/crypto/openpgp"
)

// entityCache avoids re-parsing the same armored block repeatedly within a
// single directory operation: a put touches the same new armored text in
// ParseKey, then again in FilterByUserIds, then again in FilterBySignatures.
type entityCache struct {
	lru *lru.Cache
}

func newEntityCache(size int) *entityCache {
	c, err := lru.New(size)
	if err != nil {
		// size is always a positive compile-time constant from callers;
		// lru.New only fails for size <= 0.
		panic(err)
	}
	return &entityCache{lru: c}
}

func (c *entityCache) get(armored string) (*openpgp.Entity, bool) {
	v, ok := c.lru.Get(digest(armored))
	if !ok {
		return nil, false
	}
	return v.(*openpgp.Entity), true
}

func (c *entityCache) put(armored string, e *openpgp.Entity) {
	c.lru.Add(digest(armored), e)
}

func digest(armored string) [32]byte {
	return sha256.Sum256([]byte(armored))
}

package directory

import (
	"context"

	"keydirectory/internal/apperr"
	"keydirectory/internal/model"
	"keydirectory/internal/storage"
)

func (d *Directory) getByKeyID(ctx context.Context, keyID string) (*model.Key, error) {
	doc, err := d.store.Get(ctx, storage.Eq("keyId", keyID), storage.PublicKeyType)
	if err != nil {
		return nil, err
	}
	return decodeKey(doc)
}

func (d *Directory) insert(ctx context.Context, key *model.Key) error {
	doc, err := encodeKey(key)
	if err != nil {
		return apperr.Wrap(apperr.PersistFailed, err, "encoding key record")
	}
	res, err := d.store.Create(ctx, doc, storage.PublicKeyType)
	if err != nil {
		return apperr.Wrap(apperr.PersistFailed, err, "inserting key record")
	}
	if res.InsertedCount != 1 {
		return apperr.New(apperr.PersistFailed, "insert reported %d documents, expected 1", res.InsertedCount)
	}
	return nil
}

// replace overwrites the mutable fields of the key identified by keyID:
// userIds, publicKeyArmored, uploaded and pendingSignatures. keyId,
// fingerprint, created, algorithm and keySize keep their stored values. The
// Storage Port has no whole-document replace, so this is a field-by-field
// Patch.
func (d *Directory) replace(ctx context.Context, keyID string, key *model.Key) error {
	patch := storage.Patch{
		"userIds":           key.UserIDs,
		"publicKeyArmored":  key.PublicKeyArmored,
		"uploaded":          key.Uploaded,
		"pendingSignatures": key.PendingSignatures,
	}
	if err := d.store.Update(ctx, storage.Eq("keyId", keyID), patch, storage.PublicKeyType); err != nil {
		if err == storage.ErrNotFound {
			return apperr.New(apperr.KeyNotFound, "no such key %q", keyID)
		}
		return apperr.Wrap(apperr.PersistFailed, err, "updating key record")
	}
	return nil
}

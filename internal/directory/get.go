package directory

import (
	"context"
	"strings"

	"keydirectory/internal/apperr"
	"keydirectory/internal/model"
	"keydirectory/internal/storage"
	"keydirectory/internal/validate"
)

// Lookup identifies a Key Record by any of the three keys spec sections 4.5
// and 4.10 accept: keyId, fingerprint, or a user id's email. At least one
// field must be set.
type Lookup struct {
	KeyID       string
	Fingerprint string
	Email       string
}

func (l Lookup) normalized() Lookup {
	return Lookup{
		KeyID:       strings.ToLower(strings.TrimSpace(l.KeyID)),
		Fingerprint: strings.ToLower(strings.TrimSpace(l.Fingerprint)),
		Email:       validate.NormalizeEmail(l.Email),
	}
}

// verifiedSelector builds the selector spec section 4.5 describes: a record
// matches if its keyId or fingerprint equals the given value and it has any
// verified user id, or if one of its user ids both matches the given email
// and is itself verified.
func verifiedSelector(l Lookup) (storage.Selector, error) {
	l = l.normalized()
	hasVerified := storage.ElemMatch("userIds", storage.Eq("verified", true))

	var sels []storage.Selector
	if l.KeyID != "" {
		sels = append(sels, storage.And(storage.Eq("keyId", l.KeyID), hasVerified))
	}
	if l.Fingerprint != "" {
		sels = append(sels, storage.And(storage.Eq("fingerprint", l.Fingerprint), hasVerified))
	}
	if l.Email != "" {
		sels = append(sels, storage.ElemMatch("userIds", storage.Eq("email", l.Email), storage.Eq("verified", true)))
	}
	if len(sels) == 0 {
		return storage.Selector{}, apperr.New(apperr.InvalidRequest, "keyId, fingerprint, or email is required")
	}
	if len(sels) == 1 {
		return sels[0], nil
	}
	return storage.Or(sels...), nil
}

// GetVerified implements spec section 4.5: the public, HKP-style lookup. A
// record with no verified user id does not exist as far as a caller of this
// operation is concerned. At most one record is returned, relying on
// invariant 3 ("last verified wins per email") to keep that true.
func (d *Directory) GetVerified(ctx context.Context, lookup Lookup) (*model.Key, error) {
	sel, err := verifiedSelector(lookup)
	if err != nil {
		return nil, err
	}
	doc, err := d.store.Get(ctx, sel, storage.PublicKeyType)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, apperr.New(apperr.KeyNotFound, "no matching verified key")
		}
		return nil, apperr.Wrap(apperr.PersistFailed, err, "loading key")
	}
	return decodeKey(doc)
}

// Get implements spec section 4.10: locate the record via GetVerified, then
// strip internal-only fields before returning it to the caller.
func (d *Directory) Get(ctx context.Context, lookup Lookup) (*model.Key, error) {
	key, err := d.GetVerified(ctx, lookup)
	if err != nil {
		return nil, err
	}
	return key.Strip(), nil
}

package directory

import (
	"context"

	"keydirectory/internal/apperr"
	"keydirectory/internal/mailer"
	"keydirectory/internal/model"
	"keydirectory/internal/storage"
	"keydirectory/internal/validate"
)

// RequestRemove implements the dispatch half of spec section 4.9. If email
// is non-empty, only that verified user ID is flagged; otherwise every
// verified user ID on the record is flagged, each with its own nonce. The
// removal nonce is carried in the (otherwise unused, since the user ID is
// already verified) Nonce field until VerifyRemove consumes it.
func (d *Directory) RequestRemove(ctx context.Context, keyID, email string, origin mailer.Origin) error {
	key, err := d.getByKeyID(ctx, keyID)
	if err != nil {
		if err == storage.ErrNotFound {
			return apperr.New(apperr.KeyNotFound, "no such key %q", keyID)
		}
		return apperr.Wrap(apperr.PersistFailed, err, "loading key")
	}

	email = validate.NormalizeEmail(email)
	var targets []int
	for i := range key.UserIDs {
		if !key.UserIDs[i].Verified {
			continue
		}
		if email != "" && key.UserIDs[i].Email != email {
			continue
		}
		targets = append(targets, i)
	}
	if len(targets) == 0 {
		return apperr.New(apperr.UserIdNotFound, "no matching verified user id on key %q", keyID)
	}

	for _, idx := range targets {
		nonce, err := validate.NewNonce()
		if err != nil {
			return apperr.Wrap(apperr.PersistFailed, err, "generating nonce")
		}
		key.UserIDs[idx].Nonce = nonce
	}
	if err := d.replace(ctx, key.KeyID, key); err != nil {
		return err
	}

	for _, idx := range targets {
		if err := d.mail.Send(mailer.Message{
			Template: mailer.VerifyRemove,
			UserID:   addressOf(&key.UserIDs[idx]),
			KeyID:    key.KeyID,
			Nonce:    key.UserIDs[idx].Nonce,
			Origin:   origin,
		}); err != nil {
			return apperr.Wrap(apperr.PersistFailed, err, "sending removal confirmation email")
		}
	}
	return nil
}

// VerifyRemove implements the confirmation half of spec section 4.9: a
// record with exactly one user ID is deleted outright; otherwise the
// target user ID alone is stripped from the armored body (if it was the
// last verified identity, the armored body is nulled instead of degraded to
// an unparseable remainder) and dropped from the record.
func (d *Directory) VerifyRemove(ctx context.Context, keyID, nonce string) (string, error) {
	key, err := d.getByKeyID(ctx, keyID)
	if err != nil {
		if err == storage.ErrNotFound {
			return "", apperr.New(apperr.KeyNotFound, "no such key %q", keyID)
		}
		return "", apperr.Wrap(apperr.PersistFailed, err, "loading key")
	}

	idx := key.FindByNonce(nonce)
	if idx < 0 || !key.UserIDs[idx].Verified {
		return "", apperr.New(apperr.InvalidNonce, "nonce does not match a pending removal request")
	}
	removedEmail := key.UserIDs[idx].Email

	if len(key.UserIDs) == 1 {
		if _, err := d.store.Remove(ctx, storage.Eq("keyId", key.KeyID), storage.PublicKeyType); err != nil {
			return "", apperr.Wrap(apperr.PersistFailed, err, "removing key record")
		}
		return removedEmail, nil
	}

	remainingVerified := 0
	for i := range key.UserIDs {
		if i != idx && key.UserIDs[i].Verified {
			remainingVerified++
		}
	}
	if remainingVerified > 0 {
		stripped, err := d.pgp.RemoveUserId(removedEmail, key.PublicKeyArmored)
		if err != nil {
			return "", err
		}
		key.PublicKeyArmored = stripped
	} else {
		key.PublicKeyArmored = ""
	}
	key.UserIDs = append(append([]model.UserID{}, key.UserIDs[:idx]...), key.UserIDs[idx+1:]...)

	if err := d.replace(ctx, key.KeyID, key); err != nil {
		return "", err
	}
	return removedEmail, nil
}

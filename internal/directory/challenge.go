package directory

import (
	"context"
	"fmt"

	"keydirectory/internal/apperr"
	"keydirectory/internal/mailer"
	"keydirectory/internal/model"
	"keydirectory/internal/validate"
)

// dispatchAndClean implements spec section 4.4 for a freshly uploaded key
// with no prior record: every user ID flagged Notify gets a nonce and a
// verifyKey message, unless predicate rejects it, in which case the user ID
// is left dormant (Status/Notify retained, no nonce assigned) for the
// restrictUserOrigin case (spec section 4.2 step 5).
func (d *Directory) dispatchAndClean(ctx context.Context, origin mailer.Origin, key *model.Key, predicate func(model.UserID) bool) error {
	for i := range key.UserIDs {
		u := &key.UserIDs[i]
		if !u.Notify {
			continue
		}
		if predicate != nil && !predicate(*u) {
			continue
		}
		nonce, err := validate.NewNonce()
		if err != nil {
			return apperr.Wrap(apperr.PersistFailed, err, "generating nonce for %s", u.Email)
		}
		u.Nonce = nonce
		if err := d.mail.Send(mailer.Message{
			Template:         mailer.VerifyKey,
			UserID:           addressOf(u),
			KeyID:            key.KeyID,
			Nonce:            nonce,
			Origin:           origin,
			PublicKeyArmored: u.PublicKeyArmored,
		}); err != nil {
			return apperr.Wrap(apperr.PersistFailed, err, "sending verification email to %s", u.Email)
		}
		u.Notify = false
		u.Status = ""
	}
	return nil
}

// dispatchNotify implements spec section 4.4 for a merge onto an existing
// record: only the newly admitted pending user IDs mergeUserIDs flagged
// Notify need a challenge. rawArmored is the just-uploaded key, the only
// place a shadow armored body for a brand new user ID can be extracted
// from, since the merged record's own PublicKeyArmored is still scoped to
// previously verified emails at this point.
func (d *Directory) dispatchNotify(ctx context.Context, origin mailer.Origin, key *model.Key, rawArmored string) error {
	for i := range key.UserIDs {
		u := &key.UserIDs[i]
		if !u.Notify || u.Nonce != "" {
			continue
		}
		shadow, err := d.pgp.FilterByUserIds([]string{u.Email}, rawArmored)
		if err != nil {
			return err
		}
		nonce, err := validate.NewNonce()
		if err != nil {
			return apperr.Wrap(apperr.PersistFailed, err, "generating nonce for %s", u.Email)
		}
		u.Nonce = nonce
		u.PublicKeyArmored = shadow
		if err := d.mail.Send(mailer.Message{
			Template:         mailer.VerifyKey,
			UserID:           addressOf(u),
			KeyID:            key.KeyID,
			Nonce:            nonce,
			Origin:           origin,
			PublicKeyArmored: shadow,
		}); err != nil {
			return apperr.Wrap(apperr.PersistFailed, err, "sending verification email to %s", u.Email)
		}
		u.Notify = false
		u.Status = ""
	}
	return nil
}

func addressOf(u *model.UserID) string {
	if u.Name == "" {
		return u.Email
	}
	return fmt.Sprintf("%s <%s>", u.Name, u.Email)
}

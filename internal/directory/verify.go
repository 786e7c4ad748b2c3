package directory

import (
	"context"
	"time"

	"keydirectory/internal/apperr"
	"keydirectory/internal/mailer"
	"keydirectory/internal/metrics"
	"keydirectory/internal/model"
	"keydirectory/internal/storage"
	"keydirectory/internal/validate"
)

// Verify implements spec section 4.6: consuming a user-id verification
// nonce promotes that user ID to verified and folds its shadow armored body
// into the key's verified public armor.
//
// Step 2 of 4.6 unconditionally re-dispatches a challenge to every other
// user ID still carrying notify=true on the same record, before the target
// user ID is marked verified. Whether that double-send is intentional is
// unclear in the source design; this reimplementation keeps it as explicit,
// literal policy rather than "fixing" it away (Open Question decision 1).
func (d *Directory) Verify(ctx context.Context, keyID, nonce string, origin mailer.Origin) (*model.Key, error) {
	key, err := d.getByKeyID(ctx, keyID)
	if err != nil {
		if err == storage.ErrNotFound {
			metrics.Verifications.WithLabelValues(string(apperr.KeyNotFound)).Inc()
			return nil, apperr.New(apperr.KeyNotFound, "no such key %q", keyID)
		}
		metrics.Verifications.WithLabelValues(string(apperr.PersistFailed)).Inc()
		return nil, apperr.Wrap(apperr.PersistFailed, err, "loading key")
	}

	idx := key.FindByNonce(nonce)
	if idx < 0 {
		metrics.Verifications.WithLabelValues(string(apperr.InvalidNonce)).Inc()
		return nil, apperr.New(apperr.InvalidNonce, "nonce does not match any pending user id")
	}

	if err := d.redispatchOutstanding(ctx, origin, key, idx); err != nil {
		metrics.Verifications.WithLabelValues(string(apperr.PersistFailed)).Inc()
		return nil, err
	}

	uid := &key.UserIDs[idx]
	merged, err := d.pgp.UpdateKey(uid.PublicKeyArmored, key.PublicKeyArmored)
	if err != nil {
		metrics.Verifications.WithLabelValues(string(apperr.InternalParseError)).Inc()
		return nil, err
	}

	// Invariant 3 ("last verified wins per email"): any other Key Record
	// that also claims this email is superseded by this verification.
	if _, err := d.store.Remove(ctx, storage.And(
		storage.Ne("keyId", key.KeyID),
		storage.ElemMatch("userIds", storage.Eq("email", uid.Email), storage.Eq("verified", true)),
	), storage.PublicKeyType); err != nil {
		metrics.Verifications.WithLabelValues(string(apperr.PersistFailed)).Inc()
		return nil, apperr.Wrap(apperr.PersistFailed, err, "removing superseded records for %q", uid.Email)
	}

	uid.Verified = true
	uid.Nonce = ""
	uid.PublicKeyArmored = ""
	uid.Status = ""
	uid.Notify = false
	key.PublicKeyArmored = merged

	if err := d.replace(ctx, key.KeyID, key); err != nil {
		metrics.Verifications.WithLabelValues(string(apperr.PersistFailed)).Inc()
		return nil, err
	}
	metrics.Verifications.WithLabelValues("ok").Inc()
	return key, nil
}

// redispatchOutstanding re-sends a challenge, with a freshly generated
// nonce, to every user ID on key still flagged notify=true other than the
// one about to be verified at targetIdx (spec section 4.6 step 2).
func (d *Directory) redispatchOutstanding(ctx context.Context, origin mailer.Origin, key *model.Key, targetIdx int) error {
	for i := range key.UserIDs {
		if i == targetIdx || !key.UserIDs[i].Notify {
			continue
		}
		nonce, err := validate.NewNonce()
		if err != nil {
			return apperr.Wrap(apperr.PersistFailed, err, "generating nonce")
		}
		key.UserIDs[i].Nonce = nonce
		if err := d.mail.Send(mailer.Message{
			Template:         mailer.VerifyKey,
			UserID:           addressOf(&key.UserIDs[i]),
			KeyID:            key.KeyID,
			Nonce:            nonce,
			Origin:           origin,
			PublicKeyArmored: key.UserIDs[i].PublicKeyArmored,
		}); err != nil {
			return apperr.Wrap(apperr.PersistFailed, err, "re-sending verification email")
		}
	}
	return nil
}

// VerifySignatures implements spec section 4.7: `sigs` is the set of
// md5(base64(signature)) hashes the owner selected in the confirmation UI.
// Only pending certifications whose hash is in that set are reattached;
// everything else in the batch is discarded.
func (d *Directory) VerifySignatures(ctx context.Context, keyID, nonce string, sigs []string) (*model.Key, error) {
	key, err := d.getByKeyID(ctx, keyID)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, apperr.New(apperr.KeyNotFound, "no such key %q", keyID)
		}
		return nil, apperr.Wrap(apperr.PersistFailed, err, "loading key")
	}
	if key.PendingSignatures == nil || key.PendingSignatures.Nonce != nonce {
		return nil, apperr.New(apperr.SignaturesNotFound, "no matching pending signature batch")
	}

	selected := sigHashSet(sigs)
	armored := key.PublicKeyArmored
	for _, sig := range key.PendingSignatures.Sigs {
		if !selected[sigHash(sig.Signature)] {
			continue // not selected by the owner: discarded
		}
		attached, err := d.pgp.AddSignature(armored, sig)
		if err != nil {
			if appErr, ok := err.(*apperr.Error); ok && appErr.Kind == apperr.UserIdNotFound {
				// the signer's user id left the key between upload and
				// confirmation; drop the now-orphaned certification
				continue
			}
			return nil, err
		}
		merged, err := d.pgp.UpdateKey(armored, attached)
		if err != nil {
			return nil, err
		}
		armored = merged
	}
	key.PublicKeyArmored = armored
	key.PendingSignatures = nil
	metrics.PendingSignatureBatches.Dec()

	if err := d.replace(ctx, key.KeyID, key); err != nil {
		return nil, err
	}
	return key, nil
}

// unknownIssuer is what getPendingSignatures reports for a certification
// whose issuer key is not itself on record with a verified user id.
const unknownIssuer = "[unknown identity]"

// PendingSignatureView is one reattachable third-party certification as
// spec section 4.8 presents it to the owner.
type PendingSignatureView struct {
	IssuerFingerprint string    `json:"issuerFingerprint"`
	Created           time.Time `json:"created"`
	UserID            string    `json:"userId"`
	Hash              string    `json:"hash"`
}

// GetPendingSignatures implements spec section 4.8: the owner-facing view
// of certifications awaiting confirmation, keyed by the signed user id,
// with each issuer resolved against the directory's own verified records.
func (d *Directory) GetPendingSignatures(ctx context.Context, lookup Lookup, nonce string) (map[string][]PendingSignatureView, error) {
	key, err := d.GetVerified(ctx, lookup)
	if err != nil {
		return nil, err
	}
	if key.PendingSignatures == nil || key.PendingSignatures.Nonce != nonce {
		return nil, apperr.New(apperr.InvalidNonce, "no matching pending signature batch")
	}

	out := make(map[string][]PendingSignatureView, len(key.PendingSignatures.Sigs))
	for _, sig := range key.PendingSignatures.Sigs {
		meta, err := d.pgp.DecodeSignature(sig.Signature)
		if err != nil {
			return nil, err
		}
		out[sig.User.UserID] = append(out[sig.User.UserID], PendingSignatureView{
			IssuerFingerprint: meta.IssuerFingerprint,
			Created:           meta.Created,
			UserID:            d.resolveIssuer(ctx, meta.IssuerFingerprint),
			Hash:              sigHash(sig.Signature),
		})
	}
	return out, nil
}

// resolveIssuer looks up the verified primary user of the key identified by
// issuerFingerprint, falling back to unknownIssuer if it names no key on
// record, no verified user id, or (for a bare 8-byte issuer key id) cannot
// be matched to a stored fingerprint unambiguously.
func (d *Directory) resolveIssuer(ctx context.Context, issuerFingerprint string) string {
	if issuerFingerprint == "" {
		return unknownIssuer
	}
	field := "fingerprint"
	if len(issuerFingerprint) == 16 {
		field = "keyId"
	}
	doc, err := d.store.Get(ctx, storage.And(
		storage.Eq(field, issuerFingerprint),
		storage.ElemMatch("userIds", storage.Eq("verified", true)),
	), storage.PublicKeyType)
	if err != nil {
		return unknownIssuer
	}
	issuer, err := decodeKey(doc)
	if err != nil {
		return unknownIssuer
	}
	primary, err := d.pgp.GetPrimaryUser(issuer.PublicKeyArmored)
	if err != nil || primary.UserID == "" {
		return unknownIssuer
	}
	return primary.UserID
}

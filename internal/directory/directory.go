// Package directory is the Key Directory (spec section 4.2-4.10): the state
// machine and merge engine that owns every invariant in spec section 3. It
// orchestrates upload, verification, pending-signature confirmation, and
// removal, delegating key parsing/merging to internal/openpgp, persistence
// to internal/storage, and challenge delivery to internal/mailer.
package directory

import (
	"context"
	"encoding/json"
	"time"

	"gopkg.in/tomb.v2"

	"keydirectory/internal/apperr"
	"keydirectory/internal/config"
	"keydirectory/internal/mailer"
	"keydirectory/internal/metrics"
	"keydirectory/internal/model"
	openpgpadapter "keydirectory/internal/openpgp"
	"keydirectory/internal/storage"
	"keydirectory/internal/validate"
)

// PutRequest is the input to Put (spec section 4.2).
type PutRequest struct {
	Emails           []string
	PublicKeyArmored string
	Origin           mailer.Origin
}

// Directory is the Key Directory. Config is threaded through the
// constructor rather than read from a process-wide singleton (spec section
// 9, Ambient global config).
type Directory struct {
	cfg     config.PublicKey
	store   storage.Port
	mail    mailer.Port
	pgp     *openpgpadapter.Adapter
	domain  *validate.DomainPolicy
	purgeT  *tomb.Tomb
}

// New builds a Directory. domain may be nil if cfg.RestrictUserOrigin is
// false.
func New(cfg config.PublicKey, store storage.Port, mail mailer.Port, domain *validate.DomainPolicy) *Directory {
	return &Directory{
		cfg:    cfg,
		store:  store,
		mail:   mail,
		pgp:    openpgpadapter.New(domain),
		domain: domain,
	}
}

func (d *Directory) purgeHorizon() time.Time {
	return time.Now().AddDate(0, 0, -d.cfg.PurgeTimeInDays)
}

// Put implements spec section 4.2: parse, filter, merge with any existing
// verified record, dispatch challenges, and persist.
func (d *Directory) Put(ctx context.Context, req PutRequest) (*model.Key, error) {
	// Step 1: lazy purge, opportunistic and best-effort (spec section 4.2
	// step 1, section 7: "the lazy-purge failure is swallowed and logged").
	if _, err := d.purgeAged(ctx); err != nil {
		apperr.Report(apperr.Wrap(apperr.PersistFailed, err, "lazy purge"))
	}

	// Step 2: parse.
	parsed, err := d.pgp.ParseKey(req.PublicKeyArmored)
	if err != nil {
		metrics.Uploads.WithLabelValues(string(apperr.MalformedKey)).Inc()
		return nil, err
	}

	// Step 3: filter to requested user IDs.
	if len(req.Emails) > 0 {
		wanted := make(map[string]bool, len(req.Emails))
		for _, e := range req.Emails {
			wanted[validate.NormalizeEmail(e)] = true
		}
		var filtered []model.UserID
		for _, u := range parsed.UserIDs {
			if wanted[u.Email] {
				filtered = append(filtered, u)
			}
		}
		if len(filtered) != len(req.Emails) {
			metrics.Uploads.WithLabelValues(string(apperr.UserIdMismatch)).Inc()
			return nil, apperr.New(apperr.UserIdMismatch, "requested emails do not match key's user ids")
		}
		parsed.UserIDs = filtered
	}

	// Step 4: lookup existing verified record by keyId.
	existing, err := d.getByKeyID(ctx, parsed.KeyID)
	if err != nil && err != storage.ErrNotFound {
		metrics.Uploads.WithLabelValues(string(apperr.PersistFailed)).Inc()
		return nil, apperr.Wrap(apperr.PersistFailed, err, "looking up existing key")
	}

	var result *model.Key
	if existing != nil && existing.HasVerifiedUserID() {
		result, err = d.putMerge(ctx, existing, parsed, req)
	} else {
		result, err = d.putFresh(ctx, existing, parsed, req)
	}
	if err != nil {
		metrics.Uploads.WithLabelValues(errKind(err)).Inc()
		return nil, err
	}
	metrics.Uploads.WithLabelValues("ok").Inc()
	return result, nil
}

// putFresh implements spec section 4.2 Case A: no user id on record has
// ever been verified yet. existing is nil on a genuinely first upload, or a
// still-pending record from a previous unconfirmed upload that this one
// folds into.
func (d *Directory) putFresh(ctx context.Context, existing *model.Key, parsed *openpgpadapter.ParsedKey, req PutRequest) (*model.Key, error) {
	var userIDs []model.UserID
	if existing != nil {
		userIDs = mergeUserIDs(existing.UserIDs, parsed.UserIDs)
	} else {
		for _, u := range parsed.UserIDs {
			if u.Status == model.StatusValid {
				u.Notify = true
				userIDs = append(userIDs, u)
			}
		}
	}
	if len(userIDs) == 0 {
		return nil, apperr.New(apperr.NoValidUserIds, "key has no valid user ids")
	}

	for i := range userIDs {
		if !userIDs[i].Notify || userIDs[i].PublicKeyArmored != "" {
			continue
		}
		shadow, err := d.pgp.FilterByUserIds([]string{userIDs[i].Email}, req.PublicKeyArmored)
		if err != nil {
			return nil, err
		}
		userIDs[i].PublicKeyArmored = shadow
	}

	key := &model.Key{
		KeyID:       parsed.KeyID,
		Fingerprint: parsed.Fingerprint,
		UserIDs:     userIDs,
		Created:     parsed.Created,
		Uploaded:    time.Now(),
		Algorithm:   parsed.Algorithm,
		KeySize:     parsed.KeySize,
	}

	if d.cfg.RestrictUserOrigin {
		if !parsed.HasOrganisationUID {
			return nil, apperr.New(apperr.NoOrganisationUid, "no organisation user id present")
		}
		// Only organisation user IDs are dispatched and "activated" (status
		// and notify cleared); non-org user IDs stay dormant with their
		// transient fields intact (spec section 4.2 step 5, Open Question
		// recorded in SPEC_FULL.md).
		if err := d.dispatchAndClean(ctx, req.Origin, key, orgOnly(d.domain)); err != nil {
			return nil, err
		}
	} else {
		if err := d.dispatchAndClean(ctx, req.Origin, key, nil); err != nil {
			return nil, err
		}
	}

	if existing != nil {
		if err := d.replace(ctx, key.KeyID, key); err != nil {
			return nil, err
		}
		return key, nil
	}
	if err := d.insert(ctx, key); err != nil {
		return nil, err
	}
	return key, nil
}

// putMerge implements spec section 4.2 Case B: merge into an existing
// verified record.
func (d *Directory) putMerge(ctx context.Context, existing *model.Key, parsed *openpgpadapter.ParsedKey, req PutRequest) (*model.Key, error) {
	merged := mergeUserIDs(existing.UserIDs, parsed.UserIDs)

	var verifiedEmails []string
	for _, u := range merged {
		if u.Verified {
			verifiedEmails = append(verifiedEmails, u.Email)
		}
	}
	filteredNew, err := d.pgp.FilterByUserIds(verifiedEmails, req.PublicKeyArmored)
	if err != nil {
		return nil, err
	}

	cleaned, newSigs, err := d.pgp.FilterBySignatures(filteredNew, existing.PublicKeyArmored)
	if err != nil {
		return nil, err
	}

	mergedArmored, err := d.pgp.UpdateKey(existing.PublicKeyArmored, cleaned)
	if err != nil {
		return nil, err
	}

	merged2 := *existing
	merged2.UserIDs = merged
	merged2.PublicKeyArmored = mergedArmored
	merged2.Uploaded = time.Now()
	merged2.PendingSignatures = mergePendingSignatures(existing.PendingSignatures, newSigs)
	if existing.PendingSignatures == nil && merged2.PendingSignatures != nil {
		metrics.PendingSignatureBatches.Inc()
	}

	if err := d.dispatchNotify(ctx, req.Origin, &merged2, req.PublicKeyArmored); err != nil {
		return nil, err
	}
	if len(newSigs) > 0 {
		primary, err := d.pgp.GetPrimaryUser(mergedArmored)
		if err == nil {
			if err := d.mail.Send(mailer.Message{
				Template: mailer.CheckNewSigs,
				UserID:   primary.UserID,
				KeyID:    merged2.KeyID,
				Nonce:    merged2.PendingSignatures.Nonce,
				Origin:   req.Origin,
			}); err != nil {
				return nil, apperr.Wrap(apperr.PersistFailed, err, "sending new-signatures notice")
			}
		}
	}

	if err := d.replace(ctx, existing.KeyID, &merged2); err != nil {
		return nil, err
	}
	return &merged2, nil
}

// mergePendingSignatures implements spec section 4.2's pending-signatures
// rule: create a fresh batch if none exists, otherwise append only sigs not
// already pending (byte equality on the signature packet) and reuse the
// nonce.
func mergePendingSignatures(existing *model.PendingSignatures, newSigs []model.PendingSig) *model.PendingSignatures {
	if len(newSigs) == 0 {
		return existing
	}
	if existing == nil {
		nonce, err := validate.NewNonce()
		if err != nil {
			nonce = ""
		}
		return &model.PendingSignatures{Nonce: nonce, Sigs: newSigs}
	}
	out := *existing
	out.Sigs = append([]model.PendingSig{}, existing.Sigs...)
	for _, sig := range newSigs {
		if !containsSig(out.Sigs, sig) {
			out.Sigs = append(out.Sigs, sig)
		}
	}
	return &out
}

func containsSig(sigs []model.PendingSig, sig model.PendingSig) bool {
	for _, s := range sigs {
		if string(s.Signature) == string(sig.Signature) {
			return true
		}
	}
	return false
}

func orgOnly(domain *validate.DomainPolicy) func(model.UserID) bool {
	return func(u model.UserID) bool { return domain.Matches(u.Email) }
}

func errKind(err error) string {
	var appErr *apperr.Error
	if as, ok := err.(*apperr.Error); ok {
		appErr = as
	}
	if appErr != nil {
		return string(appErr.Kind)
	}
	return "internal"
}

func encodeKey(k *model.Key) ([]byte, error) { return json.Marshal(k) }
func decodeKey(b []byte) (*model.Key, error) {
	var k model.Key
	if err := json.Unmarshal(b, &k); err != nil {
		return nil, err
	}
	return &k, nil
}

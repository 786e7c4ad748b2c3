package directory

import "keydirectory/internal/model"

// mergeUserIDs implements the User-ID Merge algorithm of spec section 4.3.
// Existing verified user IDs are authoritative and never revisited by a
// re-upload. Existing unverified ("pending") user IDs keep their nonce and
// shadow armor untouched, since a verification link already in flight must
// keep working. A new email with a self-signature the Adapter classified as
// StatusValid becomes a fresh pending user ID, flagged for dispatch by
// Directory.dispatchNotify. New identities classified revoked, expired, or
// invalid are dropped: they never reach the directory at all.
//
// Result ordering follows spec section 4.3 step 4 literally: newly admitted
// ("valid") user IDs first, then existing pending user IDs, then existing
// verified user IDs last.
func mergeUserIDs(existing []model.UserID, parsed []model.UserID) []model.UserID {
	byEmail := make(map[string]model.UserID, len(existing))
	for _, u := range existing {
		byEmail[u.Email] = u
	}

	var verified, pending, fresh []model.UserID
	for _, u := range existing {
		if u.Verified {
			verified = append(verified, u)
		} else {
			pending = append(pending, u)
		}
	}

	for _, u := range parsed {
		if _, ok := byEmail[u.Email]; ok {
			continue // already on the record, verified or pending
		}
		if u.Status != model.StatusValid {
			continue // revoked, expired, or invalid self-signature: dropped
		}
		u.Verified = false
		u.Notify = true
		fresh = append(fresh, u)
	}

	out := make([]model.UserID, 0, len(verified)+len(pending)+len(fresh))
	out = append(out, fresh...)
	out = append(out, pending...)
	out = append(out, verified...)
	return out
}

// Package model defines the persisted shapes of the key directory: the Key
// Record, its User-ID Records, and the Pending-Signatures batch attached to
// a key. These mirror spec section 3 of the directory and carry json tags
// for the document store in internal/storage.
package model

import "time"

// UserIDStatus is the transient, parse-time-only classification of a user ID
// inside a freshly parsed key. It is not persisted, except for the dormant
// user IDs described on UserID.Status.
type UserIDStatus string

const (
	StatusValid   UserIDStatus = "valid"
	StatusRevoked UserIDStatus = "revoked"
	StatusExpired UserIDStatus = "expired"
	StatusInvalid UserIDStatus = "invalid"
)

// UserID is one identity bound to a Key by a self-signature.
type UserID struct {
	Name  string `json:"name"`
	Email string `json:"email"`

	Verified bool   `json:"verified"`
	Nonce    string `json:"nonce,omitempty"`

	// PublicKeyArmored is the shadow armored body containing only this user
	// ID. Held while the user ID is unverified, cleared on verification.
	PublicKeyArmored string `json:"publicKeyArmored,omitempty"`

	// Status and Notify are transient parse-time/merge-time fields. They
	// are never written to the document store except in the
	// restrictUserOrigin dormant-user-ID case (see Directory.Put), where
	// the source's own behaviour is preserved deliberately.
	Status UserIDStatus `json:"status,omitempty"`
	Notify bool         `json:"notify,omitempty"`
}

// Signer identifies the user (by user ID string or user attribute) that a
// third-party certification was made over.
type Signer struct {
	UserID        string `json:"userId,omitempty"`
	UserAttribute string `json:"userAttribute,omitempty"`
}

// PendingSig is one third-party certification awaiting owner confirmation.
type PendingSig struct {
	User      Signer `json:"user"`
	Signature []byte `json:"signature"`
}

// PendingSignatures is a batch of third-party certifications that arrived on
// an upload but have not yet been confirmed by the key's owner.
type PendingSignatures struct {
	Nonce string       `json:"nonce"`
	Sigs  []PendingSig `json:"sigs"`
}

// Key is one persisted Key Record, keyed by primary-key Fingerprint.
type Key struct {
	// ID is the storage-assigned document identifier, stripped by Get.
	ID string `json:"_id,omitempty"`

	KeyID       string `json:"keyId"`
	Fingerprint string `json:"fingerprint"`

	UserIDs []UserID `json:"userIds"`

	Created  time.Time `json:"created"`
	Uploaded time.Time `json:"uploaded"`

	Algorithm string `json:"algorithm"`
	KeySize   int    `json:"keySize"`

	// PublicKeyArmored contains only verified user IDs. Nil while no user
	// ID has been verified yet.
	PublicKeyArmored string `json:"publicKeyArmored,omitempty"`

	PendingSignatures *PendingSignatures `json:"pendingSignatures,omitempty"`
}

// HasVerifiedUserID reports whether any user ID on the key is verified.
func (k *Key) HasVerifiedUserID() bool {
	for i := range k.UserIDs {
		if k.UserIDs[i].Verified {
			return true
		}
	}
	return false
}

// VerifiedEmails returns the lowercased emails of every verified user ID.
func (k *Key) VerifiedEmails() []string {
	var out []string
	for i := range k.UserIDs {
		if k.UserIDs[i].Verified {
			out = append(out, k.UserIDs[i].Email)
		}
	}
	return out
}

// FindByNonce returns the index of the user ID carrying the given nonce, or
// -1 if none matches. An empty nonce never matches.
func (k *Key) FindByNonce(nonce string) int {
	if nonce == "" {
		return -1
	}
	for i := range k.UserIDs {
		if k.UserIDs[i].Nonce == nonce {
			return i
		}
	}
	return -1
}

// Strip removes internal-only fields before the record is returned to a
// caller of Get (spec section 4.10): the document id, per-uid nonces and
// shadow armor, and the pending-signatures nonce.
func (k *Key) Strip() *Key {
	clone := *k
	clone.ID = ""
	clone.UserIDs = make([]UserID, len(k.UserIDs))
	for i, u := range k.UserIDs {
		u.Nonce = ""
		u.PublicKeyArmored = ""
		clone.UserIDs[i] = u
	}
	if k.PendingSignatures != nil {
		stripped := *k.PendingSignatures
		stripped.Nonce = ""
		clone.PendingSignatures = &stripped
	}
	return &clone
}

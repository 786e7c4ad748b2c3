package openpgp

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"time"

	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/armor"
	"golang.org/x/crypto/openpgp/packet"

	"keydirectory/internal/model"
)

// verifyPrimary checks that the primary key carries at least one identity
// whose self-signature verifies cryptographically. verifyAt is not
// consulted: key and signature expiry play no part in this check.
// Individual identities may still be classified revoked/expired/invalid
// afterwards; this only guards against a key with no valid binding at all.
func verifyPrimary(e *openpgp.Entity, verifyAt time.Time) error {
	for _, ident := range e.Identities {
		if ident.SelfSignature == nil || ident.UserId == nil {
			continue
		}
		if err := e.PrimaryKey.VerifyUserIdSignature(ident.UserId.Id, e.PrimaryKey, ident.SelfSignature); err == nil {
			return nil
		}
	}
	return errNoValidIdentity
}

var errNoValidIdentity = modelError("no identity with a verifiable self-signature")

func fingerprintHex(e *openpgp.Entity) string {
	return hex.EncodeToString(e.PrimaryKey.Fingerprint[:])
}

// issuerFingerprintHex prefers the v5-style issuer-fingerprint subpacket; a
// v4 signature only ever carries the 8-byte issuer key id, reported as its
// own 16-character hex string rather than padded out to fingerprint length.
// Callers distinguish the two by the resulting string's length.
func issuerFingerprintHex(sig *packet.Signature) string {
	if len(sig.IssuerFingerprint) > 0 {
		return hex.EncodeToString(sig.IssuerFingerprint)
	}
	if sig.IssuerKeyId != nil {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], *sig.IssuerKeyId)
		return hex.EncodeToString(buf[:])
	}
	return ""
}

func subkeyFingerprint(sk openpgp.Subkey) string {
	if sk.PublicKey == nil {
		return ""
	}
	return hex.EncodeToString(sk.PublicKey.Fingerprint[:])
}

func identEmail(ident *openpgp.Identity) string {
	if ident == nil || ident.UserId == nil {
		return ""
	}
	return ident.UserId.Email
}

func algorithmName(algo packet.PublicKeyAlgorithm) string {
	switch algo {
	case packet.PubKeyAlgoRSA, packet.PubKeyAlgoRSASignOnly, packet.PubKeyAlgoRSAEncryptOnly:
		return "RSA"
	case packet.PubKeyAlgoDSA:
		return "DSA"
	case packet.PubKeyAlgoElGamal:
		return "ElGamal"
	case packet.PubKeyAlgoECDSA:
		return "ECDSA"
	case packet.PubKeyAlgoEdDSA:
		return "EdDSA"
	default:
		return "unknown"
	}
}

// shallowCloneEntity copies the parts of an Entity FilterByUserIds,
// FilterBySignatures, UpdateKey, AddSignature and RemoveUserId mutate,
// without disturbing the cached original (readSingleEntity may hand out the
// same *Entity more than once within a request).
func shallowCloneEntity(e *openpgp.Entity) *openpgp.Entity {
	clone := &openpgp.Entity{
		PrimaryKey:    e.PrimaryKey,
		PrivateKey:    e.PrivateKey,
		Identities:    make(map[string]*openpgp.Identity, len(e.Identities)),
		Revocations:   e.Revocations,
		Subkeys:       append([]openpgp.Subkey{}, e.Subkeys...),
		SelfSignature: e.SelfSignature,
	}
	return clone
}

func serializeEntity(e *openpgp.Entity) (string, error) {
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		return "", err
	}
	if err := e.Serialize(w); err != nil {
		w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func serializeSignature(sig *packet.Signature) ([]byte, error) {
	var buf bytes.Buffer
	if err := sig.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func parseSignaturePacket(raw []byte) (*packet.Signature, error) {
	pkt, err := packet.Read(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	sig, ok := pkt.(*packet.Signature)
	if !ok {
		return nil, errNotASignature
	}
	return sig, nil
}

var errNotASignature = modelError("packet is not a signature")

type modelError string

func (m modelError) Error() string { return string(m) }

// thirdPartyCerts returns the certifications over ident that were not made
// by the key itself: everything in Signatures that is not the self
// signature, was not issued by the key's own primary key, and has not
// expired.
func thirdPartyCerts(e *openpgp.Entity, ident *openpgp.Identity) []*packet.Signature {
	if ident == nil {
		return nil
	}
	var out []*packet.Signature
	for _, sig := range ident.Signatures {
		if ident.SelfSignature != nil && sig == ident.SelfSignature {
			continue
		}
		if sig.IssuerKeyId != nil && e.PrimaryKey != nil && *sig.IssuerKeyId == e.PrimaryKey.KeyId {
			continue // another self-signature (e.g. a re-issued binding)
		}
		if isExpiredSig(sig) {
			continue
		}
		out = append(out, sig)
	}
	return out
}

func isExpiredSig(sig *packet.Signature) bool {
	if sig.SigLifetimeSecs == nil {
		return false
	}
	expiry := sig.CreationTime.Add(secondsToDuration(*sig.SigLifetimeSecs))
	return nowFunc().After(expiry)
}

// keepSignatures returns ident's signatures minus those present in drop,
// compared by pointer identity (they originate from the same parsed
// Identity.Signatures slice).
func keepSignatures(all []*packet.Signature, drop []*packet.Signature) []*packet.Signature {
	dropSet := make(map[*packet.Signature]bool, len(drop))
	for _, s := range drop {
		dropSet[s] = true
	}
	var out []*packet.Signature
	for _, s := range all {
		if !dropSet[s] {
			out = append(out, s)
		}
	}
	return out
}

// identityStatus classifies a user ID the way spec section 4.1 requires:
// revoked if any revocation is present, invalid if the self-signature does
// not verify, expired if the self-signature's key-expiration has passed as
// of verifyAt, valid otherwise.
func identityStatus(e *openpgp.Entity, ident *openpgp.Identity, verifyAt time.Time) model.UserIDStatus {
	if len(ident.Revocations) > 0 {
		return model.StatusRevoked
	}
	if ident.SelfSignature == nil {
		return model.StatusInvalid
	}
	if err := e.PrimaryKey.VerifyUserIdSignature(ident.UserId.Id, e.PrimaryKey, ident.SelfSignature); err != nil {
		return model.StatusInvalid
	}
	if ident.SelfSignature.KeyLifetimeSecs != nil {
		expiry := e.PrimaryKey.CreationTime.Add(secondsToDuration(*ident.SelfSignature.KeyLifetimeSecs))
		if verifyAt.After(expiry) {
			return model.StatusExpired
		}
	}
	return model.StatusValid
}

func secondsToDuration(secs uint32) time.Duration {
	return time.Duration(secs) * time.Second
}

// nowFunc is overridable by tests that need to pin "now" for signature
// expiry checks.
var nowFunc = time.Now

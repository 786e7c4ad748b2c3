// Package openpgp is the PGP Adapter (spec section 4.1): it wraps
// golang.org/x/crypto/openpgp (replaced, per the teacher's own go.mod, by
// github.com/ProtonMail/crypto) to parse armored blocks, extract user IDs
// and self-signatures, filter by user ID, diff third-party certifications,
// and merge key updates.
package openpgp

import (
	"bytes"
	"io"
	"strings"
	"time"

	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/armor"
	"golang.org/x/crypto/openpgp/packet"

	"keydirectory/internal/apperr"
	"keydirectory/internal/model"
	"keydirectory/internal/validate"
)

// ParsedKey is the KeyRecord skeleton ParseKey produces: enough of a Key
// Record to let the directory decide what to do with it, plus the
// organisation-domain flag restrictUserOrigin needs.
type ParsedKey struct {
	KeyID              string
	Fingerprint        string
	Created            time.Time
	Algorithm          string
	KeySize            int
	UserIDs            []model.UserID
	HasOrganisationUID bool
}

// Adapter is the PGP Adapter. It is safe for concurrent use.
type Adapter struct {
	domain *validate.DomainPolicy
	cache  *entityCache
}

// New builds an Adapter. domain may be nil if restrictUserOrigin is
// disabled.
func New(domain *validate.DomainPolicy) *Adapter {
	return &Adapter{domain: domain, cache: newEntityCache(256)}
}

// TrimArmor extracts the single BEGIN/END PGP PUBLIC KEY BLOCK segment from
// text, rejecting anything else (spec section 4.1).
func (a *Adapter) TrimArmor(text string) (string, error) {
	block, err := armor.Decode(strings.NewReader(text))
	if err != nil {
		return "", apperr.New(apperr.MalformedKey, "no armored block found")
	}
	if block.Type != openpgp.PublicKeyType {
		return "", apperr.New(apperr.MalformedKey, "armored block is not a public key")
	}
	body, err := io.ReadAll(block.Body)
	if err != nil {
		return "", apperr.Wrap(apperr.InternalParseError, err, "reading armored body")
	}
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		return "", apperr.Wrap(apperr.InternalParseError, err, "re-encoding armor")
	}
	if _, err := w.Write(body); err != nil {
		return "", apperr.Wrap(apperr.InternalParseError, err, "re-encoding armor")
	}
	if err := w.Close(); err != nil {
		return "", apperr.Wrap(apperr.InternalParseError, err, "re-encoding armor")
	}
	return buf.String(), nil
}

// readSingleEntity parses exactly one primary public key from armored text,
// rejecting multi-key bundles. Results are cached by the armored text's
// digest so a single put/verify call that parses the same block more than
// once (filter, then diff, then merge) only pays the parse cost once.
func (a *Adapter) readSingleEntity(armored string) (*openpgp.Entity, error) {
	if e, ok := a.cache.get(armored); ok {
		return e, nil
	}
	if strings.Count(armored, "-----BEGIN PGP ") > 1 {
		return nil, apperr.New(apperr.MalformedKey, "expected exactly one armored block")
	}
	entities, err := openpgp.ReadArmoredKeyRing(strings.NewReader(armored))
	if err != nil {
		return nil, apperr.New(apperr.MalformedKey, "cannot parse armored key: %v", err)
	}
	if len(entities) != 1 {
		return nil, apperr.New(apperr.MalformedKey, "expected exactly one primary key, found %d", len(entities))
	}
	entity := entities[0]
	if entity.PrimaryKey == nil {
		return nil, apperr.New(apperr.MalformedKey, "missing primary key")
	}
	fp := fingerprintHex(entity)
	if !validate.IsFingerprint(fp) {
		return nil, apperr.New(apperr.MalformedKey, "not a v4 key: fingerprint %q", fp)
	}
	now := time.Now()
	verifyAt := now
	if entity.PrimaryKey.CreationTime.After(verifyAt) {
		verifyAt = entity.PrimaryKey.CreationTime
	}
	if err := verifyPrimary(entity, verifyAt); err != nil {
		return nil, apperr.New(apperr.MalformedKey, "primary key verification failed: %v", err)
	}
	a.cache.put(armored, entity)
	return entity, nil
}

// ParseKey implements spec section 4.1 ParseKey.
func (a *Adapter) ParseKey(armored string) (*ParsedKey, error) {
	entity, err := a.readSingleEntity(armored)
	if err != nil {
		return nil, err
	}

	pk := &ParsedKey{
		Fingerprint: fingerprintHex(entity),
		Created:     entity.PrimaryKey.CreationTime,
		Algorithm:   algorithmName(entity.PrimaryKey.PubKeyAlgo),
	}
	pk.KeyID = validate.KeyIDFromFingerprint(pk.Fingerprint)
	if bl, err := entity.PrimaryKey.BitLength(); err == nil {
		pk.KeySize = int(bl)
	}

	now := time.Now()
	verifyAt := now
	if entity.PrimaryKey.CreationTime.After(verifyAt) {
		verifyAt = entity.PrimaryKey.CreationTime
	}

	for _, ident := range entity.Identities {
		if ident.UserId == nil {
			continue // malformed user id string: dropped silently
		}
		email := validate.NormalizeEmail(ident.UserId.Email)
		if email == "" {
			continue // malformed user id string: dropped silently
		}
		uid := model.UserID{
			Name:   ident.UserId.Id,
			Email:  email,
			Status: identityStatus(entity, ident, verifyAt),
		}
		pk.UserIDs = append(pk.UserIDs, uid)
		if a.domain.Matches(email) {
			pk.HasOrganisationUID = true
		}
	}
	return pk, nil
}

// FilterByUserIds retains only user IDs whose normalized email is in emails
// (spec section 4.1). User-attribute packets are retained untouched.
func (a *Adapter) FilterByUserIds(emails []string, armored string) (string, error) {
	entity, err := a.readSingleEntity(armored)
	if err != nil {
		return "", err
	}
	wanted := make(map[string]bool, len(emails))
	for _, e := range emails {
		wanted[validate.NormalizeEmail(e)] = true
	}
	clone := shallowCloneEntity(entity)
	for name, ident := range entity.Identities {
		if !wanted[validate.NormalizeEmail(identEmail(ident))] {
			continue
		}
		clone.Identities[name] = ident
	}
	return serializeEntity(clone)
}

// FilterBySignatures implements spec section 4.1 FilterBySignatures: third
// party certifications present in src but absent from cmp are stripped out
// of src and returned as newSigs. The two digests are reconciled with a
// conflux.ZSet rather than a hand-rolled byte-slice diff; see sigset.go.
func (a *Adapter) FilterBySignatures(srcArmored, cmpArmored string) (string, []model.PendingSig, error) {
	src, err := a.readSingleEntity(srcArmored)
	if err != nil {
		return srcArmored, nil, err
	}
	if cmpArmored == "" {
		return srcArmored, nil, nil
	}
	cmp, err := a.readSingleEntity(cmpArmored)
	if err != nil {
		return srcArmored, nil, nil
	}
	if fingerprintHex(src) != fingerprintHex(cmp) {
		return srcArmored, nil, nil
	}

	clone := shallowCloneEntity(src)
	var newSigs []model.PendingSig

	for name, ident := range src.Identities {
		cmpIdent := cmp.Identities[name]
		srcCerts := thirdPartyCerts(src, ident)
		cmpCerts := thirdPartyCerts(cmp, cmpIdent)
		diff := diffSignatures(srcCerts, cmpCerts)
		if len(diff) == 0 {
			clone.Identities[name] = ident
			continue
		}
		kept := keepSignatures(ident.Signatures, diff)
		newIdent := *ident
		newIdent.Signatures = kept
		clone.Identities[name] = &newIdent
		for _, sig := range diff {
			raw, err := serializeSignature(sig)
			if err != nil {
				return srcArmored, nil, apperr.Wrap(apperr.InternalParseError, err, "serializing certification")
			}
			newSigs = append(newSigs, model.PendingSig{
				User:      model.Signer{UserID: ident.UserId.Id},
				Signature: raw,
			})
		}
	}
	out, err := serializeEntity(clone)
	if err != nil {
		return srcArmored, nil, err
	}
	return out, newSigs, nil
}

// UpdateKey merges dstArmored into srcArmored (spec section 4.1): identities
// present only in dst are added whole, with every signature they carry, and
// subkeys present only in dst are appended. An identity already in src is
// kept exactly as src has it, so a newer self-signature for it in dst is not
// taken over. Third-party certifications on an added identity are not
// filtered out here.
func (a *Adapter) UpdateKey(srcArmored, dstArmored string) (string, error) {
	if srcArmored == "" {
		return dstArmored, nil
	}
	if dstArmored == "" {
		return srcArmored, nil
	}
	src, err := a.readSingleEntity(srcArmored)
	if err != nil {
		return "", err
	}
	dst, err := a.readSingleEntity(dstArmored)
	if err != nil {
		return "", err
	}
	if fingerprintHex(src) != fingerprintHex(dst) {
		return "", apperr.New(apperr.MalformedKey, "cannot merge keys with different fingerprints")
	}

	clone := shallowCloneEntity(src)
	for name, ident := range dst.Identities {
		if _, ok := clone.Identities[name]; !ok {
			clone.Identities[name] = ident
		}
	}
	existingSubkeys := make(map[string]bool, len(src.Subkeys))
	for _, sk := range src.Subkeys {
		existingSubkeys[subkeyFingerprint(sk)] = true
	}
	clone.Subkeys = append([]openpgp.Subkey{}, src.Subkeys...)
	for _, sk := range dst.Subkeys {
		if !existingSubkeys[subkeyFingerprint(sk)] {
			clone.Subkeys = append(clone.Subkeys, sk)
		}
	}
	return serializeEntity(clone)
}

// GetPrimaryUser returns the most significant user ID (spec section 4.1).
func (a *Adapter) GetPrimaryUser(armored string) (model.Signer, error) {
	entity, err := a.readSingleEntity(armored)
	if err != nil {
		return model.Signer{}, err
	}
	ident := entity.PrimaryIdentity()
	if ident == nil || ident.UserId == nil {
		return model.Signer{}, apperr.New(apperr.MalformedKey, "key has no usable identity")
	}
	return model.Signer{UserID: ident.UserId.Id}, nil
}

// AddSignature re-attaches a previously stripped third-party certification
// to the matching user (spec section 4.1).
func (a *Adapter) AddSignature(armored string, sig model.PendingSig) (string, error) {
	entity, err := a.readSingleEntity(armored)
	if err != nil {
		return "", err
	}
	parsed, err := parseSignaturePacket(sig.Signature)
	if err != nil {
		return "", apperr.Wrap(apperr.InternalParseError, err, "parsing certification packet")
	}
	clone := shallowCloneEntity(entity)
	matched := false
	for name, ident := range entity.Identities {
		if ident.UserId == nil || ident.UserId.Id != sig.User.UserID {
			continue
		}
		newIdent := *ident
		newIdent.Signatures = append(append([]*packet.Signature{}, ident.Signatures...), parsed)
		clone.Identities[name] = &newIdent
		matched = true
	}
	if !matched {
		return "", apperr.New(apperr.UserIdNotFound, "no matching user id %q", sig.User.UserID)
	}
	return serializeEntity(clone)
}

// SignatureMeta is the subset of a third-party certification's packet
// fields spec section 4.8 needs to resolve and display it: who issued it
// and when.
type SignatureMeta struct {
	IssuerFingerprint string
	Created           time.Time
}

// DecodeSignature extracts the issuer fingerprint and creation time of a
// previously serialized third-party certification packet (spec section
// 4.8).
func (a *Adapter) DecodeSignature(sig []byte) (SignatureMeta, error) {
	parsed, err := parseSignaturePacket(sig)
	if err != nil {
		return SignatureMeta{}, apperr.Wrap(apperr.InternalParseError, err, "parsing certification packet")
	}
	return SignatureMeta{
		IssuerFingerprint: issuerFingerprintHex(parsed),
		Created:           parsed.CreationTime,
	}, nil
}

// RemoveUserId drops a user ID by normalized email (spec section 4.1).
func (a *Adapter) RemoveUserId(email, armored string) (string, error) {
	entity, err := a.readSingleEntity(armored)
	if err != nil {
		return "", err
	}
	email = validate.NormalizeEmail(email)
	clone := shallowCloneEntity(entity)
	for name, ident := range entity.Identities {
		if validate.NormalizeEmail(identEmail(ident)) == email {
			continue
		}
		clone.Identities[name] = ident
	}
	return serializeEntity(clone)
}

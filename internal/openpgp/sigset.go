package openpgp

import (
	"crypto/sha256"

	"golang.org/x/crypto/openpgp/packet"

	"keydirectory/internal/conflux"
)

// diffSignatures returns the signatures in src that are not byte-equal to
// any signature in cmp, using a conflux.ZSet over sha256 digests of each
// serialized signature packet rather than an O(n*m) byte-slice comparison.
func diffSignatures(src, cmp []*packet.Signature) []*packet.Signature {
	if len(src) == 0 {
		return nil
	}
	cmpSet := conflux.NewZSet()
	cmpDigests := make(map[string]*packet.Signature, len(cmp))
	for _, sig := range cmp {
		digest, err := digestSignature(sig)
		if err != nil {
			continue
		}
		cmpSet.Add(conflux.Zb(conflux.P_256, digest))
		cmpDigests[string(digest)] = sig
	}

	var out []*packet.Signature
	for _, sig := range src {
		digest, err := digestSignature(sig)
		if err != nil {
			continue
		}
		if !cmpSet.Contains(conflux.Zb(conflux.P_256, digest)) {
			out = append(out, sig)
		}
	}
	return out
}

func digestSignature(sig *packet.Signature) ([]byte, error) {
	raw, err := serializeSignature(sig)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(raw)
	return sum[:], nil
}

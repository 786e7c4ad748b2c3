package directory

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// sigHash computes the md5(base64(signature)) hex digest spec sections 4.7
// and 4.8 use so an owner can pick a pending certification out of a
// confirmation UI by hash rather than by its raw bytes.
func sigHash(sig []byte) string {
	b64 := base64.StdEncoding.EncodeToString(sig)
	sum := md5.Sum([]byte(b64))
	return hex.EncodeToString(sum[:])
}

func sigHashSet(hashes []string) map[string]bool {
	out := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		out[strings.ToLower(h)] = true
	}
	return out
}

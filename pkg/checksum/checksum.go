// Package checksum provides the hash chaining used by the audit trail: each
// entry commits to its predecessor's hash, so rewriting history breaks every
// later link.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// ChainSHA256 links a payload to its predecessor's hash: it returns
// hex(sha256(prevHash || payload)). An empty prevHash anchors the chain.
func ChainSHA256(prevHash string, payload []byte) string {
	hasher := sha256.New()
	hasher.Write([]byte(prevHash))
	hasher.Write(payload)
	return hex.EncodeToString(hasher.Sum(nil))
}

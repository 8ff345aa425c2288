// Package util holds small key helpers shared by the tier wrappers.
package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// Prefix under which every tiercache record lives in a backing store.
const Prefix = "tc:"

// maxRawKey bounds the user-key portion of a storage key. Longer keys are
// fingerprinted so backing stores never see unbounded key lengths.
const maxRawKey = 256

// StorageKey returns the namespaced storage key for a user key:
// "tc:<ns>:<key>", with overlong keys replaced by a sha256 short hash.
func StorageKey(ns, key string) string {
	if len(key) > maxRawKey {
		sum := sha256.Sum256([]byte(key))
		key = hex.EncodeToString(sum[:16])
	}
	return Prefix + ns + ":" + key
}

// NamespacePrefix returns the storage-key prefix owned by a namespace,
// suitable for prefix clears.
func NamespacePrefix(ns string) string {
	return Prefix + ns + ":"
}

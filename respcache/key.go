/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package respcache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
)

// keyHashLen is the number of hex characters of the SHA-256 digest kept in the key.
const keyHashLen = 32

// Key builds a deterministic cache key for the result of the operation call
// with the passed arguments. Arguments are hashed in the sorted order of their
// names, so all orderings of the same argument set produce an identical key.
// The returned key has the form "<namespace>:<operation>:<hash>", which allows
// invalidating a whole namespace or a single operation by the key prefix
// (see Cache.InvalidateAll and KeyPrefix).
func Key(namespace, operation string, args map[string]string) string {
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)

	h := sha256.New()
	// Length-prefix each part to avoid collisions between concatenations.
	writePart := func(s string) {
		h.Write([]byte(strconv.Itoa(len(s))))
		h.Write([]byte{':'})
		h.Write([]byte(s))
	}
	writePart(namespace)
	writePart(operation)
	for _, name := range names {
		writePart(name)
		writePart(args[name])
	}

	digest := hex.EncodeToString(h.Sum(nil))
	return namespace + ":" + operation + ":" + digest[:keyHashLen]
}

// KeyPrefix returns the prefix shared by all keys built by Key for the given
// namespace and operation. If operation is empty, the returned prefix covers
// all operations of the namespace.
func KeyPrefix(namespace, operation string) string {
	if operation == "" {
		return namespace + ":"
	}
	return namespace + ":" + operation + ":"
}

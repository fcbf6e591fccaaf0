package database

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
)

// userLockKey calculates the advisory lock key for a user within a namespace.
// Every process derives the same key, so writers on the same user serialise across nodes.
func userLockKey(namespace, userID string) int64 {
	var hash = md5.Sum([]byte(fmt.Sprintf("%s:%s", namespace, userID)))
	return int64(binary.BigEndian.Uint64(hash[:8]))
}

package jobmanager

import (
	"crypto/rand"
	"encoding/hex"
)

// newJobID returns a random 12-hex-character job id.
func newJobID() string {
	var buf [6]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand.Read on a supported platform does not fail; if it
		// somehow does, the all-zero id is returned, and every job that
		// hits this path shares that same id in the registry.
		return "000000000000"
	}
	return hex.EncodeToString(buf[:])
}

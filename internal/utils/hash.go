package utils

import (
	"crypto/md5"
	"encoding/hex"
)

// MD5Hash returns the hex MD5 digest of text. Schema mappings use it as a
// fingerprint so a changed collection layout shows up in logs and responses.
func MD5Hash(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

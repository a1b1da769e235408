package internal

import (
	"crypto/md5"
	"encoding/hex"
)

// HashURL returns a stable hex key for a url. Used as the primary key in the
// database and as part of the s3 object key.
func HashURL(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

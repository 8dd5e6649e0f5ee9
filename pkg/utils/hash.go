package utils

import (
	"crypto/md5"
	"fmt"
)

// HashString returns the hex md5 of input. It is used for stable ids, not
// for anything security related.
func HashString(input string) string {
	hash := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", hash)
}

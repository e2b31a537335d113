package checksum

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Sum returns the hex-encoded xxhash64 digest of data.
func Sum(data []byte) string {
	return strconv.FormatUint(xxhash.Sum64(data), 16)
}

// SumString is Sum for strings without the byte-slice copy.
func SumString(s string) string {
	return strconv.FormatUint(xxhash.Sum64String(s), 16)
}

package hashing

import (
	"crypto/md5"
	"fmt"
	"strings"
	"unicode"
)

// Simhash fingerprints a text as 16 lowercase hex characters. The input is
// lowercased, all Unicode whitespace is removed, and each distinct codepoint
// becomes one token. Token weights come from the first 8 bytes of the
// token's MD5 digest read in little-endian bit order; positive accumulator
// entries set their bit. An input that is empty after cleaning yields "".
func Simhash(text string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, strings.ToLower(text))
	if cleaned == "" {
		return ""
	}

	seen := make(map[rune]struct{})
	var acc [64]int
	for _, r := range cleaned {
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}

		digest := md5.Sum([]byte(string(r)))
		for i := 0; i < 64; i++ {
			if (digest[i/8]>>(i%8))&1 == 1 {
				acc[i]++
			} else {
				acc[i]--
			}
		}
	}

	var bits uint64
	for i := 0; i < 64; i++ {
		if acc[i] > 0 {
			bits |= 1 << (63 - i)
		}
	}
	return fmt.Sprintf("%016x", bits)
}

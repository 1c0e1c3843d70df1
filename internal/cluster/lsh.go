package cluster

import (
	"fmt"
	"sort"
)

// Pair is an unordered candidate pair with Lo < Hi.
type Pair struct {
	Lo int64
	Hi int64
}

func (p Pair) Key() string { return fmt.Sprintf("%d-%d", p.Lo, p.Hi) }

// Keyed couples an item ID with the bucket keys it lands in.
type Keyed struct {
	ID   int64
	Keys []string
}

// CandidatePairs buckets items by key and emits every unordered pair of
// distinct IDs that co-occurs in at least one bucket. Duplicate IDs inside a
// bucket collapse; a bucket of size one emits nothing.
func CandidatePairs(items []Keyed) map[Pair]struct{} {
	buckets := make(map[string]map[int64]struct{})
	for _, item := range items {
		for _, key := range item.Keys {
			ids, ok := buckets[key]
			if !ok {
				ids = make(map[int64]struct{})
				buckets[key] = ids
			}
			ids[item.ID] = struct{}{}
		}
	}

	pairs := make(map[Pair]struct{})
	for _, ids := range buckets {
		if len(ids) < 2 {
			continue
		}
		members := make([]int64, 0, len(ids))
		for id := range ids {
			members = append(members, id)
		}
		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				pairs[Pair{Lo: members[i], Hi: members[j]}] = struct{}{}
			}
		}
	}
	return pairs
}

// SortedPairs flattens a pair set into a deterministic order.
func SortedPairs(pairs map[Pair]struct{}) []Pair {
	out := make([]Pair, 0, len(pairs))
	for p := range pairs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Lo != out[j].Lo {
			return out[i].Lo < out[j].Lo
		}
		return out[i].Hi < out[j].Hi
	})
	return out
}

// hashBands is the band count for 64-bit hashes: 4 bands of 16 bits, so two
// hashes within a small Hamming distance land in a shared bucket while the
// candidate search stays sub-quadratic.
const (
	hashBands    = 4
	bandHexChars = 4
)

// HashBandKeys expands a hex-encoded hash into its LSH bucket keys, one per
// contiguous 16-bit band: "{kind}:{band}:{bits}". Incomplete trailing bands
// of a short hash are skipped.
func HashBandKeys(kind string, hash string) []string {
	keys := make([]string, 0, hashBands)
	for band := 0; band < hashBands; band++ {
		start := band * bandHexChars
		end := start + bandHexChars
		if end > len(hash) {
			break
		}
		keys = append(keys, fmt.Sprintf("%s:%d:%s", kind, band, hash[start:end]))
	}
	return keys
}

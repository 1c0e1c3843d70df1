package review

import (
	"fmt"
	"sort"
	"strings"

	"horse.fit/echocave/internal/cluster"
	"horse.fit/echocave/internal/db"
	"horse.fit/echocave/internal/hashing"
	"horse.fit/echocave/internal/moderation"
)

// confirmedPair is a candidate pair whose best similarity met the threshold.
type confirmedPair struct {
	pair       cluster.Pair
	similarity float64
}

// GenerateReport clusters the persisted hash records and renders the
// operator report: candidate pairs from LSH bands, per-pair similarity
// confirmation against the per-kind threshold, union-find clustering, and a
// deterministic listing (text partition first, clusters ordered by smallest
// member, pair similarities descending).
func GenerateReport(records []db.CaveHash, textThreshold, imageThreshold float64) string {
	var b strings.Builder
	total := 0

	for _, kind := range []db.HashKind{db.HashText, db.HashImage} {
		threshold := textThreshold
		if kind == db.HashImage {
			threshold = imageThreshold
		}
		clusters, pairs := clusterKind(records, kind, threshold)
		total += len(clusters)
		for _, members := range clusters {
			b.WriteString(renderCluster(kind, members, pairs))
			b.WriteString("\n")
		}
	}

	if total == 0 {
		return "未发现相似回声"
	}
	fmt.Fprintf(&b, "共 %d 组相似回声", total)
	return b.String()
}

func clusterKind(records []db.CaveHash, kind db.HashKind, threshold float64) ([][]int64, []confirmedPair) {
	hashesByID := make(map[int64][]string)
	for _, record := range records {
		if record.Kind != kind {
			continue
		}
		hashesByID[record.CaveID] = append(hashesByID[record.CaveID], record.Hash)
	}

	items := make([]cluster.Keyed, 0, len(hashesByID))
	for id, hashes := range hashesByID {
		var keys []string
		for _, h := range hashes {
			keys = append(keys, cluster.HashBandKeys(string(kind), h)...)
		}
		items = append(items, cluster.Keyed{ID: id, Keys: keys})
	}

	var confirmed []confirmedPair
	uf := cluster.NewUnionFind()
	var clusteredIDs []int64
	for _, pair := range cluster.SortedPairs(cluster.CandidatePairs(items)) {
		best := bestSimilarity(hashesByID[pair.Lo], hashesByID[pair.Hi])
		if best < threshold {
			continue
		}
		confirmed = append(confirmed, confirmedPair{pair: pair, similarity: best})
		uf.Union(pair.Lo, pair.Hi)
		clusteredIDs = append(clusteredIDs, pair.Lo, pair.Hi)
	}

	return uf.Clusters(clusteredIDs), confirmed
}

// bestSimilarity scores a candidate pair as the best match across the two
// entries' hash sets (an entry may own several image hashes).
func bestSimilarity(a, b []string) float64 {
	best := 0.0
	for _, ha := range a {
		for _, hb := range b {
			if sim := hashing.Similarity(ha, hb); sim > best {
				best = sim
			}
		}
	}
	return best
}

func renderCluster(kind db.HashKind, members []int64, pairs []confirmedPair) string {
	inCluster := make(map[int64]struct{}, len(members))
	for _, id := range members {
		inCluster[id] = struct{}{}
	}

	var sims []float64
	for _, cp := range pairs {
		if _, lo := inCluster[cp.pair.Lo]; !lo {
			continue
		}
		if _, hi := inCluster[cp.pair.Hi]; !hi {
			continue
		}
		sims = append(sims, cp.similarity)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(sims)))

	ids := make([]string, len(members))
	for i, id := range members {
		ids[i] = fmt.Sprintf("%d", id)
	}
	rendered := make([]string, len(sims))
	for i, sim := range sims {
		rendered[i] = fmt.Sprintf("%.2f%%", sim)
	}
	return fmt.Sprintf("【%s】%s (%s)", kind, strings.Join(ids, ", "), strings.Join(rendered, "/"))
}

// GenerateKeywordReport clusters persisted AI metadata by shared keyword
// tokens and confirms pairs by Jaccard similarity over {type} ∪ keywords.
// This is the offline counterpart of the AI moderator's prefilter.
func GenerateKeywordReport(metas []db.CaveMeta, threshold float64) string {
	byID := make(map[int64]map[string]struct{}, len(metas))
	items := make([]cluster.Keyed, 0, len(metas))
	for _, meta := range metas {
		tokens := make(map[string]struct{}, len(meta.Keywords)+1)
		if kind := strings.TrimSpace(meta.Kind); kind != "" {
			tokens[kind] = struct{}{}
		}
		for _, kw := range meta.Keywords {
			if trimmed := strings.TrimSpace(kw); trimmed != "" {
				tokens[trimmed] = struct{}{}
			}
		}
		byID[meta.CaveID] = tokens
		keys := make([]string, 0, len(tokens))
		for tok := range tokens {
			keys = append(keys, tok)
		}
		items = append(items, cluster.Keyed{ID: meta.CaveID, Keys: keys})
	}

	var confirmed []confirmedPair
	uf := cluster.NewUnionFind()
	var clusteredIDs []int64
	for _, pair := range cluster.SortedPairs(cluster.CandidatePairs(items)) {
		score := moderation.Jaccard(byID[pair.Lo], byID[pair.Hi])
		if score < threshold {
			continue
		}
		confirmed = append(confirmed, confirmedPair{pair: pair, similarity: score})
		uf.Union(pair.Lo, pair.Hi)
		clusteredIDs = append(clusteredIDs, pair.Lo, pair.Hi)
	}

	clusters := uf.Clusters(clusteredIDs)
	if len(clusters) == 0 {
		return "未发现语义相近的回声"
	}

	var b strings.Builder
	for _, members := range clusters {
		b.WriteString(renderCluster("keyword", members, confirmed))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "共 %d 组语义相近的回声", len(clusters))
	return b.String()
}

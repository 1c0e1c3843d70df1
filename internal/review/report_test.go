package review

import (
	"strings"
	"testing"

	"horse.fit/echocave/internal/db"
)

func TestGenerateReportClustersByKind(t *testing.T) {
	t.Parallel()

	// Image partition: {1,2,3} pairwise within distance 2, {4,5} at
	// distance 4 concentrated in one band so the other bands still collide.
	records := []db.CaveHash{
		{CaveID: 1, Hash: "0000000000000000", Kind: db.HashImage},
		{CaveID: 2, Hash: "8000000000000000", Kind: db.HashImage},
		{CaveID: 3, Hash: "c000000000000000", Kind: db.HashImage},
		{CaveID: 4, Hash: "ffffffffffffffff", Kind: db.HashImage},
		{CaveID: 5, Hash: "0fffffffffffffff", Kind: db.HashImage},
		// Text partition: identical pair.
		{CaveID: 10, Hash: "deadbeefdeadbeef", Kind: db.HashText},
		{CaveID: 11, Hash: "deadbeefdeadbeef", Kind: db.HashText},
	}

	report := GenerateReport(records, 90, 90)
	lines := strings.Split(strings.TrimSpace(report), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 3 cluster lines + summary, got %q", report)
	}

	if lines[0] != "【text】10, 11 (100.00%)" {
		t.Fatalf("text partition must come first, got %q", lines[0])
	}
	if lines[1] != "【image】1, 2, 3 (98.44%/98.44%/96.88%)" {
		t.Fatalf("unexpected first image cluster: %q", lines[1])
	}
	if lines[2] != "【image】4, 5 (93.75%)" {
		t.Fatalf("unexpected second image cluster: %q", lines[2])
	}
	if lines[3] != "共 3 组相似回声" {
		t.Fatalf("unexpected summary: %q", lines[3])
	}
}

func TestGenerateReportThresholdFilters(t *testing.T) {
	t.Parallel()

	// Distance 4 (93.75%) collides in three bands but stays below a 95
	// threshold, so no cluster forms.
	records := []db.CaveHash{
		{CaveID: 1, Hash: "ffffffffffffffff", Kind: db.HashImage},
		{CaveID: 2, Hash: "0fffffffffffffff", Kind: db.HashImage},
	}
	if report := GenerateReport(records, 95, 95); report != "未发现相似回声" {
		t.Fatalf("expected empty report, got %q", report)
	}
}

func TestGenerateReportEmptyInput(t *testing.T) {
	t.Parallel()

	if report := GenerateReport(nil, 90, 90); report != "未发现相似回声" {
		t.Fatalf("expected empty report, got %q", report)
	}
}

func TestGenerateReportMultipleHashesPerEntry(t *testing.T) {
	t.Parallel()

	// Entry 2 owns two image hashes; only one matches entry 1. The pair is
	// still confirmed on the best cross match.
	records := []db.CaveHash{
		{CaveID: 1, Hash: "0000000000000000", Kind: db.HashImage},
		{CaveID: 2, Hash: "0000000000000000", Kind: db.HashImage},
		{CaveID: 2, Hash: "ffffffffffffffff", Kind: db.HashImage},
	}
	report := GenerateReport(records, 90, 90)
	if !strings.Contains(report, "【image】1, 2 (100.00%)") {
		t.Fatalf("expected best-match confirmation, got %q", report)
	}
}

func TestGenerateKeywordReport(t *testing.T) {
	t.Parallel()

	metas := []db.CaveMeta{
		{CaveID: 1, Kind: "ACG", Keywords: []string{"明日方舟", "夕"}},
		{CaveID: 2, Kind: "ACG", Keywords: []string{"明日方舟", "夕"}},
		{CaveID: 3, Kind: "meme", Keywords: []string{"cat"}},
	}
	report := GenerateKeywordReport(metas, 80)
	lines := strings.Split(strings.TrimSpace(report), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected one cluster line + summary, got %q", report)
	}
	if lines[0] != "【keyword】1, 2 (100.00%)" {
		t.Fatalf("unexpected cluster line: %q", lines[0])
	}
	if lines[1] != "共 1 组语义相近的回声" {
		t.Fatalf("unexpected summary: %q", lines[1])
	}
}

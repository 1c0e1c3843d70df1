package moderation

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"horse.fit/echocave/internal/db"
	"horse.fit/echocave/internal/llm"
)

type fakeChat struct {
	reply string
	err   error
	calls int
}

func (c *fakeChat) Chat(_ context.Context, _ string, _ []llm.Message) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

type fakeMetaStore struct {
	metas map[string][]db.CaveMeta
	caves map[int64]*db.Cave
}

func (s *fakeMetaStore) ListMetaByKind(_ context.Context, kind string) ([]db.CaveMeta, error) {
	return s.metas[kind], nil
}

func (s *fakeMetaStore) GetCave(_ context.Context, id int64) (*db.Cave, error) {
	if cave, ok := s.caves[id]; ok {
		return cave, nil
	}
	return nil, db.ErrNotFound
}

func set(items ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, it := range items {
		out[it] = struct{}{}
	}
	return out
}

func TestJaccard(t *testing.T) {
	t.Parallel()

	if got := Jaccard(set("a", "b"), set("a", "b")); got != 100 {
		t.Fatalf("identical sets must score 100, got %.2f", got)
	}
	if got := Jaccard(set("a"), set("b")); got != 0 {
		t.Fatalf("disjoint sets must score 0, got %.2f", got)
	}
	if got := Jaccard(set("a", "b", "c"), set("a", "b", "d")); got != 50 {
		t.Fatalf("expected 50 (2/4), got %.2f", got)
	}
	if got := Jaccard(nil, nil); got != 100 {
		t.Fatalf("two empty sets must score 100, got %.2f", got)
	}
}

func TestAnalyzeParsesFencedReply(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{reply: "分析结果：\n```json\n{\"rating\": 87.4, \"type\": \"ACG\", \"keywords\": [\"明日方舟\", \"夕\"]}\n```"}
	mod := NewAIModerator(chat, &fakeMetaStore{}, "", zerolog.Nop())

	sub := &db.Cave{ID: 21, Elements: db.Elements{{Type: db.ElementText, Text: "明日方舟的梗"}}}
	meta, err := mod.Analyze(context.Background(), sub, nil)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if meta == nil {
		t.Fatalf("expected metadata")
	}
	if meta.CaveID != 21 || meta.Rating != 87 || meta.Kind != "ACG" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
	if len(meta.Keywords) != 2 {
		t.Fatalf("unexpected keywords: %v", meta.Keywords)
	}
}

func TestAnalyzeSkipsEmptySubmission(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{reply: `{"rating": 1, "type": "x", "keywords": []}`}
	mod := NewAIModerator(chat, &fakeMetaStore{}, "", zerolog.Nop())

	sub := &db.Cave{ID: 22, Elements: db.Elements{{Type: db.ElementMedia, File: "voice.mp3"}}}
	meta, err := mod.Analyze(context.Background(), sub, map[string][]byte{"voice.mp3": {1}})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if meta != nil {
		t.Fatalf("contentless submission must yield nil metadata, got %+v", meta)
	}
	if chat.calls != 0 {
		t.Fatalf("contentless submission must not call the LLM")
	}
}

func TestAnalyzeDegradesOnUnparseableReply(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{reply: "抱歉，我只能用自然语言描述。"}
	mod := NewAIModerator(chat, &fakeMetaStore{}, "", zerolog.Nop())

	sub := &db.Cave{ID: 23, Elements: db.Elements{{Type: db.ElementText, Text: "some quote"}}}
	meta, err := mod.Analyze(context.Background(), sub, nil)
	if err != nil {
		t.Fatalf("unparseable reply must not be an error, got %v", err)
	}
	if meta != nil {
		t.Fatalf("unparseable reply must yield nil metadata, got %+v", meta)
	}
}

func TestCheckDuplicatesJaccardPrefilter(t *testing.T) {
	t.Parallel()

	store := &fakeMetaStore{
		metas: map[string][]db.CaveMeta{
			"ACG": {
				{CaveID: 1, Kind: "ACG", Keywords: []string{"明日方舟", "夕"}},
				{CaveID: 2, Kind: "ACG", Keywords: []string{"原神", "钟离"}},
			},
		},
		caves: map[int64]*db.Cave{
			1: {ID: 1, Elements: db.Elements{{Type: db.ElementText, Text: "夕的梗"}}},
			2: {ID: 2, Elements: db.Elements{{Type: db.ElementText, Text: "钟离的梗"}}},
		},
	}
	chat := &fakeChat{reply: "[1]"}
	mod := NewAIModerator(chat, store, "", zerolog.Nop())

	meta := &db.CaveMeta{CaveID: 9, Kind: "ACG", Keywords: []string{"明日方舟", "夕"}}
	sub := &db.Cave{ID: 9, Elements: db.Elements{{Type: db.ElementText, Text: "同一个夕的梗"}}}

	ids, err := mod.CheckDuplicates(context.Background(), meta, sub)
	if err != nil {
		t.Fatalf("check duplicates: %v", err)
	}
	if len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("expected confirmed duplicate [1], got %v", ids)
	}
	if chat.calls != 1 {
		t.Fatalf("expected a single confirmation call, got %d", chat.calls)
	}
}

func TestCheckDuplicatesNoCandidatesSkipsLLM(t *testing.T) {
	t.Parallel()

	store := &fakeMetaStore{
		metas: map[string][]db.CaveMeta{
			"ACG": {{CaveID: 1, Kind: "ACG", Keywords: []string{"完全", "无关", "词条"}}},
		},
	}
	chat := &fakeChat{reply: "[1]"}
	mod := NewAIModerator(chat, store, "", zerolog.Nop())

	meta := &db.CaveMeta{CaveID: 9, Kind: "ACG", Keywords: []string{"明日方舟", "夕", "梗图"}}
	sub := &db.Cave{ID: 9}

	ids, err := mod.CheckDuplicates(context.Background(), meta, sub)
	if err != nil {
		t.Fatalf("check duplicates: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no duplicates, got %v", ids)
	}
	if chat.calls != 0 {
		t.Fatalf("below-threshold candidates must not reach the LLM")
	}
}

func TestCheckDuplicatesFiltersHallucinatedIDs(t *testing.T) {
	t.Parallel()

	store := &fakeMetaStore{
		metas: map[string][]db.CaveMeta{
			"meme": {{CaveID: 5, Kind: "meme", Keywords: []string{"cat"}}},
		},
		caves: map[int64]*db.Cave{
			5: {ID: 5, Elements: db.Elements{{Type: db.ElementText, Text: "cat meme"}}},
		},
	}
	chat := &fakeChat{reply: "[5, 999]"}
	mod := NewAIModerator(chat, store, "", zerolog.Nop())

	meta := &db.CaveMeta{CaveID: 9, Kind: "meme", Keywords: []string{"cat"}}
	sub := &db.Cave{ID: 9, Elements: db.Elements{{Type: db.ElementText, Text: "same cat meme"}}}

	ids, err := mod.CheckDuplicates(context.Background(), meta, sub)
	if err != nil {
		t.Fatalf("check duplicates: %v", err)
	}
	if len(ids) != 1 || ids[0] != 5 {
		t.Fatalf("hallucinated ids must be dropped, got %v", ids)
	}
}

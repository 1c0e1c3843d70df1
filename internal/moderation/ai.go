package moderation

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"horse.fit/echocave/internal/db"
	"horse.fit/echocave/internal/hashing"
	"horse.fit/echocave/internal/langdetect"
	"horse.fit/echocave/internal/llm"
	analysisschema "horse.fit/echocave/schema"
)

// jaccardThreshold is the keyword-overlap percentage at or above which a prior
// entry is sent to the LLM for semantic duplicate confirmation.
const jaccardThreshold = 80.0

const defaultAnalysisPrompt = `你是回声洞审核助手。请分析用户提交的内容（文字与图片），并以JSON返回：
{"rating": 0到100的质量分, "type": "简短类别", "keywords": ["关键词", ...]}
只返回JSON，不要附加说明。`

const duplicateCheckPrompt = `你是回声洞查重助手。下面给出一条新提交和若干已收录条目。
如果新提交与某条已收录条目表达的是同一个梗或同一句话，即视为重复。
以JSON数组返回重复条目的id，例如 [12, 34]；没有重复则返回 []。只返回JSON。`

// MetaStore reads persisted AI metadata and the entries that own it.
type MetaStore interface {
	ListMetaByKind(ctx context.Context, kind string) ([]db.CaveMeta, error)
	GetCave(ctx context.Context, id int64) (*db.Cave, error)
}

// Chat is the slice of the LLM client the moderator needs.
type Chat interface {
	Chat(ctx context.Context, systemPrompt string, messages []llm.Message) (string, error)
}

// AIModerator asks an LLM to analyze a submission and to confirm semantic
// duplicates among keyword-similar prior entries.
type AIModerator struct {
	client       Chat
	store        MetaStore
	systemPrompt string
	logger       zerolog.Logger
}

func NewAIModerator(client Chat, store MetaStore, systemPrompt string, logger zerolog.Logger) *AIModerator {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultAnalysisPrompt
	}
	return &AIModerator{
		client:       client,
		store:        store,
		systemPrompt: systemPrompt,
		logger:       logger,
	}
}

// Analyze builds a mixed text+image payload and asks the LLM for a rating,
// a type and keywords. A submission with no text and no images, or a reply
// that stays unparseable after every recovery stage, yields (nil, nil);
// only transport failures return an error.
func (m *AIModerator) Analyze(ctx context.Context, sub *db.Cave, media map[string][]byte) (*db.CaveMeta, error) {
	if m == nil || m.client == nil {
		return nil, fmt.Errorf("ai moderator is not initialized")
	}
	if sub == nil {
		return nil, fmt.Errorf("submission is nil")
	}

	parts := m.buildParts(sub, media)
	if len(parts) == 0 {
		return nil, nil
	}

	reply, err := m.client.Chat(ctx, m.systemPrompt, []llm.Message{{Role: "user", Content: parts}})
	if err != nil {
		return nil, fmt.Errorf("analysis call: %w", err)
	}

	raw, err := llm.ExtractJSON(reply)
	if err != nil {
		m.logger.Warn().Err(err).Int64("cave_id", sub.ID).Msg("analysis reply unparseable, skipping metadata")
		return nil, nil
	}

	analysis, err := analysisschema.ValidateAnalysisPayload(raw)
	if err != nil {
		m.logger.Warn().Err(err).Int64("cave_id", sub.ID).Msg("analysis payload rejected, skipping metadata")
		return nil, nil
	}

	return &db.CaveMeta{
		CaveID:   sub.ID,
		Rating:   int(math.Round(analysis.Rating)),
		Kind:     analysis.Type,
		Keywords: analysis.Keywords,
	}, nil
}

// CheckDuplicates prefilters persisted metadata of the same type by Jaccard
// similarity over {type} ∪ keywords, then asks the LLM which of the
// surviving candidates the new submission duplicates. The returned IDs are
// restricted to the candidate set.
func (m *AIModerator) CheckDuplicates(ctx context.Context, meta *db.CaveMeta, sub *db.Cave) ([]int64, error) {
	if m == nil || m.client == nil || m.store == nil {
		return nil, fmt.Errorf("ai moderator is not initialized")
	}
	if meta == nil || sub == nil {
		return nil, fmt.Errorf("metadata and submission are required")
	}

	peers, err := m.store.ListMetaByKind(ctx, meta.Kind)
	if err != nil {
		return nil, fmt.Errorf("list metadata by type: %w", err)
	}

	newSet := keywordSet(meta)
	var candidates []int64
	for _, peer := range peers {
		if peer.CaveID == meta.CaveID {
			continue
		}
		if Jaccard(newSet, keywordSet(&peer)) >= jaccardThreshold {
			candidates = append(candidates, peer.CaveID)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })

	prompt, err := m.buildDuplicatePrompt(ctx, sub, candidates)
	if err != nil {
		return nil, err
	}

	reply, err := m.client.Chat(ctx, duplicateCheckPrompt, []llm.Message{{Role: "user", Content: prompt}})
	if err != nil {
		return nil, fmt.Errorf("duplicate check call: %w", err)
	}

	raw, err := llm.ExtractJSON(reply)
	if err != nil {
		return nil, fmt.Errorf("recover duplicate check reply: %w", err)
	}

	ids, err := parseIDList(raw)
	if err != nil {
		return nil, fmt.Errorf("parse duplicate check reply: %w", err)
	}

	allowed := make(map[int64]struct{}, len(candidates))
	for _, id := range candidates {
		allowed[id] = struct{}{}
	}
	var confirmed []int64
	for _, id := range ids {
		if _, ok := allowed[id]; ok {
			confirmed = append(confirmed, id)
		}
	}
	return confirmed, nil
}

func (m *AIModerator) buildParts(sub *db.Cave, media map[string][]byte) []llm.ContentPart {
	var parts []llm.ContentPart

	text := strings.TrimSpace(sub.Texts())
	if text != "" {
		prompt := "提交内容：\n" + text
		if lang := langdetect.DetectISO6391(text); lang != "" {
			prompt += "\n（文字语言：" + lang + "）"
		}
		parts = append(parts, llm.TextPart(prompt))
	}

	for _, el := range sub.Elements {
		if el.Type != db.ElementMedia {
			continue
		}
		buf, ok := media[el.File]
		if !ok || !hashing.IsSupportedImage(el.File) {
			continue
		}
		parts = append(parts, llm.ImagePart(hashing.MimeForFile(el.File), buf))
	}
	return parts
}

func (m *AIModerator) buildDuplicatePrompt(ctx context.Context, sub *db.Cave, candidates []int64) (string, error) {
	var b strings.Builder
	b.WriteString("新提交：\n")
	b.WriteString(strings.TrimSpace(sub.Texts()))
	b.WriteString("\n\n已收录条目：\n")
	for _, id := range candidates {
		prior, err := m.store.GetCave(ctx, id)
		if err != nil {
			if db.IsNotFound(err) {
				continue
			}
			return "", fmt.Errorf("load candidate %d: %w", id, err)
		}
		fmt.Fprintf(&b, "id %d: %s\n", id, strings.TrimSpace(prior.Texts()))
	}
	return b.String(), nil
}

func keywordSet(meta *db.CaveMeta) map[string]struct{} {
	set := make(map[string]struct{}, len(meta.Keywords)+1)
	if kind := strings.TrimSpace(meta.Kind); kind != "" {
		set[kind] = struct{}{}
	}
	for _, kw := range meta.Keywords {
		if trimmed := strings.TrimSpace(kw); trimmed != "" {
			set[trimmed] = struct{}{}
		}
	}
	return set
}

// Jaccard returns |a ∩ b| / |a ∪ b| scaled to [0,100]. Two empty sets are
// fully similar.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 100
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 100
	}
	return float64(inter) / float64(union) * 100
}

func parseIDList(raw json.RawMessage) ([]int64, error) {
	var ids []int64
	if err := json.Unmarshal(raw, &ids); err == nil {
		return ids, nil
	}
	var wrapped struct {
		IDs []int64 `json:"ids"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.IDs != nil {
		return wrapped.IDs, nil
	}
	return nil, fmt.Errorf("expected an id array, got %s", raw)
}

package review

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"horse.fit/echocave/internal/config"
	"horse.fit/echocave/internal/db"
	"horse.fit/echocave/internal/hashing"
	"horse.fit/echocave/internal/moderation"
)

type fakeStore struct {
	caves  map[int64]*db.Cave
	hashes []db.CaveHash
	metas  map[int64]*db.CaveMeta
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		caves: make(map[int64]*db.Cave),
		metas: make(map[int64]*db.CaveMeta),
	}
}

func (s *fakeStore) UpsertCave(_ context.Context, row *db.Cave) error {
	clone := *row
	s.caves[row.ID] = &clone
	return nil
}

func (s *fakeStore) UpsertHashes(_ context.Context, rows []db.CaveHash) error {
	s.hashes = append(s.hashes, rows...)
	return nil
}

func (s *fakeStore) UpsertMeta(_ context.Context, row *db.CaveMeta) error {
	clone := *row
	s.metas[row.CaveID] = &clone
	return nil
}

func (s *fakeStore) ListHashes(_ context.Context, kind db.HashKind) ([]db.CaveHash, error) {
	var out []db.CaveHash
	for _, h := range s.hashes {
		if kind == "" || h.Kind == kind {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *fakeStore) MaxCaveID(_ context.Context) (int64, error) {
	var maxID int64
	for id := range s.caves {
		if id > maxID {
			maxID = id
		}
	}
	return maxID, nil
}

func (s *fakeStore) ListDeletedIDs(_ context.Context) ([]int64, error) {
	var ids []int64
	for id, cave := range s.caves {
		if cave.Status == db.StatusDelete {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *fakeStore) hashCountFor(id int64) int {
	n := 0
	for _, h := range s.hashes {
		if h.CaveID == id {
			n++
		}
	}
	return n
}

type fakeBlob struct {
	files map[string][]byte
}

func newFakeBlob() *fakeBlob { return &fakeBlob{files: make(map[string][]byte)} }

func (b *fakeBlob) Read(name string) ([]byte, error) {
	data, ok := b.files[name]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", name)
	}
	return data, nil
}

func (b *fakeBlob) Save(name string, data []byte) error {
	b.files[name] = append([]byte{}, data...)
	return nil
}

type fakeFetcher struct {
	byURL map[string][]byte
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	data, ok := f.byURL[url]
	if !ok {
		return nil, fmt.Errorf("fetch %s: no such fixture", url)
	}
	return data, nil
}

type fakeNotifier struct {
	messages []string
}

func (n *fakeNotifier) Notify(_ context.Context, _ *db.Cave, message string) error {
	n.messages = append(n.messages, message)
	return nil
}

func (n *fakeNotifier) last() string {
	if len(n.messages) == 0 {
		return ""
	}
	return n.messages[len(n.messages)-1]
}

type fakeReviewer struct {
	dispatched []int64
}

func (r *fakeReviewer) Dispatch(_ context.Context, sub *db.Cave) error {
	r.dispatched = append(r.dispatched, sub.ID)
	return nil
}

type fakeAIGate struct {
	meta       *db.CaveMeta
	analyzeErr error
	duplicates []int64
	dupErr     error
}

func (g *fakeAIGate) Analyze(_ context.Context, sub *db.Cave, _ map[string][]byte) (*db.CaveMeta, error) {
	if g.analyzeErr != nil {
		return nil, g.analyzeErr
	}
	if g.meta == nil {
		return nil, nil
	}
	meta := *g.meta
	meta.CaveID = sub.ID
	return &meta, nil
}

func (g *fakeAIGate) CheckDuplicates(_ context.Context, _ *db.CaveMeta, _ *db.Cave) ([]int64, error) {
	return g.duplicates, g.dupErr
}

func baseConfig() *config.Config {
	return &config.Config{
		TextThreshold:        95,
		ImageThreshold:       95,
		AutoApproveThreshold: 60,
		EnableSimilarity:     true,
		OnAIReviewFail:       config.AIReviewFailPend,
	}
}

type deps struct {
	store    *fakeStore
	blobs    *fakeBlob
	fetcher  *fakeFetcher
	notifier *fakeNotifier
	reviewer *fakeReviewer
	ai       *fakeAIGate
	cfg      *config.Config
}

func newOrchestrator(d *deps) *Orchestrator {
	sim := moderation.NewSimilarityModerator(d.store, d.cfg.TextThreshold, d.cfg.ImageThreshold, zerolog.Nop())
	return NewOrchestrator(
		d.store, d.blobs, d.fetcher, sim, d.ai,
		d.notifier, d.reviewer, NewIDPool(d.store), d.cfg, zerolog.Nop(),
	)
}

func newDeps() *deps {
	return &deps{
		store:    newFakeStore(),
		blobs:    newFakeBlob(),
		fetcher:  &fakeFetcher{byURL: map[string][]byte{}},
		notifier: &fakeNotifier{},
		reviewer: &fakeReviewer{},
		ai:       &fakeAIGate{},
		cfg:      baseConfig(),
	}
}

func encodeSquarePNG(t *testing.T, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			px := c
			px.R = uint8(int(c.R) + x)
			img.Set(x, y, px)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestIngestActivatesCleanSubmission(t *testing.T) {
	t.Parallel()

	d := newDeps()
	o := newOrchestrator(d)

	sub := &db.Cave{ID: 1, Status: db.StatusPreload, Elements: db.Elements{
		{Type: db.ElementText, Text: "first echo"},
	}}
	result, err := o.Ingest(context.Background(), Request{Submission: sub})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.Status != db.StatusActive || result.Rejected {
		t.Fatalf("expected active, got %+v", result)
	}
	if d.store.caves[1].Status != db.StatusActive {
		t.Fatalf("stored status = %s", d.store.caves[1].Status)
	}
	if d.store.hashCountFor(1) != 1 {
		t.Fatalf("expected one committed text hash, got %d", d.store.hashCountFor(1))
	}
	if !strings.Contains(d.notifier.last(), "已收录") {
		t.Fatalf("unexpected message %q", d.notifier.last())
	}
}

func TestIngestRejectsSimilarText(t *testing.T) {
	t.Parallel()

	d := newDeps()
	d.store.hashes = []db.CaveHash{
		{CaveID: 7, Hash: hashing.Simhash("hello"), Kind: db.HashText},
	}
	o := newOrchestrator(d)

	sub := &db.Cave{ID: 9, Status: db.StatusPreload, Elements: db.Elements{
		{Type: db.ElementText, Text: "hello "},
	}}
	result, err := o.Ingest(context.Background(), Request{Submission: sub})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !result.Rejected || result.Status != db.StatusDelete {
		t.Fatalf("expected similarity rejection, got %+v", result)
	}
	if d.store.caves[9].Status != db.StatusDelete {
		t.Fatalf("row must be tombstoned, got %s", d.store.caves[9].Status)
	}
	if d.store.hashCountFor(9) != 0 {
		t.Fatalf("no hash rows may reference a rejected entry")
	}
	if msg := d.notifier.last(); !strings.Contains(msg, "id 7") || !strings.Contains(msg, "100.00%") {
		t.Fatalf("rejection must cite the prior entry and percentage: %q", msg)
	}
}

func TestIngestRollsBackOnAIFailure(t *testing.T) {
	t.Parallel()

	d := newDeps()
	d.cfg.EnableAI = true
	d.ai.analyzeErr = errors.New("llm endpoint down")
	d.fetcher.byURL["https://cdn/img.png"] = encodeSquarePNG(t, color.RGBA{R: 200, A: 255})
	o := newOrchestrator(d)

	sub := &db.Cave{ID: 4, Status: db.StatusPreload, Elements: db.Elements{
		{Type: db.ElementMedia, File: "4-0.png"},
	}}
	_, err := o.Ingest(context.Background(), Request{
		Submission:   sub,
		MediaSources: map[string]string{"4-0.png": "https://cdn/img.png"},
	})
	if err == nil {
		t.Fatalf("expected the transport failure to surface")
	}
	if d.store.caves[4].Status != db.StatusDelete {
		t.Fatalf("row must be tombstoned after failure, got %s", d.store.caves[4].Status)
	}
	if d.store.hashCountFor(4) != 0 {
		t.Fatalf("no hash rows may survive a rollback")
	}
	if _, ok := d.store.metas[4]; ok {
		t.Fatalf("no meta row may survive a rollback")
	}
	if msg := d.notifier.last(); !strings.Contains(msg, "处理失败") {
		t.Fatalf("expected processing-failed message, got %q", msg)
	}
}

func TestIngestDeduplicatesIdenticalMedia(t *testing.T) {
	t.Parallel()

	d := newDeps()
	img := encodeSquarePNG(t, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	d.fetcher.byURL["https://cdn/a.png"] = img
	d.fetcher.byURL["https://cdn/b.png"] = append([]byte{}, img...)
	o := newOrchestrator(d)

	sub := &db.Cave{ID: 2, Status: db.StatusPreload, Elements: db.Elements{
		{Type: db.ElementMedia, File: "2-0.png"},
		{Type: db.ElementMedia, File: "2-1.png"},
	}}
	result, err := o.Ingest(context.Background(), Request{
		Submission: sub,
		MediaSources: map[string]string{
			"2-0.png": "https://cdn/a.png",
			"2-1.png": "https://cdn/b.png",
		},
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.Status != db.StatusActive {
		t.Fatalf("expected active, got %+v", result)
	}

	stored := d.store.caves[2]
	if stored.Elements[0].File != "2-0.png" || stored.Elements[1].File != "2-0.png" {
		t.Fatalf("identical media must collapse to one canonical file: %+v", stored.Elements)
	}
	if len(d.blobs.files) != 1 {
		t.Fatalf("expected one persisted blob, got %d", len(d.blobs.files))
	}
	if d.store.hashCountFor(2) != 1 {
		t.Fatalf("expected one image hash, got %d", d.store.hashCountFor(2))
	}
}

func TestIngestPendingDispatch(t *testing.T) {
	t.Parallel()

	d := newDeps()
	d.cfg.EnablePend = true
	o := newOrchestrator(d)

	sub := &db.Cave{ID: 3, Status: db.StatusPreload, Elements: db.Elements{
		{Type: db.ElementText, Text: "needs a human"},
	}}
	result, err := o.Ingest(context.Background(), Request{Submission: sub})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.Status != db.StatusPending {
		t.Fatalf("expected pending, got %+v", result)
	}
	if len(d.reviewer.dispatched) != 1 || d.reviewer.dispatched[0] != 3 {
		t.Fatalf("expected dispatch to manual review, got %v", d.reviewer.dispatched)
	}
}

func TestIngestAutoApprove(t *testing.T) {
	t.Parallel()

	d := newDeps()
	d.cfg.EnablePend = true
	d.cfg.EnableAI = true
	d.cfg.EnableAutoApprove = true
	d.ai.meta = &db.CaveMeta{Rating: 80, Kind: "quote", Keywords: []string{"wisdom"}}
	o := newOrchestrator(d)

	sub := &db.Cave{ID: 5, Status: db.StatusPreload, Elements: db.Elements{
		{Type: db.ElementText, Text: "a wise quote"},
	}}
	result, err := o.Ingest(context.Background(), Request{Submission: sub})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.Status != db.StatusActive {
		t.Fatalf("expected auto-approved active, got %+v", result)
	}
	if meta, ok := d.store.metas[5]; !ok || meta.Rating != 80 {
		t.Fatalf("meta must be committed for surviving entries: %+v", d.store.metas[5])
	}
	if len(d.reviewer.dispatched) != 0 {
		t.Fatalf("auto-approved entries must skip manual review")
	}
}

func TestIngestLowRatingRejects(t *testing.T) {
	t.Parallel()

	d := newDeps()
	d.cfg.EnablePend = true
	d.cfg.EnableAI = true
	d.cfg.EnableAutoApprove = true
	d.cfg.OnAIReviewFail = config.AIReviewFailReject
	d.ai.meta = &db.CaveMeta{Rating: 10, Kind: "quote"}
	o := newOrchestrator(d)

	sub := &db.Cave{ID: 6, Status: db.StatusPreload, Elements: db.Elements{
		{Type: db.ElementText, Text: "weak content"},
	}}
	result, err := o.Ingest(context.Background(), Request{Submission: sub})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !result.Rejected {
		t.Fatalf("expected low-rating rejection, got %+v", result)
	}
	if d.store.caves[6].Status != db.StatusDelete {
		t.Fatalf("row must be tombstoned, got %s", d.store.caves[6].Status)
	}
	if d.store.hashCountFor(6) != 0 {
		t.Fatalf("rejected entries must not commit hashes")
	}
	if _, ok := d.store.metas[6]; ok {
		t.Fatalf("rejected entries must not commit meta")
	}
	if !strings.Contains(d.notifier.last(), "评分 10") {
		t.Fatalf("expected rating in message, got %q", d.notifier.last())
	}
}

func TestIngestLowRatingFallsThroughToPending(t *testing.T) {
	t.Parallel()

	d := newDeps()
	d.cfg.EnablePend = true
	d.cfg.EnableAI = true
	d.cfg.EnableAutoApprove = true
	d.ai.meta = &db.CaveMeta{Rating: 10, Kind: "quote"}
	o := newOrchestrator(d)

	sub := &db.Cave{ID: 8, Status: db.StatusPreload, Elements: db.Elements{
		{Type: db.ElementText, Text: "borderline content"},
	}}
	result, err := o.Ingest(context.Background(), Request{Submission: sub})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.Status != db.StatusPending {
		t.Fatalf("expected fallthrough to manual review, got %+v", result)
	}
}

func TestIngestSemanticDuplicateRejects(t *testing.T) {
	t.Parallel()

	d := newDeps()
	d.cfg.EnableAI = true
	d.ai.meta = &db.CaveMeta{Rating: 70, Kind: "ACG", Keywords: []string{"明日方舟", "夕"}}
	d.ai.duplicates = []int64{12, 30}
	o := newOrchestrator(d)

	sub := &db.Cave{ID: 40, Status: db.StatusPreload, Elements: db.Elements{
		{Type: db.ElementText, Text: "同一个梗的另一种说法"},
	}}
	result, err := o.Ingest(context.Background(), Request{Submission: sub})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !result.Rejected {
		t.Fatalf("expected semantic rejection, got %+v", result)
	}
	if msg := d.notifier.last(); !strings.Contains(msg, "12") || !strings.Contains(msg, "30") {
		t.Fatalf("rejection must list duplicate ids: %q", msg)
	}
	if d.store.hashCountFor(40) != 0 {
		t.Fatalf("semantic rejections must not commit hashes")
	}
}

func TestIngestRejectsEmptySubmission(t *testing.T) {
	t.Parallel()

	d := newDeps()
	o := newOrchestrator(d)

	sub := &db.Cave{ID: 11, Status: db.StatusPreload}
	result, err := o.Ingest(context.Background(), Request{Submission: sub})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !result.Rejected {
		t.Fatalf("expected empty-content rejection, got %+v", result)
	}
	if d.store.caves[11].Status != db.StatusDelete {
		t.Fatalf("empty submissions must be tombstoned")
	}
	if d.notifier.last() != MsgNoContent() {
		t.Fatalf("unexpected message %q", d.notifier.last())
	}
}

func TestIngestRequiresPreloadStatus(t *testing.T) {
	t.Parallel()

	d := newDeps()
	o := newOrchestrator(d)

	sub := &db.Cave{ID: 13, Status: db.StatusActive, Elements: db.Elements{
		{Type: db.ElementText, Text: "already live"},
	}}
	if _, err := o.Ingest(context.Background(), Request{Submission: sub}); err == nil {
		t.Fatalf("expected a status precondition error")
	}
}

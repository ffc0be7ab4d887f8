package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/snarg/listen-engine/internal/repo"
)

type fakeSummarizer struct {
	calls atomic.Int64
	fail  bool
}

func (f *fakeSummarizer) Model() string { return "fake" }

func (f *fakeSummarizer) Summarize(ctx context.Context, transcript string) (*Fields, error) {
	n := f.calls.Add(1)
	if f.fail {
		return nil, errors.New("model unavailable")
	}
	return &Fields{
		Summary:            fmt.Sprintf("summary #%d", n),
		PhysicalStatus:     "stable",
		PsychologicalNeeds: "company",
		Advice:             "visit more often",
	}, nil
}

type testEnv struct {
	mem *repo.Memory
	sum *fakeSummarizer
	agg *Aggregator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := repo.NewMemory()
	sum := &fakeSummarizer{}
	agg := NewAggregator(AggregatorOptions{
		Transcripts: mem.Transcripts(),
		Summaries:   mem.Summaries(),
		Summarizer:  sum,
		Log:         zerolog.Nop(),
	})
	return &testEnv{mem: mem, sum: sum, agg: agg}
}

// addTranscribed creates a transcribed recording with its transcript.
func (e *testEnv) addTranscribed(t *testing.T, id string, elderID int64, at time.Time, text string) {
	t.Helper()
	ctx := context.Background()
	err := e.mem.Recordings().Create(ctx, &repo.Recording{
		ID: id, ElderID: elderID, CapturedAt: at,
		AudioKey: "k/" + id, Status: repo.StatusStored,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	e.mem.Recordings().Claim(ctx, id)
	e.mem.Transcripts().Put(ctx, &repo.Transcript{RecordID: id, Text: text})
	e.mem.Recordings().MarkTranscribed(ctx, id)
}

func TestGetOrRefresh_EmptyDay(t *testing.T) {
	e := newTestEnv(t)

	artifact, msg, err := e.agg.GetOrRefresh(context.Background(), 1, "2024-03-10", false)
	if err != nil {
		t.Fatalf("GetOrRefresh: %v", err)
	}
	if msg != MessageNoData {
		t.Errorf("message = %q, want %q", msg, MessageNoData)
	}
	if artifact.Summary != "" || len(artifact.SourceRecordIDs) != 0 {
		t.Errorf("empty day artifact = %+v, want empty", artifact)
	}
	if e.sum.calls.Load() != 0 {
		t.Error("summarizer called for empty day")
	}
}

func TestGetOrRefresh_GeneratesThenCaches(t *testing.T) {
	e := newTestEnv(t)
	day := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	e.addTranscribed(t, "r1", 1, day, "went for a walk")
	ctx := context.Background()

	artifact, msg, err := e.agg.GetOrRefresh(ctx, 1, "2024-03-10", false)
	if err != nil {
		t.Fatalf("GetOrRefresh: %v", err)
	}
	if msg != MessageGenerated {
		t.Errorf("first message = %q, want generated", msg)
	}
	if artifact.Version != 1 || len(artifact.SourceRecordIDs) != 1 {
		t.Errorf("artifact = %+v", artifact)
	}

	// Unchanged transcript set: served from cache, model not called again.
	_, msg, err = e.agg.GetOrRefresh(ctx, 1, "2024-03-10", false)
	if err != nil {
		t.Fatalf("second GetOrRefresh: %v", err)
	}
	if msg != MessageCached {
		t.Errorf("second message = %q, want cached", msg)
	}
	if e.sum.calls.Load() != 1 {
		t.Errorf("summarizer calls = %d, want 1", e.sum.calls.Load())
	}
}

func TestGetOrRefresh_NewTranscriptInvalidatesCache(t *testing.T) {
	e := newTestEnv(t)
	day := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	e.addTranscribed(t, "r1", 1, day, "morning memo")
	ctx := context.Background()

	e.agg.GetOrRefresh(ctx, 1, "2024-03-10", false)
	e.addTranscribed(t, "r2", 1, day.Add(4*time.Hour), "afternoon memo")

	artifact, msg, err := e.agg.GetOrRefresh(ctx, 1, "2024-03-10", false)
	if err != nil {
		t.Fatalf("GetOrRefresh: %v", err)
	}
	if msg != MessageGenerated {
		t.Errorf("message = %q, want generated after new transcript", msg)
	}
	if artifact.Version != 2 || len(artifact.SourceRecordIDs) != 2 {
		t.Errorf("artifact = %+v, want version 2 with 2 sources", artifact)
	}
}

func TestGetOrRefresh_ForceRegenerates(t *testing.T) {
	e := newTestEnv(t)
	e.addTranscribed(t, "r1", 1, time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC), "memo")
	ctx := context.Background()

	e.agg.GetOrRefresh(ctx, 1, "2024-03-10", false)
	artifact, msg, err := e.agg.GetOrRefresh(ctx, 1, "2024-03-10", true)
	if err != nil {
		t.Fatalf("GetOrRefresh(force): %v", err)
	}
	if msg != MessageGenerated {
		t.Errorf("message = %q, want generated", msg)
	}
	if artifact.Version != 2 {
		t.Errorf("version = %d, want 2", artifact.Version)
	}
	if e.sum.calls.Load() != 2 {
		t.Errorf("summarizer calls = %d, want 2", e.sum.calls.Load())
	}
}

func TestGetOrRefresh_SummarizerFailure(t *testing.T) {
	e := newTestEnv(t)
	e.addTranscribed(t, "r1", 1, time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC), "memo")
	ctx := context.Background()

	// No prior artifact: still not an error, the caller gets an empty
	// artifact with an explanatory message.
	e.sum.fail = true
	artifact, msg, err := e.agg.GetOrRefresh(ctx, 1, "2024-03-10", false)
	if err != nil {
		t.Fatalf("GetOrRefresh with no prior artifact: %v", err)
	}
	if msg != MessageLLMError {
		t.Errorf("message = %q, want %q", msg, MessageLLMError)
	}
	if artifact == nil || artifact.Summary != "" || artifact.Advice != "" {
		t.Errorf("artifact = %+v, want empty", artifact)
	}
	// The empty artifact is not persisted: recovery must regenerate.
	if _, err := e.mem.Summaries().Get(ctx, 1, "2024-03-10"); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("Summaries.Get = %v, want ErrNotFound", err)
	}

	// With a prior artifact the stale copy is served instead.
	e.sum.fail = false
	prior, _, err := e.agg.GetOrRefresh(ctx, 1, "2024-03-10", false)
	if err != nil {
		t.Fatalf("GetOrRefresh: %v", err)
	}
	e.sum.fail = true
	artifact, msg, err = e.agg.GetOrRefresh(ctx, 1, "2024-03-10", true)
	if err != nil {
		t.Fatalf("GetOrRefresh after failure: %v", err)
	}
	if msg != MessageStale {
		t.Errorf("message = %q, want stale", msg)
	}
	if artifact.Summary != prior.Summary || artifact.Version != prior.Version {
		t.Errorf("artifact = %+v, want prior %+v", artifact, prior)
	}
}

func TestJoinTranscripts_OrderAndBudget(t *testing.T) {
	day := []repo.DayTranscript{
		{RecordID: "a", Text: "first"},
		{RecordID: "b", Text: "  "},
		{RecordID: "c", Text: "second"},
	}
	got := joinTranscripts(day, 30000)
	if got != "first\n\nsecond" {
		t.Errorf("joined = %q", got)
	}

	long := []repo.DayTranscript{
		{RecordID: "a", Text: strings.Repeat("x", 40)},
		{RecordID: "b", Text: "tail"},
	}
	got = joinTranscripts(long, 20)
	if len(got) > 20 {
		t.Errorf("len = %d, want <= 20", len(got))
	}
	if !strings.HasPrefix(got, "xxxx") {
		t.Errorf("truncation dropped the head: %q", got)
	}

	// Truncation must not split a multibyte character.
	cjk := []repo.DayTranscript{
		{RecordID: "a", Text: strings.Repeat("早", 10)}, // 3 bytes per rune
	}
	got = joinTranscripts(cjk, 8)
	if len(got) > 8 {
		t.Errorf("len = %d, want <= 8", len(got))
	}
	if !utf8.ValidString(got) {
		t.Errorf("truncation split a rune: %q", got)
	}
	if got != strings.Repeat("早", 2) {
		t.Errorf("joined = %q, want two runes", got)
	}
}

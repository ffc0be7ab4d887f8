package summarize

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/snarg/listen-engine/internal/repo"
)

// Messages returned alongside a summary artifact. Clients display them
// verbatim, so they are part of the API contract.
const (
	MessageCached    = "cached"
	MessageGenerated = "generated"
	MessageNoData    = "no data"
	MessageStale     = "stale"
	MessageLLMError  = "llm error"
)

// EventPublishFunc is a callback for publishing summary refresh events.
type EventPublishFunc func(eventType string, elderID int64, payload map[string]any)

// AggregatorOptions configures the summary aggregator.
type AggregatorOptions struct {
	Transcripts  repo.TranscriptRepo
	Summaries    repo.SummaryRepo
	Summarizer   Summarizer
	MaxChars     int // transcript budget per model call
	PublishEvent EventPublishFunc
	Log          zerolog.Logger
}

// Aggregator serves per-(elder, date) daily summaries, regenerating
// them only when the underlying transcript set changed or the caller
// forces a refresh.
type Aggregator struct {
	opts AggregatorOptions
	log  zerolog.Logger
}

// NewAggregator creates a summary aggregator.
func NewAggregator(opts AggregatorOptions) *Aggregator {
	if opts.MaxChars <= 0 {
		opts.MaxChars = 30000
	}
	return &Aggregator{
		opts: opts,
		log:  opts.Log.With().Str("component", "summarize").Logger(),
	}
}

// GetOrRefresh returns the summary artifact for one elder-day plus a
// message describing how it was produced.
//
// The cached artifact is reused when it exists, force is false, and its
// source set equals the currently transcribed recordings for that day.
// Otherwise the day's transcripts are folded through the summarizer and
// the result is persisted with a version compare-and-swap; losing the
// swap means a concurrent request already generated a fresher artifact,
// which is re-read and returned. A day with no transcribed recordings
// yields an empty, non-persisted artifact. A summarizer failure never
// fails the request: with a prior artifact it is served marked stale,
// without one an empty artifact is returned with an "llm error"
// message. Only repository failures surface as errors.
func (a *Aggregator) GetOrRefresh(ctx context.Context, elderID int64, date string, force bool) (*repo.SummaryArtifact, string, error) {
	day, err := a.opts.Transcripts.ListForDay(ctx, elderID, date)
	if err != nil {
		return nil, "", fmt.Errorf("list transcripts: %w", err)
	}

	prior, err := a.opts.Summaries.Get(ctx, elderID, date)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, "", fmt.Errorf("load summary: %w", err)
	}

	ids := make([]string, len(day))
	for i, t := range day {
		ids[i] = t.RecordID
	}

	if prior != nil && !force && sameIDSet(prior.SourceRecordIDs, ids) {
		return prior, MessageCached, nil
	}

	if len(day) == 0 {
		// Nothing recorded (or transcribed yet) for this day. Not
		// persisted: the first real transcript must trigger generation.
		return &repo.SummaryArtifact{
			ElderID:     elderID,
			Date:        date,
			GeneratedAt: time.Now().UTC(),
		}, MessageNoData, nil
	}

	fields, err := a.opts.Summarizer.Summarize(ctx, joinTranscripts(day, a.opts.MaxChars))
	if err != nil {
		if prior != nil {
			a.log.Warn().Err(err).Int64("elder_id", elderID).Str("date", date).Msg("summarizer failed, serving prior artifact")
			return prior, MessageStale, nil
		}
		a.log.Error().Err(err).Int64("elder_id", elderID).Str("date", date).Msg("summarizer failed, no prior artifact")
		return &repo.SummaryArtifact{
			ElderID:     elderID,
			Date:        date,
			GeneratedAt: time.Now().UTC(),
		}, MessageLLMError, nil
	}

	artifact := &repo.SummaryArtifact{
		ElderID:            elderID,
		Date:               date,
		Summary:            fields.Summary,
		PhysicalStatus:     fields.PhysicalStatus,
		PsychologicalNeeds: fields.PsychologicalNeeds,
		Advice:             fields.Advice,
		GeneratedAt:        time.Now().UTC(),
		SourceRecordIDs:    ids,
		Version:            1,
	}
	var expected int64
	if prior != nil {
		expected = prior.Version
		artifact.Version = prior.Version + 1
	}

	if err := a.opts.Summaries.Save(ctx, artifact, expected); err != nil {
		if errors.Is(err, repo.ErrVersionConflict) {
			fresh, err := a.opts.Summaries.Get(ctx, elderID, date)
			if err != nil {
				return nil, "", fmt.Errorf("reload after conflict: %w", err)
			}
			return fresh, MessageCached, nil
		}
		return nil, "", fmt.Errorf("save summary: %w", err)
	}

	if a.opts.PublishEvent != nil {
		a.opts.PublishEvent("summary", elderID, map[string]any{
			"elder_id": elderID,
			"date":     date,
			"version":  artifact.Version,
			"sources":  len(ids),
		})
	}

	a.log.Info().
		Int64("elder_id", elderID).
		Str("date", date).
		Int("sources", len(ids)).
		Int64("version", artifact.Version).
		Msg("summary generated")

	return artifact, MessageGenerated, nil
}

// joinTranscripts concatenates a day's transcripts in capture order,
// truncating at maxChars so a prolific day cannot blow the model's
// context window.
func joinTranscripts(day []repo.DayTranscript, maxChars int) string {
	var b strings.Builder
	for _, t := range day {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		sep := ""
		if b.Len() > 0 {
			sep = "\n\n"
		}
		remaining := maxChars - b.Len() - len(sep)
		if remaining <= 0 {
			break
		}
		if len(text) > remaining {
			// Cut on a rune boundary so a multibyte character is never
			// split mid-sequence.
			cut := remaining
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			if cut == 0 {
				break
			}
			text = text[:cut]
		}
		b.WriteString(sep)
		b.WriteString(text)
	}
	return b.String()
}

// sameIDSet compares record ID sets ignoring order.
func sameIDSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := slices.Clone(a)
	bs := slices.Clone(b)
	slices.Sort(as)
	slices.Sort(bs)
	return slices.Equal(as, bs)
}

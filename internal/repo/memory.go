package repo

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process implementation of all repositories, used in
// tests and single-node dev mode. One mutex guards all maps; the
// conditional transitions below are what make concurrent worker claims
// and summary recomputations safe.
type Memory struct {
	mu          sync.Mutex
	nextAccount int64
	accounts    map[string]*Account // external ID → account
	recordings  map[string]*Recording
	transcripts map[string]*Transcript
	summaries   map[summaryKey]*SummaryArtifact
}

type summaryKey struct {
	elderID int64
	date    string
}

// NewMemory creates an empty in-memory repository set.
func NewMemory() *Memory {
	return &Memory{
		accounts:    make(map[string]*Account),
		recordings:  make(map[string]*Recording),
		transcripts: make(map[string]*Transcript),
		summaries:   make(map[summaryKey]*SummaryArtifact),
	}
}

// Accounts returns the AccountRepo view.
func (m *Memory) Accounts() AccountRepo { return (*memAccounts)(m) }

// Recordings returns the RecordingRepo view.
func (m *Memory) Recordings() RecordingRepo { return (*memRecordings)(m) }

// Transcripts returns the TranscriptRepo view.
func (m *Memory) Transcripts() TranscriptRepo { return (*memTranscripts)(m) }

// Summaries returns the SummaryRepo view.
func (m *Memory) Summaries() SummaryRepo { return (*memSummaries)(m) }

type (
	memAccounts    Memory
	memRecordings  Memory
	memTranscripts Memory
	memSummaries   Memory
)

var (
	_ AccountRepo    = (*memAccounts)(nil)
	_ RecordingRepo  = (*memRecordings)(nil)
	_ TranscriptRepo = (*memTranscripts)(nil)
	_ SummaryRepo    = (*memSummaries)(nil)
)

// ---- accounts ----

func (m *memAccounts) FindByExternalID(ctx context.Context, externalID string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[externalID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAccounts) Create(ctx context.Context, externalID string, role Role) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[externalID]; ok {
		cp := *a
		return &cp, nil
	}
	m.nextAccount++
	a := &Account{
		ID:         m.nextAccount,
		ExternalID: externalID,
		Role:       role,
		CreatedAt:  time.Now().UTC(),
	}
	m.accounts[externalID] = a
	cp := *a
	return &cp, nil
}

// ---- recordings ----

func (m *memRecordings) Create(ctx context.Context, rec *Recording) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	cp := *rec
	cp.CreatedAt = now
	cp.UpdatedAt = now
	m.recordings[rec.ID] = &cp
	return nil
}

func (m *memRecordings) Get(ctx context.Context, id string) (*Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recordings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRecordings) ListByElder(ctx context.Context, elderID int64, limit, offset int) ([]Recording, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []Recording
	for _, r := range m.recordings {
		if r.ElderID == elderID {
			all = append(all, *r)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	if offset >= total {
		return []Recording{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *memRecordings) ListRetryable(ctx context.Context, limit int) ([]Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Recording
	for _, r := range m.recordings {
		if r.Status == StatusStored || r.Status == StatusFailed {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRecordings) Claim(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recordings[id]
	if !ok {
		return false, ErrNotFound
	}
	if r.Status != StatusStored && r.Status != StatusFailed {
		return false, nil
	}
	r.Status = StatusTranscribing
	r.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *memRecordings) MarkTranscribed(ctx context.Context, id string) error {
	return (*Memory)(m).finishTranscription(id, StatusTranscribed, "")
}

func (m *memRecordings) MarkFailed(ctx context.Context, id string, errMsg string) error {
	return (*Memory)(m).finishTranscription(id, StatusFailed, errMsg)
}

func (m *memRecordings) ResetInFlight(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.recordings {
		if r.Status == StatusTranscribing {
			r.Status = StatusFailed
			r.LastError = "interrupted by restart"
			r.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

func (m *Memory) finishTranscription(id string, status RecordingStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recordings[id]
	if !ok || r.Status != StatusTranscribing {
		return ErrNotFound
	}
	r.Status = status
	r.LastError = errMsg
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// ---- transcripts ----

func (m *memTranscripts) Put(ctx context.Context, t *Transcript) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.transcripts[t.RecordID] = &cp
	return nil
}

func (m *memTranscripts) Get(ctx context.Context, recordID string) (*Transcript, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transcripts[recordID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTranscripts) ListForDay(ctx context.Context, elderID int64, date string) ([]DayTranscript, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []DayTranscript
	for _, r := range m.recordings {
		if r.ElderID != elderID || r.Status != StatusTranscribed {
			continue
		}
		if DateOf(r.CapturedAt) != date {
			continue
		}
		t, ok := m.transcripts[r.ID]
		if !ok {
			continue
		}
		out = append(out, DayTranscript{
			RecordID:   r.ID,
			CapturedAt: r.CapturedAt,
			Text:       t.Text,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CapturedAt.Before(out[j].CapturedAt) })
	return out, nil
}

// ---- summaries ----

func (m *memSummaries) Get(ctx context.Context, elderID int64, date string) (*SummaryArtifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.summaries[summaryKey{elderID, date}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	cp.SourceRecordIDs = append([]string(nil), a.SourceRecordIDs...)
	return &cp, nil
}

func (m *memSummaries) Save(ctx context.Context, a *SummaryArtifact, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := summaryKey{a.ElderID, a.Date}
	cur, ok := m.summaries[key]
	if !ok && expectedVersion != 0 {
		return ErrVersionConflict
	}
	if ok && cur.Version != expectedVersion {
		return ErrVersionConflict
	}
	cp := *a
	cp.SourceRecordIDs = append([]string(nil), a.SourceRecordIDs...)
	m.summaries[key] = &cp
	return nil
}

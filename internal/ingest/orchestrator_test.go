package ingest

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/snarg/listen-engine/internal/repo"
	"github.com/snarg/listen-engine/internal/storage"
)

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	var files []string
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	return files
}

func newTestOrchestrator(t *testing.T, recordings repo.RecordingRepo, enqueue EnqueueFunc) (*Orchestrator, storage.AudioStore) {
	t.Helper()
	store := storage.NewLocalStore(t.TempDir())
	return NewOrchestrator(OrchestratorOptions{
		Recordings:  recordings,
		Store:       store,
		Enqueue:     enqueue,
		AllowedExts: []string{"wav", "mp3", "m4a", "amr"},
		MaxBytes:    1 << 20,
		Log:         zerolog.Nop(),
	}), store
}

func TestUpload_Accepts(t *testing.T) {
	mem := repo.NewMemory()
	var enqueued []string
	o, store := newTestOrchestrator(t, mem.Recordings(), func(id string) bool {
		enqueued = append(enqueued, id)
		return true
	})
	ctx := context.Background()

	res, err := o.Upload(ctx, 7, "memo.WAV", []byte("audio-bytes"), "audio/wav")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.Status != repo.StatusStored {
		t.Errorf("status = %q, want stored", res.Status)
	}

	rec, err := mem.Recordings().Get(ctx, res.RecordID)
	if err != nil {
		t.Fatalf("recording not persisted: %v", err)
	}
	if rec.ElderID != 7 || rec.SizeBytes != int64(len("audio-bytes")) {
		t.Errorf("recording = %+v", rec)
	}
	if !store.Exists(ctx, rec.AudioKey) {
		t.Errorf("blob missing under key %q", rec.AudioKey)
	}
	if len(enqueued) != 1 || enqueued[0] != res.RecordID {
		t.Errorf("enqueued = %v, want [%s]", enqueued, res.RecordID)
	}
}

func TestUpload_Validation(t *testing.T) {
	mem := repo.NewMemory()
	o, _ := newTestOrchestrator(t, mem.Recordings(), nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		filename string
		data     []byte
		wantErr  error
	}{
		{"empty file", "memo.wav", nil, ErrEmptyFile},
		{"bad extension", "memo.ogg", []byte("x"), ErrBadExtension},
		{"no extension", "memo", []byte("x"), ErrBadExtension},
		{"too large", "memo.wav", make([]byte, (1<<20)+1), ErrTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.Upload(ctx, 1, tt.filename, tt.data, "audio/wav")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Upload = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// Nothing persisted by rejected uploads.
	recs, total, _ := mem.Recordings().ListByElder(ctx, 1, 10, 0)
	if total != 0 || len(recs) != 0 {
		t.Errorf("rejected uploads left %d recordings", total)
	}
}

type failingRecordings struct {
	repo.RecordingRepo
}

func (failingRecordings) Create(ctx context.Context, rec *repo.Recording) error {
	return errors.New("insert failed")
}

func TestUpload_DeletesBlobWhenRowInsertFails(t *testing.T) {
	mem := repo.NewMemory()
	o, store := newTestOrchestrator(t, failingRecordings{mem.Recordings()}, nil)
	ctx := context.Background()

	_, err := o.Upload(ctx, 3, "memo.mp3", []byte("data"), "audio/mpeg")
	if err == nil {
		t.Fatal("expected error from failing repo")
	}

	// Compensating delete: no orphan blob for elder 3.
	ls := store.(*storage.LocalStore)
	if entries := dirEntries(t, ls.Dir()); len(entries) != 0 {
		t.Errorf("orphan blobs left behind: %v", entries)
	}
}

func TestUpload_QueueFullStillAccepts(t *testing.T) {
	mem := repo.NewMemory()
	o, _ := newTestOrchestrator(t, mem.Recordings(), func(string) bool { return false })

	res, err := o.Upload(context.Background(), 1, "memo.amr", []byte("x"), "audio/amr")
	if err != nil {
		t.Fatalf("Upload with full queue: %v", err)
	}
	rec, err := mem.Recordings().Get(context.Background(), res.RecordID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != repo.StatusStored {
		t.Errorf("status = %q, want stored (sweep picks it up)", rec.Status)
	}
}

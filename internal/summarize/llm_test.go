package summarize

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestExtractFields(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string // expected summary field
		wantErr bool
	}{
		{
			name:    "bare object",
			content: `{"summary":"a good day","physical_status":"ok","psychological_needs":"none","advice":"rest"}`,
			want:    "a good day",
		},
		{
			name:    "code fence",
			content: "```json\n{\"summary\":\"fenced\",\"physical_status\":\"\",\"psychological_needs\":\"\",\"advice\":\"\"}\n```",
			want:    "fenced",
		},
		{
			name:    "surrounding prose",
			content: `Here is the summary you asked for: {"summary":"wrapped","physical_status":"","psychological_needs":"","advice":""} hope it helps`,
			want:    "wrapped",
		},
		{
			name:    "braces inside strings",
			content: `{"summary":"said \"hi {there}\" today","physical_status":"","psychological_needs":"","advice":""}`,
			want:    `said "hi {there}" today`,
		},
		{
			name:    "no object",
			content: "I cannot produce a summary.",
			wantErr: true,
		},
		{
			name:    "unbalanced",
			content: `{"summary":"truncated`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractFields(tt.content)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("extractFields = %+v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("extractFields: %v", err)
			}
			if got.Summary != tt.want {
				t.Errorf("summary = %q, want %q", got.Summary, tt.want)
			}
		})
	}
}

func TestLLMClient_Summarize(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"summary\":\"ok\",\"physical_status\":\"fine\",\"psychological_needs\":\"\",\"advice\":\"\"}"}}]}`))
	}))
	defer srv.Close()

	c := NewLLMClient(srv.URL, "secret", "test-model", 5*time.Second)
	fields, err := c.Summarize(context.Background(), "some transcript")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if fields.Summary != "ok" || fields.PhysicalStatus != "fine" {
		t.Errorf("fields = %+v", fields)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("auth header = %q", gotAuth)
	}
}

func TestLLMClient_SummarizeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewLLMClient(srv.URL, "", "test-model", 5*time.Second)
	if _, err := c.Summarize(context.Background(), "text"); err == nil {
		t.Fatal("expected error on non-200 response")
	}
}

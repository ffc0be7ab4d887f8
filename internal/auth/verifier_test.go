package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPVerifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("js_code") {
		case "good-code":
			w.Write([]byte(`{"openid":"openid-123"}`))
		default:
			w.Write([]byte(`{"errcode":40029,"errmsg":"invalid code"}`))
		}
	}))
	defer srv.Close()

	v := NewHTTPVerifier(srv.URL)

	t.Run("valid code", func(t *testing.T) {
		id, err := v.Verify(context.Background(), "good-code")
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if id != "openid-123" {
			t.Errorf("external id = %q", id)
		}
	})

	t.Run("rejected code", func(t *testing.T) {
		_, err := v.Verify(context.Background(), "used-code")
		if !errors.Is(err, ErrInvalidCredential) {
			t.Errorf("Verify = %v, want ErrInvalidCredential", err)
		}
	})
}

func TestHTTPVerifier_Unreachable(t *testing.T) {
	v := NewHTTPVerifier("http://127.0.0.1:1")
	_, err := v.Verify(context.Background(), "code")
	if err == nil {
		t.Fatal("expected error for unreachable provider")
	}
	if errors.Is(err, ErrInvalidCredential) {
		t.Error("network failure must not look like a bad credential")
	}
}

package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// CodeVerifier exchanges a one-time login code for a stable external
// identity. The upstream provider enforces single use; a consumed or
// malformed code surfaces as ErrInvalidCredential.
type CodeVerifier interface {
	Verify(ctx context.Context, code string) (externalID string, err error)
}

// HTTPVerifier calls a login provider's code-to-session endpoint.
// The provider is expected to answer {"openid": "..."} on success or
// {"errcode": N, "errmsg": "..."} on rejection.
type HTTPVerifier struct {
	verifyURL string
	client    *http.Client
}

// NewHTTPVerifier creates a verifier for the given endpoint.
func NewHTTPVerifier(verifyURL string) *HTTPVerifier {
	return &HTTPVerifier{
		verifyURL: verifyURL,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (v *HTTPVerifier) Verify(ctx context.Context, code string) (string, error) {
	u, err := url.Parse(v.verifyURL)
	if err != nil {
		return "", fmt.Errorf("verify url: %w", err)
	}
	q := u.Query()
	q.Set("js_code", code)
	q.Set("grant_type", "authorization_code")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("login provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		OpenID  string `json:"openid"`
		ErrCode int    `json:"errcode"`
		ErrMsg  string `json:"errmsg"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("login provider response: %w", err)
	}
	if body.ErrCode != 0 || body.OpenID == "" {
		return "", fmt.Errorf("%w: provider errcode %d: %s", ErrInvalidCredential, body.ErrCode, body.ErrMsg)
	}
	return body.OpenID, nil
}

// StaticVerifier accepts any non-empty code and uses it directly as the
// external identity. Dev/test only.
type StaticVerifier struct{}

func (StaticVerifier) Verify(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", ErrInvalidCredential
	}
	return code, nil
}

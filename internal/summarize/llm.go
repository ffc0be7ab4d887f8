package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Fields is the structured daily summary produced by the model.
type Fields struct {
	Summary            string `json:"summary"`
	PhysicalStatus     string `json:"physical_status"`
	PsychologicalNeeds string `json:"psychological_needs"`
	Advice             string `json:"advice"`
}

// Summarizer turns a day's worth of transcript text into the four
// structured summary fields.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (*Fields, error)
	Model() string
}

const systemPrompt = `You are an assistant helping caregivers of elderly people.
You receive the transcribed voice memos one elder recorded over a single day.
Respond with a single JSON object containing exactly these string fields:
"summary" (what the elder did and talked about today),
"physical_status" (observations about physical condition),
"psychological_needs" (emotional state and needs),
"advice" (practical suggestions for the caregiver).
Be cautious and factual. If the transcripts do not support a conclusion,
say the information is insufficient rather than guessing. Respond with
JSON only, no surrounding prose.`

// LLMClient calls an OpenAI-compatible chat completions endpoint.
type LLMClient struct {
	url    string
	apiKey string
	model  string
	client *http.Client
}

// NewLLMClient creates a summarizer backed by a chat completions API.
func NewLLMClient(baseURL, apiKey, model string, timeout time.Duration) *LLMClient {
	return &LLMClient{
		url:    baseURL + "/chat/completions",
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *LLMClient) Model() string { return c.model }

func (c *LLMClient) Summarize(ctx context.Context, transcript string) (*Fields, error) {
	reqBody := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": transcript},
		},
		"temperature": 0.3,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("llm API error (status %d): %s", resp.StatusCode, string(body))
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &completion); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("llm returned no choices")
	}

	fields, err := extractFields(completion.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("parse completion: %w", err)
	}
	return fields, nil
}

// extractFields pulls the first balanced JSON object out of the model
// output and unmarshals it. Models wrap JSON in prose or code fences
// often enough that a plain Unmarshal of the whole content is not
// reliable.
func extractFields(content string) (*Fields, error) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i, r := range content {
		if start >= 0 && inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '{':
			if start < 0 {
				start = i
			}
			depth++
		case '}':
			if start >= 0 {
				depth--
				if depth == 0 {
					var f Fields
					if err := json.Unmarshal([]byte(content[start:i+1]), &f); err != nil {
						return nil, fmt.Errorf("invalid JSON object: %w", err)
					}
					return &f, nil
				}
			}
		case '"':
			if start >= 0 {
				inString = true
			}
		}
	}
	return nil, fmt.Errorf("no JSON object in model output")
}

package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.openai.com/v1"

// OpenAIClassifier talks to an OpenAI-compatible Responses endpoint.
type OpenAIClassifier struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

func NewOpenAIClassifier(apiKey, model, baseURL string) *OpenAIClassifier {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	return &OpenAIClassifier{
		apiKey:  strings.TrimSpace(apiKey),
		model:   strings.TrimSpace(model),
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
	}
}

var ErrNoAPIKey = fmt.Errorf("ai: api key not configured")

type responseRequest struct {
	Model           string          `json:"model"`
	Input           []responseInput `json:"input"`
	MaxOutputTokens int             `json:"max_output_tokens,omitempty"`
}

type responseInput struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseEnvelope struct {
	Output []struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
}

// ClassifyBatch sends all candidates in one call and expects a JSON object
// mapping candidate id to category id. Timeout: 15s for the whole batch.
func (c *OpenAIClassifier) ClassifyBatch(ctx context.Context, req BatchRequest) (BatchResponse, error) {
	if c.apiKey == "" {
		return BatchResponse{}, ErrNoAPIKey
	}
	if len(req.Candidates) == 0 {
		return BatchResponse{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	payload, _ := json.Marshal(req)
	system := "You are a finance categorization assistant. Given candidate transactions and the allowed categories, return ONLY valid JSON: {\"assignments\": {\"<candidate id>\": \"<category id>\"}}. Omit candidates you cannot categorize confidently. Never invent category ids."

	body, _ := json.Marshal(responseRequest{
		Model: c.model,
		Input: []responseInput{
			{Role: "system", Content: system},
			{Role: "user", Content: "Input JSON:\n" + string(payload)},
		},
		MaxOutputTokens: 2048,
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return BatchResponse{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return BatchResponse{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return BatchResponse{}, fmt.Errorf("ai: responses endpoint returned %s", resp.Status)
	}

	var envelope responseEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return BatchResponse{}, fmt.Errorf("ai: decode response: %w", err)
	}
	text := firstOutputText(envelope)

	var out BatchResponse
	if err := decodeJSON(text, &out); err != nil {
		return BatchResponse{}, fmt.Errorf("ai: parse assignments: %w", err)
	}
	return out, nil
}

func firstOutputText(env responseEnvelope) string {
	for _, o := range env.Output {
		for _, c := range o.Content {
			if c.Type == "output_text" && c.Text != "" {
				return c.Text
			}
		}
	}
	return ""
}

// decodeJSON tolerates markdown fences around the model's JSON.
func decodeJSON(text string, v interface{}) error {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if i := strings.LastIndex(text, "```"); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
	}
	return json.Unmarshal([]byte(text), v)
}

package grader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaGrader calls an Ollama server's /api/generate endpoint.
type OllamaGrader struct {
	baseURL string
	model   string
	prompts *PromptBuilder
	client  *http.Client
}

type OllamaOption func(*OllamaGrader)

func WithHTTPClient(c *http.Client) OllamaOption {
	return func(g *OllamaGrader) {
		if c != nil {
			g.client = c
		}
	}
}

// NewOllamaGrader builds a grader. The caller bounds each call through the
// context deadline; the client timeout is only a backstop.
func NewOllamaGrader(baseURL, model string, prompts *PromptBuilder, opts ...OllamaOption) *OllamaGrader {
	g := &OllamaGrader{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		prompts: prompts,
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format"`
}

type generateResponse struct {
	Response string `json:"response"`
}

func (g *OllamaGrader) Assess(ctx context.Context, redactedText string) Assessment {
	payload, err := json.Marshal(generateRequest{
		Model:  g.model,
		Prompt: g.prompts.Build(redactedText),
		Stream: false,
		Format: "json",
	})
	if err != nil {
		return Unreachable{Err: fmt.Errorf("marshal generate request: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return Unreachable{Err: fmt.Errorf("build generate request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return Unreachable{Err: fmt.Errorf("call ollama: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Unreachable{Err: fmt.Errorf("read ollama response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return Unreachable{Err: fmt.Errorf("ollama returned %d", resp.StatusCode)}
	}

	var gen generateResponse
	if err := json.Unmarshal(body, &gen); err != nil {
		return ParseFailed{Raw: string(body), Err: fmt.Errorf("decode ollama envelope: %w", err)}
	}
	return Parse(gen.Response)
}

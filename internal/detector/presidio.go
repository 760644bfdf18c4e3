package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// PresidioDetector calls a Presidio analyzer's POST /analyze endpoint.
type PresidioDetector struct {
	baseURL        string
	language       string
	scoreThreshold float64
	client         *http.Client
}

type PresidioOption func(*PresidioDetector)

func WithHTTPClient(c *http.Client) PresidioOption {
	return func(p *PresidioDetector) {
		if c != nil {
			p.client = c
		}
	}
}

func NewPresidioDetector(baseURL, language string, scoreThreshold float64, opts ...PresidioOption) *PresidioDetector {
	if language == "" {
		language = "en"
	}
	p := &PresidioDetector{
		baseURL:        strings.TrimRight(baseURL, "/"),
		language:       language,
		scoreThreshold: scoreThreshold,
		client:         &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type analyzeRequest struct {
	Text           string  `json:"text"`
	Language       string  `json:"language"`
	ScoreThreshold float64 `json:"score_threshold,omitempty"`
}

type analyzeResult struct {
	EntityType string  `json:"entity_type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float64 `json:"score"`
}

// Detect analyzes text. Presidio reports code point offsets; they are
// converted to byte offsets here.
func (p *PresidioDetector) Detect(ctx context.Context, text string) ([]Entity, error) {
	body, err := json.Marshal(analyzeRequest{Text: text, Language: p.language, ScoreThreshold: p.scoreThreshold})
	if err != nil {
		return nil, fmt.Errorf("marshal analyze request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call presidio analyzer: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("presidio analyzer returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var results []analyzeResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decode analyze response: %w", err)
	}

	offsets := runeToByteOffsets(text)
	entities := make([]Entity, 0, len(results))
	for _, r := range results {
		if r.Start < 0 || r.End >= len(offsets) || r.Start >= r.End {
			continue
		}
		start, end := offsets[r.Start], offsets[r.End]
		entities = append(entities, Entity{
			Start:      start,
			End:        end,
			Type:       r.EntityType,
			Confidence: r.Score,
			Text:       text[start:end],
		})
	}
	return entities, nil
}

// runeToByteOffsets maps code point index i to its byte offset; the final
// element is len(text).
func runeToByteOffsets(text string) []int {
	offsets := make([]int, 0, utf8.RuneCountInString(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	return append(offsets, len(text))
}

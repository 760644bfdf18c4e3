package redaction

import "ironclad/internal/detector"

// Summary aggregates detector confidence over the redacted spans.
type Summary struct {
	Count  int            `json:"count"`
	Min    float64        `json:"min"`
	Max    float64        `json:"max"`
	Mean   float64        `json:"mean"`
	ByType map[string]int `json:"by_type"`
	Scores []float64      `json:"-"`
}

// Summarize computes the summary; an empty input yields zero values.
func Summarize(spans []detector.Entity) Summary {
	s := Summary{ByType: make(map[string]int), Scores: make([]float64, 0, len(spans))}
	if len(spans) == 0 {
		return s
	}
	s.Min, s.Max = spans[0].Confidence, spans[0].Confidence
	var total float64
	for _, e := range spans {
		s.Count++
		s.ByType[e.Type]++
		s.Scores = append(s.Scores, e.Confidence)
		total += e.Confidence
		s.Min = min(s.Min, e.Confidence)
		s.Max = max(s.Max, e.Confidence)
	}
	s.Mean = total / float64(s.Count)
	return s
}

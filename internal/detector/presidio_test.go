package detector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresidioDetector(t *testing.T) {
	var got analyzeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analyze", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		// "José Smith" starts at code point 0 and is 10 code points long
		_ = json.NewEncoder(w).Encode([]analyzeResult{
			{EntityType: TypePerson, Start: 0, End: 10, Score: 0.85},
			{EntityType: TypeSSN, Start: 15, End: 26, Score: 0.95},
			{EntityType: "BOGUS", Start: 30, End: 200, Score: 0.5},
		})
	}))
	defer srv.Close()

	text := "José Smith ssn 123-45-6789"
	d := NewPresidioDetector(srv.URL+"/", "en", 0.3)
	entities, err := d.Detect(context.Background(), text)
	require.NoError(t, err)

	assert.Equal(t, text, got.Text)
	assert.Equal(t, "en", got.Language)
	assert.InDelta(t, 0.3, got.ScoreThreshold, 1e-9)

	require.Len(t, entities, 2, "out of range span is dropped")
	assert.Equal(t, "José Smith", entities[0].Text)
	assert.Equal(t, 11, entities[0].End, "byte offset accounts for the two-byte é")
	assert.Equal(t, "123-45-6789", entities[1].Text)
}

func TestPresidioDetectorErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "analyzer exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewPresidioDetector(srv.URL, "", 0).Detect(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

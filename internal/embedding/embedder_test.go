package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aerospike-examples/hybrid-search/pkg/config"
	apperrors "github.com/aerospike-examples/hybrid-search/pkg/errors"
	"github.com/aerospike-examples/hybrid-search/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProvider struct {
	mu    sync.Mutex
	texts []string
	dims  int
	err   error
}

func (r *recordingProvider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	r.mu.Lock()
	r.texts = append(r.texts, texts...)
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, r.dims)
	}
	return out, nil
}

func testConfig() config.EmbeddingConfig {
	return config.EmbeddingConfig{
		DocumentPrefix:   "search_document: ",
		QueryPrefix:      "search_query: ",
		MaxAttempts:      1,
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
	}
}

func TestClient_AppliesTaskPrefixes(t *testing.T) {
	p := &recordingProvider{dims: 4}
	c := NewClient(p, testConfig(), 4, nil)
	ctx := context.Background()

	_, err := c.EmbedDocument(ctx, "TITLE: a")
	require.NoError(t, err)
	_, err = c.EmbedQuery(ctx, "how to batch")
	require.NoError(t, err)

	assert.Equal(t, []string{"search_document: TITLE: a", "search_query: how to batch"}, p.texts)
}

func TestClient_RejectsWrongDimensions(t *testing.T) {
	c := NewClient(&recordingProvider{dims: 3}, testConfig(), 4, nil)

	_, err := c.EmbedQuery(context.Background(), "x")

	assert.ErrorIs(t, err, apperrors.ErrEmbedding)
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.HTTPStatusCode(err))
}

func TestClient_OpensCircuit(t *testing.T) {
	p := &recordingProvider{err: errors.New("connection refused")}
	c := NewClient(p, testConfig(), 4, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := c.EmbedQuery(ctx, "x")
		require.Error(t, err)
	}
	_, err := c.EmbedQuery(ctx, "x")

	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.ErrorIs(t, err, apperrors.ErrEmbedding)
	assert.Len(t, p.texts, 2)
}

func TestDocumentText(t *testing.T) {
	assert.Equal(t, "TITLE: T, DESCRIPTION: D, CONTENT: C", DocumentText("T", "D", "C"))
}

func TestHashProvider_Deterministic(t *testing.T) {
	h := NewHashProvider(8)

	out, err := h.EmbedTexts(context.Background(), []string{"xdr", "xdr", "ttl"})

	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Len(t, out[0], 8)
	assert.Equal(t, out[0], out[1])
	assert.NotEqual(t, out[0], out[2])
	var norm float64
	for _, v := range out[0] {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1, norm, 1e-5)
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(config.EmbeddingConfig{Provider: "bert"}, 4, nil)

	assert.Error(t, err)
}

func TestOpenAIProvider(t *testing.T) {
	var model string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		model, _ = body["model"].(string)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"nomic-embed-text","data":[{"object":"embedding","index":0,"embedding":[0.5,0.25,0.125]}],"usage":{"prompt_tokens":2,"total_tokens":2}}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(config.EmbeddingConfig{BaseURL: srv.URL, Model: "nomic-embed-text"})
	require.NoError(t, err)

	out, err := p.EmbedTexts(context.Background(), []string{"search_query: xdr"})

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []float32{0.5, 0.25, 0.125}, out[0])
	assert.Equal(t, "nomic-embed-text", model)
}

package retrieval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQdrantClient_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/docs_stoic/points/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("api-key"); got != "secret" {
			t.Errorf("expected api-key header, got %q", got)
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["limit"] != float64(6) || body["with_payload"] != true {
			t.Errorf("unexpected body %v", body)
		}

		_, _ = w.Write([]byte(`{"result":[
			{"id": 42, "score": 0.91, "payload": {"text": "Fear is often more painful", "source": "seneca_letters.txt", "offset_start": 10, "offset_end": 40, "timestamp": 1700000000}},
			{"id": "6f1c1b9e-1111-4c55-9b5e-0a0a0a0a0a0a", "score": 0.5},
			{"score": 0.1}
		]}`))
	}))
	defer server.Close()

	c := NewQdrantClient(QdrantConfig{BaseURL: server.URL, APIKey: "secret"}, nil)
	hits, err := c.Search(context.Background(), "docs_stoic", []float32{0.1, 0.2}, 6)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "42", hits[0].ID)
	assert.InDelta(t, 0.91, hits[0].Score, 1e-9)
	assert.Equal(t, "seneca_letters.txt", hits[0].Payload.Source)
	require.NotNil(t, hits[0].Payload.OffsetStart)
	assert.Equal(t, 10, *hits[0].Payload.OffsetStart)
	require.NotNil(t, hits[0].Payload.Timestamp)
	assert.Equal(t, int64(1700000000), hits[0].Payload.Timestamp.Unix())

	assert.Equal(t, "6f1c1b9e-1111-4c55-9b5e-0a0a0a0a0a0a", hits[1].ID)
	assert.Empty(t, hits[1].Payload.Text)
}

func TestQdrantClient_MissingCollection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":{"error":"Not found: Collection docs_x doesn't exist!"}}`))
	}))
	defer server.Close()

	c := NewQdrantClient(QdrantConfig{BaseURL: server.URL}, nil)
	_, err := c.Search(context.Background(), "docs_x", []float32{1}, 3)
	assert.ErrorIs(t, err, ErrNamespaceMissing)
}

func newElasticServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *ElasticClient) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	c, err := NewElasticClient(ElasticConfig{URL: server.URL}, nil)
	require.NoError(t, err)
	return server, c
}

func TestElasticClient_Search(t *testing.T) {
	_, c := newElasticServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/docs_index_stoic/_search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["size"] != float64(6) {
			t.Errorf("unexpected size %v", body["size"])
		}
		_, _ = w.Write([]byte(`{"hits":{"hits":[
			{"_id":"c1","_score":7.5,"_source":{"text":"Seneca on anger","source":"seneca.txt","source_type":"TXT","timestamp":"2024-03-01T00:00:00Z"}},
			{"_id":"c2","_score":null}
		]}}`))
	})

	hits, err := c.Search(context.Background(), "docs_index_stoic", matchText("anger"), 6)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "c1", hits[0].ID)
	assert.Equal(t, 7.5, hits[0].Score)
	assert.Equal(t, "TXT", hits[0].Payload.SourceType)
	require.NotNil(t, hits[0].Payload.Timestamp)
	assert.Equal(t, 2024, hits[0].Payload.Timestamp.Year())
	assert.Equal(t, 0.0, hits[1].Score)
	assert.Empty(t, hits[1].Payload.Text)
}

func TestElasticClient_MissingIndex(t *testing.T) {
	_, c := newElasticServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"index_not_found_exception"},"status":404}`))
	})

	_, err := c.Search(context.Background(), "docs_index_none", matchText("x"), 3)
	assert.ErrorIs(t, err, ErrNamespaceMissing)
}

func TestDomainLister(t *testing.T) {
	_, c := newElasticServer(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/docs_index_") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"docs_index_stoic":{},"docs_index_legal":{}}`))
	})

	domains, err := NewDomainLister(c, "docs_index").ListDomains(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"legal", "stoic"}, domains)
}

func TestOpenAIEmbedder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["model"] != "all-MiniLM-L6-v2" {
			t.Errorf("unexpected model %v", body["model"])
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.25,0.5,0.75]}],"model":"all-MiniLM-L6-v2"}`))
	}))
	defer server.Close()

	e := NewOpenAIEmbedder(EmbedderConfig{BaseURL: server.URL + "/v1", Model: "all-MiniLM-L6-v2", Timeout: 5})
	vec, err := e.Embed(context.Background(), "fear")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, 0.5, 0.75}, vec)
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func TestVectorAgent_EndToEnd(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if strings.Contains(r.URL.Path, "docs_acme") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"result":[{"id":"p1","score":0.8,"payload":{"text":"base hit"}}]}`))
	}))
	defer server.Close()

	a := NewVectorAgent(stubEmbedder{}, NewQdrantClient(QdrantConfig{BaseURL: server.URL, Timeout: 5 * time.Second}, nil),
		Namespaces{BaseCollection: "docs", BaseIndex: "docs_index"}, nil)
	hits, err := a.Search(context.Background(), Request{Query: "fear", Tenant: "acme", TopK: 3})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "p1", hits[0].ID)
	assert.Equal(t, []string{"/collections/docs_acme/points/search", "/collections/docs/points/search"}, paths)
}

package archive

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	// Use a tiny base delay so retry tests finish quickly.
	RetryBaseDelay = 1 * time.Millisecond
}

const sampleSearchJSON = `{
  "response": {
    "numFound": 2,
    "docs": [
      {"identifier": "gd1977-05-08", "title": "Cornell 5/8/77", "creator": "Grateful Dead", "downloads": 123456},
      {"identifier": "beethoven-9th", "title": "Symphony No. 9", "creator": ["Beethoven", "Berlin Phil"], "downloads": 5000}
    ]
  }
}`

func TestSearch(t *testing.T) {
	var gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/advancedsearch.php", r.URL.Path)

		params := r.URL.Query()
		gotQuery = params.Get("q")
		assert.Equal(t, "20", params.Get("rows"))
		assert.Equal(t, "1", params.Get("page"))
		assert.Equal(t, "json", params.Get("output"))
		assert.Equal(t, []string{"downloads desc"}, params["sort[]"])
		assert.ElementsMatch(t, []string{"identifier", "title", "creator", "downloads"}, params["fl[]"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleSearchJSON))
	}))
	defer ts.Close()

	c := New(ts.URL, 0, "")
	docs, err := c.Search(context.Background(), "Beethoven", 20)
	require.NoError(t, err)

	assert.Contains(t, gotQuery, "(Beethoven)")
	assert.Contains(t, gotQuery, "mediatype:(audio)")
	assert.Contains(t, gotQuery, "licenseurl:[* TO *]")

	require.Len(t, docs, 2)
	assert.Equal(t, "gd1977-05-08", docs[0].Identifier)
	assert.Equal(t, "Grateful Dead", docs[0].Creator.Join())
	assert.Equal(t, 123456, docs[0].Downloads)
	assert.Equal(t, "Beethoven, Berlin Phil", docs[1].Creator.Join())
}

func TestSearchUpstreamError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := New(ts.URL, 0, "")
	_, err := c.Search(context.Background(), "anything", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 500")
}

func TestSearchMalformedBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer ts.Close()

	c := New(ts.URL, 0, "")
	_, err := c.Search(context.Background(), "anything", 10)
	require.Error(t, err)
}

const sampleMetadataJSON = `{
  "files": [
    {"name": "cover.jpg", "format": "JPEG"},
    {"name": "track01.mp3", "format": "VBR MP3", "source": "original", "size": "4194304"}
  ],
  "metadata": {"title": "Cornell 5/8/77", "creator": ["Grateful Dead"]}
}`

func TestMetadata(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/metadata/gd1977-05-08", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleMetadataJSON))
	}))
	defer ts.Close()

	c := New(ts.URL, 0, "")
	item, err := c.Metadata(context.Background(), "gd1977-05-08")
	require.NoError(t, err)

	require.Len(t, item.Files, 2)
	assert.Equal(t, "track01.mp3", item.Files[1].Name)
	assert.Equal(t, "VBR MP3", item.Files[1].Format)
	assert.Equal(t, "Cornell 5/8/77", item.Metadata.Title)
	assert.Equal(t, "Grateful Dead", item.Metadata.Creator.Join())
}

func TestMetadataNotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	c := New(ts.URL, 0, "")
	_, err := c.Metadata(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
}

func TestStringListUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    StringList
		wantErr bool
	}{
		{"single string", `"Grateful Dead"`, StringList{"Grateful Dead"}, false},
		{"list", `["a", "b"]`, StringList{"a", "b"}, false},
		{"null", `null`, nil, false},
		{"empty list", `[]`, StringList{}, false},
		{"number", `42`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got StringList
			err := json.Unmarshal([]byte(tt.input), &got)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDoWithRetryOn429(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	require.NoError(t, err)

	resp, err := DoWithRetry(context.Background(), ts.Client(), req, 0)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDoWithRetryExhausted(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	require.NoError(t, err)

	resp, err := DoWithRetry(context.Background(), ts.Client(), req, 2)
	require.NoError(t, err)
	defer resp.Body.Close()

	// The last 429 comes back for the caller to inspect.
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

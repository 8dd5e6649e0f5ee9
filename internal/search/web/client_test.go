package web

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchHTMLScrapesPages(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/html/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "cold exposure", r.URL.Query().Get("q"))
		fmt.Fprintf(w, `<html><body>
			<div class="result"><a class="result__a" href="%[1]s/page1">Cold plunge study</a><a class="result__snippet">snippet one</a></div>
			<div class="result"><a class="result__a" href="%[1]s/missing">Broken link</a><a class="result__snippet">snippet two</a></div>
			<div class="result"><a class="result__a" href="%[1]s/page3">Third</a></div>
		</body></html>`, srv.URL)
	})
	mux.HandleFunc("/page1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><script>var x;</script></head><body><nav>menu</nav><p>Dopamine   rises
			by 250 percent.</p></body></html>`)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	c := NewClient(Config{HTMLSearchURL: srv.URL + "/html/"})
	results, err := c.Search(context.Background(), "cold exposure", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "Cold plunge study", results[0].Title)
	assert.Equal(t, "Dopamine rises by 250 percent.", results[0].Content)
	assert.Equal(t, "snippet two", results[1].Content)
}

func TestSearchWithSerpAPI(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.URL.Query().Get("api_key"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"organic_results":[{"title":"A","link":"%s/a","snippet":"sa"}]}`, srv.URL)
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>page a</body></html>`)
	})

	c := NewClient(Config{SerpAPIKey: "key", SerpAPIURL: srv.URL + "/search"})
	results, err := c.Search(context.Background(), "q", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "page a", results[0].Content)
}

func TestSearchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(Config{HTMLSearchURL: srv.URL})
	_, err := c.Search(context.Background(), "q", 3)
	assert.Error(t, err)
}

package webfetch

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch_ExtractsVisibleTextAndDropsScriptsAndStyles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><style>.x{color:red}</style></head>
			<body><script>var x = 1;</script><p>Hello world</p></body></html>`))
	}))
	defer server.Close()

	client := New(5 * time.Second)
	text, err := client.Fetch(t.Context(), server.URL)
	require.NoError(t, err)
	assert.Contains(t, text, "Hello world")
	assert.NotContains(t, text, "color:red")
	assert.NotContains(t, text, "var x")
}

func TestFetch_NonOKStatusIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := New(5 * time.Second)
	_, err := client.Fetch(t.Context(), server.URL)
	assert.Error(t, err)
}

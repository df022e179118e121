package net

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://example.com/creditcard.csv"))
	assert.True(t, IsURL("http://localhost:8080/a.csv"))
	assert.False(t, IsURL("creditcard.csv"))
	assert.False(t, IsURL("-"))
	assert.False(t, IsURL("ftp://example.com/a.csv"))
}

func TestFetch(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/data.csv":
			assert.Equal(t, clientAgent, r.Header.Get("User-Agent"))
			_, _ = io.WriteString(w, "Time,Amount\n1,2\n")
		case "/broken.csv":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer s.Close()

	body, err := Fetch(t.Context(), s.Client(), s.URL+"/data.csv")
	require.NoError(t, err)
	b, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())
	assert.Equal(t, "Time,Amount\n1,2\n", string(b))

	_, err = Fetch(t.Context(), s.Client(), s.URL+"/missing.csv")
	assert.ErrorIs(t, err, ErrorURLNotFound)

	_, err = Fetch(t.Context(), nil, s.URL+"/broken.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestFetch_InvalidURL(t *testing.T) {
	_, err := Fetch(t.Context(), nil, "http://[::1")
	assert.Error(t, err)
}

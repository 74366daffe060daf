package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	var dest struct {
		Name string `json:"name"`
	}

	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"test"}`))
	err := ParseJSON(r, &dest)
	require.NoError(t, err)
	assert.Equal(t, "test", dest.Name)
}

func TestParseJSONInvalid(t *testing.T) {
	var dest struct{}
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{not json`))
	err := ParseJSON(r, &dest)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON")
}

func TestParsePathInt64(t *testing.T) {
	r := httptest.NewRequest("GET", "/notes/42", nil)
	r = mux.SetURLVars(r, map[string]string{"id": "42"})

	val, err := ParsePathInt64(r, "id")
	require.NoError(t, err)
	assert.Equal(t, int64(42), val)
}

func TestParsePathInt64Invalid(t *testing.T) {
	r := httptest.NewRequest("GET", "/notes/abc", nil)
	r = mux.SetURLVars(r, map[string]string{"id": "abc"})

	_, err := ParsePathInt64(r, "id")
	assert.Error(t, err)
}

func TestParsePathInt64Missing(t *testing.T) {
	r := httptest.NewRequest("GET", "/notes", nil)
	_, err := ParsePathInt64(r, "id")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "missing path parameter")
}

func TestQueryInt(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		key      string
		def      int
		expected int
	}{
		{"present", "/?page=3", "page", 1, 3},
		{"absent uses default", "/", "page", 1, 1},
		{"invalid uses default", "/?page=abc", "page", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.url, nil)
			assert.Equal(t, tt.expected, QueryInt(r, tt.key, tt.def))
		})
	}
}

func TestBearerToken(t *testing.T) {
	t.Run("header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "Bearer abc123")
		assert.Equal(t, "abc123", BearerToken(r, "session"))
	})

	t.Run("malformed header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "Basic abc123")
		assert.Equal(t, "", BearerToken(r, "session"))
	})

	t.Run("cookie fallback", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.AddCookie(&http.Cookie{Name: "session", Value: "cookietoken"})
		assert.Equal(t, "cookietoken", BearerToken(r, "session"))
	})

	t.Run("header wins over cookie", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "Bearer fromheader")
		r.AddCookie(&http.Cookie{Name: "session", Value: "fromcookie"})
		assert.Equal(t, "fromheader", BearerToken(r, "session"))
	})

	t.Run("neither", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		assert.Equal(t, "", BearerToken(r, "session"))
	})
}

func TestRequireNonEmpty(t *testing.T) {
	rec := httptest.NewRecorder()
	assert.True(t, RequireNonEmpty(rec, "value", "name"))

	rec = httptest.NewRecorder()
	assert.False(t, RequireNonEmpty(rec, "  ", "name"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

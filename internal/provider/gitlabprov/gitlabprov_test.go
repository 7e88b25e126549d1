package gitlabprov

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k8scat/git-mirror/internal/provider"
)

func TestEnumerateSingleGroup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v4/groups/42/projects":
			w.Write([]byte(`[{"description":"origin: git@upstream.example.com:a/b.git\n","web_url":"https://gitlab.example.com/a/b","ssh_url_to_repo":"git@gitlab.example.com:a/b.git","http_url_to_repo":"https://gitlab.example.com/a/b.git"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p := New(Config{URL: srv.URL, Group: "42"})
	entries, err := p.Enumerate(t.Context())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, provider.EntryMirror, entries[0].Kind)
	assert.Equal(t, "git@upstream.example.com:a/b.git", entries[0].Mirror.Origin)
}

func TestEnumeratePaginatesUntilNoNextPageHeader(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("page") == "1" {
			w.Header().Set("x-next-page", "2")
			w.Write([]byte(`[{"description":"origin: git@upstream.example.com:a/one.git\n","web_url":"u1","ssh_url_to_repo":"s1","http_url_to_repo":"h1"}]`))
			return
		}
		w.Write([]byte(`[{"description":"origin: git@upstream.example.com:a/two.git\n","web_url":"u2","ssh_url_to_repo":"s2","http_url_to_repo":"h2"}]`))
	}))
	defer srv.Close()

	p := New(Config{URL: srv.URL, Group: "42"})
	entries, err := p.Enumerate(t.Context())
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, 2, calls)
}

func TestEnumerateUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := New(Config{URL: srv.URL, Group: "42"})
	_, err := p.Enumerate(t.Context())
	assert.ErrorContains(t, err, "PRIVATE_TOKEN")
}

func TestEnumerateRecursiveFallsBackOnSubgroupFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v4/groups/42/subgroups":
			w.WriteHeader(http.StatusInternalServerError)
		case "/api/v4/groups/42/projects":
			w.Write([]byte(`[{"description":"origin: git@upstream.example.com:a/b.git\n","web_url":"u","ssh_url_to_repo":"s","http_url_to_repo":"h"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p := New(Config{URL: srv.URL, Group: "42", Recursive: true})
	entries, err := p.Enumerate(t.Context())
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestLabel(t *testing.T) {
	p := New(Config{URL: "https://gitlab.example.com", Group: "42"})
	assert.Equal(t, "https://gitlab.example.com/42", p.Label())
}

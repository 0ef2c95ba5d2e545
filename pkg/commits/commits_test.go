package commits

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForProject(t *testing.T) {
	log := logrus.New()

	fetcher, err := ForProject(log, "none", "")
	require.NoError(t, err)
	assert.IsType(t, noopFetcher{}, fetcher)

	fetcher, err = ForProject(log, "github", "https://github.com/example/interpreter")
	require.NoError(t, err)
	assert.IsType(t, (*githubFetcher)(nil), fetcher)

	_, err = ForProject(log, "svn", "svn://example.com/repo")
	require.Error(t, err)
}

func TestNewGitHubFetcher_URLParsing(t *testing.T) {
	log := logrus.New()

	tests := []struct {
		url     string
		owner   string
		repo    string
		wantErr bool
	}{
		{url: "https://github.com/example/interpreter", owner: "example", repo: "interpreter"},
		{url: "https://github.com/example/interpreter/", owner: "example", repo: "interpreter"},
		{url: "https://github.com/example/interpreter.git", owner: "example", repo: "interpreter"},
		{url: "https://gitlab.com/example/interpreter", wantErr: true},
		{url: "https://github.com/example", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			f, err := newGitHubFetcher(log, tt.url)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.owner, f.owner)
			assert.Equal(t, tt.repo, f.repo)
		})
	}
}

func TestGitHubFetcher_FetchLog(t *testing.T) {
	commits := map[string]string{
		"c2": `{
			"sha": "c2",
			"commit": {
				"message": "Second commit",
				"author": {"name": "Dev", "date": "2026-01-02T00:00:00Z"}
			},
			"parents": [{"sha": "c1"}]
		}`,
		"c1": `{
			"sha": "c1",
			"commit": {
				"message": "First commit",
				"author": {"name": "Dev", "date": "2026-01-01T00:00:00Z"}
			},
			"parents": []
		}`,
	}

	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			sha := r.URL.Path[len("/repos/example/interpreter/commits/"):]

			body, ok := commits[sha]
			if !ok {
				w.WriteHeader(http.StatusNotFound)

				return
			}

			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, body)
		},
	))
	t.Cleanup(srv.Close)

	f, err := newGitHubFetcher(logrus.New(), "https://github.com/example/interpreter")
	require.NoError(t, err)

	f.base = srv.URL

	logs, err := f.FetchLog(context.Background(), "c1", "c2")
	require.NoError(t, err)
	require.Len(t, logs, 2)

	assert.Equal(t, "c2", logs[0].CommitID)
	assert.Equal(t, "Second commit", logs[0].Message)
	assert.Equal(t, "Dev", logs[0].Author)
	assert.False(t, logs[0].Date.IsZero())
	assert.Equal(t, "c1", logs[1].CommitID)

	// A single-commit request stops at the starting commit.
	single, err := f.FetchLog(context.Background(), "c2", "c2")
	require.NoError(t, err)
	require.Len(t, single, 1)

	_, err = f.FetchLog(context.Background(), "c0", "missing")
	require.Error(t, err)
}

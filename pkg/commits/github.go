package commits

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	githubAPIBase = "https://api.github.com"

	githubRequestTimeout = 10 * time.Second
)

// githubURLRe extracts the owner and repository from a GitHub repo URL.
var githubURLRe = regexp.MustCompile(
	`^\w+://github\.com/(?P<owner>[^/]+)/(?P<repo>[^/.]+)(\.git)?/?$`,
)

// githubFetcher reads commit metadata from the GitHub REST API, so the
// server needs neither a git binary nor a working copy.
type githubFetcher struct {
	log    logrus.FieldLogger
	client *http.Client
	base   string
	owner  string
	repo   string
}

// Ensure interface compliance.
var _ Fetcher = (*githubFetcher)(nil)

func newGitHubFetcher(
	log logrus.FieldLogger, repoPath string,
) (*githubFetcher, error) {
	m := githubURLRe.FindStringSubmatch(repoPath)
	if m == nil {
		return nil, fmt.Errorf("unrecognized github repository url: %s", repoPath)
	}

	return &githubFetcher{
		log:    log.WithField("component", "commits.github"),
		client: &http.Client{Timeout: githubRequestTimeout},
		base:   githubAPIBase,
		owner:  m[githubURLRe.SubexpIndex("owner")],
		repo:   m[githubURLRe.SubexpIndex("repo")],
	}, nil
}

// githubCommit is the subset of the GitHub commits API response we read.
type githubCommit struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message string `json:"message"`
		Author  struct {
			Name string `json:"name"`
			Date string `json:"date"`
		} `json:"author"`
	} `json:"commit"`
	Parents []struct {
		SHA string `json:"sha"`
	} `json:"parents"`
}

// fetchLimit bounds how far FetchLog walks first-parent history when the
// starting commit is not reached.
const fetchLimit = 10

// FetchLog walks first-parent history from toCommit back to fromCommit,
// inclusive, newest first.
func (g *githubFetcher) FetchLog(
	ctx context.Context, fromCommit, toCommit string,
) ([]CommitInfo, error) {
	logs := make([]CommitInfo, 0, 1)
	sha := toCommit

	for i := 0; i < fetchLimit && sha != ""; i++ {
		commit, err := g.fetchCommit(ctx, sha)
		if err != nil {
			return nil, err
		}

		info := CommitInfo{
			CommitID: commit.SHA,
			Author:   commit.Commit.Author.Name,
			Message:  commit.Commit.Message,
		}

		if t, err := time.Parse(
			time.RFC3339, commit.Commit.Author.Date,
		); err == nil {
			info.Date = t
		}

		logs = append(logs, info)

		if commit.SHA == fromCommit {
			return logs, nil
		}

		sha = ""
		if len(commit.Parents) > 0 {
			sha = commit.Parents[0].SHA
		}
	}

	if len(logs) == 0 {
		return nil, fmt.Errorf("commit %s not found", toCommit)
	}

	return logs, nil
}

// fetchCommit retrieves a single commit by SHA.
func (g *githubFetcher) fetchCommit(
	ctx context.Context, sha string,
) (*githubCommit, error) {
	url := fmt.Sprintf(
		"%s/repos/%s/%s/commits/%s", g.base, g.owner, g.repo, sha,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building github request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching commit %s: %w", sha, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf(
			"fetching commit %s: unexpected status %d", sha, resp.StatusCode,
		)
	}

	var commit githubCommit
	if err := json.NewDecoder(resp.Body).Decode(&commit); err != nil {
		return nil, fmt.Errorf("decoding commit %s: %w", sha, err)
	}

	return &commit, nil
}

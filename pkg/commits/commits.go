// Package commits retrieves commit metadata for incoming revisions. Each
// repository type is a variant behind the Fetcher interface, selected once
// per project.
package commits

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// CommitInfo is the metadata attached to one commit.
type CommitInfo struct {
	CommitID string
	Tag      string
	Date     time.Time
	Author   string
	Message  string
}

// Fetcher retrieves the commit log between two commits, inclusive.
// FetchLog(ctx, c, c) retrieves the metadata of a single commit.
type Fetcher interface {
	FetchLog(ctx context.Context, fromCommit, toCommit string) ([]CommitInfo, error)
}

// ForProject returns the fetcher for a project's repository type.
func ForProject(
	log logrus.FieldLogger, repoType, repoPath string,
) (Fetcher, error) {
	switch repoType {
	case "github":
		return newGitHubFetcher(log, repoPath)
	case "none", "":
		return noopFetcher{}, nil
	default:
		return nil, fmt.Errorf("unsupported repository type: %s", repoType)
	}
}

package commits

import "context"

// noopFetcher is the variant for projects without repository access.
type noopFetcher struct{}

// Ensure interface compliance.
var _ Fetcher = noopFetcher{}

func (noopFetcher) FetchLog(
	_ context.Context, _, _ string,
) ([]CommitInfo, error) {
	return nil, nil
}

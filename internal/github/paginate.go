// internal/github/paginate.go
package github

import "context"

// fetchAllPages drains a page-numbered listing endpoint into one slice.
// Pages are requested starting at 1 and fetching stops when a page comes
// back empty, shorter than perPage, or when maxPages has been reached
// (maxPages <= 0 means no cap).
//
// The short-page stop is a heuristic, not an authoritative end-of-results
// signal: it is only correct when the upstream returns full pages everywhere
// except the last one. That holds for GitHub's REST listing endpoints but
// not for APIs that filter server-side after paginating. Callers with access
// to an authoritative next-page signal should prefer it.
func fetchAllPages[T any](ctx context.Context, perPage, maxPages int, fetch func(page int) ([]T, error)) ([]T, error) {
	var all []T

	for page := 1; maxPages <= 0 || page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return all, err
		}

		items, err := fetch(page)
		if err != nil {
			return all, err
		}
		if len(items) == 0 {
			break
		}

		all = append(all, items...)

		if len(items) < perPage {
			break
		}
	}

	return all, nil
}

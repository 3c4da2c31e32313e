// internal/github/paginate_test.go
package github

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPage(start, n int) []int {
	page := make([]int, n)
	for i := range page {
		page[i] = start + i
	}
	return page
}

func TestFetchAllPages(t *testing.T) {
	ctx := context.Background()

	t.Run("stops on short page", func(t *testing.T) {
		pages := map[int][]int{
			1: intPage(0, 3),
			2: intPage(3, 2), // short: last page
			3: intPage(5, 3), // must never be requested
		}
		var requested []int

		items, err := fetchAllPages(ctx, 3, 0, func(page int) ([]int, error) {
			requested = append(requested, page)
			return pages[page], nil
		})

		require.NoError(t, err)
		assert.Equal(t, intPage(0, 5), items)
		assert.Equal(t, []int{1, 2}, requested)
	})

	t.Run("stops on empty page", func(t *testing.T) {
		pages := map[int][]int{
			1: intPage(0, 3),
			2: {},
		}

		items, err := fetchAllPages(ctx, 3, 0, func(page int) ([]int, error) {
			return pages[page], nil
		})

		require.NoError(t, err)
		assert.Len(t, items, 3)
	})

	t.Run("stops at the page cap even when pages stay full", func(t *testing.T) {
		var requested int

		items, err := fetchAllPages(ctx, 2, 3, func(page int) ([]int, error) {
			requested++
			return intPage(page*2, 2), nil
		})

		require.NoError(t, err)
		assert.Len(t, items, 6)
		assert.Equal(t, 3, requested)
	})

	t.Run("returns items fetched before a page error", func(t *testing.T) {
		pageErr := errors.New("boom")

		items, err := fetchAllPages(ctx, 2, 0, func(page int) ([]int, error) {
			if page == 2 {
				return nil, pageErr
			}
			return intPage(0, 2), nil
		})

		assert.ErrorIs(t, err, pageErr)
		assert.Len(t, items, 2)
	})

	t.Run("honors context cancellation", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := fetchAllPages(cancelled, 2, 0, func(page int) ([]int, error) {
			t.Fatal("fetch should not run after cancellation")
			return nil, nil
		})

		assert.ErrorIs(t, err, context.Canceled)
	})
}

package doctor

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// CheckFunc verifies that an account's credentials work.
type CheckFunc func(ctx context.Context, accountID int64) error

// CheckResult is the outcome of checking one account.
type CheckResult struct {
	AccountID int64
	Err       error
	Duration  time.Duration
}

// CheckAccounts runs check for every id, at most limit at a time, and
// returns results in the order of ids. Individual failures are reported in
// the results; the returned error is only the context's.
func CheckAccounts(ctx context.Context, ids []int64, limit int, check CheckFunc) ([]CheckResult, error) {
	results := make([]CheckResult, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, id := range ids {
		g.Go(func() error {
			start := time.Now()
			err := check(gctx, id)
			results[i] = CheckResult{AccountID: id, Err: err, Duration: time.Since(start)}
			return nil
		})
	}
	g.Wait()
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

// Failed returns the failed results sorted by account id.
func Failed(results []CheckResult) []CheckResult {
	var out []CheckResult
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}

package notify

import "context"

// Source feeds row changes from an external change feed into a Hub. Run
// blocks until ctx is done or the feed fails.
type Source interface {
	Run(ctx context.Context) error
}

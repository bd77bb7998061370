// Package releases keeps stored media blobs whose deletion failed so they
// can be retried later instead of leaking.
package releases

import (
	"context"

	"github.com/Cybrite/your-tube/internal/server/models"
)

type Repository interface {
	// Enqueue records key for a later release. Enqueuing a key twice keeps
	// one row and refreshes its error.
	Enqueue(ctx context.Context, key, reason string) error
	// Due returns up to limit pending releases, least recently tried first.
	Due(ctx context.Context, limit int) ([]models.PendingRelease, error)
	Done(ctx context.Context, id int64) error
	Failed(ctx context.Context, id int64, reason string) error
}

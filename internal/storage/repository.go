package storage

import (
	"context"

	"linkshelf/internal/domain"
)

// Repository defines the interface for link storage operations.
// Every operation is scoped to the owning user; there is no cross-user path.
// Implementations are selected once at startup (see Open).
type Repository interface {
	// List returns all links of a user, newest first.
	List(ctx context.Context, userID string) ([]domain.Link, error)

	// Subscribe delivers the user's full ordered set to fn before returning
	// and again after every change. Deliveries are sequential and in fetch
	// order; fn must not call Close on the returned subscription directly.
	Subscribe(ctx context.Context, userID string, fn func([]domain.Link)) (*Subscription, error)

	// Add assigns a new id, applies the persistence invariants and stores link.
	Add(ctx context.Context, userID string, link domain.Link) (string, error)

	// Update applies only the fields set in u. Unknown ids are ignored.
	Update(ctx context.Context, userID, id string, u domain.LinkUpdate) error

	// Delete removes a link. Deleting an absent id is not an error.
	Delete(ctx context.Context, userID, id string) error

	// Close gracefully shuts down the repository.
	Close() error
}

// SnapshotCache keeps the last known full set of a user on the device.
type SnapshotCache interface {
	LoadSnapshot(userID string) ([]domain.Link, error)
	SaveSnapshot(userID string, links []domain.Link) error
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"linkshelf/internal/domain"
)

// dbtx is the subset of *sql.DB the repository uses.
type dbtx interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Close() error
}

// PostgresRepository implements Repository on a remote PostgreSQL database.
type PostgresRepository struct {
	db        dbtx
	feed      ChangeFeed
	snapshots SnapshotCache
	log       logrus.FieldLogger
	now       func() time.Time
}

// NewPostgresRepository creates a repository over db. feed and snapshots may be nil.
func NewPostgresRepository(db dbtx, feed ChangeFeed, snapshots SnapshotCache, logger logrus.FieldLogger) *PostgresRepository {
	return &PostgresRepository{
		db:        db,
		feed:      feed,
		snapshots: snapshots,
		log:       logger.WithField("component", "remote_repository"),
		now:       time.Now,
	}
}

// Close shuts down the change feed, the connection pool and the snapshot cache.
func (r *PostgresRepository) Close() error {
	r.log.Info("Closing remote repository...")
	var errs []string
	if c, ok := r.feed.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := r.db.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if c, ok := r.snapshots.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to close remote repository: %s", strings.Join(errs, "; "))
	}
	return nil
}

// List retrieves all links for a user, newest first.
func (r *PostgresRepository) List(ctx context.Context, userID string) ([]domain.Link, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+linkColumns+` FROM links WHERE user_id = $1 ORDER BY createdat DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query links for user %s: %w", userID, err)
	}
	defer rows.Close()

	links := []domain.Link{}
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, fromRow(row))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate links: %w", err)
	}
	return links, nil
}

// Subscribe delivers the user's links now and after every change notification.
// A failed fetch delivers the last snapshot stored on the device instead.
func (r *PostgresRepository) Subscribe(ctx context.Context, userID string, fn func([]domain.Link)) (*Subscription, error) {
	log := r.log.WithField("user_id", userID)

	var changes <-chan struct{}
	var unlisten func()
	if r.feed != nil {
		var err error
		changes, unlisten, err = r.feed.Listen(userID)
		if err != nil {
			log.WithError(err).Warn("Failed to listen for link changes, delivering a single snapshot")
			changes, unlisten = nil, nil
		}
	}

	sub, err := watch(ctx, changes, func(ctx context.Context) ([]domain.Link, error) {
		return r.fetch(ctx, userID), nil
	}, fn, log)
	if err != nil {
		if unlisten != nil {
			unlisten()
		}
		return nil, err
	}
	sub.onStop = unlisten
	return sub, nil
}

// fetch lists the user's links, keeping the device snapshot in step. On
// failure the snapshot is returned.
func (r *PostgresRepository) fetch(ctx context.Context, userID string) []domain.Link {
	log := r.log.WithField("user_id", userID)

	links, err := r.List(ctx, userID)
	if err == nil {
		if r.snapshots != nil {
			if err := r.snapshots.SaveSnapshot(userID, links); err != nil {
				log.WithError(err).Warn("Failed to refresh local snapshot")
			}
		}
		return links
	}

	log.WithError(err).Error("Remote fetch failed, using local snapshot")
	if r.snapshots == nil {
		return []domain.Link{}
	}
	cached, cerr := r.snapshots.LoadSnapshot(userID)
	if cerr != nil {
		log.WithError(cerr).Error("Failed to load local snapshot")
		return []domain.Link{}
	}
	return cached
}

// Add inserts a new link and returns its id.
func (r *PostgresRepository) Add(ctx context.Context, userID string, link domain.Link) (string, error) {
	link.ID = uuid.NewString()
	link.Prepare(r.now())

	log := r.log.WithFields(logrus.Fields{
		"user_id": userID,
		"link_id": link.ID,
		"url":     link.URL,
	})

	var id string
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO links (`+linkColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		toRow(userID, link).args()...,
	).Scan(&id)
	if err != nil {
		log.WithError(err).Error("Failed to insert link")
		return "", fmt.Errorf("failed to save link: %w", err)
	}

	log.Info("Link saved successfully")
	return id, nil
}

// Update sets only the columns for fields present in u.
func (r *PostgresRepository) Update(ctx context.Context, userID, id string, u domain.LinkUpdate) error {
	log := r.log.WithFields(logrus.Fields{
		"user_id": userID,
		"link_id": id,
	})

	cols, args := updateColumns(u)
	if len(cols) == 0 {
		return nil
	}

	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", c, i+1)
	}
	query := fmt.Sprintf(`UPDATE links SET %s WHERE id = $%d AND user_id = $%d`,
		strings.Join(sets, ", "), len(cols)+1, len(cols)+2)

	if _, err := r.db.ExecContext(ctx, query, append(args, id, userID)...); err != nil {
		log.WithError(err).Error("Update failed")
		return fmt.Errorf("failed to update link %s: %w", id, err)
	}

	log.Info("Link updated successfully")
	return nil
}

// Delete removes a link. Missing ids affect no rows and are not an error.
func (r *PostgresRepository) Delete(ctx context.Context, userID, id string) error {
	log := r.log.WithFields(logrus.Fields{
		"user_id": userID,
		"link_id": id,
	})

	if _, err := r.db.ExecContext(ctx, `DELETE FROM links WHERE id = $1 AND user_id = $2`, id, userID); err != nil {
		log.WithError(err).Error("Delete failed")
		return fmt.Errorf("failed to delete link %s: %w", id, err)
	}

	log.Info("Link deleted successfully")
	return nil
}

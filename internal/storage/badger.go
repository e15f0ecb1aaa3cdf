package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"linkshelf/internal/domain"
)

// BadgerRepository implements Repository on the device using BadgerDB.
// Each user's collection is a single JSON array stored under one key.
type BadgerRepository struct {
	db      *badger.DB
	changes *fanout
	log     logrus.FieldLogger
	now     func() time.Time
}

// NewBadgerRepository creates and initializes a new BadgerDB repository.
// It opens the database at the specified path.
func NewBadgerRepository(dbPath string, logger logrus.FieldLogger) (*BadgerRepository, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = &badgerLogger{logger.WithField("component", "badgerdb")}

	db, err := badger.Open(opts)
	if err != nil {
		logger.WithError(err).Error("Failed to open BadgerDB")
		return nil, fmt.Errorf("failed to open badger db at %s: %w", dbPath, err)
	}
	logger.Info("BadgerDB opened successfully at path: ", dbPath)

	return &BadgerRepository{
		db:      db,
		changes: newFanout(),
		log:     logger.WithField("component", "local_repository"),
		now:     time.Now,
	}, nil
}

// Close closes the BadgerDB database connection.
func (r *BadgerRepository) Close() error {
	r.log.Info("Closing BadgerDB...")
	if err := r.db.Close(); err != nil {
		r.log.WithError(err).Error("Error closing BadgerDB")
		return err
	}
	r.log.Info("BadgerDB closed.")
	return nil
}

// generateLinksKey creates the key holding a user's collection.
// Format: user:{userID}:links
func generateLinksKey(userID string) []byte {
	return []byte(fmt.Sprintf("user:%s:links", userID))
}

func loadLinks(txn *badger.Txn, userID string) ([]domain.Link, error) {
	item, err := txn.Get(generateLinksKey(userID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return []domain.Link{}, nil
	}
	if err != nil {
		return nil, err
	}

	var links []domain.Link
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &links)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal links for user %s: %w", userID, err)
	}
	return links, nil
}

func storeLinks(txn *badger.Txn, userID string, links []domain.Link) error {
	sortNewestFirst(links)
	b, err := json.Marshal(links)
	if err != nil {
		return fmt.Errorf("failed to marshal links: %w", err)
	}
	return txn.SetEntry(badger.NewEntry(generateLinksKey(userID), b))
}

func sortNewestFirst(links []domain.Link) {
	sort.SliceStable(links, func(i, j int) bool {
		return links[i].CreatedAt > links[j].CreatedAt
	})
}

// List retrieves all links for a specific user, newest first.
func (r *BadgerRepository) List(ctx context.Context, userID string) ([]domain.Link, error) {
	log := r.log.WithField("user_id", userID)

	var links []domain.Link
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		links, err = loadLinks(txn, userID)
		return err
	})
	if err != nil {
		log.WithError(err).Error("Failed to retrieve links from BadgerDB")
		return nil, fmt.Errorf("failed to get links for user %s: %w", userID, err)
	}

	sortNewestFirst(links)
	log.WithField("link_count", len(links)).Debug("Links retrieved successfully")
	return links, nil
}

// Subscribe delivers the current set, then the full set again after every
// Add, Update or Delete made through this repository for userID.
func (r *BadgerRepository) Subscribe(ctx context.Context, userID string, fn func([]domain.Link)) (*Subscription, error) {
	ch, stop := r.changes.subscribe(userID)
	sub, err := watch(ctx, ch, func(ctx context.Context) ([]domain.Link, error) {
		return r.List(ctx, userID)
	}, fn, r.log.WithField("user_id", userID))
	if err != nil {
		stop()
		return nil, err
	}
	sub.onStop = stop
	return sub, nil
}

// Add stores a new link and returns its freshly assigned id.
func (r *BadgerRepository) Add(ctx context.Context, userID string, link domain.Link) (string, error) {
	link.ID = uuid.NewString()
	link.Prepare(r.now())

	log := r.log.WithFields(logrus.Fields{
		"user_id": userID,
		"link_id": link.ID,
		"url":     link.URL,
	})

	err := r.db.Update(func(txn *badger.Txn) error {
		links, err := loadLinks(txn, userID)
		if err != nil {
			return err
		}
		return storeLinks(txn, userID, append([]domain.Link{link}, links...))
	})
	if err != nil {
		log.WithError(err).Error("Failed to save link to BadgerDB")
		return "", fmt.Errorf("failed to save link: %w", err)
	}

	log.Info("Link saved successfully")
	r.changes.publish(userID)
	return link.ID, nil
}

// Update applies u to the link with the given id, if it exists.
func (r *BadgerRepository) Update(ctx context.Context, userID, id string, u domain.LinkUpdate) error {
	log := r.log.WithFields(logrus.Fields{
		"user_id": userID,
		"link_id": id,
	})

	found := false
	err := r.db.Update(func(txn *badger.Txn) error {
		links, err := loadLinks(txn, userID)
		if err != nil {
			return err
		}
		for i := range links {
			if links[i].ID == id {
				links[i].Apply(u)
				found = true
			}
		}
		if !found {
			return nil
		}
		return storeLinks(txn, userID, links)
	})
	if err != nil {
		log.WithError(err).Error("Failed to update link in BadgerDB")
		return fmt.Errorf("failed to update link %s for user %s: %w", id, userID, err)
	}

	if !found {
		log.Warn("Attempted to update non-existent link")
		return nil
	}
	log.Info("Link updated successfully")
	r.changes.publish(userID)
	return nil
}

// Delete removes a specific link for a user. Missing ids are ignored.
func (r *BadgerRepository) Delete(ctx context.Context, userID, id string) error {
	log := r.log.WithFields(logrus.Fields{
		"user_id": userID,
		"link_id": id,
	})

	removed := false
	err := r.db.Update(func(txn *badger.Txn) error {
		links, err := loadLinks(txn, userID)
		if err != nil {
			return err
		}
		kept := links[:0]
		for _, l := range links {
			if l.ID != id {
				kept = append(kept, l)
			}
		}
		if len(kept) == len(links) {
			return nil
		}
		removed = true
		return storeLinks(txn, userID, kept)
	})
	if err != nil {
		log.WithError(err).Error("Failed to delete link from BadgerDB")
		return fmt.Errorf("failed to delete link %s for user %s: %w", id, userID, err)
	}

	if !removed {
		log.Debug("Link to delete was not present")
		return nil
	}
	log.Info("Link deleted successfully")
	r.changes.publish(userID)
	return nil
}

// LoadSnapshot returns the last stored set for userID.
func (r *BadgerRepository) LoadSnapshot(userID string) ([]domain.Link, error) {
	return r.List(context.Background(), userID)
}

// SaveSnapshot replaces the stored set for userID.
func (r *BadgerRepository) SaveSnapshot(userID string, links []domain.Link) error {
	cp := append([]domain.Link(nil), links...)
	err := r.db.Update(func(txn *badger.Txn) error {
		return storeLinks(txn, userID, cp)
	})
	if err != nil {
		return fmt.Errorf("failed to save snapshot for user %s: %w", userID, err)
	}
	return nil
}

// --- BadgerDB Internal Logger ---

// badgerLogger adapts logrus.FieldLogger to Badger's logger interface.
type badgerLogger struct {
	logger logrus.FieldLogger
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Errorf(f, v...)
}
func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warningf(f, v...)
}
func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.logger.Infof(f, v...)
}
func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}

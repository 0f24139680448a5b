package store

import (
	"context"

	"github.com/Sghirate/SlackSwarmBot/internal/models"
)

// Store is the durable identity cache: one namespace correlating reviews
// with Slack threads, one correlating Swarm users with Slack member ids.
// Both namespaces are write-once-read-many; Put is an upsert so a retried
// write cannot corrupt an entry. A clean miss returns (nil, nil); a non-nil
// error always means the backing store itself failed.
type Store interface {
	// Threads
	GetThread(ctx context.Context, reviewID int) (*models.ThreadMapping, error)
	PutThread(ctx context.Context, reviewID int, threadTS string) error
	DeleteThread(ctx context.Context, reviewID int) error
	ListThreads(ctx context.Context) ([]*models.ThreadMapping, error)

	// User mappings
	GetUserMapping(ctx context.Context, userID string) (*models.UserMapping, error)
	PutUserMapping(ctx context.Context, userID, slackID string) error
	DeleteUserMapping(ctx context.Context, userID string) error
	ListUserMappings(ctx context.Context) ([]*models.UserMapping, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

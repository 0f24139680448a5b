package relay

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"

	"github.com/Sghirate/SlackSwarmBot/internal/models"
	"github.com/Sghirate/SlackSwarmBot/internal/swarm"
)

// topicPattern matches a "reviews/<id>" topic path, the form Swarm uses to
// attach comments and comment batches to a review.
var topicPattern = regexp.MustCompile(`^reviews/(\d+)$`)

// Resolver maps an activity event to the review it concerns.
type Resolver struct {
	comments swarm.CommentStore
	logger   *slog.Logger
}

// NewResolver builds a Resolver. The logger must not be nil.
func NewResolver(comments swarm.CommentStore, logger *slog.Logger) *Resolver {
	return &Resolver{comments: comments, logger: logger}
}

// ReviewID resolves the review an event belongs to. A return of (0, nil)
// means the event intentionally maps to no review, not an error. A non-nil
// error means a lookup failed; the caller stops without any outbound call.
// Resolution is deterministic: the same payload always yields the same id.
func (r *Resolver) ReviewID(ctx context.Context, event models.ActivityEvent) (int, error) {
	id := 0

	switch event.Kind {
	case models.EventReview:
		// The creation event itself is not threaded; the first real
		// activity opens the thread.
		if event.IsAdd {
			return 0, nil
		}
		id = event.ReviewID
		if id == 0 && event.TargetID != "" {
			parsed, err := strconv.Atoi(event.TargetID)
			if err != nil {
				return 0, nil
			}
			id = parsed
		}

	case models.EventCommentBatch:
		id = matchTopic(event.TargetID)

	case models.EventComment:
		if event.ReviewID > 0 {
			id = event.ReviewID
			break
		}
		commentID, err := strconv.Atoi(event.TargetID)
		if err != nil {
			return 0, nil
		}
		comment, err := r.comments.GetComment(ctx, commentID)
		if err != nil {
			r.logger.Error("comment lookup failed", "comment", commentID, "error", err)
			return 0, fmt.Errorf("resolve comment %d: %w", commentID, err)
		}
		id = matchTopic(comment.Topic)

	default:
		id = event.ReviewID
	}

	if id <= 0 {
		return 0, nil
	}
	return id, nil
}

// matchTopic extracts the review id from a "reviews/<id>" topic path,
// returning 0 when the path has any other shape.
func matchTopic(topic string) int {
	m := topicPattern.FindStringSubmatch(topic)
	if m == nil {
		return 0
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return id
}

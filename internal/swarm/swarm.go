// Package swarm provides read-only access to the review-management
// application's domain objects: reviews, comments, and users.
package swarm

import (
	"context"
	"fmt"
	"strings"

	"github.com/Sghirate/SlackSwarmBot/internal/models"
)

// ReviewStore fetches reviews by id.
type ReviewStore interface {
	GetReview(ctx context.Context, id int) (*models.Review, error)
}

// CommentStore fetches comments by id.
type CommentStore interface {
	GetComment(ctx context.Context, id int) (*models.Comment, error)
}

// UserStore fetches user accounts by id.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// ReviewLink formats a Slack hyperlink to a review page:
// <https://swarm.example.com/reviews/42|42>.
func ReviewLink(host string, reviewID int) string {
	if host != "" && !strings.HasSuffix(host, "/") {
		host += "/"
	}
	return fmt.Sprintf("<%sreviews/%d|%d>", host, reviewID, reviewID)
}

package relay

import (
	"github.com/Sghirate/SlackSwarmBot/internal/models"
)

// mentionActions are the activity actions important enough to ping every
// review participant: reviewer changes, revision/review requests, file
// updates, and approvals.
var mentionActions = map[string]bool{
	"edited reviewers on":         true,
	"requested":                   true,
	"requested revisions to":      true,
	"requested further review of": true,
	"updated files in":            true,
	"approved":                    true,
}

// composeBody produces the notification text for an event, without
// mentions. Deterministic in (kind, action, link).
func composeBody(event models.ActivityEvent, link string) string {
	switch event.Kind {
	case models.EventCommentBatch:
		return "Comments added to Review " + link
	case models.EventCommit:
		return "Committed Review " + link
	default:
		if event.Action == "" {
			return "Updated Review " + link
		}
		return event.Action + " Review " + link
	}
}

// shouldMention reports whether the event's action warrants pinging the
// review participants.
func shouldMention(action string) bool {
	return mentionActions[action]
}

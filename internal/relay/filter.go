package relay

import "github.com/Sghirate/SlackSwarmBot/internal/models"

// handledKinds is the set of activity events that can produce a
// notification. Everything else is dropped before any lookup happens.
var handledKinds = map[models.EventKind]bool{
	models.EventReview:       true,
	models.EventComment:      true,
	models.EventCommentBatch: true,
	models.EventCommit:       true,
}

// ignoredActions are activity actions that carry no reviewer-facing value:
// membership churn, notification toggles, and comment archival.
var ignoredActions = map[string]bool{
	"disabled notifications on":   true,
	"re-enabled notifications on": true,
	"joined":                      true,
	"left":                        true,
	"updated":                     true,
	"archived comment on":         true,
	"unarchived comment on":       true,
}

// ShouldProcess decides whether an event continues toward delivery. Pure
// predicate: unhandled kind, ignored action, or a quiet (batched) event all
// stop processing.
func ShouldProcess(kind models.EventKind, action string, quiet bool) bool {
	if !handledKinds[kind] {
		return false
	}
	if action != "" && ignoredActions[action] {
		return false
	}
	if quiet {
		return false
	}
	return true
}

package models

// EventKind identifies the class of an inbound Swarm activity event.
type EventKind string

const (
	EventReview       EventKind = "task.review"
	EventComment      EventKind = "task.comment"
	EventCommentBatch EventKind = "task.comment.batch"
	EventCommit       EventKind = "task.commit"
)

// ActivityEvent is one inbound activity notification from the Swarm event
// bus. TargetID carries whatever the event identifies: a review id, a
// comment id, or a "reviews/<id>" topic path, depending on Kind.
type ActivityEvent struct {
	Kind     EventKind `json:"kind"`
	ReviewID int       `json:"review_id,omitempty"`
	TargetID string    `json:"target_id,omitempty"`
	Action   string    `json:"action,omitempty"`
	UserID   string    `json:"user_id,omitempty"`
	Quiet    bool      `json:"quiet,omitempty"`
	IsAdd    bool      `json:"is_add,omitempty"`
}

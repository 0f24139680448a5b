package models

import "time"

// ThreadMapping correlates a review with its Slack conversation thread.
// Written once when the thread is opened, then reused for every later event.
type ThreadMapping struct {
	ReviewID  int
	ThreadTS  string
	CreatedAt time.Time
}

// UserMapping correlates a Swarm user id with a Slack member id. Entries are
// never expired by the relay; see `swarmbot users forget` for manual repair.
type UserMapping struct {
	UserID    string
	SlackID   string
	CreatedAt time.Time
}

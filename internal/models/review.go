package models

// Review is a Swarm code review, read-only to this service.
type Review struct {
	ID           int      `json:"id"`
	AuthorID     string   `json:"author"`
	Description  string   `json:"description"`
	Participants []string `json:"participants"`
}

// Comment is a Swarm comment. Topic links it to the entity it was left on,
// e.g. "reviews/42".
type Comment struct {
	ID    int    `json:"id"`
	Topic string `json:"topic"`
	Body  string `json:"body"`
	User  string `json:"user"`
}

// User is a Swarm user account.
type User struct {
	ID        string `json:"User"`
	Email     string `json:"Email"`
	FullName  string `json:"FullName"`
	AvatarURI string `json:"avatar,omitempty"`
}

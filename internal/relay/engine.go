// Package relay is the thread-correlation and delivery engine: it filters
// inbound Swarm activity events, maps each one to a review, correlates the
// review with a persistent Slack thread, and delivers the notification.
package relay

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Sghirate/SlackSwarmBot/internal/models"
	"github.com/Sghirate/SlackSwarmBot/internal/slack"
	"github.com/Sghirate/SlackSwarmBot/internal/store"
	"github.com/Sghirate/SlackSwarmBot/internal/swarm"
)

// headerEditAction triggers a thread-header refresh (compared
// case-insensitively).
const headerEditAction = "updated description of"

// ChatClient is the outbound Slack surface the engine needs. Implemented by
// *slack.Client; faked in tests.
type ChatClient interface {
	PostMessage(ctx context.Context, threadTS, text string, imp *slack.Impersonation) (string, error)
	EditMessage(ctx context.Context, threadTS, text string) error
	LookupUserByEmail(ctx context.Context, email string) (string, error)
}

// Status classifies what happened to one event.
type Status string

const (
	// StatusDelivered means the notification reached Slack.
	StatusDelivered Status = "delivered"
	// StatusSkipped means the event was intentionally dropped (filtered
	// out, or it maps to no review).
	StatusSkipped Status = "skipped"
	// StatusFailed means a lookup, the cache store, or an outbound call
	// failed; the event is dropped without retry.
	StatusFailed Status = "failed"
)

// Result reports the outcome of processing one event. Err is set only for
// StatusFailed and is never propagated as a fault to the host: the caller
// logs it and acknowledges the event regardless.
type Result struct {
	DeliveryID string
	Status     Status
	Reason     string
	ReviewID   int
	ThreadTS   string
	Err        error
}

// Deps are the collaborators the engine receives at construction.
type Deps struct {
	Store     store.Store
	Reviews   swarm.ReviewStore
	Comments  swarm.CommentStore
	Users     swarm.UserStore
	Chat      ChatClient
	SwarmHost string
	Logger    *slog.Logger
}

// Engine orchestrates one synchronous delivery per event. No internal
// parallelism; the cache store is the only shared mutable state.
type Engine struct {
	store    store.Store
	reviews  swarm.ReviewStore
	users    swarm.UserStore
	chat     ChatClient
	resolver *Resolver
	host     string
	logger   *slog.Logger
}

// New builds an Engine from its dependencies.
func New(deps Deps) *Engine {
	return &Engine{
		store:    deps.Store,
		reviews:  deps.Reviews,
		users:    deps.Users,
		chat:     deps.Chat,
		resolver: NewResolver(deps.Comments, deps.Logger),
		host:     deps.SwarmHost,
		logger:   deps.Logger,
	}
}

// newDeliveryID generates a ULID correlating all log lines for one event.
func newDeliveryID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Process runs one event through filter, resolution, thread correlation, and
// delivery. It never panics and never returns: every failure is folded into
// the Result so the host event bus always sees the event as handled.
func (e *Engine) Process(ctx context.Context, event models.ActivityEvent) Result {
	result := Result{DeliveryID: newDeliveryID()}
	logger := e.logger.With("delivery", result.DeliveryID, "kind", event.Kind)

	if !ShouldProcess(event.Kind, event.Action, event.Quiet) {
		result.Status = StatusSkipped
		result.Reason = "filtered out"
		logger.Info("event filtered out", "action", event.Action, "quiet", event.Quiet)
		return result
	}

	reviewID, err := e.resolver.ReviewID(ctx, event)
	if err != nil {
		result.Status = StatusFailed
		result.Reason = "review resolution failed"
		result.Err = err
		return result
	}
	if reviewID == 0 {
		result.Status = StatusSkipped
		result.Reason = "event maps to no review"
		logger.Info("no review resolved", "target", event.TargetID)
		return result
	}
	result.ReviewID = reviewID
	logger = logger.With("review", reviewID)

	review, err := e.reviews.GetReview(ctx, reviewID)
	if err != nil {
		logger.Error("review fetch failed", "error", err)
		result.Status = StatusFailed
		result.Reason = "review fetch failed"
		result.Err = err
		return result
	}

	threadTS, res := e.findOrCreateThread(ctx, event, review, logger)
	if res != nil {
		res.DeliveryID = result.DeliveryID
		res.ReviewID = reviewID
		return *res
	}
	result.ThreadTS = threadTS

	if strings.EqualFold(event.Action, headerEditAction) {
		header := e.headerText(review)
		if err := e.chat.EditMessage(ctx, threadTS, header); err != nil {
			// Stale header only; the notification itself still goes out.
			logger.Warn("thread header update failed", "error", err)
		}
	}

	body := e.composeMessage(ctx, event, review, logger)
	if body == "" {
		logger.Error("no message for event")
		result.Status = StatusFailed
		result.Reason = "no message for event"
		return result
	}

	if _, err := e.chat.PostMessage(ctx, threadTS, body, e.impersonationFor(ctx, event.UserID, logger)); err != nil {
		logger.Error("post to thread failed", "error", err)
		result.Status = StatusFailed
		result.Reason = "post failed"
		result.Err = err
		return result
	}

	result.Status = StatusDelivered
	logger.Info("notification delivered", "thread", threadTS)
	return result
}

// findOrCreateThread returns the review's thread handle, opening the thread
// on first activity. A non-nil Result aborts processing: cache failures are
// fatal before any outbound call is made, and a failed thread opening leaves
// nothing to post to.
func (e *Engine) findOrCreateThread(ctx context.Context, event models.ActivityEvent, review *models.Review, logger *slog.Logger) (string, *Result) {
	cached, err := e.store.GetThread(ctx, review.ID)
	if err != nil {
		logger.Error("thread cache unavailable", "error", err)
		return "", &Result{Status: StatusFailed, Reason: "thread cache unavailable", Err: err}
	}
	if cached != nil {
		return cached.ThreadTS, nil
	}

	opener := e.headerText(review)
	threadTS, err := e.chat.PostMessage(ctx, "", opener, e.impersonationFor(ctx, review.AuthorID, logger))
	if err != nil {
		logger.Error("thread creation failed", "error", err)
		return "", &Result{Status: StatusFailed, Reason: "thread creation failed", Err: err}
	}

	if err := e.store.PutThread(ctx, review.ID, threadTS); err != nil {
		// The thread exists on Slack but was not recorded; a later event
		// would open a duplicate, so drop this one loudly instead.
		logger.Error("thread handle not persisted", "thread", threadTS, "error", err)
		return "", &Result{Status: StatusFailed, Reason: "thread handle not persisted", Err: err}
	}

	logger.Info("thread opened", "thread", threadTS)
	return threadTS, nil
}

// headerText is the thread's root message: "<review link>: <description>".
func (e *Engine) headerText(review *models.Review) string {
	return swarm.ReviewLink(e.host, review.ID) + ": " + review.Description
}

// composeMessage builds the notification body, appending participant
// mentions for mention-worthy actions. Participants that cannot be resolved
// contribute nothing; they are skipped, not errors.
func (e *Engine) composeMessage(ctx context.Context, event models.ActivityEvent, review *models.Review, logger *slog.Logger) string {
	msg := composeBody(event, swarm.ReviewLink(e.host, review.ID))
	if msg == "" || !shouldMention(event.Action) {
		return msg
	}

	msg += "\n"
	for _, participant := range review.Participants {
		mention := e.mentionFor(ctx, participant, logger)
		if mention != "" {
			msg += " " + mention
		}
	}
	return msg
}

// mentionFor resolves a Swarm user to a Slack mention token, caching the
// mapping on first success. Any miss along the chain (no user, no email, no
// Slack account) yields "".
func (e *Engine) mentionFor(ctx context.Context, userID string, logger *slog.Logger) string {
	cached, err := e.store.GetUserMapping(ctx, userID)
	if err != nil {
		logger.Error("user mapping cache unavailable", "user", userID, "error", err)
		return ""
	}
	if cached != nil {
		return "<@" + cached.SlackID + ">"
	}

	user, err := e.users.GetUser(ctx, userID)
	if err != nil {
		logger.Debug("user lookup failed", "user", userID, "error", err)
		return ""
	}
	if user.Email == "" {
		return ""
	}

	slackID, err := e.chat.LookupUserByEmail(ctx, user.Email)
	if err != nil {
		logger.Error("slack user lookup failed", "user", userID, "error", err)
		return ""
	}
	if slackID == "" {
		return ""
	}

	if err := e.store.PutUserMapping(ctx, userID, slackID); err != nil {
		// The mention still works this time; only the memoization is lost.
		logger.Warn("user mapping not persisted", "user", userID, "error", err)
	}
	return "<@" + slackID + ">"
}

// impersonationFor makes a posted message appear to come from the acting
// user. Lookup failures degrade to the bot identity.
func (e *Engine) impersonationFor(ctx context.Context, userID string, logger *slog.Logger) *slack.Impersonation {
	if userID == "" {
		return nil
	}
	user, err := e.users.GetUser(ctx, userID)
	if err != nil {
		logger.Debug("acting user lookup failed", "user", userID, "error", err)
		return nil
	}
	return &slack.Impersonation{Username: user.FullName, IconURL: user.AvatarURI}
}

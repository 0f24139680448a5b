package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sghirate/SlackSwarmBot/internal/models"
	"github.com/Sghirate/SlackSwarmBot/internal/slack"
	"github.com/Sghirate/SlackSwarmBot/internal/store"
)

// --- fakes ---

type postCall struct {
	ThreadTS string
	Text     string
	Imp      *slack.Impersonation
}

type editCall struct {
	ThreadTS string
	Text     string
}

type fakeChat struct {
	posts   []postCall
	edits   []editCall
	lookups []string

	lookupByEmail map[string]string
	postErr       error
	editErr       error
	lookupErr     error
	nextTS        int
}

func (f *fakeChat) PostMessage(ctx context.Context, threadTS, text string, imp *slack.Impersonation) (string, error) {
	f.posts = append(f.posts, postCall{ThreadTS: threadTS, Text: text, Imp: imp})
	if f.postErr != nil {
		return "", f.postErr
	}
	f.nextTS++
	return fmt.Sprintf("100.%d", f.nextTS), nil
}

func (f *fakeChat) EditMessage(ctx context.Context, threadTS, text string) error {
	f.edits = append(f.edits, editCall{ThreadTS: threadTS, Text: text})
	return f.editErr
}

func (f *fakeChat) LookupUserByEmail(ctx context.Context, email string) (string, error) {
	f.lookups = append(f.lookups, email)
	if f.lookupErr != nil {
		return "", f.lookupErr
	}
	return f.lookupByEmail[email], nil
}

type fakeReviews struct {
	reviews map[int]*models.Review
	err     error
}

func (f *fakeReviews) GetReview(ctx context.Context, id int) (*models.Review, error) {
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.reviews[id]
	if !ok {
		return nil, fmt.Errorf("review %d not found", id)
	}
	return r, nil
}

type fakeUsers struct {
	users map[string]*models.User
}

func (f *fakeUsers) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s not found", id)
	}
	return u, nil
}

// failingStore simulates an unavailable cache backend.
type failingStore struct{ err error }

func (f *failingStore) GetThread(context.Context, int) (*models.ThreadMapping, error) {
	return nil, f.err
}
func (f *failingStore) PutThread(context.Context, int, string) error   { return f.err }
func (f *failingStore) DeleteThread(context.Context, int) error        { return f.err }
func (f *failingStore) ListThreads(context.Context) ([]*models.ThreadMapping, error) {
	return nil, f.err
}
func (f *failingStore) GetUserMapping(context.Context, string) (*models.UserMapping, error) {
	return nil, f.err
}
func (f *failingStore) PutUserMapping(context.Context, string, string) error { return f.err }
func (f *failingStore) DeleteUserMapping(context.Context, string) error      { return f.err }
func (f *failingStore) ListUserMappings(context.Context) ([]*models.UserMapping, error) {
	return nil, f.err
}
func (f *failingStore) Migrate(context.Context) error { return nil }
func (f *failingStore) Close() error                  { return nil }

// --- fixture ---

type fixture struct {
	engine *Engine
	chat   *fakeChat
	store  store.Store
}

func testReview() *models.Review {
	return &models.Review{
		ID:           42,
		AuthorID:     "alice",
		Description:  "Fix the widget",
		Participants: []string{"alice", "bob"},
	}
}

func testUsers() *fakeUsers {
	return &fakeUsers{users: map[string]*models.User{
		"alice": {ID: "alice", Email: "alice@example.com", FullName: "Alice Cooper"},
		"bob":   {ID: "bob", Email: "bob@example.com", FullName: "Bob Dole"},
	}}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	chat := &fakeChat{lookupByEmail: map[string]string{
		"alice@example.com": "U0ALICE",
		"bob@example.com":   "U0BOB",
	}}

	engine := New(Deps{
		Store:     s,
		Reviews:   &fakeReviews{reviews: map[int]*models.Review{42: testReview()}},
		Comments:  &fakeComments{comments: map[int]*models.Comment{7: {ID: 7, Topic: "reviews/42"}}},
		Users:     testUsers(),
		Chat:      chat,
		SwarmHost: "https://swarm.example.com",
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	return &fixture{engine: engine, chat: chat, store: s}
}

const link42 = "<https://swarm.example.com/reviews/42|42>"

// --- tests ---

func TestProcess_FilteredEventMakesNoCalls(t *testing.T) {
	f := newFixture(t)

	result := f.engine.Process(context.Background(), models.ActivityEvent{
		Kind:     models.EventReview,
		ReviewID: 42,
		Action:   "archived comment on",
	})

	assert.Equal(t, StatusSkipped, result.Status)
	assert.Empty(t, f.chat.posts)
	assert.Empty(t, f.chat.edits)
	assert.Empty(t, f.chat.lookups)
}

func TestProcess_QuietEventMakesNoCalls(t *testing.T) {
	f := newFixture(t)

	result := f.engine.Process(context.Background(), models.ActivityEvent{
		Kind:     models.EventReview,
		ReviewID: 42,
		Action:   "requested",
		Quiet:    true,
	})

	assert.Equal(t, StatusSkipped, result.Status)
	assert.Empty(t, f.chat.posts)
}

func TestProcess_FirstEventOpensThread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result := f.engine.Process(ctx, models.ActivityEvent{
		Kind:     models.EventCommentBatch,
		TargetID: "reviews/42",
	})

	assert.Equal(t, StatusDelivered, result.Status)
	assert.Equal(t, 42, result.ReviewID)
	require.Len(t, f.chat.posts, 2, "thread opener plus the event message")

	opener := f.chat.posts[0]
	assert.Empty(t, opener.ThreadTS, "the opener starts a new thread")
	assert.Equal(t, link42+": Fix the widget", opener.Text)
	require.NotNil(t, opener.Imp, "the opener impersonates the review author")
	assert.Equal(t, "Alice Cooper", opener.Imp.Username)

	body := f.chat.posts[1]
	assert.Equal(t, "100.1", body.ThreadTS)
	assert.Equal(t, "Comments added to Review "+link42, body.Text)

	cached, err := f.store.GetThread(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "100.1", cached.ThreadTS)
}

func TestProcess_SecondEventReusesThread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.engine.Process(ctx, models.ActivityEvent{
		Kind:     models.EventCommentBatch,
		TargetID: "reviews/42",
	})
	require.Equal(t, StatusDelivered, first.Status)
	require.Len(t, f.chat.posts, 2)

	second := f.engine.Process(ctx, models.ActivityEvent{
		Kind:     models.EventCommit,
		ReviewID: 42,
	})
	assert.Equal(t, StatusDelivered, second.Status)
	require.Len(t, f.chat.posts, 3, "no second thread creation")

	post := f.chat.posts[2]
	assert.Equal(t, "100.1", post.ThreadTS)
	assert.Equal(t, "Committed Review "+link42, post.Text)
}

func TestProcess_MentionsAppendedInParticipantOrder(t *testing.T) {
	f := newFixture(t)

	result := f.engine.Process(context.Background(), models.ActivityEvent{
		Kind:     models.EventReview,
		ReviewID: 42,
		Action:   "approved",
		UserID:   "bob",
	})

	require.Equal(t, StatusDelivered, result.Status)
	require.Len(t, f.chat.posts, 2)
	assert.Equal(t, "approved Review "+link42+"\n <@U0ALICE> <@U0BOB>", f.chat.posts[1].Text)
}

func TestProcess_UnresolvableParticipantSkipped(t *testing.T) {
	f := newFixture(t)
	f.chat.lookupByEmail = map[string]string{"alice@example.com": "U0ALICE"}

	result := f.engine.Process(context.Background(), models.ActivityEvent{
		Kind:     models.EventReview,
		ReviewID: 42,
		Action:   "requested",
	})

	require.Equal(t, StatusDelivered, result.Status)
	require.Len(t, f.chat.posts, 2)
	assert.Equal(t, "requested Review "+link42+"\n <@U0ALICE>", f.chat.posts[1].Text,
		"bob has no Slack account and contributes no mention")
}

func TestProcess_MentionResolutionCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.engine.Process(ctx, models.ActivityEvent{
		Kind:     models.EventReview,
		ReviewID: 42,
		Action:   "approved",
	})
	require.Equal(t, StatusDelivered, first.Status)
	lookupsAfterFirst := len(f.chat.lookups)
	assert.Equal(t, 2, lookupsAfterFirst, "one lookup per participant")

	second := f.engine.Process(ctx, models.ActivityEvent{
		Kind:     models.EventReview,
		ReviewID: 42,
		Action:   "approved",
	})
	require.Equal(t, StatusDelivered, second.Status)
	assert.Equal(t, lookupsAfterFirst, len(f.chat.lookups), "second pass is a cache hit")
}

func TestProcess_NonMentionActionPingsNobody(t *testing.T) {
	f := newFixture(t)

	result := f.engine.Process(context.Background(), models.ActivityEvent{
		Kind:     models.EventComment,
		TargetID: "7",
		Action:   "commented on",
	})

	require.Equal(t, StatusDelivered, result.Status)
	require.Len(t, f.chat.posts, 2)
	assert.Equal(t, "commented on Review "+link42, f.chat.posts[1].Text)
	assert.Empty(t, f.chat.lookups)
}

func TestProcess_HeaderEditOnDescriptionUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Open the thread first so the edit targets an existing header.
	require.Equal(t, StatusDelivered, f.engine.Process(ctx, models.ActivityEvent{
		Kind:     models.EventCommit,
		ReviewID: 42,
	}).Status)

	result := f.engine.Process(ctx, models.ActivityEvent{
		Kind:     models.EventReview,
		ReviewID: 42,
		Action:   "Updated Description Of",
	})

	require.Equal(t, StatusDelivered, result.Status)
	require.Len(t, f.chat.edits, 1, "action matches case-insensitively")
	assert.Equal(t, "100.1", f.chat.edits[0].ThreadTS)
	assert.Equal(t, link42+": Fix the widget", f.chat.edits[0].Text)
}

func TestProcess_NoHeaderEditForOtherActions(t *testing.T) {
	f := newFixture(t)

	result := f.engine.Process(context.Background(), models.ActivityEvent{
		Kind:     models.EventReview,
		ReviewID: 42,
		Action:   "approved",
	})

	require.Equal(t, StatusDelivered, result.Status)
	assert.Empty(t, f.chat.edits)
}

func TestProcess_HeaderEditFailureIsNonFatal(t *testing.T) {
	f := newFixture(t)
	f.chat.editErr = errors.New("slack down")

	result := f.engine.Process(context.Background(), models.ActivityEvent{
		Kind:     models.EventReview,
		ReviewID: 42,
		Action:   "updated description of",
	})

	assert.Equal(t, StatusDelivered, result.Status, "a stale header must not block the notification")
}

func TestProcess_ReviewCreationSkipped(t *testing.T) {
	f := newFixture(t)

	result := f.engine.Process(context.Background(), models.ActivityEvent{
		Kind:     models.EventReview,
		ReviewID: 42,
		IsAdd:    true,
	})

	assert.Equal(t, StatusSkipped, result.Status)
	assert.Empty(t, f.chat.posts)
}

func TestProcess_ThreadCreationFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.chat.postErr = errors.New("slack down")

	result := f.engine.Process(context.Background(), models.ActivityEvent{
		Kind:     models.EventCommit,
		ReviewID: 42,
	})

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, "thread creation failed", result.Reason)
	assert.Len(t, f.chat.posts, 1, "no body post after a failed opener")

	cached, err := f.store.GetThread(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, cached, "a failed creation must not be cached")
}

func TestProcess_StorageUnavailable(t *testing.T) {
	chat := &fakeChat{}
	engine := New(Deps{
		Store:     &failingStore{err: errors.New("cache directory not writable")},
		Reviews:   &fakeReviews{reviews: map[int]*models.Review{42: testReview()}},
		Comments:  &fakeComments{},
		Users:     testUsers(),
		Chat:      chat,
		SwarmHost: "https://swarm.example.com",
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	result := engine.Process(context.Background(), models.ActivityEvent{
		Kind:     models.EventCommit,
		ReviewID: 42,
	})

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, "thread cache unavailable", result.Reason)
	require.Error(t, result.Err)
	assert.Empty(t, chat.posts, "no outbound call without the cache")
}

func TestProcess_ReviewFetchFailure(t *testing.T) {
	f := newFixture(t)

	result := f.engine.Process(context.Background(), models.ActivityEvent{
		Kind:     models.EventReview,
		ReviewID: 99,
	})

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, "review fetch failed", result.Reason)
	assert.Empty(t, f.chat.posts)
}

func TestProcess_CommentResolutionFailure(t *testing.T) {
	chat := &fakeChat{}
	engine := New(Deps{
		Store:     &failingStore{err: errors.New("unused")},
		Reviews:   &fakeReviews{},
		Comments:  &fakeComments{err: errors.New("swarm down")},
		Users:     testUsers(),
		Chat:      chat,
		SwarmHost: "https://swarm.example.com",
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	result := engine.Process(context.Background(), models.ActivityEvent{
		Kind:     models.EventComment,
		TargetID: "7",
	})

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, "review resolution failed", result.Reason)
	assert.Empty(t, chat.posts)
}

func TestProcess_ActingUserImpersonation(t *testing.T) {
	f := newFixture(t)

	result := f.engine.Process(context.Background(), models.ActivityEvent{
		Kind:     models.EventCommit,
		ReviewID: 42,
		UserID:   "bob",
	})

	require.Equal(t, StatusDelivered, result.Status)
	require.Len(t, f.chat.posts, 2)
	require.NotNil(t, f.chat.posts[1].Imp)
	assert.Equal(t, "Bob Dole", f.chat.posts[1].Imp.Username)
}

func TestProcess_UnknownActingUserFallsBackToBot(t *testing.T) {
	f := newFixture(t)

	result := f.engine.Process(context.Background(), models.ActivityEvent{
		Kind:     models.EventCommit,
		ReviewID: 42,
		UserID:   "ghost",
	})

	require.Equal(t, StatusDelivered, result.Status)
	require.Len(t, f.chat.posts, 2)
	assert.Nil(t, f.chat.posts[1].Imp)
}

func TestProcess_DeliveryIDsAreUnique(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.engine.Process(ctx, models.ActivityEvent{Kind: models.EventCommit, ReviewID: 42})
	b := f.engine.Process(ctx, models.ActivityEvent{Kind: models.EventCommit, ReviewID: 42})

	assert.NotEmpty(t, a.DeliveryID)
	assert.NotEmpty(t, b.DeliveryID)
	assert.NotEqual(t, a.DeliveryID, b.DeliveryID)
}

package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"SessionChat/internal/message"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndListSessions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first, err := s.CreateSession(ctx, "first", "owner-a")
	require.NoError(t, err)
	second, err := s.CreateSession(ctx, "second", "owner-a")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	sessions, err := s.ListSessions(ctx, "owner-a")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, second, sessions[0].ID, "newest session first")
	assert.Equal(t, "second", sessions[0].Name)
	assert.Equal(t, first, sessions[1].ID)
	assert.False(t, sessions[0].CreatedAt.IsZero())
}

func TestListSessionsEmptyOwner(t *testing.T) {
	s := newTestStore(t)

	sessions, err := s.ListSessions(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, sessions)
	assert.Empty(t, sessions)
}

func TestListSessionsIsolatedByOwner(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	idA, err := s.CreateSession(ctx, "shared name", "hash-a")
	require.NoError(t, err)
	idB, err := s.CreateSession(ctx, "shared name", "hash-b")
	require.NoError(t, err)

	a, err := s.ListSessions(ctx, "hash-a")
	require.NoError(t, err)
	require.Len(t, a, 1)
	assert.Equal(t, idA, a[0].ID)

	b, err := s.ListSessions(ctx, "hash-b")
	require.NoError(t, err)
	require.Len(t, b, 1)
	assert.Equal(t, idB, b[0].ID)
}

func TestGetSession(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateSession(ctx, "demo", "h")
	require.NoError(t, err)

	sess, err := s.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "demo", sess.Name)
	assert.Equal(t, "h", sess.OwnerHash)

	_, err = s.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAppendAndLoadHistoryPreservesOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateSession(ctx, "demo", "h")
	require.NoError(t, err)

	const turns = 5
	var want []message.Message
	for i := 0; i < turns; i++ {
		batch := []message.Message{
			message.Human(fmt.Sprintf("question %d", i)),
			message.Assistant(fmt.Sprintf("answer %d", i)),
		}
		require.NoError(t, s.AppendMessages(ctx, id, batch))
		want = append(want, batch...)
	}

	got, err := s.LoadHistory(ctx, id)
	require.NoError(t, err)
	assert.Len(t, got, 2*turns)
	assert.Equal(t, want, got)
}

func TestAppendRoundTripsAllKinds(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateSession(ctx, "kinds", "h")
	require.NoError(t, err)

	in := []message.Message{
		message.System("sys"),
		message.Human("hi"),
		message.Assistant("hello"),
		message.Tool("result", "call_7"),
		message.Function("out", "lookup"),
		message.Tool("result", ""),
		message.Function("out", ""),
	}
	require.NoError(t, s.AppendMessages(ctx, id, in))

	got, err := s.LoadHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, got, len(in))
	assert.Equal(t, in[:5], got[:5])
	assert.Equal(t, message.Tool("result", message.FallbackToolCallID), got[5])
	assert.Equal(t, message.Function("out", message.FallbackFunctionName), got[6])
}

func TestLoadHistoryEmpty(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateSession(ctx, "empty", "h")
	require.NoError(t, err)

	got, err := s.LoadHistory(ctx, id)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestLoadHistoryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateSession(ctx, "demo", "h")
	require.NoError(t, err)
	require.NoError(t, s.AppendMessages(ctx, id, []message.Message{message.Human("a"), message.Assistant("b")}))

	first, err := s.LoadHistory(ctx, id)
	require.NoError(t, err)
	second, err := s.LoadHistory(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAppendMessagesIsAtomicOnInsertFailure(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateSession(ctx, "demo", "h")
	require.NoError(t, err)

	_, err = s.db.Exec(`CREATE TRIGGER reject_boom BEFORE INSERT ON chat_messages
		WHEN NEW.content = 'boom' BEGIN SELECT RAISE(ABORT, 'boom rejected'); END`)
	require.NoError(t, err)

	err = s.AppendMessages(ctx, id, []message.Message{message.Human("ok"), message.Assistant("boom")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)

	got, err := s.LoadHistory(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, got, "first message of a failed batch must not be visible")
}

func TestAppendMessagesIsAtomicOnEncodeFailure(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateSession(ctx, "demo", "h")
	require.NoError(t, err)

	err = s.AppendMessages(ctx, id, []message.Message{message.Human("ok"), {Content: "no kind"}})
	require.ErrorIs(t, err, message.ErrUnknownKind)

	got, err := s.LoadHistory(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAppendMessagesUnknownSession(t *testing.T) {
	s := newTestStore(t)

	err := s.AppendMessages(context.Background(), "no-such-session", []message.Message{message.Human("x")})
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestLoadHistoryUnknownKindAborts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateSession(ctx, "demo", "h")
	require.NoError(t, err)
	require.NoError(t, s.AppendMessages(ctx, id, []message.Message{message.Human("before")}))

	_, err = s.db.Exec(`PRAGMA ignore_check_constraints = ON`)
	require.NoError(t, err)
	_, err = s.db.Exec(`INSERT INTO chat_messages (session_id, type, content, timestamp) VALUES (?, 'bogus', 'x', CURRENT_TIMESTAMP)`, id)
	require.NoError(t, err)
	require.NoError(t, s.AppendMessages(ctx, id, []message.Message{message.Assistant("after")}))

	got, err := s.LoadHistory(ctx, id)
	require.ErrorIs(t, err, message.ErrUnknownKind)
	assert.Nil(t, got)
}

func TestHistorySurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chat.db")

	s, err := Open(path)
	require.NoError(t, err)
	id, err := s.CreateSession(ctx, "durable", "h")
	require.NoError(t, err)
	require.NoError(t, s.AppendMessages(ctx, id, []message.Message{message.Human("q"), message.Assistant("a")}))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.LoadHistory(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []message.Message{message.Human("q"), message.Assistant("a")}, got)
}

package chat_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"groupouting/backend/internal/auth"
	"groupouting/backend/internal/chat"
	"groupouting/backend/internal/config"
	"groupouting/backend/internal/models"
	"groupouting/backend/internal/storage"
)

type published struct {
	RoomID string
	Event  models.Event
}

// recorder is a Notifier that keeps every event it is handed.
type recorder struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (r *recorder) Publish(_ context.Context, roomID string, event models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{RoomID: roomID, Event: event})
	return r.err
}

func (r *recorder) all() []published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]published(nil), r.events...)
}

type fixture struct {
	rooms    *chat.RoomService
	messages *chat.MessageService
	store    *storage.Service
	events   *recorder
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func newFixture(t *testing.T, mode string) *fixture {
	t.Helper()

	db, err := storage.OpenDB("sqlite", "file::memory:", quietLogger())
	require.NoError(t, err)
	require.NoError(t, storage.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	store := storage.NewStorageService(db)
	events := &recorder{}
	passwords := auth.NewRoomPasswords(mode, auth.NewPasswordHasher(bcrypt.MinCost))
	return &fixture{
		rooms:    chat.NewRoomService(store, passwords, events, 50, quietLogger()),
		messages: chat.NewMessageService(store, events, 2000, quietLogger()),
		store:    store,
		events:   events,
	}
}

func user(id string) models.Identity {
	return models.Anonymous(id, "User "+strings.ToUpper(id), "#1976d2")
}

func TestCreateRoom(t *testing.T) {
	f := newFixture(t, config.PasswordModeHashed)
	ctx := context.Background()

	room, err := f.rooms.CreateRoom(ctx, "  Trip ", "abcd", user("a"), 0)
	require.NoError(t, err)
	assert.Len(t, room.ID, 10)
	assert.Equal(t, "Trip", room.Name)
	assert.Equal(t, models.DefaultMaxParticipants, room.MaxParticipants)
	assert.NotEqual(t, "abcd", room.PasswordHash)

	members, err := f.rooms.ListParticipants(ctx, room.ID, user("a"))
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "a", members[0].UserID)
}

func TestCreateRoom_Validation(t *testing.T) {
	f := newFixture(t, config.PasswordModeHashed)
	ctx := context.Background()

	tests := []struct {
		name     string
		roomName string
		password string
		creator  models.Identity
		max      int
	}{
		{"empty name", "  ", "abcd", user("a"), 0},
		{"empty password", "Trip", "", user("a"), 0},
		{"name too long", strings.Repeat("x", config.MaxRoomNameLength+1), "abcd", user("a"), 0},
		{"password over bcrypt limit", "Trip", strings.Repeat("a", 73), user("a"), 0},
		{"no creator", "Trip", "abcd", models.Identity{}, 0},
		{"creator color too wide", "Trip", "abcd", models.Anonymous("a", "A", strings.Repeat("f", 17)), 0},
		{"negative capacity", "Trip", "abcd", user("a"), -1},
		{"capacity above cap", "Trip", "abcd", user("a"), 51},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.rooms.CreateRoom(ctx, tt.roomName, tt.password, tt.creator, tt.max)
			assert.ErrorIs(t, err, chat.ErrValidation)
			assert.Equal(t, chat.KindValidation, chat.KindOf(err))
		})
	}
}

func TestCreateRoom_LongestPassword(t *testing.T) {
	for _, mode := range []string{config.PasswordModeHashed, config.PasswordModePlaintext} {
		t.Run(mode, func(t *testing.T) {
			f := newFixture(t, mode)
			ctx := context.Background()
			password := strings.Repeat("a", 72)

			room, err := f.rooms.CreateRoom(ctx, "Trip", password, user("a"), 0)
			require.NoError(t, err)
			_, err = f.rooms.JoinRoom(ctx, room.ID, password, user("b"))
			require.NoError(t, err)

			_, err = f.rooms.CreateRoom(ctx, "Trip", password+"a", user("a"), 0)
			assert.ErrorIs(t, err, chat.ErrValidation)
			assert.NotErrorIs(t, err, chat.ErrPersistence)
			assert.Contains(t, err.Error(), "at most 72 bytes")
		})
	}
}

func TestJoinRoom_PasswordAndCapacity(t *testing.T) {
	for _, mode := range []string{config.PasswordModeHashed, config.PasswordModePlaintext} {
		t.Run(mode, func(t *testing.T) {
			f := newFixture(t, mode)
			ctx := context.Background()

			room, err := f.rooms.CreateRoom(ctx, "Trip", "abcd", user("a"), 3)
			require.NoError(t, err)

			_, err = f.rooms.JoinRoom(ctx, room.ID, "wrong", user("b"))
			assert.ErrorIs(t, err, chat.ErrAuth)
			assert.ErrorIs(t, err, chat.ErrWrongPassword)

			joined, err := f.rooms.JoinRoom(ctx, room.ID, "abcd", user("b"))
			require.NoError(t, err)
			assert.Equal(t, int64(2), joined.ParticipantCount)

			_, err = f.rooms.JoinRoom(ctx, room.ID, "abcd", user("c"))
			require.NoError(t, err)

			_, err = f.rooms.JoinRoom(ctx, room.ID, "abcd", user("d"))
			assert.ErrorIs(t, err, chat.ErrCapacity)
			assert.EqualError(t, err, "Room is full")
		})
	}
}

func TestJoinRoom_Idempotent(t *testing.T) {
	f := newFixture(t, config.PasswordModeHashed)
	ctx := context.Background()

	room, err := f.rooms.CreateRoom(ctx, "Trip", "abcd", user("a"), 2)
	require.NoError(t, err)

	_, err = f.rooms.JoinRoom(ctx, room.ID, "abcd", user("b"))
	require.NoError(t, err)

	again, err := f.rooms.JoinRoom(ctx, room.ID, "abcd", user("b"))
	require.NoError(t, err, "an active member can re-join a full room")
	assert.Equal(t, int64(2), again.ParticipantCount)

	joinEvents := 0
	for _, e := range f.events.all() {
		if e.Event.Type() == models.EventParticipantJoined {
			joinEvents++
			assert.Equal(t, room.ID, e.RoomID)
			assert.Equal(t, "b", e.Event.(models.ParticipantJoinedEvent).User.ID)
		}
	}
	assert.Equal(t, 1, joinEvents)
}

func TestJoinRoom_NotFoundBeforePassword(t *testing.T) {
	f := newFixture(t, config.PasswordModeHashed)
	ctx := context.Background()

	_, err := f.rooms.JoinRoom(ctx, "missing", "abcd", user("b"))
	assert.ErrorIs(t, err, chat.ErrNotFound)

	room, err := f.rooms.CreateRoom(ctx, "Trip", "abcd", user("a"), 0)
	require.NoError(t, err)
	require.NoError(t, f.store.SetRoomActive(ctx, room.ID, false))

	_, err = f.rooms.JoinRoom(ctx, room.ID, "wrong", user("b"))
	assert.ErrorIs(t, err, chat.ErrNotFound)
}

func TestJoinRoom_ConcurrentCapacity(t *testing.T) {
	f := newFixture(t, config.PasswordModePlaintext)
	ctx := context.Background()

	room, err := f.rooms.CreateRoom(ctx, "Trip", "abcd", user("a"), 4)
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		full int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.rooms.JoinRoom(ctx, room.ID, "abcd", user(fmt.Sprintf("u%d", i)))
			if errors.Is(err, chat.ErrCapacity) {
				mu.Lock()
				full++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 7, full)
	summary, err := f.rooms.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), summary.ParticipantCount)
}

func TestLeaveRoom(t *testing.T) {
	f := newFixture(t, config.PasswordModeHashed)
	ctx := context.Background()

	room, err := f.rooms.CreateRoom(ctx, "Trip", "abcd", user("a"), 2)
	require.NoError(t, err)
	_, err = f.rooms.JoinRoom(ctx, room.ID, "abcd", user("b"))
	require.NoError(t, err)

	require.NoError(t, f.rooms.LeaveRoom(ctx, room.ID, user("b")))
	assert.ErrorIs(t, f.rooms.LeaveRoom(ctx, room.ID, user("b")), chat.ErrNotFound)

	events := f.events.all()
	last := events[len(events)-1]
	assert.Equal(t, models.ParticipantLeftEvent{User: user("b")}, last.Event)

	_, err = f.rooms.JoinRoom(ctx, room.ID, "abcd", user("c"))
	require.NoError(t, err, "the freed seat can be taken")
}

func TestListParticipants_Access(t *testing.T) {
	f := newFixture(t, config.PasswordModeHashed)
	ctx := context.Background()

	owner := models.Identity{ID: "acct-1", Kind: models.KindAccount, DisplayName: "Owner"}
	room, err := f.rooms.CreateRoom(ctx, "Trip", "abcd", owner, 0)
	require.NoError(t, err)
	_, err = f.rooms.JoinRoom(ctx, room.ID, "abcd", user("b"))
	require.NoError(t, err)

	_, err = f.rooms.ListParticipants(ctx, room.ID, user("stranger"))
	assert.ErrorIs(t, err, chat.ErrAuth)
	assert.ErrorIs(t, err, chat.ErrNotMember)

	require.NoError(t, f.rooms.LeaveRoom(ctx, room.ID, owner))
	members, err := f.rooms.ListParticipants(ctx, room.ID, owner)
	require.NoError(t, err, "the creating account may list after leaving")
	require.Len(t, members, 1)
	assert.Equal(t, "b", members[0].UserID)

	impostor := models.Anonymous("acct-1", "Owner", "")
	_, err = f.rooms.ListParticipants(ctx, room.ID, impostor)
	assert.ErrorIs(t, err, chat.ErrAuth, "an anonymous id matching the creator is a different identity")

	_, err = f.rooms.ListParticipants(ctx, "missing", user("b"))
	assert.ErrorIs(t, err, chat.ErrNotFound)
}

func TestPostMessage(t *testing.T) {
	f := newFixture(t, config.PasswordModeHashed)
	ctx := context.Background()

	room, err := f.rooms.CreateRoom(ctx, "Trip", "abcd", user("a"), 0)
	require.NoError(t, err)

	msg, err := f.messages.PostMessage(ctx, room.ID, user("a"), "  hello ")
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, "User A", msg.DisplayName)
	assert.False(t, msg.CreatedAt.IsZero())

	events := f.events.all()
	last := events[len(events)-1]
	assert.Equal(t, room.ID, last.RoomID)
	pushed, ok := last.Event.(models.NewMessageEvent)
	require.True(t, ok)
	assert.Equal(t, msg.ID, pushed.Message.ID)

	history, err := f.messages.ListMessages(ctx, room.ID, user("a"), chat.Page{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, msg.ID, history[0].ID)
}

func TestPostMessage_Rejections(t *testing.T) {
	f := newFixture(t, config.PasswordModeHashed)
	ctx := context.Background()

	room, err := f.rooms.CreateRoom(ctx, "Trip", "abcd", user("a"), 0)
	require.NoError(t, err)

	_, err = f.messages.PostMessage(ctx, room.ID, user("b"), "hi")
	assert.ErrorIs(t, err, chat.ErrAuth, "non-members cannot post")

	_, err = f.messages.PostMessage(ctx, room.ID, user("b"), "   ")
	assert.ErrorIs(t, err, chat.ErrAuth, "membership is checked before content")

	_, err = f.messages.PostMessage(ctx, room.ID, user("a"), " \n ")
	assert.ErrorIs(t, err, chat.ErrValidation)

	_, err = f.messages.PostMessage(ctx, room.ID, user("a"), strings.Repeat("x", 2001))
	assert.ErrorIs(t, err, chat.ErrValidation)

	_, err = f.messages.ListMessages(ctx, room.ID, user("b"), chat.Page{})
	assert.ErrorIs(t, err, chat.ErrAuth)

	require.NoError(t, f.store.SetRoomActive(ctx, room.ID, false))
	_, err = f.messages.PostMessage(ctx, room.ID, user("a"), "hi")
	assert.ErrorIs(t, err, chat.ErrNotFound)

	for _, e := range f.events.all() {
		assert.NotEqual(t, models.EventNewMessage, e.Event.Type())
	}
}

func TestListMessages_Paging(t *testing.T) {
	f := newFixture(t, config.PasswordModeHashed)
	ctx := context.Background()

	room, err := f.rooms.CreateRoom(ctx, "Trip", "abcd", user("a"), 0)
	require.NoError(t, err)
	for i := 0; i < 7; i++ {
		_, err := f.messages.PostMessage(ctx, room.ID, user("a"), fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}

	latest, err := f.messages.ListMessages(ctx, room.ID, user("a"), chat.Page{Limit: 3})
	require.NoError(t, err)
	require.Len(t, latest, 3)
	assert.Equal(t, []string{"m4", "m5", "m6"}, contents(latest))

	older, err := f.messages.ListMessages(ctx, room.ID, user("a"), chat.Page{Before: latest[0].ID, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2", "m3"}, contents(older))

	all, err := f.messages.ListMessages(ctx, room.ID, user("a"), chat.Page{Limit: 10_000})
	require.NoError(t, err)
	assert.Len(t, all, 7)
}

func TestNotifierFailureDoesNotFailPost(t *testing.T) {
	f := newFixture(t, config.PasswordModeHashed)
	ctx := context.Background()
	f.events.err = errors.New("relay down")

	room, err := f.rooms.CreateRoom(ctx, "Trip", "abcd", user("a"), 0)
	require.NoError(t, err)

	_, err = f.messages.PostMessage(ctx, room.ID, user("a"), "still stored")
	require.NoError(t, err)
}

func TestPersistenceErrors(t *testing.T) {
	store := new(MockStorage)
	dbErr := errors.New("connection reset")
	store.On("GetRoomByID", "r1").Return(&models.Room{ID: "r1", IsActive: true}, nil)
	store.On("GetActiveMembership", "r1", mock.Anything).Return(&models.Membership{IsActive: true}, nil)
	store.On("SaveMessage", mock.AnythingOfType("*models.Message")).Return(dbErr)
	store.On("ListMessages", "r1", uint(0), config.DefaultMessagePageSize).Return(nil, dbErr)

	svc := chat.NewMessageService(store, nil, 2000, quietLogger())

	_, err := svc.PostMessage(context.Background(), "r1", user("a"), "hi")
	assert.ErrorIs(t, err, chat.ErrPersistence)
	assert.ErrorIs(t, err, dbErr)

	_, err = svc.ListMessages(context.Background(), "r1", user("a"), chat.Page{})
	assert.ErrorIs(t, err, chat.ErrPersistence)

	store.AssertExpectations(t)
}

func contents(msgs []models.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

package moemail_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	moemail "github.com/skymun016/moemail"
)

func TestCreateUserValidation(t *testing.T) {
	handler := moemail.NewCreateUserHandler(NewMockRepositoryManager())

	tests := []struct {
		name  string
		event moemail.CreateUserMessage
	}{
		{"missing username", moemail.CreateUserMessage{Password: "password123"}},
		{"short password", moemail.CreateUserMessage{Username: "alice", Password: "short"}},
		{"bad email", moemail.CreateUserMessage{Username: "alice", Password: "password123", Email: "not-an-email"}},
		{"unknown role", moemail.CreateUserMessage{Username: "alice", Password: "password123", Role: "wizard"}},
		{"negative expiry", moemail.CreateUserMessage{Username: "alice", Password: "password123", ExpiryTime: ptrInt64(-5)}},
		{"negative max emails", moemail.CreateUserMessage{Username: "alice", Password: "password123", MaxEmails: -1}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := handler.Execute(context.Background(), tc.event)
			require.Error(t, err)
			assert.Equal(t, fiber.StatusBadRequest, moemail.HTTPStatus(err))
		})
	}
}

func TestCreateUserDefaults(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	actorID := uuid.New()
	created := &moemail.User{
		ID:             uuid.New(),
		Username:       "alice",
		Role:           moemail.RoleCivilian,
		Status:         moemail.UserStatusActive,
		IsAdminCreated: true,
	}

	repos := NewMockRepositoryManager()
	repos.UsersRepo.On("CreateTx", mock.Anything, mock.MatchedBy(func(user *moemail.User) bool {
		return user.Username == "alice" &&
			user.Role == moemail.RoleCivilian &&
			user.IsAdminCreated &&
			user.ExpiresAt == nil &&
			user.CreatedBy != nil && *user.CreatedBy == actorID &&
			user.PasswordHash != "" && user.PasswordHash != "password123"
	})).Return(created, nil)

	sink := &capturingSink{}
	handler := moemail.NewCreateUserHandler(repos).
		WithClock(fixedClock(now)).
		WithActivitySink(moemail.ActivitySinkFunc(sink.Record))

	var res *moemail.User
	err := handler.Execute(context.Background(), moemail.CreateUserMessage{
		Username:   "alice",
		Password:   "password123",
		Actor:      moemail.ActorRef{ID: actorID.String(), Type: "user"},
		OnResponse: func(u *moemail.User) { res = u },
	})

	require.NoError(t, err)
	assert.Equal(t, created, res)

	require.Len(t, sink.events, 1)
	assert.Equal(t, moemail.ActivityEventUserCreated, sink.events[0].EventType)
	assert.Equal(t, created.ID.String(), sink.events[0].UserID)
	repos.AssertExpectations(t)
}

func TestCreateUserWithExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	lifetime := int64(7 * 24 * time.Hour / time.Millisecond)
	want := now.Add(7 * 24 * time.Hour)

	repos := NewMockRepositoryManager()
	repos.UsersRepo.On("CreateTx", mock.Anything, mock.MatchedBy(func(user *moemail.User) bool {
		return user.Role == moemail.RoleKnight &&
			user.ExpiresAt != nil && user.ExpiresAt.Equal(want)
	})).Return(&moemail.User{ID: uuid.New()}, nil)

	handler := moemail.NewCreateUserHandler(repos).WithClock(fixedClock(now))

	err := handler.Execute(context.Background(), moemail.CreateUserMessage{
		Username:   "bob",
		Password:   "password123",
		Role:       string(moemail.RoleKnight),
		ExpiryTime: ptrInt64(lifetime),
	})

	require.NoError(t, err)
	repos.AssertExpectations(t)
}

func TestCreateUserDuplicate(t *testing.T) {
	repos := NewMockRepositoryManager()
	repos.UsersRepo.On("CreateTx", mock.Anything, mock.Anything).
		Return(nil, errors.New("UNIQUE constraint failed: users.username"))

	handler := moemail.NewCreateUserHandler(repos)

	err := handler.Execute(context.Background(), moemail.CreateUserMessage{
		Username: "alice",
		Password: "password123",
	})

	assert.ErrorIs(t, err, moemail.ErrDuplicateUser)
	assert.Equal(t, fiber.StatusConflict, moemail.HTTPStatus(err))
}

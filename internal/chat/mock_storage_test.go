package chat_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"groupouting/backend/internal/models"
)

type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) CreateUser(ctx context.Context, user *models.User) error {
	return m.Called(user).Error(0)
}

func (m *MockStorage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(id)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *MockStorage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(email)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *MockStorage) CreateRoom(ctx context.Context, room *models.Room, creator models.Identity) error {
	return m.Called(room, creator).Error(0)
}

func (m *MockStorage) GetRoomByID(ctx context.Context, roomID string) (*models.Room, error) {
	args := m.Called(roomID)
	room, _ := args.Get(0).(*models.Room)
	return room, args.Error(1)
}

func (m *MockStorage) SetRoomActive(ctx context.Context, roomID string, active bool) error {
	return m.Called(roomID, active).Error(0)
}

func (m *MockStorage) GetActiveMembership(ctx context.Context, roomID string, user models.Identity) (*models.Membership, error) {
	args := m.Called(roomID, user)
	member, _ := args.Get(0).(*models.Membership)
	return member, args.Error(1)
}

func (m *MockStorage) CountActiveMembers(ctx context.Context, roomID string) (int64, error) {
	args := m.Called(roomID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) AddMember(ctx context.Context, roomID string, user models.Identity) (*models.Membership, bool, error) {
	args := m.Called(roomID, user)
	member, _ := args.Get(0).(*models.Membership)
	return member, args.Bool(1), args.Error(2)
}

func (m *MockStorage) RemoveMember(ctx context.Context, roomID string, user models.Identity) error {
	return m.Called(roomID, user).Error(0)
}

func (m *MockStorage) ListActiveMembers(ctx context.Context, roomID string) ([]models.Membership, error) {
	args := m.Called(roomID)
	members, _ := args.Get(0).([]models.Membership)
	return members, args.Error(1)
}

func (m *MockStorage) SaveMessage(ctx context.Context, msg *models.Message) error {
	return m.Called(msg).Error(0)
}

func (m *MockStorage) ListMessages(ctx context.Context, roomID string, before uint, limit int) ([]models.Message, error) {
	args := m.Called(roomID, before, limit)
	msgs, _ := args.Get(0).([]models.Message)
	return msgs, args.Error(1)
}

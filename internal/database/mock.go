package database

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockRepository) GetUser(ctx context.Context, id string) (User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) CreateSpace(ctx context.Context, params CreateSpaceParams) (Space, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Space), args.Error(1)
}
func (m *MockRepository) GetSpace(ctx context.Context, id string) (Space, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Space), args.Error(1)
}
func (m *MockRepository) CreateStream(ctx context.Context, params CreateStreamParams) (Stream, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Stream), args.Error(1)
}
func (m *MockRepository) GetStream(ctx context.Context, id string) (Stream, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Stream), args.Error(1)
}
func (m *MockRepository) ListActiveStreams(ctx context.Context, spaceId, viewerId string) ([]StreamWithVotes, error) {
	args := m.Called(ctx, spaceId, viewerId)
	if streams, ok := args.Get(0).([]StreamWithVotes); ok {
		return streams, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockRepository) CountActiveStreams(ctx context.Context, spaceId string) (int, error) {
	args := m.Called(ctx, spaceId)
	return args.Int(0), args.Error(1)
}
func (m *MockRepository) CountStreamsAddedSince(ctx context.Context, spaceId, addedBy string, since time.Time) (int, error) {
	args := m.Called(ctx, spaceId, addedBy, since)
	return args.Int(0), args.Error(1)
}
func (m *MockRepository) FindRecentStream(ctx context.Context, spaceId, extractedId string, since time.Time) (Stream, error) {
	args := m.Called(ctx, spaceId, extractedId, since)
	return args.Get(0).(Stream), args.Error(1)
}
func (m *MockRepository) CreateUpvote(ctx context.Context, userId, streamId string) error {
	args := m.Called(ctx, userId, streamId)
	return args.Error(0)
}
func (m *MockRepository) DeleteUpvote(ctx context.Context, userId, streamId string) (bool, error) {
	args := m.Called(ctx, userId, streamId)
	return args.Bool(0), args.Error(1)
}
func (m *MockRepository) CountUpvotes(ctx context.Context, streamId string) (int, error) {
	args := m.Called(ctx, streamId)
	return args.Int(0), args.Error(1)
}
func (m *MockRepository) PlayNext(ctx context.Context, spaceId, userId string) (Stream, error) {
	args := m.Called(ctx, spaceId, userId)
	return args.Get(0).(Stream), args.Error(1)
}
func (m *MockRepository) GetCurrentStream(ctx context.Context, spaceId string) (CurrentStream, error) {
	args := m.Called(ctx, spaceId)
	return args.Get(0).(CurrentStream), args.Error(1)
}
func (m *MockRepository) BoostStream(ctx context.Context, params BoostParams) (BoostResult, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(BoostResult), args.Error(1)
}
func (m *MockRepository) RemoveStream(ctx context.Context, spaceId, streamId string) (RemoveResult, error) {
	args := m.Called(ctx, spaceId, streamId)
	return args.Get(0).(RemoveResult), args.Error(1)
}
func (m *MockRepository) EmptyQueue(ctx context.Context, spaceId string) (int, error) {
	args := m.Called(ctx, spaceId)
	return args.Int(0), args.Error(1)
}
func (m *MockRepository) ListTransactions(ctx context.Context, userId string) ([]Transaction, error) {
	args := m.Called(ctx, userId)
	if txs, ok := args.Get(0).([]Transaction); ok {
		return txs, args.Error(1)
	}
	return nil, args.Error(1)
}

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/try-flowforge/backend/pkg/events"
)

// MockPublisher is a mock implementation of eventbus.Publisher interface.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event *events.ExecutionEvent) error {
	args := m.Called(ctx, event)

	return args.Error(0)
}

// MockSubscriber is a mock implementation of eventbus.Subscriber interface.
type MockSubscriber struct {
	mock.Mock
}

func (m *MockSubscriber) SubscribeExecution(ctx context.Context, executionID string) (<-chan *events.ExecutionEvent, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(<-chan *events.ExecutionEvent), args.Error(1)
}

// Package mocks provides test doubles for the connection and REST seams.
package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/stretchr/testify/mock"

	"storefront-chat/internal/connection"
	"storefront-chat/internal/models"
)

// ConnMock stands in for the connection manager. Emit and IsConnected are
// testify expectations; On records handlers so tests can replay server
// events through Dispatch. Because On is taken by handler registration,
// expectations are set through the embedded Mock: conn.Mock.On("Emit", ...).
type ConnMock struct {
	mock.Mock

	mu       sync.Mutex
	handlers map[string][]connection.Handler
}

func NewConnMock() *ConnMock {
	return &ConnMock{handlers: make(map[string][]connection.Handler)}
}

func (m *ConnMock) Emit(event string, payload any) error {
	args := m.Called(event, payload)
	return args.Error(0)
}

func (m *ConnMock) IsConnected() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *ConnMock) On(event string, handler connection.Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], handler)
}

// Dispatch delivers one server event to every registered handler, in
// registration order, the way the manager's dispatch goroutine would.
func (m *ConnMock) Dispatch(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	m.mu.Lock()
	handlers := append([]connection.Handler(nil), m.handlers[event]...)
	m.mu.Unlock()
	for _, handler := range handlers {
		handler(data)
	}
	return nil
}

// RoomsFetcherMock mocks the admin REST rooms client.
type RoomsFetcherMock struct {
	mock.Mock
}

func (m *RoomsFetcherMock) FetchAll(ctx context.Context) ([]models.Room, error) {
	args := m.Called(ctx)
	var rooms []models.Room
	if val := args.Get(0); val != nil {
		rooms = val.([]models.Room)
	}
	return rooms, args.Error(1)
}

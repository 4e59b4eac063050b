package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"storefront-chat/internal/models"
)

// RoomsFetcher loads the room-list snapshot used to seed the console before
// live events take over.
type RoomsFetcher interface {
	FetchAll(ctx context.Context) ([]models.Room, error)
}

// RoomsClient fetches rooms from the storefront REST API.
type RoomsClient struct {
	http *resty.Client
}

// NewRoomsClient builds a client for the given API base URL.
func NewRoomsClient(baseURL string, timeout time.Duration) *RoomsClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)
	return &RoomsClient{http: client}
}

// FetchAll returns every chat room with its embedded message history.
func (c *RoomsClient) FetchAll(ctx context.Context) ([]models.Room, error) {
	var out struct {
		Data []models.Room `json:"data"`
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/chats/admin/all")
	if err != nil {
		return nil, fmt.Errorf("fetch chat rooms: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch chat rooms: status %s", resp.Status())
	}
	return out.Data, nil
}

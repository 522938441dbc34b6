package clients

import "context"

// Repo stores registered clients. Get returns errors.ErrNotFound for unknown ids.
type Repo interface {
	Create(ctx context.Context, client *Client) error
	Get(ctx context.Context, clientID string) (*Client, error)
	SetActive(ctx context.Context, clientID string, active bool) error
}

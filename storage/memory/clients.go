package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/ggrighi15/fusione-dev-sub001/clients"
	autherrors "github.com/ggrighi15/fusione-dev-sub001/internal/errors"
)

var _ clients.Repo = (*ClientRepo)(nil)

type ClientRepo struct {
	clients map[string]*clients.Client
	lock    sync.RWMutex
}

func NewClientRepo() *ClientRepo {
	return &ClientRepo{
		clients: make(map[string]*clients.Client),
	}
}

func (r *ClientRepo) Create(_ context.Context, client *clients.Client) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.clients[client.ID]; ok {
		return autherrors.Wrapf(autherrors.ErrConflict, "client %s", client.ID)
	}
	r.clients[client.ID] = cloneClient(client)
	return nil
}

func (r *ClientRepo) Get(_ context.Context, clientID string) (*clients.Client, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	c, ok := r.clients[clientID]
	if !ok {
		return nil, autherrors.Wrapf(autherrors.ErrNotFound, "client %s", clientID)
	}
	return cloneClient(c), nil
}

func (r *ClientRepo) SetActive(_ context.Context, clientID string, active bool) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	c, ok := r.clients[clientID]
	if !ok {
		return autherrors.Wrapf(autherrors.ErrNotFound, "client %s", clientID)
	}
	c.IsActive = active
	return nil
}

func cloneClient(c *clients.Client) *clients.Client {
	cp := *c
	cp.RedirectURIs = slices.Clone(c.RedirectURIs)
	cp.Scopes = slices.Clone(c.Scopes)
	cp.GrantTypes = slices.Clone(c.GrantTypes)
	return &cp
}

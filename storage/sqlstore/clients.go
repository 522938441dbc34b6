package sqlstore

import (
	"context"

	"github.com/pkg/errors"

	"github.com/ggrighi15/fusione-dev-sub001/clients"
	autherrors "github.com/ggrighi15/fusione-dev-sub001/internal/errors"
)

var _ clients.Repo = (*ClientRepo)(nil)

type ClientRepo struct {
	db *DB
}

func (r *ClientRepo) Create(ctx context.Context, c *clients.Client) error {
	redirects, err := encodeJSON(c.RedirectURIs)
	if err != nil {
		return err
	}
	scopes, err := encodeJSON(c.Scopes)
	if err != nil {
		return err
	}
	grants, err := encodeJSON(c.GrantTypes)
	if err != nil {
		return err
	}

	n, err := r.db.exec(ctx, `INSERT INTO clients
		(id, secret_hash, name, redirect_uris, scopes, grant_types, is_confidential, is_active, owner_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`,
		c.ID, c.SecretHash, c.Name, redirects, scopes, grants, flag(c.IsConfidential), flag(c.IsActive), c.OwnerID, nanos(c.CreatedAt))
	if err != nil {
		return errors.Wrap(err, "[ClientRepo.Create]")
	}
	if n == 0 {
		return autherrors.Wrapf(autherrors.ErrConflict, "client %s", c.ID)
	}
	return nil
}

func (r *ClientRepo) Get(ctx context.Context, clientID string) (*clients.Client, error) {
	var (
		c                         clients.Client
		redirects, scopes, grants string
		createdAt                 int64
	)
	err := r.db.queryRow(ctx, `SELECT id, secret_hash, name, redirect_uris, scopes, grant_types,
		is_confidential, is_active, owner_id, created_at FROM clients WHERE id = ?`, clientID).
		Scan(&c.ID, &c.SecretHash, &c.Name, &redirects, &scopes, &grants, &c.IsConfidential, &c.IsActive, &c.OwnerID, &createdAt)
	if err != nil {
		return nil, scanErr(err, "client "+clientID)
	}
	if err := decodeJSON(redirects, &c.RedirectURIs); err != nil {
		return nil, err
	}
	if err := decodeJSON(scopes, &c.Scopes); err != nil {
		return nil, err
	}
	if err := decodeJSON(grants, &c.GrantTypes); err != nil {
		return nil, err
	}
	c.CreatedAt = fromNanos(createdAt)
	return &c, nil
}

func (r *ClientRepo) SetActive(ctx context.Context, clientID string, active bool) error {
	n, err := r.db.exec(ctx, `UPDATE clients SET is_active = ? WHERE id = ?`, flag(active), clientID)
	if err != nil {
		return errors.Wrap(err, "[ClientRepo.SetActive]")
	}
	if n == 0 {
		return autherrors.Wrapf(autherrors.ErrNotFound, "client %s", clientID)
	}
	return nil
}

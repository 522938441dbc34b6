package errors_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	autherrors "github.com/ggrighi15/fusione-dev-sub001/internal/errors"
)

func TestRedirectMismatchIsInvalidRedirect(t *testing.T) {
	err := pkgerrors.Wrap(autherrors.ErrRedirectMismatch, "[Engine.ExchangeCode]")
	require.True(t, autherrors.Is(err, autherrors.ErrInvalidRedirect))
	require.True(t, autherrors.Is(err, autherrors.ErrRedirectMismatch))
	require.False(t, autherrors.Is(err, autherrors.ErrInvalidGrant))
	require.Equal(t, http.StatusBadRequest, autherrors.HTTPStatus(err))
}

func TestTransient(t *testing.T) {
	t.Run("deadline becomes transient", func(t *testing.T) {
		err := autherrors.FromContext(fmt.Errorf("query: %w", context.DeadlineExceeded))
		require.True(t, autherrors.IsTransient(err))
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.Equal(t, http.StatusServiceUnavailable, autherrors.HTTPStatus(err))
		require.Equal(t, "temporarily_unavailable", autherrors.Code(err))
	})

	t.Run("other errors untouched", func(t *testing.T) {
		err := autherrors.FromContext(autherrors.ErrNotFound)
		require.False(t, autherrors.IsTransient(err))
		require.Equal(t, http.StatusNotFound, autherrors.HTTPStatus(err))
	})

	t.Run("nil stays nil", func(t *testing.T) {
		require.NoError(t, autherrors.Transient(nil))
	})
}

func TestCodes(t *testing.T) {
	tests := []struct {
		err    error
		code   string
		status int
	}{
		{autherrors.ErrInvalidClient, "invalid_client", http.StatusUnauthorized},
		{autherrors.ErrInvalidScope, "invalid_scope", http.StatusBadRequest},
		{autherrors.ErrInvalidGrant, "invalid_grant", http.StatusBadRequest},
		{autherrors.ErrTwoFactorRequired, "two_factor_required", http.StatusUnauthorized},
		{autherrors.ErrPermissionDenied, "access_denied", http.StatusForbidden},
		{autherrors.ErrConflict, "conflict", http.StatusConflict},
		{fmt.Errorf("boom"), "server_error", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			require.Equal(t, tt.code, autherrors.Code(tt.err))
			require.Equal(t, tt.status, autherrors.HTTPStatus(tt.err))
		})
	}
}

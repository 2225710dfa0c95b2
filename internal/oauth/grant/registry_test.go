package grant

import (
	"context"
	"testing"

	"grantor/internal/oauth/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	f := newFixture()

	t.Run("dispatches registered grants by type", func(t *testing.T) {
		registry := NewRegistry()
		authCode := f.authCodeGrant(t)
		refresh := f.refreshGrant(t)
		require.NoError(t, registry.Register(authCode, NewPKCE()))
		require.NoError(t, registry.Register(refresh))

		g, chain, err := registry.TokenGrantFor("authorization_code")
		require.NoError(t, err)
		assert.Same(t, authCode, g)
		assert.Len(t, chain, 1)

		g, chain, err = registry.TokenGrantFor("refresh_token")
		require.NoError(t, err)
		assert.Same(t, refresh, g)
		assert.Empty(t, chain)

		ag, _, err := registry.AuthorizeGrantFor("code")
		require.NoError(t, err)
		assert.Same(t, authCode, ag)
	})

	t.Run("unknown grant type fails with unsupported_grant_type", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(f.authCodeGrant(t)))

		_, _, err := registry.TokenGrantFor("client_credentials")
		oe, ok := models.AsOAuthError(err)
		require.True(t, ok)
		assert.Equal(t, models.ErrorCodeUnsupportedGrantType, oe.Code)
	})

	t.Run("unknown response type is rejected", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(f.authCodeGrant(t)))

		_, _, err := registry.AuthorizeGrantFor("token")
		oe, ok := models.AsOAuthError(err)
		require.True(t, ok)
		assert.Equal(t, models.ErrorCodeInvalidRequest, oe.Code)
	})

	t.Run("double registration is a wiring error", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(f.authCodeGrant(t)))
		require.Error(t, registry.Register(f.authCodeGrant(t)))
	})

	t.Run("extension order is invocation order", func(t *testing.T) {
		var order []string
		first := &orderRecorder{name: "first", order: &order}
		second := &orderRecorder{name: "second", order: &order}

		chain := Chain{first, second}
		require.NoError(t, chain.RunAuthorize(context.Background(), &AuthorizeContext{}))
		assert.Equal(t, []string{"first", "second"}, order)
	})
}

type orderRecorder struct {
	name  string
	order *[]string
}

func (p *orderRecorder) Name() string { return p.name }

func (p *orderRecorder) OnAuthorize(_ context.Context, _ *AuthorizeContext) error {
	*p.order = append(*p.order, p.name)
	return nil
}

package grant

import (
	"fmt"

	"grantor/internal/oauth/models"
)

type registration struct {
	grant Grant
	chain Chain
}

// Registry binds grant-type identifiers to grant implementations and their
// ordered extension chains. Built once at startup, read-only afterwards.
type Registry struct {
	byGrantType    map[models.GrantType]registration
	byResponseType map[string]registration
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byGrantType:    make(map[models.GrantType]registration),
		byResponseType: make(map[string]registration),
	}
}

// Register binds a grant and its extensions. Extension order is invocation
// order for both phases. Registering the same grant type twice is a wiring
// bug and returns an error.
func (r *Registry) Register(g Grant, exts ...Extension) error {
	grantType := g.GrantType()
	if !grantType.IsValid() {
		return fmt.Errorf("register grant: unknown grant type %q", grantType)
	}
	if _, exists := r.byGrantType[grantType]; exists {
		return fmt.Errorf("register grant: %q already registered", grantType)
	}
	reg := registration{grant: g, chain: Chain(exts)}
	r.byGrantType[grantType] = reg
	if ag, ok := g.(AuthorizeGrant); ok {
		if _, exists := r.byResponseType[ag.ResponseType()]; exists {
			return fmt.Errorf("register grant: response_type %q already registered", ag.ResponseType())
		}
		r.byResponseType[ag.ResponseType()] = reg
	}
	return nil
}

// AuthorizeGrantFor dispatches an authorize request by response_type.
func (r *Registry) AuthorizeGrantFor(responseType string) (AuthorizeGrant, Chain, error) {
	reg, ok := r.byResponseType[responseType]
	if !ok {
		return nil, nil, models.ErrInvalidRequest(fmt.Sprintf("unsupported response_type %q", responseType))
	}
	return reg.grant.(AuthorizeGrant), reg.chain, nil
}

// TokenGrantFor dispatches a token request by grant_type. Unknown
// identifiers fail with unsupported_grant_type.
func (r *Registry) TokenGrantFor(grantType string) (TokenGrant, Chain, error) {
	reg, ok := r.byGrantType[models.GrantType(grantType)]
	if !ok {
		return nil, nil, models.ErrUnsupportedGrantType(fmt.Sprintf("grant type %q is not supported", grantType))
	}
	tg, ok := reg.grant.(TokenGrant)
	if !ok {
		return nil, nil, models.ErrUnsupportedGrantType(fmt.Sprintf("grant type %q has no token phase", grantType))
	}
	return tg, reg.chain, nil
}

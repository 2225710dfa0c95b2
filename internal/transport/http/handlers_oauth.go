package httptransport

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"grantor/internal/oauth/models"
	id "grantor/pkg/domain"
	"grantor/pkg/platform/httputil"
)

//go:generate mockgen -source=handlers_oauth.go -destination=mocks/oauth-mocks.go -package=mocks OAuthService

// OAuthService is the service surface the OAuth endpoints delegate to.
type OAuthService interface {
	Authorize(ctx context.Context, req *models.AuthorizeRequest) (*models.AuthorizeResult, error)
	Token(ctx context.Context, req *models.TokenRequest) (*models.TokenResult, error)
	Revoke(ctx context.Context, req *models.RevokeRequest) error
}

// SessionCookieName carries the subject session established by the upstream
// login flow. The X-Session-ID header is accepted as an alternative for
// non-browser callers.
const (
	SessionCookieName = "grantor_session"
	sessionHeaderName = "X-Session-ID"
)

// OAuthHandler is the thin HTTP layer over the grant engine. It parses wire
// parameters, delegates to the service, and renders results; no grant logic
// lives here.
type OAuthHandler struct {
	oauth OAuthService
}

func NewOAuthHandler(oauth OAuthService) *OAuthHandler {
	return &OAuthHandler{oauth: oauth}
}

// HandleAuthorize serves GET and POST /oauth/authorize. Success redirects to
// the client's redirect_uri with code and state. Failures redirect with
// error parameters only once the redirect URI has been validated; anything
// earlier answers directly so the endpoint never becomes an open redirector.
func (h *OAuthHandler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	params, err := authorizeParams(r)
	if err != nil {
		writeDirectError(w, models.ErrInvalidRequest("malformed request parameters"))
		return
	}

	req := &models.AuthorizeRequest{
		ResponseType:        params.Get("response_type"),
		ClientID:            params.Get("client_id"),
		RedirectURI:         params.Get("redirect_uri"),
		Scopes:              strings.Fields(params.Get("scope")),
		State:               params.Get("state"),
		Nonce:               params.Get("nonce"),
		CodeChallenge:       params.Get("code_challenge"),
		CodeChallengeMethod: params.Get("code_challenge_method"),
		Prompt:              params.Get("prompt"),
		SessionID:           sessionIDFromRequest(r),
	}

	result, err := h.oauth.Authorize(r.Context(), req)
	if err != nil {
		h.writeAuthorizeError(w, r, req, err)
		return
	}

	redirect, _ := url.Parse(result.RedirectURI)
	q := redirect.Query()
	q.Set("code", result.Code)
	if result.State != "" {
		q.Set("state", result.State)
	}
	redirect.RawQuery = q.Encode()
	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

// HandleToken serves POST /oauth/token. Client credentials arrive via HTTP
// basic auth (client_secret_basic) or form fields (client_secret_post).
func (h *OAuthHandler) HandleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDirectError(w, models.ErrInvalidRequest("malformed form body"))
		return
	}
	clientID, clientSecret, usedBasicAuth := clientCredentials(r)

	req := &models.TokenRequest{
		GrantType:    r.PostFormValue("grant_type"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Code:         r.PostFormValue("code"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		CodeVerifier: r.PostFormValue("code_verifier"),
		RefreshToken: r.PostFormValue("refresh_token"),
		Scopes:       strings.Fields(r.PostFormValue("scope")),
	}

	result, err := h.oauth.Token(r.Context(), req)
	if err != nil {
		oerr := asOAuthError(err)
		if oerr.Code == models.ErrorCodeInvalidClient && usedBasicAuth {
			w.Header().Set("WWW-Authenticate", `Basic realm="oauth token endpoint"`)
		}
		writeDirectError(w, oerr)
		return
	}

	// RFC 6749 5.1: token responses must not be cached.
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleRevoke serves POST /oauth/revoke (RFC 7009). Unknown tokens still
// produce 200 so callers cannot probe for token existence.
func (h *OAuthHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDirectError(w, models.ErrInvalidRequest("malformed form body"))
		return
	}
	clientID, clientSecret, _ := clientCredentials(r)

	req := &models.RevokeRequest{
		Token:         r.PostFormValue("token"),
		TokenTypeHint: r.PostFormValue("token_type_hint"),
		ClientID:      clientID,
		ClientSecret:  clientSecret,
	}

	if err := h.oauth.Revoke(r.Context(), req); err != nil {
		writeDirectError(w, asOAuthError(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *OAuthHandler) writeAuthorizeError(w http.ResponseWriter, r *http.Request, req *models.AuthorizeRequest, err error) {
	oerr := asOAuthError(err)
	if oerr.NoRedirect || req.RedirectURI == "" {
		writeDirectError(w, oerr)
		return
	}
	redirect, parseErr := url.Parse(req.RedirectURI)
	if parseErr != nil {
		writeDirectError(w, oerr)
		return
	}
	q := redirect.Query()
	q.Set("error", oerr.Code)
	if oerr.Description != "" {
		q.Set("error_description", oerr.Description)
	}
	if req.State != "" {
		q.Set("state", req.State)
	}
	redirect.RawQuery = q.Encode()
	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

// authorizeParams merges query and form parameters for GET and POST
// authorize requests.
func authorizeParams(r *http.Request) (url.Values, error) {
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		return r.Form, nil
	}
	return r.URL.Query(), nil
}

func clientCredentials(r *http.Request) (clientID, clientSecret string, usedBasicAuth bool) {
	if user, pass, ok := r.BasicAuth(); ok {
		// RFC 6749 2.3.1: basic auth credentials are form-urlencoded
		// before base64.
		if decoded, err := url.QueryUnescape(user); err == nil {
			user = decoded
		}
		if decoded, err := url.QueryUnescape(pass); err == nil {
			pass = decoded
		}
		return user, pass, true
	}
	return r.PostFormValue("client_id"), r.PostFormValue("client_secret"), false
}

func sessionIDFromRequest(r *http.Request) id.SessionID {
	raw := ""
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		raw = cookie.Value
	}
	if raw == "" {
		raw = r.Header.Get(sessionHeaderName)
	}
	if raw == "" {
		return id.SessionID{}
	}
	sessionID, err := id.ParseSessionID(raw)
	if err != nil {
		// An unparseable session is treated as no session; the grant
		// pipeline decides whether one is required.
		return id.SessionID{}
	}
	return sessionID
}

func asOAuthError(err error) *models.OAuthError {
	if oerr, ok := models.AsOAuthError(err); ok {
		return oerr
	}
	return models.ErrServerError()
}

func writeDirectError(w http.ResponseWriter, oerr *models.OAuthError) {
	body := map[string]string{"error": oerr.Code}
	if oerr.Description != "" {
		body["error_description"] = oerr.Description
	}
	httputil.WriteJSON(w, oerr.Status, body)
}

package auth

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-oauth2/oauth2/v4"
	"github.com/sirupsen/logrus"

	"github.com/gatherhq/gather-api/internal/models"
)

var log = logrus.New()

func init() {
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetLevel(logrus.InfoLevel)
}

// timeNow is swapped out in tests
var timeNow = time.Now

// SessionCookieName is the browser session cookie
const SessionCookieName = "gather_session"

// Authentication schemes, in resolution priority order
const (
	SchemeSession = "session"
	SchemePat     = "pat"
	SchemeOAuth   = "oauth"
)

// Result is the uniform outcome of credential resolution consumed by every
// downstream route guard.
//
// Scopes == nil is a sentinel meaning the request was session-authenticated
// and scope checks are bypassed. A PAT- or OAuth-authenticated result always
// carries a concrete (possibly empty) scope set, which is never mutated after
// creation.
type Result struct {
	User   *models.User
	Scopes []string
	Scheme string
}

// SessionBypass reports whether scope checks are bypassed for this result
func (r *Result) SessionBypass() bool {
	return r.Scopes == nil
}

// HasScope checks the result's grant against a required scope, honoring the
// session bypass.
func (r *Result) HasScope(required string) bool {
	if r.SessionBypass() {
		return true
	}
	return Has(r.Scopes, required)
}

// Collaborator boundaries. The concrete implementations live in
// internal/services; the resolver only needs these reads.

type SessionStore interface {
	GetValidSession(token string) (*models.Session, error)
}

type PatStore interface {
	GetByPlaintext(token string) (*models.PersonalAccessToken, error)
	TouchLastUsed(id uint) error
}

type UserStore interface {
	GetUserByID(id uint) (*models.User, error)
}

// TokenIntrospector is the grant engine's unwrap-token operation
type TokenIntrospector interface {
	UnwrapToken(ctx context.Context, access string) (oauth2.TokenInfo, error)
	LookupClient(ctx context.Context, clientID string) (oauth2.ClientInfo, error)
}

// Resolver resolves a request's caller identity and authorized scopes from
// one of three schemes, tried in fixed priority order with short-circuiting:
// session cookie, personal access token, delegated OAuth bearer token.
//
// Every failure mode degrades to unauthenticated (nil Result); the resolver
// never returns an error and never writes a response. Resolution is safe to
// call multiple times per request.
type Resolver struct {
	sessions SessionStore
	pats     PatStore
	users    UserStore
	engine   TokenIntrospector
}

func NewResolver(sessions SessionStore, pats PatStore, users UserStore, engine TokenIntrospector) *Resolver {
	return &Resolver{
		sessions: sessions,
		pats:     pats,
		users:    users,
		engine:   engine,
	}
}

// Resolve produces at most one Result for the request. A nil return means
// unauthenticated; responding 401 is the caller's decision.
func (r *Resolver) Resolve(req *http.Request) *Result {
	if result := r.resolveSession(req); result != nil {
		return result
	}

	bearer := bearerToken(req)
	if bearer == "" {
		return nil
	}
	if IsPersonalAccessToken(bearer) {
		return r.resolvePat(req.Context(), bearer)
	}
	return r.resolveOAuthBearer(req.Context(), bearer)
}

// resolveSession handles scheme 1: a non-expired session cookie with a live
// owning user resolves with Scopes == nil (full bypass). Tampered or expired
// cookies resolve to unauthenticated, never to a degraded session.
func (r *Resolver) resolveSession(req *http.Request) *Result {
	cookie, err := req.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}

	session, err := r.sessions.GetValidSession(cookie.Value)
	if err != nil {
		return nil
	}

	user, err := r.users.GetUserByID(session.UserID)
	if err != nil {
		return nil
	}

	return &Result{User: user, Scopes: nil, Scheme: SchemeSession}
}

// resolvePat handles scheme 2: rejected if the token is unknown, expired, or
// the owning user no longer exists. The stored scope list is carried verbatim;
// expansion happens at the check site.
func (r *Resolver) resolvePat(ctx context.Context, token string) *Result {
	pat, err := r.pats.GetByPlaintext(token)
	if err != nil {
		return nil
	}
	if pat.Expired(timeNow()) {
		return nil
	}

	user, err := r.users.GetUserByID(pat.UserID)
	if err != nil {
		return nil
	}

	// Usage bookkeeping off the request path; failures are logged, never surfaced
	patID := pat.ID
	go func() {
		if err := r.pats.TouchLastUsed(patID); err != nil {
			log.WithFields(logrus.Fields{"pat_id": patID, "error": err.Error()}).Warn("Failed to update PAT last-used timestamp")
		}
	}()

	scopes := SplitScopes(pat.Scopes)
	if scopes == nil {
		scopes = []string{}
	}
	return &Result{User: user, Scopes: scopes, Scheme: SchemePat}
}

// resolveOAuthBearer handles scheme 3 via the grant engine's introspection.
// Engine errors are swallowed: a missing grant, client ID or user property all
// resolve to unauthenticated. The grant's frozen scope list is not trusted
// as-is; the effective set is re-derived against the client's currently
// registered scopes so a narrowed client registration narrows old grants too.
func (r *Resolver) resolveOAuthBearer(ctx context.Context, token string) *Result {
	ti, err := r.engine.UnwrapToken(ctx, token)
	if err != nil || ti == nil {
		return nil
	}

	clientID := ti.GetClientID()
	if clientID == "" {
		return nil
	}

	userID, err := strconv.ParseUint(ti.GetUserID(), 10, 32)
	if err != nil {
		return nil
	}
	user, err := r.users.GetUserByID(uint(userID))
	if err != nil {
		return nil
	}

	scopes := r.deriveGrantScopes(ctx, clientID, ti.GetScope())
	return &Result{User: user, Scopes: scopes, Scheme: SchemeOAuth}
}

func (r *Resolver) deriveGrantScopes(ctx context.Context, clientID, grantScope string) []string {
	effective := []string{}

	client, err := r.engine.LookupClient(ctx, clientID)
	if err != nil || client == nil {
		// Without current client metadata no scope can be vouched for
		return effective
	}

	allowed := clientScopes(client)
	for _, s := range SplitScopes(grantScope) {
		if Has(allowed, s) {
			effective = append(effective, Canonical(s))
		}
	}
	return effective
}

func clientScopes(client oauth2.ClientInfo) []string {
	if c, ok := client.(*models.OAuthClient); ok {
		return SplitScopes(c.Scopes)
	}
	return nil
}

// bearerToken extracts the RFC 6750 bearer credential, if any
func bearerToken(req *http.Request) string {
	header := req.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

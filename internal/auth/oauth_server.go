package auth

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/go-oauth2/oauth2/v4"
	"github.com/go-oauth2/oauth2/v4/manage"
	"github.com/go-oauth2/oauth2/v4/server"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	internalmodels "github.com/gatherhq/gather-api/internal/models"
)

// OAuthService wraps the grant engine. The rest of the subsystem only ever
// talks to the engine through the four operations below (ParseAuthRequest,
// LookupClient, CompleteAuthorization, UnwrapToken) plus the token grants.
type OAuthService struct {
	server *server.Server
	db     *gorm.DB
}

func NewOAuthService(db *gorm.DB, jwtSecret string) *OAuthService {
	manager := manage.NewDefaultManager()

	manager.SetAuthorizeCodeExp(10 * time.Minute)
	manager.SetAuthorizeCodeTokenCfg(&manage.Config{
		AccessTokenExp:    2 * time.Hour,
		RefreshTokenExp:   30 * 24 * time.Hour,
		IsGenerateRefresh: true,
	})
	manager.SetRefreshTokenCfg(&manage.RefreshingConfig{
		AccessTokenExp:     2 * time.Hour,
		RefreshTokenExp:    30 * 24 * time.Hour,
		IsGenerateRefresh:  true,
		IsResetRefreshTime: true,
		IsRemoveAccess:     true,
		IsRemoveRefreshing: true,
	})

	// Use JWT for access tokens
	manager.MapAccessGenerate(NewJWTAccessGenerate([]byte(jwtSecret), jwt.SigningMethodHS512, db))

	// Configure token store
	tokenStore := NewGormTokenStore(db)
	manager.MustTokenStorage(tokenStore, nil)

	// Configure client store
	clientStore := NewGormClientStore(db)
	manager.MapClientStorage(clientStore)

	srv := server.NewDefaultServer(manager)
	srv.SetClientInfoHandler(server.ClientFormHandler)

	return &OAuthService{
		server: srv,
		db:     db,
	}
}

func (o *OAuthService) GetServer() *server.Server {
	return o.server
}

// ParseAuthRequest validates an inbound authorization request and returns the
// parsed parameters (response type, client, redirect URI, scope, state, PKCE
// challenge).
func (o *OAuthService) ParseAuthRequest(r *http.Request) (*server.AuthorizeRequest, error) {
	return o.server.ValidationAuthorizeRequest(r)
}

// LookupClient fetches client metadata from the engine's client store
func (o *OAuthService) LookupClient(ctx context.Context, clientID string) (oauth2.ClientInfo, error) {
	return o.server.Manager.GetClient(ctx, clientID)
}

// CompleteAuthorization creates the authorization code for an approved request
// and returns the redirect URL the user agent should be sent to. The OIDC
// nonce and the authentication time travel with the code so the eventual ID
// token can echo them.
func (o *OAuthService) CompleteAuthorization(ctx context.Context, req *server.AuthorizeRequest, nonce string) (string, error) {
	ti, err := o.server.Manager.GenerateAuthToken(ctx, oauth2.Code, &oauth2.TokenGenerateRequest{
		ClientID:            req.ClientID,
		UserID:              req.UserID,
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
	})
	if err != nil {
		return "", err
	}

	authTime := time.Now()
	if err := o.db.Model(&internalmodels.OAuthCode{}).Where("code = ?", ti.GetCode()).
		Updates(map[string]interface{}{"nonce": nonce, "auth_time": &authTime}).Error; err != nil {
		log.WithFields(logrus.Fields{"client_id": req.ClientID, "error": err.Error()}).Warn("Failed to attach OIDC properties to authorization code")
	}

	redirect, err := url.Parse(req.RedirectURI)
	if err != nil {
		return "", err
	}
	query := redirect.Query()
	query.Set("code", ti.GetCode())
	if req.State != "" {
		query.Set("state", req.State)
	}
	redirect.RawQuery = query.Encode()
	return redirect.String(), nil
}

// UnwrapToken introspects an access token, returning the grant it was issued
// under. Expired or unknown tokens return an error.
func (o *OAuthService) UnwrapToken(ctx context.Context, access string) (oauth2.TokenInfo, error) {
	return o.server.Manager.LoadAccessToken(ctx, access)
}

// ExchangeCode redeems an authorization code for tokens. The engine verifies
// the client credentials, redirect URI and PKCE verifier against the stored
// code. OIDC properties captured at authorization time are copied onto the
// issued token before the code row disappears.
func (o *OAuthService) ExchangeCode(ctx context.Context, clientID, clientSecret, code, redirectURI, codeVerifier string) (oauth2.TokenInfo, error) {
	var pending internalmodels.OAuthCode
	codeErr := o.db.Where("code = ?", code).First(&pending).Error

	ti, err := o.server.Manager.GenerateAccessToken(ctx, oauth2.AuthorizationCode, &oauth2.TokenGenerateRequest{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Code:         code,
		RedirectURI:  redirectURI,
		CodeVerifier: codeVerifier,
	})
	if err != nil {
		return nil, err
	}

	if codeErr == nil && (pending.Nonce != "" || pending.AuthTime != nil) {
		if err := o.db.Model(&internalmodels.OAuthToken{}).Where("access_token = ?", ti.GetAccess()).
			Updates(map[string]interface{}{"nonce": pending.Nonce, "auth_time": pending.AuthTime}).Error; err != nil {
			log.WithFields(logrus.Fields{"client_id": clientID, "error": err.Error()}).Warn("Failed to carry OIDC properties onto access token")
		}
	}
	return ti, nil
}

// GrantProps returns the OIDC side-channel properties stored with an access
// token. Missing rows yield zero values, not errors.
func (o *OAuthService) GrantProps(ctx context.Context, access string) (nonce string, authTime *time.Time) {
	var token internalmodels.OAuthToken
	if err := o.db.Where("access_token = ?", access).First(&token).Error; err != nil {
		return "", nil
	}
	return token.Nonce, token.AuthTime
}

// RefreshToken rotates an access/refresh token pair
func (o *OAuthService) RefreshToken(ctx context.Context, clientID, clientSecret, refresh string) (oauth2.TokenInfo, error) {
	return o.server.Manager.RefreshAccessToken(ctx, &oauth2.TokenGenerateRequest{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Refresh:      refresh,
	})
}

// PurgeClient removes a client from the engine's client store along with all
// outstanding codes and tokens, so a deleted client cannot keep using
// previously issued credentials.
func (o *OAuthService) PurgeClient(ctx context.Context, clientID string) error {
	if err := o.db.Where("client_id = ?", clientID).Delete(&internalmodels.OAuthCode{}).Error; err != nil {
		return err
	}
	if err := o.db.Where("client_id = ?", clientID).Delete(&internalmodels.OAuthToken{}).Error; err != nil {
		return err
	}
	return o.db.Where("id = ?", clientID).Delete(&internalmodels.OAuthClient{}).Error
}

package auth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/sirupsen/logrus"

	"github.com/gatherhq/gather-api/internal/models"
)

// EntitlementsClaim is the custom claim carrying the user's active
// entitlement identifiers.
const EntitlementsClaim = "https://gather.example/entitlements"

// idTokenTTL bounds the lifetime of issued ID tokens
const idTokenTTL = time.Hour

// EntitlementSource yields a user's active entitlement identifiers
type EntitlementSource interface {
	ActiveEntitlements(userID uint) ([]string, error)
}

// GrantPropsSource exposes the OIDC properties stored alongside a grant
type GrantPropsSource interface {
	GrantProps(ctx context.Context, access string) (nonce string, authTime *time.Time)
}

// IssuerMapper maps an inbound request host to the canonical issuer URL
type IssuerMapper func(host string) string

// IdTokenIssuer post-processes token endpoint responses, augmenting them with
// a signed id_token claim when the response is OIDC-eligible. It never
// returns an error: any ineligibility or failure yields the original body
// unchanged, so the primary token-issuance path cannot break.
type IdTokenIssuer struct {
	keys         *SigningKeys
	engine       TokenIntrospector
	props        GrantPropsSource
	users        UserStore
	entitlements EntitlementSource
	issuerFor    IssuerMapper
}

func NewIdTokenIssuer(keys *SigningKeys, engine TokenIntrospector, props GrantPropsSource, users UserStore, entitlements EntitlementSource, issuerFor IssuerMapper) *IdTokenIssuer {
	return &IdTokenIssuer{
		keys:         keys,
		engine:       engine,
		props:        props,
		users:        users,
		entitlements: entitlements,
		issuerFor:    issuerFor,
	}
}

// Augment inspects a token endpoint response body and either returns it
// untouched or returns a copy with an id_token field added.
//
// Eligibility, first failure short-circuits to the original body:
// signing keys configured; body carries an access_token; the scope string
// contains the whole word "openid"; the grant introspects to a client and a
// live user.
func (i *IdTokenIssuer) Augment(req *http.Request, body []byte) []byte {
	if i.keys == nil {
		return body
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return body
	}

	accessToken, _ := payload["access_token"].(string)
	if accessToken == "" {
		return body
	}

	scope, _ := payload["scope"].(string)
	if !ContainsScopeWord(scope, "openid") {
		return body
	}

	ctx := req.Context()
	ti, err := i.engine.UnwrapToken(ctx, accessToken)
	if err != nil || ti == nil || ti.GetClientID() == "" {
		return body
	}

	userID, err := strconv.ParseUint(ti.GetUserID(), 10, 32)
	if err != nil {
		return body
	}
	user, err := i.users.GetUserByID(uint(userID))
	if err != nil {
		return body
	}

	issuer := i.issuerFor(req.Host)
	grantScopes := SplitScopes(ti.GetScope())

	claims := BuildUserClaims(user, issuer, i.lookupEntitlements(user.ID), Has(grantScopes, ScopeUserEmail))
	now := time.Now()
	claims["iss"] = issuer
	claims["aud"] = ti.GetClientID()
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(idTokenTTL).Unix()
	claims["at_hash"] = accessTokenHash(accessToken)

	if nonce, authTime := i.props.GrantProps(ctx, accessToken); nonce != "" || authTime != nil {
		if nonce != "" {
			claims["nonce"] = nonce
		}
		if authTime != nil {
			claims["auth_time"] = authTime.Unix()
		}
	}

	signed, err := i.sign(claims)
	if err != nil {
		log.WithFields(logrus.Fields{"client_id": ti.GetClientID(), "error": err.Error()}).Warn("ID token signing failed, returning response unmodified")
		return body
	}

	payload["id_token"] = signed
	augmented, err := json.Marshal(payload)
	if err != nil {
		return body
	}
	return augmented
}

func (i *IdTokenIssuer) lookupEntitlements(userID uint) []string {
	entitlements, err := i.entitlements.ActiveEntitlements(userID)
	if err != nil {
		log.WithFields(logrus.Fields{"user_id": userID, "error": err.Error()}).Warn("Entitlement lookup failed, omitting claim")
		return nil
	}
	return entitlements
}

func (i *IdTokenIssuer) sign(claims map[string]interface{}) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: i.keys.Algorithm(), Key: &i.keys.Private},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", err
	}

	raw, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	jws, err := signer.Sign(raw)
	if err != nil {
		return "", err
	}
	return jws.CompactSerialize()
}

// accessTokenHash computes the OIDC at_hash binding: base64url of the left
// half of the SHA-256 digest of the access token.
func accessTokenHash(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2])
}

// BuildUserClaims assembles the identity claim set shared by ID tokens and
// the userinfo endpoint. Optional claims appear only when the backing value
// is present; email claims only when includeEmail allows them; entitlements
// only when non-empty.
func BuildUserClaims(user *models.User, issuer string, entitlements []string, includeEmail bool) map[string]interface{} {
	claims := map[string]interface{}{
		"sub": strconv.FormatUint(uint64(user.ID), 10),
	}
	if user.Name != "" {
		claims["name"] = user.Name
	}
	if user.Username != "" {
		claims["preferred_username"] = user.Username
		claims["profile"] = user.ProfileURL(issuer)
	}
	if user.AvatarURL != "" {
		claims["picture"] = user.AvatarURL
	}
	if includeEmail && user.Email != "" {
		claims["email"] = user.Email
		claims["email_verified"] = true
	}
	if len(entitlements) > 0 {
		claims[EntitlementsClaim] = entitlements
	}
	return claims
}

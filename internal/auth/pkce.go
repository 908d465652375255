package auth

import (
	"context"

	"github.com/go-oauth2/oauth2/v4"
	"github.com/sirupsen/logrus"
)

// PkceError is the machine-checkable rejection for a public client missing a
// code_challenge. The description always names both the missing field and the
// acronym PKCE.
type PkceError struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *PkceError) Error() string {
	return e.Code + ": " + e.Description
}

// ErrPkceRequired is returned whenever PKCE enforcement rejects a request
var ErrPkceRequired = &PkceError{
	Code:        "pkce_required",
	Description: "Public clients must include a code_challenge parameter: PKCE is required when token_endpoint_auth_method is \"none\"",
}

// ClientLookup is the grant engine's lookupClient operation
type ClientLookup func(ctx context.Context, clientID string) (oauth2.ClientInfo, error)

// PkceGuard enforces PKCE for public OAuth clients. Confidential clients and
// clients with no recorded auth method (legacy/developer-portal default) are
// exempt.
//
// The same policy runs at two checkpoints: CheckParse when the authorization
// request is first validated, and CheckComplete immediately before a grant is
// created. Only the completion checkpoint fails closed on engine errors.
type PkceGuard struct {
	lookup ClientLookup
}

func NewPkceGuard(lookup ClientLookup) *PkceGuard {
	return &PkceGuard{lookup: lookup}
}

// CheckParse is the advisory parse-time checkpoint. A failed or empty client
// lookup never blocks here; enforcement is deferred to CheckComplete.
func (g *PkceGuard) CheckParse(ctx context.Context, clientID, codeChallenge string) error {
	client, err := g.lookup(ctx, clientID)
	if err != nil || client == nil {
		return nil
	}
	if client.IsPublic() && codeChallenge == "" {
		return ErrPkceRequired
	}
	return nil
}

// CheckComplete is the defense-in-depth checkpoint run immediately before a
// grant is created.
//
// When the client lookup fails the guard fails closed and applies the public
// client policy: a present code_challenge already satisfies safety, an absent
// one is rejected. An infrastructure failure becomes the stricter outcome,
// never an open door.
func (g *PkceGuard) CheckComplete(ctx context.Context, clientID, codeChallenge string) error {
	client, err := g.lookup(ctx, clientID)
	if err != nil || client == nil {
		if err != nil {
			log.WithFields(logrus.Fields{
				"client_id": clientID,
				"error":     err.Error(),
			}).Warn("Client lookup failed during PKCE completion check, failing closed")
		}
		if codeChallenge == "" {
			return ErrPkceRequired
		}
		return nil
	}

	if client.IsPublic() && codeChallenge == "" {
		return ErrPkceRequired
	}
	return nil
}

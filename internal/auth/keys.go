package auth

import (
	"crypto"
	"encoding/base64"
	"encoding/json"

	jose "github.com/go-jose/go-jose/v4"
)

// SigningKeys is the configured OIDC key material: the private key used to
// sign ID tokens and the public half published at the JWKS endpoint.
type SigningKeys struct {
	Private jose.JSONWebKey
	Public  jose.JSONWebKey
}

// Algorithm returns the signature algorithm for the key, defaulting to RS256
func (k *SigningKeys) Algorithm() jose.SignatureAlgorithm {
	if k.Private.Algorithm != "" {
		return jose.SignatureAlgorithm(k.Private.Algorithm)
	}
	return jose.RS256
}

// LoadSigningKeys parses the configured key material. The input may be a
// single private JWK or a full {"keys":[...]} document; the first private key
// wins. Missing or invalid configuration degrades to nil (no ID tokens, empty
// JWKS document), never an error.
func LoadSigningKeys(raw string) *SigningKeys {
	if raw == "" {
		return nil
	}

	for _, key := range candidateKeys(raw) {
		if !key.Valid() || key.IsPublic() {
			continue
		}
		keys := &SigningKeys{Private: key, Public: key.Public()}
		if keys.Private.KeyID == "" {
			kid, err := deriveKeyID(key)
			if err != nil {
				log.WithField("error", err.Error()).Warn("Failed to derive key ID for signing key, ignoring key")
				continue
			}
			keys.Private.KeyID = kid
			keys.Public.KeyID = kid
		}
		return keys
	}

	log.Warn("OIDC signing key configuration contains no usable private key")
	return nil
}

func candidateKeys(raw string) []jose.JSONWebKey {
	var set jose.JSONWebKeySet
	if err := json.Unmarshal([]byte(raw), &set); err == nil && len(set.Keys) > 0 {
		return set.Keys
	}

	var single jose.JSONWebKey
	if err := single.UnmarshalJSON([]byte(raw)); err == nil {
		return []jose.JSONWebKey{single}
	}
	return nil
}

// deriveKeyID computes an RFC 7638 JWK thumbprint for keys configured
// without an explicit kid
func deriveKeyID(key jose.JSONWebKey) (string, error) {
	public := key.Public()
	thumbprint, err := public.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(thumbprint), nil
}

// JWKSDocument builds the public JWKS document. A nil receiver yields an
// empty key list rather than an error.
func (k *SigningKeys) JWKSDocument() jose.JSONWebKeySet {
	if k == nil {
		return jose.JSONWebKeySet{Keys: []jose.JSONWebKey{}}
	}
	return jose.JSONWebKeySet{Keys: []jose.JSONWebKey{k.Public}}
}

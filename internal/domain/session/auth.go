package session

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/galatea-ims/event-hub/internal/domain/model"
	"github.com/golang-jwt/jwt/v5"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Claims is the JWT payload validated at handshake.
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

// rolePolicy is the channel -> permitted-roles table.
var rolePolicy = map[model.Channel]map[string]bool{
	model.ChannelPositions: {"Trader": true, "Operations": true, "Compliance": true},
	model.ChannelInventory: {"Trader": true, "Operations": true, "Compliance": true},
	model.ChannelLocates:   {"Trader": true, "Operations": true},
	model.ChannelAdmin:     {"Admin": true},
	// ChannelAlerts is intentionally absent: any authenticated role qualifies.
}

// AllowedChannels derives, from a token's roles, the set of channels a
// session may subscribe to.
func AllowedChannels(roles []string) map[model.Channel]bool {
	out := map[model.Channel]bool{
		model.ChannelAlerts: len(roles) > 0,
	}
	for channel, permitted := range rolePolicy {
		for _, role := range roles {
			if permitted[role] {
				out[channel] = true
				break
			}
		}
	}
	return out
}

// Authenticator validates a bearer token and resolves its claims.
type Authenticator interface {
	Authenticate(rawToken string) (*Claims, error)
}

// JWTAuthenticator validates HMAC-signed tokens (HS256, HS384 or HS512)
// against issuer/audience/expiry,
// caching parsed claims by token digest to avoid re-parsing identical
// tokens across reconnect storms.
type JWTAuthenticator struct {
	secret   []byte
	issuer   string
	audience string
	cache    *lru.Cache[string, *Claims]
}

// NewJWTAuthenticator builds an Authenticator. cacheSize bounds the
// claims-by-digest LRU (hashicorp/golang-lru/v2), used as a cache-aside
// in front of signature verification so repeated handshakes on the same
// token within its lifetime skip re-parsing.
func NewJWTAuthenticator(secret []byte, issuer, audience string, cacheSize int) (*JWTAuthenticator, error) {
	cache, err := lru.New[string, *Claims](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("session: build claims cache: %w", err)
	}
	return &JWTAuthenticator{secret: secret, issuer: issuer, audience: audience, cache: cache}, nil
}

func (a *JWTAuthenticator) Authenticate(rawToken string) (*Claims, error) {
	if rawToken == "" {
		return nil, fmt.Errorf("session: missing token")
	}

	digest := tokenDigest(rawToken)
	if cached, ok := a.cache.Get(digest); ok {
		if cached.ExpiresAt != nil && cached.ExpiresAt.Before(time.Now()) {
			a.cache.Remove(digest)
		} else {
			return cached, nil
		}
	}

	token, err := jwt.ParseWithClaims(rawToken, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	},
		jwt.WithIssuer(a.issuer),
		jwt.WithAudience(a.audience),
	)
	if err != nil {
		return nil, fmt.Errorf("session: token validation failed: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("session: invalid token claims")
	}

	a.cache.Add(digest, claims)
	return claims, nil
}

func tokenDigest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Identity is the resolved caller: a Keycloak subject, display name,
// and realm roles. The core treats "has admin role" as the sole
// authorization predicate.
type Identity struct {
	Subject string
	Name    string
	Roles   []string
}

func (id *Identity) IsAdmin() bool {
	for _, r := range id.Roles {
		if r == "admin" {
			return true
		}
	}
	return false
}

type claims struct {
	jwt.RegisteredClaims
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	RealmAccess       struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

// Verifier validates Keycloak-issued RS256 bearer tokens against the
// realm's JWKS endpoint. Keys are cached for an hour and refreshed when
// an unknown kid shows up (key rotation).
type Verifier struct {
	issuer  string
	client  *http.Client
	keyFunc jwt.Keyfunc

	mu     sync.RWMutex
	keys   map[string]*rsa.PublicKey
	expiry time.Time
}

func NewVerifier(issuerURL string) *Verifier {
	v := &Verifier{
		issuer: strings.TrimRight(issuerURL, "/"),
		client: &http.Client{Timeout: 10 * time.Second},
	}
	v.keyFunc = v.lookupKey
	return v
}

// NewVerifierWithKeyfunc bypasses JWKS fetching; used in tests.
func NewVerifierWithKeyfunc(issuerURL string, fn jwt.Keyfunc) *Verifier {
	v := NewVerifier(issuerURL)
	v.keyFunc = fn
	return v
}

// Verify parses and validates a bearer token, returning the resolved
// identity.
func (v *Verifier) Verify(tokenString string) (*Identity, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, v.keyFunc,
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(v.issuer),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	name := c.Name
	if name == "" {
		name = c.PreferredUsername
	}

	return &Identity{
		Subject: c.Subject,
		Name:    name,
		Roles:   c.RealmAccess.Roles,
	}, nil
}

func (v *Verifier) lookupKey(token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("token missing kid header")
	}

	v.mu.RLock()
	key, ok := v.keys[kid]
	fresh := time.Now().Before(v.expiry)
	v.mu.RUnlock()

	if ok && fresh {
		return key, nil
	}

	if err := v.refreshKeys(); err != nil {
		return nil, err
	}

	v.mu.RLock()
	key, ok = v.keys[kid]
	v.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no key found for kid %q", kid)
	}
	return key, nil
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (k jwk) publicKey() (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nb),
		E: int(new(big.Int).SetBytes(eb).Int64()),
	}, nil
}

func (v *Verifier) refreshKeys() error {
	url := v.issuer + "/protocol/openid-connect/certs"

	resp, err := v.client.Get(url)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks endpoint returned status %d", resp.StatusCode)
	}

	var set jwkSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := k.publicKey()
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return errors.New("jwks contained no usable signing keys")
	}

	v.mu.Lock()
	v.keys = keys
	v.expiry = time.Now().Add(time.Hour)
	v.mu.Unlock()

	return nil
}

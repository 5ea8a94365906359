package kling

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
)

// tokenTTL is the lifetime of a signed access token.
const tokenTTL = 30 * time.Minute

// credential produces the bearer value for each request. A plain API key is
// sent as is; an access/secret key pair is exchanged for a short-lived JWT.
type credential struct {
	apiKey    string
	accessKey string
	secretKey string
	method    jwt.SigningMethod
	now       func() time.Time
}

func newCredential(apiKey, secretKey string) (*credential, error) {
	apiKey = strings.TrimSpace(apiKey)
	secretKey = strings.TrimSpace(secretKey)

	if secretKey == "" && strings.Contains(apiKey, ",") {
		keyParts := strings.Split(apiKey, ",")
		if len(keyParts) != 2 {
			return nil, fmt.Errorf("invalid API key format for Kling, expected 'access_key,secret_key'")
		}
		apiKey, secretKey = strings.TrimSpace(keyParts[0]), strings.TrimSpace(keyParts[1])
	}

	if apiKey == "" {
		return nil, fmt.Errorf("kling API key is required")
	}
	if secretKey == "" {
		return &credential{apiKey: apiKey, now: time.Now}, nil
	}
	return &credential{accessKey: apiKey, secretKey: secretKey, method: jwt.SigningMethodHS256, now: time.Now}, nil
}

// signed reports whether the credential produces JWTs.
func (c *credential) signed() bool {
	return c.secretKey != ""
}

func (c *credential) bearer() (string, error) {
	if !c.signed() {
		return c.apiKey, nil
	}
	return c.createJWTToken()
}

// createJWTToken signs a token with the access key as issuer
func (c *credential) createJWTToken() (string, error) {
	now := c.now().Unix()
	claims := jwt.MapClaims{
		"iss": c.accessKey,
		"exp": now + int64(tokenTTL/time.Second),
		"nbf": now - 5,
	}
	token := jwt.NewWithClaims(c.method, claims)
	token.Header["typ"] = "JWT"
	tokenString, err := token.SignedString([]byte(c.secretKey))
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

package api

import (
	"errors"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"

	"boardsync/engine"
)

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("bad auth header")
)

// Auth validates bearer JWTs and extracts the current user identity. In test
// mode tokens are verified with a shared HS256 secret instead of the JWKS.
type Auth struct {
	jwks       *keyfunc.JWKS
	audience   string
	issuer     string
	testSecret []byte
	parser     *jwt.Parser
}

// NewAuth creates an Auth verifying RS256 tokens against the given JWKS.
func NewAuth(jwks *keyfunc.JWKS, audience, issuer string) *Auth {
	return &Auth{
		jwks:     jwks,
		audience: audience,
		issuer:   issuer,
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{"RS256"})),
	}
}

// NewTestAuth creates an Auth verifying HS256 tokens with a shared secret.
func NewTestAuth(secret []byte) *Auth {
	return &Auth{
		testSecret: secret,
		parser:     jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
	}
}

// UserFromAuthHeader validates the bearer token and returns the signed-in
// user's id and email.
func (a *Auth) UserFromAuthHeader(header string) (engine.User, error) {
	raw, err := bearerToken(header)
	if err != nil {
		return engine.User{}, err
	}

	var token *jwt.Token
	if a.testSecret != nil {
		token, err = a.parser.Parse(raw, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return a.testSecret, nil
		})
	} else {
		if a.jwks == nil {
			return engine.User{}, errors.New("jwks not configured")
		}
		token, err = a.parser.Parse(raw, a.jwks.Keyfunc)
	}
	if err != nil {
		return engine.User{}, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return engine.User{}, errors.New("invalid claims")
	}

	now := time.Now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return engine.User{}, errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return engine.User{}, errors.New("token not valid yet")
	}
	if a.audience != "" && !claims.VerifyAudience(a.audience, false) {
		return engine.User{}, errors.New("invalid audience")
	}
	if a.issuer != "" && !claims.VerifyIssuer(a.issuer, false) {
		return engine.User{}, errors.New("invalid issuer")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return engine.User{}, errors.New("missing sub")
	}
	email, _ := claims["email"].(string)

	return engine.User{ID: sub, Email: email}, nil
}

func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errMissingAuthorization
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", errBadAuthorization
	}
	if strings.Count(token, ".") != 2 {
		return "", errBadAuthorization
	}
	return token, nil
}

// sessionIdentity pins a request's authenticated user as the session's
// current-user collaborator.
type sessionIdentity struct {
	user engine.User
}

func (s sessionIdentity) CurrentUser() (engine.User, error) {
	if s.user.ID == "" {
		return engine.User{}, errors.New("no current user")
	}
	return s.user, nil
}

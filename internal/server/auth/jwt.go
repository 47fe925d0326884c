// Package auth issues and verifies the HS256 JWTs used for principal access
// tokens and for short-lived stream and download tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims embeds the registered claims plus the caller identity. Kind is empty
// for access tokens and names the capability for scoped tokens.
type Claims struct {
	jwt.RegisteredClaims
	UserID        string `json:"uid"`
	EmailVerified bool   `json:"ev,omitempty"`
	Kind          string `json:"kind,omitempty"`
	SessionUUID   string `json:"sid,omitempty"`
}

// Signer mints and parses tokens with one secret. now is injectable so
// expiry can be tested without sleeping.
type Signer struct {
	secret []byte
	now    func() time.Time
}

func NewSigner(secret []byte, now func() time.Time) *Signer {
	if now == nil {
		now = time.Now
	}
	return &Signer{secret: secret, now: now}
}

func (s *Signer) sign(c Claims, validity time.Duration) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(validity)
	c.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expires, nil
}

func (s *Signer) parse(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == "" {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

// AccessToken mints a principal access token.
func (s *Signer) AccessToken(p models.Principal, validity time.Duration) (string, error) {
	tok, _, err := s.sign(Claims{UserID: p.ID, EmailVerified: p.EmailVerified}, validity)
	return tok, err
}

// ParseAccessToken verifies an access token. Scoped tokens are rejected.
func (s *Signer) ParseAccessToken(tokenString string) (models.Principal, error) {
	c, err := s.parse(tokenString)
	if err != nil {
		return models.Principal{}, err
	}
	if c.Kind != "" {
		return models.Principal{}, common.ErrInvalidToken
	}
	return models.Principal{ID: c.UserID, EmailVerified: c.EmailVerified}, nil
}

// ScopedToken mints a token for one capability kind and reports its expiry.
func (s *Signer) ScopedToken(kind models.TokenKind, userID, sessionUUID string, validity time.Duration) (string, time.Time, error) {
	return s.sign(Claims{UserID: userID, Kind: string(kind), SessionUUID: sessionUUID}, validity)
}

// ParseScopedToken verifies signature, expiry and kind.
func (s *Signer) ParseScopedToken(tokenString string, kind models.TokenKind) (*Claims, error) {
	c, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if c.Kind != string(kind) {
		return nil, common.ErrInvalidToken
	}
	return c, nil
}

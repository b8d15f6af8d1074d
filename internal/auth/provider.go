// Package auth verifies caller identity. Deciding what an identity may do
// with a map is left to the maps coordinator.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	firebase "firebase.google.com/go"
	fbauth "firebase.google.com/go/auth"
	"github.com/golang-jwt/jwt/v4"
)

type Provider interface {
	VerifyToken(ctx context.Context, token string) (*TokenClaims, error)
}

type TokenClaims struct {
	UID string `json:"uid"`
}

var _ Provider = &FirebaseProvider{}

// FirebaseProvider verifies Firebase ID tokens.
type FirebaseProvider struct {
	auth *fbauth.Client
}

func NewFirebaseProvider(ctx context.Context, app *firebase.App) (*FirebaseProvider, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting Auth client: %v", err)
	}
	return &FirebaseProvider{auth: client}, nil
}

func (p *FirebaseProvider) VerifyToken(ctx context.Context, idToken string) (*TokenClaims, error) {
	token, err := p.auth.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("error verifying token: %v", err)
	}
	return &TokenClaims{UID: token.UID}, nil
}

var _ Provider = &JWTProvider{}

// JWTProvider verifies HS256 tokens signed with a shared secret. The user
// id comes from the "sub" claim, or "user_id" for older tokens.
type JWTProvider struct {
	secret []byte
}

func NewJWTProvider(secret string) (*JWTProvider, error) {
	if secret == "" {
		return nil, errors.New("jwt secret cannot be empty")
	}
	return &JWTProvider{secret: []byte(secret)}, nil
}

func (p *JWTProvider) VerifyToken(ctx context.Context, tokenStr string) (*TokenClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token or claims type")
	}
	uid := claimString(claims["sub"])
	if uid == "" {
		uid = claimString(claims["user_id"])
	}
	if uid == "" {
		return nil, errors.New("token has no subject")
	}
	return &TokenClaims{UID: uid}, nil
}

// Sign issues a token for uid; used by tooling and tests.
func (p *JWTProvider) Sign(uid string, claims jwt.MapClaims) (string, error) {
	if claims == nil {
		claims = jwt.MapClaims{}
	}
	claims["sub"] = uid
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}

func claimString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		if v > 0 && v == float64(uint64(v)) {
			return strconv.FormatUint(uint64(v), 10)
		}
	}
	return ""
}

package httpapi

import (
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/eharain/Rutba-POS-sub002/internal/domain"
)

// TokenManager issues and verifies the bearer token that ties a desk to
// its sale session. The token names the session and its owner; it is a
// session handle, not a user login.
type TokenManager struct {
	secret   []byte
	tokenTTL time.Duration
}

type saleSessionClaims struct {
	jwtlib.RegisteredClaims
	BranchID string `json:"branch_id"`
	DeskID   string `json:"desk_id"`
	Owner    string `json:"owner"`
}

func NewTokenManager(secret string, tokenTTL time.Duration) *TokenManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &TokenManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
	}
}

func (m *TokenManager) IssueSessionToken(sessionID string, branchID string, deskID string, owner string) (string, error) {
	now := time.Now().UTC()
	claims := saleSessionClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   sessionID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(m.tokenTTL)),
		},
		BranchID: branchID,
		DeskID:   deskID,
		Owner:    owner,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

type sessionIdentity struct {
	SessionID string
	BranchID  string
	DeskID    string
	Actor     domain.Actor
}

func (m *TokenManager) ParseSessionToken(tokenStr string) (sessionIdentity, error) {
	claims := &saleSessionClaims{}
	token, err := jwtlib.ParseWithClaims(strings.TrimSpace(tokenStr), claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return sessionIdentity{}, errors.New("invalid or expired session token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return sessionIdentity{}, errors.New("invalid token subject")
	}
	return sessionIdentity{
		SessionID: sub,
		BranchID:  claims.BranchID,
		DeskID:    claims.DeskID,
		Actor:     domain.Actor{Username: claims.Owner, DeskID: claims.DeskID},
	}, nil
}

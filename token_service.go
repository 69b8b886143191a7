package authflow

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

const (
	purposeSession = "session"
	purposeReset   = "password_reset"
)

// SessionClaims are the JWT claims minted for both session tokens and
// password reset codes. Purpose keeps the two from being interchangeable.
type SessionClaims struct {
	jwt.RegisteredClaims
	UID     string `json:"uid,omitempty"`
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
}

// TokenService mints and validates the signed tokens the identity
// provider hands out.
type TokenService interface {
	Generate(userID, email string) (string, error)
	Validate(raw string) (*SessionClaims, error)
	GenerateResetCode(email string) (string, error)
	ValidateResetCode(code string) (string, error)
}

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	signingKey      []byte
	tokenExpiration int
	issuer          string
	audience        jwt.ClaimStrings
	logger          Logger
}

// NewTokenService creates a new TokenService instance
func NewTokenService(signingKey []byte, tokenExpiration int, issuer string, audience jwt.ClaimStrings, logger Logger) TokenService {
	if logger == nil {
		logger = defLogger{}
	}
	return &TokenServiceImpl{
		signingKey:      signingKey,
		tokenExpiration: tokenExpiration,
		issuer:          issuer,
		audience:        audience,
		logger:          logger,
	}
}

// Generate creates a session token for an authenticated user
func (ts *TokenServiceImpl) Generate(userID, email string) (string, error) {
	return ts.signClaims(ts.newClaims(userID, email, purposeSession, time.Duration(ts.tokenExpiration)*time.Hour))
}

// GenerateResetCode creates a short lived single purpose code that only
// the reset flow accepts.
func (ts *TokenServiceImpl) GenerateResetCode(email string) (string, error) {
	return ts.signClaims(ts.newClaims("", email, purposeReset, time.Hour))
}

func (ts *TokenServiceImpl) newClaims(userID, email, purpose string, ttl time.Duration) *SessionClaims {
	now := time.Now()

	var aud jwt.ClaimStrings
	if len(ts.audience) > 0 {
		aud = make(jwt.ClaimStrings, len(ts.audience))
		copy(aud, ts.audience)
	}

	return &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   email,
			Audience:  aud,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UID:     userID,
		Email:   email,
		Purpose: purpose,
	}
}

func (ts *TokenServiceImpl) signClaims(claims *SessionClaims) (string, error) {
	if claims == nil {
		return "", goerrors.New("claims must not be nil", goerrors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Validate parses and validates a token string, returning structured claims
func (ts *TokenServiceImpl) Validate(raw string) (*SessionClaims, error) {
	return ts.validate(raw, purposeSession)
}

// ValidateResetCode validates a reset code and returns the email it was
// issued for.
func (ts *TokenServiceImpl) ValidateResetCode(code string) (string, error) {
	claims, err := ts.validate(code, purposeReset)
	if err != nil {
		return "", err
	}
	return claims.Email, nil
}

func (ts *TokenServiceImpl) validate(raw, purpose string) (*SessionClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(raw, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService validate encountered unexpected signing method: %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, goerrors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		ts.logger.Error("TokenService validate could not decode claims")
		return nil, ErrTokenMalformed
	}

	if claims.Purpose != purpose {
		return nil, goerrors.New("token purpose mismatch", goerrors.CategoryAuth).
			WithTextCode(textCodeTokenMalformed).
			WithCode(goerrors.CodeUnauthorized)
	}

	return claims, nil
}

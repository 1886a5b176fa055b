package token

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenExpired is returned when a token's expiry has passed.
	ErrTokenExpired = errors.New("token: expired")
	// ErrTokenInvalid is returned for malformed tokens and bad signatures.
	ErrTokenInvalid = errors.New("token: invalid")
)

// Claims is the verified claim set carried by issued tokens.
type Claims struct {
	UserID   int64
	Username string
	IssuedAt time.Time
	Expiry   time.Time
}

type signedClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 bearer tokens. The signing secret is
// process-wide configuration; rotating it invalidates all outstanding
// tokens.
type Issuer struct {
	secret []byte
}

// NewIssuer constructs an Issuer with the given signing secret.
func NewIssuer(secret string) *Issuer {
	return &Issuer{secret: []byte(secret)}
}

// Issue mints a signed token for the given user, valid for ttl.
func (i *Issuer) Issue(userID int64, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := signedClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(i.secret)
}

// Verify parses and validates a token, returning its claims. Expired
// tokens fail with ErrTokenExpired; anything else that does not verify
// fails with ErrTokenInvalid.
func (i *Issuer) Verify(tokenString string) (Claims, error) {
	var claims signedClaims
	tok, err := jwt.ParseWithClaims(tokenString, &claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}
	if !tok.Valid {
		return Claims{}, ErrTokenInvalid
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID < 1 {
		return Claims{}, ErrTokenInvalid
	}

	out := Claims{
		UserID:   userID,
		Username: claims.Username,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.Expiry = claims.ExpiresAt.Time
	}
	return out, nil
}

package security

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cwrk-planet/ride-hub/internal/domain"

	"github.com/golang-jwt/jwt"
)

// AccessClaims are the claims of an access token issued by the auth service.
type AccessClaims struct {
	jwt.StandardClaims
	Role string `json:"role"`
}

// Valid is a no-op: time claims are checked by JWTVerifier with clock skew.
func (c *AccessClaims) Valid() error { return nil }

type JWTOptions struct {
	Alg       string // HS256|RS256
	Secret    []byte
	PublicKey *rsa.PublicKey
	Issuer    string
	Audience  string
	ClockSkew time.Duration
}

// JWTVerifier accepts HS256 or RS256 access tokens with sub=userId and a role claim.
type JWTVerifier struct {
	method jwt.SigningMethod
	key    any
	opts   JWTOptions
	now    func() time.Time
}

func NewJWTVerifier(opts JWTOptions) (*JWTVerifier, error) {
	v := &JWTVerifier{opts: opts, now: time.Now}
	switch strings.ToUpper(opts.Alg) {
	case "", "HS256":
		if len(opts.Secret) == 0 {
			return nil, errors.New("jwt: HS256 requires a secret")
		}
		v.method, v.key = jwt.SigningMethodHS256, opts.Secret
	case "RS256":
		if opts.PublicKey == nil {
			return nil, errors.New("jwt: RS256 requires a public key")
		}
		v.method, v.key = jwt.SigningMethodRS256, opts.PublicKey
	default:
		return nil, fmt.Errorf("jwt: unsupported alg %q", opts.Alg)
	}
	return v, nil
}

func (v *JWTVerifier) Verify(_ context.Context, credential string) (domain.Identity, error) {
	claims, err := v.parseAndValidate(credential)
	if err != nil {
		return domain.Identity{}, err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return domain.Identity{}, ErrInvalidSubject
	}
	role, ok := domain.ParseRole(claims.Role)
	if !ok {
		return domain.Identity{}, ErrInvalidRole
	}
	return domain.Identity{UserID: claims.Subject, Role: role}, nil
}

func (v *JWTVerifier) parseAndValidate(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != v.method.Alg() {
			return nil, ErrInvalidToken
		}
		return v.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if v.opts.Issuer != "" && !claims.VerifyIssuer(v.opts.Issuer, true) {
		return nil, ErrInvalidIssuer
	}
	if v.opts.Audience != "" && !claims.VerifyAudience(v.opts.Audience, true) {
		return nil, ErrInvalidAudience
	}

	now := v.now()
	if claims.ExpiresAt == 0 {
		return nil, ErrTokenExpired
	}
	nbf := time.Unix(claims.NotBefore, 0).Add(-v.opts.ClockSkew)
	exp := time.Unix(claims.ExpiresAt, 0).Add(v.opts.ClockSkew)
	if now.Before(nbf) || now.After(exp) {
		return nil, ErrTokenExpired
	}

	return claims, nil
}

func LoadRSAPublicKeyFromPEM(path string) (*rsa.PublicKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return jwt.ParseRSAPublicKeyFromPEM(b)
}

// Package token signs and verifies the application's own session tokens.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/acosmic/acosmibot-api/internal/domain"
)

// DefaultSkew is the allowance for an issued-at time slightly in the future.
const DefaultSkew = 30 * time.Second

var signingMethod = jwt.SigningMethodHS256

const base64URLAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

// CodecConfig configures a Codec.
type CodecConfig struct {
	Secret string
	Skew   time.Duration
	Now    func() time.Time
}

// Codec issues and verifies HS256 session tokens.
type Codec struct {
	secret []byte
	skew   time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewCodec creates a Codec. The secret must not be empty.
func NewCodec(cfg CodecConfig) (*Codec, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token signing secret is required")
	}
	skew := cfg.Skew
	if skew < 0 {
		return nil, fmt.Errorf("token clock skew must not be negative, got %s", skew)
	}
	if skew == 0 {
		skew = DefaultSkew
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Codec{
		secret: []byte(cfg.Secret),
		skew:   skew,
		now:    now,
		parser: jwt.NewParser(jwt.WithoutClaimsValidation(), jwt.WithStrictDecoding()),
	}, nil
}

type sessionClaims struct {
	jwt.RegisteredClaims
}

// Issue signs a token for subject valid for ttl.
func (c *Codec) Issue(subject int64, ttl time.Duration) (string, domain.SessionClaims, error) {
	if ttl < time.Second {
		return "", domain.SessionClaims{}, fmt.Errorf("session ttl must be at least 1s, got %s", ttl)
	}

	// NumericDate has second precision; truncating here keeps exp-iat == ttl.
	now := c.now().UTC().Truncate(time.Second)
	expiresAt := now.Add(ttl.Truncate(time.Second))

	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(subject, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(c.secret)
	if err != nil {
		return "", domain.SessionClaims{}, fmt.Errorf("sign session token: %w", err)
	}

	return signed, domain.SessionClaims{
		Subject:   subject,
		TokenID:   claims.ID,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify checks the signature and validity window of raw and returns its claims.
// The signature is checked before any claim is decoded.
func (c *Codec) Verify(raw string) (domain.SessionClaims, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return domain.SessionClaims{}, fmt.Errorf("%w: expected three segments", domain.ErrTokenMalformed)
	}

	if strings.Trim(parts[2], base64URLAlphabet) != "" {
		return domain.SessionClaims{}, fmt.Errorf("%w: signature is not base64url", domain.ErrTokenMalformed)
	}
	// Strict decoding rejects non-zero padding bits, so every character of
	// the signature is significant.
	sig, err := c.parser.DecodeSegment(parts[2])
	if err != nil {
		return domain.SessionClaims{}, domain.ErrInvalidSignature
	}
	if err := signingMethod.Verify(parts[0]+"."+parts[1], sig, c.secret); err != nil {
		return domain.SessionClaims{}, domain.ErrInvalidSignature
	}

	var claims sessionClaims
	tok, _, err := c.parser.ParseUnverified(raw, &claims)
	if err != nil {
		return domain.SessionClaims{}, fmt.Errorf("%w: %v", domain.ErrTokenMalformed, err)
	}
	if tok.Method.Alg() != signingMethod.Alg() {
		return domain.SessionClaims{}, fmt.Errorf("%w: unexpected alg %q", domain.ErrTokenMalformed, tok.Method.Alg())
	}

	subject, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || subject <= 0 {
		return domain.SessionClaims{}, fmt.Errorf("%w: invalid subject", domain.ErrTokenMalformed)
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return domain.SessionClaims{}, fmt.Errorf("%w: missing iat or exp", domain.ErrTokenMalformed)
	}

	now := c.now()
	if !now.Before(claims.ExpiresAt.Time) {
		return domain.SessionClaims{}, domain.ErrTokenExpired
	}
	if claims.IssuedAt.After(now.Add(c.skew)) {
		return domain.SessionClaims{}, fmt.Errorf("%w: issued in the future", domain.ErrTokenMalformed)
	}

	return domain.SessionClaims{
		Subject:   subject,
		TokenID:   claims.ID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

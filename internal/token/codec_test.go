package token

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acosmic/acosmibot-api/internal/domain"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestCodec(t *testing.T, clock *fakeClock) *Codec {
	t.Helper()
	codec, err := NewCodec(CodecConfig{Secret: "test-secret", Now: clock.Now})
	require.NoError(t, err)
	return codec
}

func TestNewCodec(t *testing.T) {
	t.Run("requires a secret", func(t *testing.T) {
		_, err := NewCodec(CodecConfig{})
		require.Error(t, err)
	})

	t.Run("rejects negative skew", func(t *testing.T) {
		_, err := NewCodec(CodecConfig{Secret: "s", Skew: -time.Second})
		require.Error(t, err)
	})

	t.Run("defaults skew", func(t *testing.T) {
		codec, err := NewCodec(CodecConfig{Secret: "s"})
		require.NoError(t, err)
		assert.Equal(t, DefaultSkew, codec.skew)
	})
}

func TestCodec_IssueVerifyWindow(t *testing.T) {
	issuedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: issuedAt}
	codec := newTestCodec(t, clock)
	ttl := time.Hour

	raw, claims, err := codec.Issue(42, ttl)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.Subject)
	assert.NotEmpty(t, claims.TokenID)
	assert.Equal(t, issuedAt.Add(ttl), claims.ExpiresAt)

	offsets := []time.Duration{0, time.Second, 30 * time.Minute, ttl - time.Second, ttl - time.Millisecond}
	for _, off := range offsets {
		clock.now = issuedAt.Add(off)
		got, err := codec.Verify(raw)
		require.NoError(t, err, "offset %s", off)
		assert.Equal(t, int64(42), got.Subject)
		assert.Equal(t, claims.TokenID, got.TokenID)
	}

	for _, off := range []time.Duration{ttl, ttl + time.Millisecond, 48 * time.Hour} {
		clock.now = issuedAt.Add(off)
		_, err := codec.Verify(raw)
		assert.ErrorIs(t, err, domain.ErrTokenExpired, "offset %s", off)
	}
}

func TestCodec_IssueTruncatesSubSecondClock(t *testing.T) {
	issuedAt := time.Date(2025, 3, 1, 12, 0, 0, 700_000_000, time.UTC)
	clock := &fakeClock{now: issuedAt}
	codec := newTestCodec(t, clock)

	raw, claims, err := codec.Issue(7, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, claims.ExpiresAt.Sub(claims.IssuedAt))

	clock.now = claims.IssuedAt.Add(time.Minute - time.Millisecond)
	_, err = codec.Verify(raw)
	require.NoError(t, err)
}

func TestCodec_IssueRejectsShortTTL(t *testing.T) {
	codec := newTestCodec(t, &fakeClock{now: time.Now()})
	_, _, err := codec.Issue(1, 500*time.Millisecond)
	require.Error(t, err)
}

func flipChar(s string, i int) string {
	b := []byte(s)
	if b[i] == 'A' {
		b[i] = 'B'
	} else {
		b[i] = 'A'
	}
	return string(b)
}

func TestCodec_Tampering(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	codec := newTestCodec(t, clock)

	raw, _, err := codec.Issue(42, time.Hour)
	require.NoError(t, err)
	parts := strings.Split(raw, ".")
	require.Len(t, parts, 3)

	t.Run("every byte of header and claims", func(t *testing.T) {
		signedLen := len(parts[0]) + 1 + len(parts[1])
		for i := 0; i < signedLen; i++ {
			if raw[i] == '.' {
				continue
			}
			_, err := codec.Verify(flipChar(raw, i))
			assert.ErrorIs(t, err, domain.ErrInvalidSignature, "byte %d", i)
		}
	})

	t.Run("every character of the signature", func(t *testing.T) {
		sigStart := len(parts[0]) + len(parts[1]) + 2
		for i := sigStart; i < len(raw); i++ {
			for _, r := range base64URLAlphabet {
				if byte(r) == raw[i] {
					continue
				}
				b := []byte(raw)
				b[i] = byte(r)
				_, err := codec.Verify(string(b))
				assert.ErrorIs(t, err, domain.ErrInvalidSignature, "position %d -> %q", i, r)
			}
		}
	})

	t.Run("last signature character", func(t *testing.T) {
		last := len(raw) - 1
		for _, r := range base64URLAlphabet {
			if byte(r) == raw[last] {
				continue
			}
			_, err := codec.Verify(raw[:last] + string(r))
			require.ErrorIs(t, err, domain.ErrInvalidSignature, "last char %q -> %q", raw[last], r)
		}
	})

	t.Run("different secret", func(t *testing.T) {
		other, err := NewCodec(CodecConfig{Secret: "other-secret", Now: clock.Now})
		require.NoError(t, err)
		_, err = other.Verify(raw)
		assert.ErrorIs(t, err, domain.ErrInvalidSignature)
	})
}

func TestCodec_Malformed(t *testing.T) {
	codec := newTestCodec(t, &fakeClock{now: time.Now()})

	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"one segment", "abc"},
		{"two segments", "abc.def"},
		{"empty signature", "abc.def."},
		{"bad signature encoding", "abc.def.!!!"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := codec.Verify(tc.raw)
			assert.ErrorIs(t, err, domain.ErrTokenMalformed)
		})
	}
}

func TestCodec_IssuedInFuture(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	verifier := newTestCodec(t, &fakeClock{now: now})

	t.Run("within skew", func(t *testing.T) {
		issuer := newTestCodec(t, &fakeClock{now: now.Add(20 * time.Second)})
		raw, _, err := issuer.Issue(9, time.Hour)
		require.NoError(t, err)

		_, err = verifier.Verify(raw)
		require.NoError(t, err)
	})

	t.Run("beyond skew", func(t *testing.T) {
		issuer := newTestCodec(t, &fakeClock{now: now.Add(2 * time.Minute)})
		raw, _, err := issuer.Issue(9, time.Hour)
		require.NoError(t, err)

		_, err = verifier.Verify(raw)
		assert.ErrorIs(t, err, domain.ErrTokenMalformed)
	})
}

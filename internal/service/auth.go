package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/acosmic/acosmibot-api/internal/domain"
	"github.com/acosmic/acosmibot-api/internal/metrics"
)

const stateBytes = 32

// OAuthProvider is the upstream identity provider.
type OAuthProvider interface {
	AuthorizeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)
	FetchProfile(ctx context.Context, accessToken string) (domain.DiscordProfile, error)
}

// SessionCodec issues and verifies session tokens.
type SessionCodec interface {
	Issue(subject int64, ttl time.Duration) (string, domain.SessionClaims, error)
	Verify(raw string) (domain.SessionClaims, error)
}

// StateStore holds single-use OAuth states. Consume must be atomic.
type StateStore interface {
	Save(ctx context.Context, state domain.OAuthState) error
	Consume(ctx context.Context, value string, now time.Time) error
}

// RevocationStore records logged-out session tokens.
type RevocationStore interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string, now time.Time) (bool, error)
}

// AdminStore looks up bot administrators.
type AdminStore interface {
	FindByDiscordID(ctx context.Context, discordID string) (*domain.AdminUser, error)
	List(ctx context.Context) ([]domain.AdminUser, error)
}

// AuthDeps are the collaborators of AuthService.
type AuthDeps struct {
	Provider    OAuthProvider
	States      StateStore
	Resolver    *UserResolver
	Codec       SessionCodec
	Revocations RevocationStore
	Admins      AdminStore
	Metrics     *metrics.Auth
}

// AuthConfig holds the token and state lifetimes.
type AuthConfig struct {
	SessionTTL time.Duration
	StateTTL   time.Duration
	Now        func() time.Time
}

// AuthService drives the Discord login flow and session checks.
type AuthService struct {
	provider    OAuthProvider
	states      StateStore
	resolver    *UserResolver
	codec       SessionCodec
	revocations RevocationStore
	admins      AdminStore
	metrics     *metrics.Auth

	sessionTTL time.Duration
	stateTTL   time.Duration
	now        func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(deps AuthDeps, cfg AuthConfig) *AuthService {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &AuthService{
		provider:    deps.Provider,
		states:      deps.States,
		resolver:    deps.Resolver,
		codec:       deps.Codec,
		revocations: deps.Revocations,
		admins:      deps.Admins,
		metrics:     deps.Metrics,
		sessionTTL:  cfg.SessionTTL,
		stateTTL:    cfg.StateTTL,
		now:         now,
	}
}

// LoginRedirect is where the browser goes to start a login.
type LoginRedirect struct {
	URL   string
	State domain.OAuthState
}

// BeginLogin creates and stores a fresh state and returns the Discord
// authorize URL bound to it.
func (s *AuthService) BeginLogin(ctx context.Context) (*LoginRedirect, error) {
	value, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("generate oauth state: %w", err)
	}

	now := s.now()
	state := domain.OAuthState{
		Value:     value,
		CreatedAt: now,
		ExpiresAt: now.Add(s.stateTTL),
	}
	if err := s.states.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("save oauth state: %w", err)
	}

	logTransition(domain.FlowAnonymous, domain.FlowLoginInitiated)
	return &LoginRedirect{URL: s.provider.AuthorizeURL(value), State: state}, nil
}

// CallbackRequest carries the query parameters Discord redirects back with.
type CallbackRequest struct {
	Code  string
	State string
	Error string
}

// LoginResult is the outcome of a successful callback.
type LoginResult struct {
	User   *domain.User
	Token  string
	Claims domain.SessionClaims
}

// Callback completes a login. The state is consumed before Discord is
// contacted; on any failure no session token is issued and the returned
// error is a *domain.FlowError.
func (s *AuthService) Callback(ctx context.Context, req CallbackRequest) (*LoginResult, error) {
	result, err := s.callback(ctx, req)
	if err != nil {
		kind := domain.KindOf(err)
		s.metrics.LoginOutcome(string(kind))
		slog.Warn("login failed", "kind", kind, "error", err)
		return nil, err
	}

	s.metrics.LoginOutcome("success")
	slog.Info("login succeeded", "user_id", result.User.ID, "discord_id", result.User.DiscordID)
	return result, nil
}

func (s *AuthService) callback(ctx context.Context, req CallbackRequest) (*LoginResult, error) {
	if req.State == "" {
		return nil, fail(domain.FlowLoginInitiated, domain.ErrStateUnknown)
	}
	if err := s.states.Consume(ctx, req.State, s.now()); err != nil {
		return nil, fail(domain.FlowLoginInitiated, err)
	}
	logTransition(domain.FlowLoginInitiated, domain.FlowCallbackPending)

	if req.Error != "" {
		return nil, fail(domain.FlowCallbackPending,
			fmt.Errorf("%w: authorization denied: %s", domain.ErrUpstreamRejected, req.Error))
	}
	if req.Code == "" {
		return nil, fail(domain.FlowCallbackPending,
			fmt.Errorf("%w: missing code parameter", domain.ErrInvalidInput))
	}

	token, err := s.provider.ExchangeCode(ctx, req.Code)
	if err != nil {
		return nil, fail(domain.FlowCallbackPending, fmt.Errorf("exchange code: %w", err))
	}

	profile, err := s.provider.FetchProfile(ctx, token.AccessToken)
	if err != nil {
		return nil, fail(domain.FlowCallbackPending, fmt.Errorf("fetch profile: %w", err))
	}

	user, err := s.resolver.Resolve(ctx, profile)
	if err != nil {
		return nil, fail(domain.FlowCallbackPending, err)
	}

	raw, claims, err := s.codec.Issue(user.ID, s.sessionTTL)
	if err != nil {
		return nil, fail(domain.FlowCallbackPending, fmt.Errorf("issue session token: %w", err))
	}

	logTransition(domain.FlowCallbackPending, domain.FlowAuthenticated)
	return &LoginResult{User: user, Token: raw, Claims: claims}, nil
}

// Authenticate verifies a session token and checks it was not revoked.
// Verification failures wrap domain.ErrUnauthenticated and the specific cause.
func (s *AuthService) Authenticate(ctx context.Context, raw string) (domain.SessionClaims, error) {
	if raw == "" {
		s.metrics.SessionVerified(string(domain.KindUnauthenticated))
		return domain.SessionClaims{}, domain.ErrUnauthenticated
	}

	claims, err := s.codec.Verify(raw)
	if err != nil {
		s.metrics.SessionVerified(string(domain.KindOf(err)))
		return domain.SessionClaims{}, fmt.Errorf("%w: %w", domain.ErrUnauthenticated, err)
	}

	if s.revocations != nil && claims.TokenID != "" {
		revoked, err := s.revocations.IsRevoked(ctx, claims.TokenID, s.now())
		if err != nil {
			return domain.SessionClaims{}, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			s.metrics.SessionVerified(string(domain.KindTokenRevoked))
			return domain.SessionClaims{}, fmt.Errorf("%w: %w", domain.ErrUnauthenticated, domain.ErrTokenRevoked)
		}
	}

	s.metrics.SessionVerified("ok")
	return claims, nil
}

// Me returns the stored user behind a session token.
func (s *AuthService) Me(ctx context.Context, raw string) (*domain.User, error) {
	claims, err := s.Authenticate(ctx, raw)
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, claims.Subject)
}

// GetUser retrieves a user by ID.
func (s *AuthService) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	return s.resolver.Lookup(ctx, userID)
}

// Logout revokes the session until it would have expired.
func (s *AuthService) Logout(ctx context.Context, claims domain.SessionClaims) error {
	if s.revocations == nil {
		return nil
	}
	if err := s.revocations.Revoke(ctx, claims.TokenID, claims.ExpiresAt); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	slog.Info("session revoked", "user_id", claims.Subject)
	return nil
}

// Admin returns the admin entry of a user, or domain.ErrNotFound when the
// user is not a bot administrator.
func (s *AuthService) Admin(ctx context.Context, userID int64) (*domain.AdminUser, error) {
	if s.admins == nil {
		return nil, domain.ErrNotFound
	}
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	admin, err := s.admins.FindByDiscordID(ctx, user.DiscordID)
	if err != nil {
		return nil, fmt.Errorf("find admin: %w", err)
	}
	return admin, nil
}

// ListAdmins returns every bot administrator.
func (s *AuthService) ListAdmins(ctx context.Context) ([]domain.AdminUser, error) {
	if s.admins == nil {
		return []domain.AdminUser{}, nil
	}
	admins, err := s.admins.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	return admins, nil
}

// IssueToken mints a session for an existing user without a Discord login.
func (s *AuthService) IssueToken(ctx context.Context, userID int64, ttl time.Duration) (string, domain.SessionClaims, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return "", domain.SessionClaims{}, err
	}
	if ttl <= 0 {
		ttl = s.sessionTTL
	}
	return s.codec.Issue(user.ID, ttl)
}

func fail(stage domain.FlowState, err error) error {
	var flowErr *domain.FlowError
	if errors.As(err, &flowErr) {
		return err
	}
	logTransition(stage, domain.FlowFailed)
	return &domain.FlowError{Stage: stage, Err: err}
}

func logTransition(from, to domain.FlowState) {
	slog.Debug("login transition", "from", from, "to", to)
}

func generateState() (string, error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

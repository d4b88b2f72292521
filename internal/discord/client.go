// Package discord talks to Discord's OAuth2 and user endpoints.
package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/oauth2"

	"github.com/acosmic/acosmibot-api/internal/domain"
)

const (
	DefaultAuthURL  = "https://discord.com/oauth2/authorize"
	DefaultTokenURL = "https://discord.com/api/oauth2/token"
	DefaultAPIURL   = "https://discord.com/api/v10"

	defaultTimeout     = 5 * time.Second
	defaultMaxAttempts = 3
	defaultBackoff     = 250 * time.Millisecond
	maxBackoff         = 2 * time.Second

	// Upper bound on the profile body we are willing to read.
	maxProfileBytes = 1 << 20
)

// DefaultScopes are requested when the configuration names none.
var DefaultScopes = []string{"identify", "email", "guilds"}

// Config holds the single OAuth2 client registration.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	Prompt       string

	// Endpoint overrides, used by tests.
	AuthURL  string
	TokenURL string
	APIURL   string

	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration

	HTTPClient *http.Client
	// OnRetry is called before every profile retry.
	OnRetry func(attempt int, err error)
}

// Client performs the authorization-code exchange and profile lookup.
type Client struct {
	oauth          *oauth2.Config
	apiURL         string
	prompt         string
	httpClient     *http.Client
	timeout        time.Duration
	maxAttempts    int
	initialBackoff time.Duration
	onRetry        func(attempt int, err error)
	newBackOff     func() backoff.BackOff
	validate       *validator.Validate
}

// NewClient creates a Client from cfg, filling defaults for unset fields.
func NewClient(cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("discord client id and secret are required")
	}
	if cfg.RedirectURL == "" {
		return nil, errors.New("discord redirect url is required")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	initialBackoff := cfg.InitialBackoff
	if initialBackoff <= 0 {
		initialBackoff = defaultBackoff
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	prompt := cfg.Prompt
	if prompt == "" {
		prompt = "consent"
	}

	c := &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   firstNonEmpty(cfg.AuthURL, DefaultAuthURL),
				TokenURL:  firstNonEmpty(cfg.TokenURL, DefaultTokenURL),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		apiURL:         strings.TrimSuffix(firstNonEmpty(cfg.APIURL, DefaultAPIURL), "/"),
		prompt:         prompt,
		httpClient:     httpClient,
		timeout:        timeout,
		maxAttempts:    attempts,
		initialBackoff: initialBackoff,
		onRetry:        cfg.OnRetry,
		validate:       validator.New(),
	}
	c.newBackOff = c.exponentialBackOff
	return c, nil
}

func (c *Client) exponentialBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff
	b.Multiplier = 2
	b.MaxInterval = maxBackoff
	b.RandomizationFactor = 0
	return b
}

// AuthorizeURL returns the Discord consent URL carrying state.
func (c *Client) AuthorizeURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", c.prompt))
}

// ExchangeCode trades an authorization code for an access token.
// Codes are single-use, so a failed exchange is never retried here.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, classifyExchangeError(err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response without access_token", domain.ErrUpstreamProtocol)
	}
	return token, nil
}

func classifyExchangeError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
			return fmt.Errorf("%w: token endpoint returned status %d", domain.ErrUpstreamUnavailable, status)
		}
		code := retrieveErr.ErrorCode
		if code == "" {
			code = "unknown"
		}
		return fmt.Errorf("%w: token endpoint returned status %d (%s)", domain.ErrUpstreamRejected, status, code)
	}
	if isTransportError(err) {
		return fmt.Errorf("%w: token exchange: %v", domain.ErrUpstreamUnavailable, err)
	}
	return fmt.Errorf("%w: token exchange: %v", domain.ErrUpstreamProtocol, err)
}

func isTransportError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

type userResponse struct {
	ID         string  `json:"id" validate:"required,numeric,max=20"`
	Username   string  `json:"username" validate:"required,max=64"`
	GlobalName *string `json:"global_name"`
	Avatar     *string `json:"avatar"`
	Email      *string `json:"email"`
}

// FetchProfile loads the current user for accessToken. Only
// ErrUpstreamUnavailable failures are retried, with exponential backoff.
func (c *Client) FetchProfile(ctx context.Context, accessToken string) (domain.DiscordProfile, error) {
	attempt := 0
	operation := func() (domain.DiscordProfile, error) {
		attempt++
		profile, err := c.fetchProfileOnce(ctx, accessToken)
		if err != nil && !errors.Is(err, domain.ErrUpstreamUnavailable) {
			return domain.DiscordProfile{}, backoff.Permanent(err)
		}
		return profile, err
	}
	notify := func(err error, wait time.Duration) {
		slog.Warn("discord profile fetch failed, retrying",
			"attempt", attempt,
			"backoff", wait,
			"error", err,
		)
		if c.onRetry != nil {
			c.onRetry(attempt, err)
		}
	}

	profile, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(c.maxAttempts)),
		backoff.WithNotify(notify),
	)
	if err != nil {
		if !isUpstreamError(err) {
			// Retry returns the bare context error when cancelled between attempts.
			return domain.DiscordProfile{}, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
		}
		return domain.DiscordProfile{}, err
	}
	return profile, nil
}

func isUpstreamError(err error) bool {
	return errors.Is(err, domain.ErrUpstreamUnavailable) ||
		errors.Is(err, domain.ErrUpstreamRejected) ||
		errors.Is(err, domain.ErrUpstreamProtocol)
}

func (c *Client) fetchProfileOnce(ctx context.Context, accessToken string) (domain.DiscordProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/users/@me", nil)
	if err != nil {
		return domain.DiscordProfile{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.DiscordProfile{}, fmt.Errorf("%w: fetch profile: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests:
		return domain.DiscordProfile{}, fmt.Errorf("%w: profile endpoint returned status %d", domain.ErrUpstreamUnavailable, resp.StatusCode)
	default:
		return domain.DiscordProfile{}, fmt.Errorf("%w: profile endpoint returned status %d", domain.ErrUpstreamRejected, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return domain.DiscordProfile{}, fmt.Errorf("%w: read profile: %v", domain.ErrUpstreamUnavailable, err)
	}

	var user userResponse
	if err := json.Unmarshal(body, &user); err != nil {
		return domain.DiscordProfile{}, fmt.Errorf("%w: decode profile: %v", domain.ErrUpstreamProtocol, err)
	}
	if err := c.validate.Struct(user); err != nil {
		return domain.DiscordProfile{}, fmt.Errorf("%w: invalid profile: %v", domain.ErrUpstreamProtocol, err)
	}

	if user.Email != nil && *user.Email != "" {
		if err := c.validate.Var(*user.Email, "email"); err != nil {
			slog.Debug("discord profile email discarded", "discord_id", user.ID)
			user.Email = nil
		}
	}

	return domain.DiscordProfile{
		ID:         user.ID,
		Username:   user.Username,
		GlobalName: deref(user.GlobalName),
		Avatar:     deref(user.Avatar),
		Email:      deref(user.Email),
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

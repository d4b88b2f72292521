package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"

	"github.com/acosmic/acosmibot-api/internal/domain"
)

type fakeUserStore struct {
	mu      sync.Mutex
	byID    map[int64]*domain.User
	nextID  int64
	upserts atomic.Int32
	delay   time.Duration
	err     error
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{byID: make(map[int64]*domain.User)}
}

func (s *fakeUserStore) FindByID(_ context.Context, id int64) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	u, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *fakeUserStore) Upsert(ctx context.Context, p domain.DiscordProfile, loginAt time.Time) (*domain.User, error) {
	s.upserts.Add(1)
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, ctx.Err())
		case <-time.After(s.delay):
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}

	var user *domain.User
	for _, u := range s.byID {
		if u.DiscordID == p.ID {
			user = u
			break
		}
	}
	if user == nil {
		s.nextID++
		user = &domain.User{ID: s.nextID, DiscordID: p.ID, CreatedAt: loginAt}
		s.byID[user.ID] = user
	}
	user.Username = p.Username
	if p.GlobalName != "" {
		name := p.GlobalName
		user.GlobalName = &name
	}
	avatar := p.AvatarURL()
	user.AvatarURL = &avatar
	user.LastLoginAt = loginAt
	user.UpdatedAt = loginAt

	cp := *user
	return &cp, nil
}

func (s *fakeUserStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *fakeUserStore) delete(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
}

type fakeProvider struct {
	mu        sync.Mutex
	profiles  map[string]domain.DiscordProfile
	exchanges atomic.Int32
	fetches   atomic.Int32

	exchangeErr error
	profileErr  error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{profiles: make(map[string]domain.DiscordProfile)}
}

// grant makes code exchangeable for profile.
func (p *fakeProvider) grant(code string, profile domain.DiscordProfile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profiles[code] = profile
}

func (p *fakeProvider) AuthorizeURL(state string) string {
	return "https://discord.test/oauth2/authorize?state=" + state
}

func (p *fakeProvider) ExchangeCode(_ context.Context, code string) (*oauth2.Token, error) {
	p.exchanges.Add(1)
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.profiles[code]; !ok {
		return nil, fmt.Errorf("%w: invalid_grant", domain.ErrUpstreamRejected)
	}
	// codes are single use upstream too
	token := &oauth2.Token{AccessToken: "access:" + code, TokenType: "Bearer"}
	p.profiles[token.AccessToken] = p.profiles[code]
	delete(p.profiles, code)
	return token, nil
}

func (p *fakeProvider) FetchProfile(_ context.Context, accessToken string) (domain.DiscordProfile, error) {
	p.fetches.Add(1)
	if p.profileErr != nil {
		return domain.DiscordProfile{}, p.profileErr
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	profile, ok := p.profiles[accessToken]
	if !ok {
		return domain.DiscordProfile{}, fmt.Errorf("%w: unknown access token", domain.ErrUpstreamRejected)
	}
	return profile, nil
}

type fakeAdminStore struct {
	admins map[string]*domain.AdminUser
}

func (s *fakeAdminStore) FindByDiscordID(_ context.Context, discordID string) (*domain.AdminUser, error) {
	a, ok := s.admins[discordID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return a, nil
}

func (s *fakeAdminStore) List(context.Context) ([]domain.AdminUser, error) {
	out := make([]domain.AdminUser, 0, len(s.admins))
	for _, a := range s.admins {
		out = append(out, *a)
	}
	return out, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

package jwt

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testUser string

func (u testUser) Subject() string { return string(u) }

func newTestService(t *testing.T) (*Service, *MemoryStore, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	store := NewMemoryStore()
	svc, err := NewService(Config{
		Secret:     testSecret,
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		Now:        clock.Now,
	}, store, nil)
	require.NoError(t, err)
	return svc, store, clock
}

// flips the first character of the signature segment
func tamper(raw string) string {
	i := strings.LastIndex(raw, ".") + 1
	repl := byte('A')
	if raw[i] == 'A' {
		repl = 'B'
	}
	return raw[:i] + string(repl) + raw[i+1:]
}

func TestNewService_Configuration(t *testing.T) {
	_, err := NewService(Config{Secret: "short", AccessTTL: time.Minute, RefreshTTL: time.Hour}, nil, nil)
	assert.ErrorIs(t, err, ErrSecretTooShort)

	_, err = NewService(Config{Secret: testSecret, RefreshTTL: time.Hour}, nil, nil)
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "access ttl", cfgErr.Field)

	// expiry is encoded in whole seconds
	_, err = NewService(Config{Secret: testSecret, AccessTTL: 500 * time.Millisecond, RefreshTTL: time.Hour}, nil, nil)
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "access ttl", cfgErr.Field)

	_, err = NewService(Config{Secret: testSecret, AccessTTL: time.Second, RefreshTTL: time.Second}, nil, nil)
	assert.NoError(t, err)
}

func TestService_AccessTokenValidUntilTTL(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()
	user := testUser("ana@example.com")

	token, err := svc.IssueAccessToken(user)
	require.NoError(t, err)
	assert.True(t, svc.ValidateAccess(ctx, token, user))

	clock.Advance(15*time.Minute - time.Second)
	assert.True(t, svc.ValidateAccess(ctx, token, user))

	clock.Advance(time.Second)
	assert.False(t, svc.ValidateAccess(ctx, token, user))

	_, err = svc.Validate(ctx, token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestService_ValidateAccess_SubjectAndType(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	user := testUser("ana@example.com")

	access, err := svc.IssueAccessToken(user)
	require.NoError(t, err)
	refresh, err := svc.IssueRefreshToken(ctx, user)
	require.NoError(t, err)

	assert.False(t, svc.ValidateAccess(ctx, access, testUser("bob@example.com")))
	assert.False(t, svc.ValidateAccess(ctx, access, nil))
	assert.False(t, svc.ValidateAccess(ctx, refresh, user))
	assert.False(t, svc.ValidateRefresh(ctx, access))

	_, err = svc.Validate(ctx, refresh)
	assert.ErrorIs(t, err, ErrWrongTokenType)
}

func TestService_NewRefreshTokenReplacesPrevious(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()
	user := testUser("ana@example.com")

	first, err := svc.IssueRefreshToken(ctx, user)
	require.NoError(t, err)
	assert.True(t, svc.ValidateRefresh(ctx, first))

	clock.Advance(time.Second)
	second, err := svc.IssueRefreshToken(ctx, user)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	assert.False(t, svc.ValidateRefresh(ctx, first))
	assert.True(t, svc.ValidateRefresh(ctx, second))
}

func TestService_RefreshTokensAreUniqueWithinTheSameSecond(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	user := testUser("ana@example.com")

	first, err := svc.IssueRefreshToken(ctx, user)
	require.NoError(t, err)
	second, err := svc.IssueRefreshToken(ctx, user)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.False(t, svc.ValidateRefresh(ctx, first))
}

func TestService_RevokeInvalidatesImmediately(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	user := testUser("ana@example.com")

	token, err := svc.IssueAccessToken(user)
	require.NoError(t, err)
	require.True(t, svc.ValidateAccess(ctx, token, user))

	require.NoError(t, svc.Revoke(ctx, token))

	assert.False(t, svc.ValidateAccess(ctx, token, user))
	_, err = svc.Validate(ctx, token)
	assert.ErrorIs(t, err, ErrRevokedToken)
}

func TestService_TamperedSignatureRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	user := testUser("ana@example.com")

	access, err := svc.IssueAccessToken(user)
	require.NoError(t, err)
	refresh, err := svc.IssueRefreshToken(ctx, user)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		assert.False(t, svc.ValidateAccess(ctx, tamper(access), user))
		assert.False(t, svc.ValidateRefresh(ctx, tamper(refresh)))
	})
	assert.False(t, svc.ValidateAccess(ctx, "garbage", user))
	assert.False(t, svc.ValidateRefresh(ctx, ""))
}

func TestService_RefreshAccessToken(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()
	user := testUser("ana@example.com")

	pair, err := svc.IssueTokenPair(ctx, user)
	require.NoError(t, err)
	assert.True(t, svc.ValidateAccess(ctx, pair.AccessToken, user))

	clock.Advance(16 * time.Minute)
	assert.False(t, svc.ValidateAccess(ctx, pair.AccessToken, user))

	fresh, err := svc.RefreshAccessToken(ctx, pair.RefreshToken, user)
	require.NoError(t, err)
	assert.True(t, svc.ValidateAccess(ctx, fresh, user))

	// the refresh token is not rotated by a refresh
	assert.True(t, svc.ValidateRefresh(ctx, pair.RefreshToken))

	_, err = svc.IssueRefreshToken(ctx, user)
	require.NoError(t, err)

	_, err = svc.RefreshAccessToken(ctx, pair.RefreshToken, user)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestService_RefreshTokenExpiresAndCanBeRevoked(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()
	user := testUser("ana@example.com")

	refresh, err := svc.IssueRefreshToken(ctx, user)
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, refresh))
	assert.False(t, svc.ValidateRefresh(ctx, refresh))

	other, err := svc.IssueRefreshToken(ctx, testUser("bob@example.com"))
	require.NoError(t, err)
	clock.Advance(7 * 24 * time.Hour)
	assert.False(t, svc.ValidateRefresh(ctx, other))
}

func TestService_RevokeAllForSubject(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	ana := testUser("ana@example.com")
	bob := testUser("bob@example.com")

	anaRefresh, err := svc.IssueRefreshToken(ctx, ana)
	require.NoError(t, err)
	bobRefresh, err := svc.IssueRefreshToken(ctx, bob)
	require.NoError(t, err)

	require.NoError(t, svc.RevokeAllForSubject(ctx, ana.Subject()))

	assert.False(t, svc.ValidateRefresh(ctx, anaRefresh))
	assert.True(t, svc.ValidateRefresh(ctx, bobRefresh))

	_, err = svc.RefreshAccessToken(ctx, anaRefresh, ana)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestService_RemainingTTL(t *testing.T) {
	svc, _, clock := newTestService(t)
	user := testUser("ana@example.com")

	token, err := svc.IssueAccessToken(user)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, svc.RemainingTTL(token))

	clock.Advance(5 * time.Minute)
	assert.Equal(t, 10*time.Minute, svc.RemainingTTL(token))

	clock.Advance(time.Hour)
	assert.Equal(t, time.Duration(0), svc.RemainingTTL(token))

	assert.Equal(t, time.Duration(0), svc.RemainingTTL("garbage"))
	assert.Equal(t, time.Duration(0), svc.RemainingTTL(tamper(token)))
}

func TestService_CleanupDropsExpiredRevocations(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()
	user := testUser("ana@example.com")

	token, err := svc.IssueAccessToken(user)
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, token))
	assert.Equal(t, 1, store.RevokedCount())

	// unreadable tokens are purged as part of the same revoke
	require.NoError(t, svc.Revoke(ctx, "garbage"))
	assert.Equal(t, 1, store.RevokedCount())

	clock.Advance(15 * time.Minute)
	n, err := svc.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, store.RevokedCount())
}

func TestService_JanitorStopsWithContext(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	token, err := svc.IssueAccessToken(testUser("ana@example.com"))
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, token))
	clock.Advance(time.Hour)

	svc.StartJanitor(ctx, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return store.RevokedCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestService_ConcurrentRevokeAndValidate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	tokens := make([]string, 100)
	users := make([]testUser, 100)
	for i := range tokens {
		users[i] = testUser(fmt.Sprintf("user%d@example.com", i))
		tok, err := svc.IssueAccessToken(users[i])
		require.NoError(t, err)
		tokens[i] = tok
	}

	var wg sync.WaitGroup
	for i := range tokens {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = svc.Revoke(ctx, tokens[i])
		}(i)
		go func(i int) {
			defer wg.Done()
			_ = svc.ValidateAccess(ctx, tokens[i], users[i])
		}(i)
	}
	wg.Wait()

	for i := range tokens {
		assert.False(t, svc.ValidateAccess(ctx, tokens[i], users[i]))
	}
}

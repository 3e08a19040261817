package services

import (
	"context"
	"encoding/base64"
	"net/url"
	"testing"
	"time"

	"github.com/SAP-F-2025/evaluation-access-service/internal/models"
	"github.com/SAP-F-2025/evaluation-access-service/internal/repositories/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIssuer_IssueAndConsume(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository(memory.NewDB())
	clock := newTestClock()
	issuer := NewTokenIssuer(time.Hour, "https://learn.example.com", testLogger())
	issuer.now = clock.Now

	token, err := issuer.Issue(ctx, repo, "eval-1", "student-1", 1, models.ClientFingerprint{IPAddress: "10.1.1.1"})
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(token.Token)
	require.NoError(t, err)
	assert.Len(t, raw, tokenBytes)
	assert.Equal(t, clock.Now().Add(time.Hour), token.ExpiresAt)
	require.NotNil(t, token.IPAddress)
	assert.Nil(t, token.UserAgent)

	_, err = issuer.Consume(ctx, repo, token.Token, "student-2", clock.Now())
	assert.ErrorIs(t, err, ErrTokenInvalid)

	consumed, err := issuer.Consume(ctx, repo, token.Token, "student-1", clock.Now())
	require.NoError(t, err)
	assert.True(t, consumed.IsUsed)
	require.NotNil(t, consumed.UsedAt)

	_, err = issuer.Consume(ctx, repo, token.Token, "student-1", clock.Now())
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = issuer.Consume(ctx, repo, "  ", "student-1", clock.Now())
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenIssuer_TokensAreUnique(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository(memory.NewDB())
	issuer := NewTokenIssuer(0, "", testLogger())

	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		token, err := issuer.Issue(ctx, repo, "eval-1", "student-1", 1, models.ClientFingerprint{})
		require.NoError(t, err)
		_, dup := seen[token.Token]
		require.False(t, dup)
		seen[token.Token] = struct{}{}
	}
}

func TestTokenIssuer_Validate(t *testing.T) {
	issuer := NewTokenIssuer(time.Hour, "", testLogger())
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	valid := &models.EvaluationToken{Token: "abc", ExpiresAt: now.Add(time.Minute)}
	used := &models.EvaluationToken{Token: "abc", ExpiresAt: now.Add(time.Minute), IsUsed: true}
	expired := &models.EvaluationToken{Token: "abc", ExpiresAt: now.Add(-time.Minute)}

	assert.Equal(t, TokenValidation{Valid: true}, issuer.Validate(valid, now))
	assert.Equal(t, TokenAlreadyUsed, issuer.Validate(used, now).Reason)
	assert.Equal(t, TokenExpired, issuer.Validate(expired, now).Reason)
	assert.Equal(t, TokenMalformed, issuer.Validate(nil, now).Reason)
	assert.Equal(t, TokenMalformed, issuer.Validate(&models.EvaluationToken{}, now).Reason)
}

func TestTokenIssuer_ExpiredConsume(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository(memory.NewDB())
	clock := newTestClock()
	issuer := NewTokenIssuer(time.Minute, "", testLogger())
	issuer.now = clock.Now

	token, err := issuer.Issue(ctx, repo, "eval-1", "student-1", 1, models.ClientFingerprint{})
	require.NoError(t, err)

	_, err = issuer.Consume(ctx, repo, token.Token, "student-1", clock.Now().Add(2*time.Minute))
	assert.ErrorIs(t, err, ErrTokenExpired)

	n, err := repo.Token().DeleteExpired(ctx, clock.Now().Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestTokenIssuer_DeepLink(t *testing.T) {
	issuer := NewTokenIssuer(time.Hour, "https://learn.example.com/", testLogger())

	link := issuer.DeepLink("eval 1", "a+b/c")

	parsed, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "learn.example.com", parsed.Host)
	assert.Equal(t, "/evaluations/eval 1", parsed.Path)
	assert.Equal(t, "a+b/c", parsed.Query().Get("token"))
}

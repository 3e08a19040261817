package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/SAP-F-2025/evaluation-access-service/internal/models"
	"github.com/SAP-F-2025/evaluation-access-service/internal/repositories"
	"github.com/google/uuid"
)

const (
	DefaultTokenTTL = 24 * time.Hour
	tokenBytes      = 32
)

// Token validation failure reasons
const (
	TokenAlreadyUsed = "already_used"
	TokenExpired     = "expired"
	TokenMalformed   = "malformed"
)

type TokenValidation struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// TokenIssuer mints and redeems single-use evaluation tokens.
type TokenIssuer struct {
	ttl     time.Duration
	baseURL string
	logger  *slog.Logger
	now     func() time.Time
}

func NewTokenIssuer(ttl time.Duration, baseURL string, logger *slog.Logger) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{
		ttl:     ttl,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		now:     defaultNow,
	}
}

func generateTokenValue() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Issue creates a token for the given attempt slot.
func (i *TokenIssuer) Issue(ctx context.Context, repo repositories.Repository, evaluationID, studentID string, attemptNumber int, fp models.ClientFingerprint) (*models.EvaluationToken, error) {
	value, err := generateTokenValue()
	if err != nil {
		return nil, err
	}

	now := i.now()
	token := &models.EvaluationToken{
		ID:            uuid.NewString(),
		Token:         value,
		EvaluationID:  evaluationID,
		StudentID:     studentID,
		AttemptNumber: attemptNumber,
		CreatedAt:     now,
		ExpiresAt:     now.Add(i.ttl),
		IPAddress:     fp.IPPtr(),
		UserAgent:     fp.UserAgentPtr(),
	}

	if err := repo.Token().Create(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to store token: %w", err)
	}

	i.logger.Info("Evaluation token issued",
		"token_id", token.ID,
		"evaluation_id", evaluationID,
		"student_id", studentID,
		"attempt_number", attemptNumber,
		"expires_at", token.ExpiresAt)

	return token, nil
}

// Validate has no side effects.
func (i *TokenIssuer) Validate(token *models.EvaluationToken, now time.Time) TokenValidation {
	switch {
	case token == nil || token.Token == "":
		return TokenValidation{Reason: TokenMalformed}
	case token.IsUsed:
		return TokenValidation{Reason: TokenAlreadyUsed}
	case now.After(token.ExpiresAt):
		return TokenValidation{Reason: TokenExpired}
	}
	return TokenValidation{Valid: true}
}

// Consume redeems a token for studentID. It must run inside the same
// transaction that creates the attempt.
func (i *TokenIssuer) Consume(ctx context.Context, repo repositories.Repository, value, studentID string, now time.Time) (*models.EvaluationToken, error) {
	if strings.TrimSpace(value) == "" {
		return nil, ErrTokenInvalid
	}

	token, err := repo.Token().GetByToken(ctx, value)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	if err := i.checkOwner(token, studentID); err != nil {
		return nil, err
	}

	switch v := i.Validate(token, now); v.Reason {
	case TokenExpired:
		return nil, ErrTokenExpired
	case TokenAlreadyUsed, TokenMalformed:
		return nil, ErrTokenInvalid
	}

	won, err := repo.Token().MarkUsed(ctx, token.ID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to consume token: %w", err)
	}
	if !won {
		return nil, ErrTokenInvalid
	}

	token.IsUsed = true
	token.UsedAt = &now
	return token, nil
}

// checkOwner rejects a token presented by anyone but the student it was
// minted for.
func (i *TokenIssuer) checkOwner(token *models.EvaluationToken, studentID string) error {
	if token.StudentID == studentID {
		return nil
	}
	i.logger.Warn("Token presented by another student",
		"token_id", token.ID,
		"owner_id", token.StudentID,
		"student_id", studentID)
	return ErrTokenInvalid
}

// DeepLink builds the link a student follows to open the evaluation.
func (i *TokenIssuer) DeepLink(evaluationID, token string) string {
	return fmt.Sprintf("%s/evaluations/%s?token=%s",
		i.baseURL, url.PathEscape(evaluationID), url.QueryEscape(token))
}

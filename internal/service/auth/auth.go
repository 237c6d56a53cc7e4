package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/nkiryanov/rewardledger/internal/models"
)

const bearerPrefix = "Bearer "

var ErrNoToken = errors.New("access token not found")

type tokenManager interface {
	Issue(accountID string) (models.IssuedToken, error)
	Parse(access string) (string, error)
}

// Auth service resolves the account behind an HTTP request
type AuthService struct {
	tokens tokenManager
}

func NewAuthService(tokens tokenManager) *AuthService {
	return &AuthService{tokens: tokens}
}

func (s *AuthService) Issue(accountID string) (models.IssuedToken, error) {
	return s.tokens.Issue(accountID)
}

// AccountFromRequest reads the bearer token and returns its account id
func (s *AuthService) AccountFromRequest(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", ErrNoToken
	}

	access := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if access == "" {
		return "", ErrNoToken
	}

	return s.tokens.Parse(access)
}

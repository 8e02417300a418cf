package users

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/httpusers/pkg/apierrors"
	"github.com/platinummonkey/httpusers/pkg/events"
)

// TokenResult is a freshly issued API token
type TokenResult struct {
	Label     string
	Token     string
	Operation string
}

// APITokens returns the user's API tokens by label
func (s *Service) APITokens(ctx context.Context, username string) (map[string]string, error) {
	u, err := s.repo.Get(ctx, username)
	if err != nil {
		return nil, err
	}
	if u.APITokens == nil {
		return map[string]string{}, nil
	}
	return u.APITokens, nil
}

// SetAPIToken issues a new token value under label, replacing any
// previous value
func (s *Service) SetAPIToken(ctx context.Context, username, label string) (*TokenResult, error) {
	if label == "" {
		return nil, apierrors.Validation("token name is required")
	}
	token, err := GenerateToken()
	if err != nil {
		return nil, err
	}

	result := &TokenResult{Label: label, Token: token, Operation: OperationInsert}
	_, err = s.mutate(ctx, username, events.ActionUpdate, func(u *User) error {
		if u.APITokens == nil {
			u.APITokens = map[string]string{}
		}
		if _, exists := u.APITokens[label]; exists {
			result.Operation = OperationUpdate
		}
		u.APITokens[label] = token
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CreateAPIToken issues a token under a generated label
func (s *Service) CreateAPIToken(ctx context.Context, username string) (*TokenResult, error) {
	return s.SetAPIToken(ctx, username, uuid.NewString())
}

// DeleteAPIToken revokes the token under label
func (s *Service) DeleteAPIToken(ctx context.Context, username, label string) error {
	_, err := s.mutate(ctx, username, events.ActionUpdate, func(u *User) error {
		if _, exists := u.APITokens[label]; !exists {
			return apierrors.NotFound(fmt.Sprintf("token %s not found", label))
		}
		delete(u.APITokens, label)
		return nil
	})
	return err
}

// ThirdPartyTokens returns the user's external provider tokens
func (s *Service) ThirdPartyTokens(ctx context.Context, username string) ([]ThirdPartyToken, error) {
	u, err := s.repo.Get(ctx, username)
	if err != nil {
		return nil, err
	}
	if u.ThirdPartyTokens == nil {
		return []ThirdPartyToken{}, nil
	}
	return u.ThirdPartyTokens, nil
}

// AddThirdPartyToken inserts tok, or replaces the token with the same id.
// A missing id is generated and a missing app defaults to "*". The stored
// token is returned tagged with the operation performed.
func (s *Service) AddThirdPartyToken(ctx context.Context, username string, tok ThirdPartyToken) (*ThirdPartyToken, error) {
	if tok.Token == "" {
		return nil, apierrors.Validation("No token was provided.")
	}
	if tok.Provider == "" {
		return nil, apierrors.Validation("A token provider is required.")
	}
	if tok.ID == "" {
		tok.ID = uuid.NewString()
	}
	if tok.App == "" {
		tok.App = "*"
	}

	_, err := s.mutate(ctx, username, events.ActionUpdate, func(u *User) error {
		for i := range u.ThirdPartyTokens {
			if u.ThirdPartyTokens[i].ID == tok.ID {
				tok.Operation = OperationUpdate
				u.ThirdPartyTokens[i] = tok
				return nil
			}
		}
		tok.Operation = OperationInsert
		u.ThirdPartyTokens = append(u.ThirdPartyTokens, tok)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

// DeleteThirdPartyToken removes the token with id and returns it tagged
// with the delete operation
func (s *Service) DeleteThirdPartyToken(ctx context.Context, username, id string) (*ThirdPartyToken, error) {
	var removed *ThirdPartyToken
	_, err := s.mutate(ctx, username, events.ActionUpdate, func(u *User) error {
		for i := range u.ThirdPartyTokens {
			if u.ThirdPartyTokens[i].ID == id {
				tok := u.ThirdPartyTokens[i]
				removed = &tok
				u.ThirdPartyTokens = append(u.ThirdPartyTokens[:i:i], u.ThirdPartyTokens[i+1:]...)
				return nil
			}
		}
		return apierrors.NotFound("Can't delete token, it does not exist")
	})
	if err != nil {
		return nil, err
	}
	removed.Operation = OperationDelete
	return removed, nil
}

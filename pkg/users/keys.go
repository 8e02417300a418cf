package users

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/httpusers/pkg/apierrors"
	"github.com/platinummonkey/httpusers/pkg/storage"
)

const (
	// DefaultKeyName is used when a key is saved without a name
	DefaultKeyName = "publicKey"
	keyPrefix      = "keys/"
	keyFanOut      = 8
)

func keyAttachment(name string) string {
	if name == "" {
		name = DefaultKeyName
	}
	return keyPrefix + name
}

// AddKey stores or replaces a named key on the user
func (s *Service) AddKey(ctx context.Context, username, name, data string) (*Key, error) {
	if s.attachments == nil {
		return nil, apierrors.Internal("key storage is not configured")
	}
	u, err := s.repo.Get(ctx, username)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = DefaultKeyName
	}
	if err := s.attachments.Save(ctx, DocID(u.Username), keyAttachment(name), []byte(data)); err != nil {
		return nil, fmt.Errorf("failed to save key %s: %w", name, err)
	}
	return &Key{Username: u.Username, Name: name, Key: data}, nil
}

// UpdateKey is AddKey under its update name
func (s *Service) UpdateKey(ctx context.Context, username, name, data string) (*Key, error) {
	return s.AddKey(ctx, username, name, data)
}

// GetKey returns one named key
func (s *Service) GetKey(ctx context.Context, username, name string) (*Key, error) {
	if s.attachments == nil {
		return nil, apierrors.Internal("key storage is not configured")
	}
	if name == "" {
		name = DefaultKeyName
	}
	username = Normalize(username)
	data, err := s.attachments.Get(ctx, DocID(username), keyAttachment(name))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apierrors.NotFound(fmt.Sprintf("key %s not found for %s", name, username))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", name, err)
	}
	return &Key{Username: username, Name: name, Key: string(data)}, nil
}

// DeleteKey removes one named key
func (s *Service) DeleteKey(ctx context.Context, username, name string) error {
	if s.attachments == nil {
		return apierrors.Internal("key storage is not configured")
	}
	username = Normalize(username)
	err := s.attachments.Delete(ctx, DocID(username), keyAttachment(name))
	if errors.Is(err, storage.ErrNotFound) {
		return apierrors.NotFound(fmt.Sprintf("key %s not found for %s", name, username))
	}
	if err != nil {
		return fmt.Errorf("failed to delete key %s: %w", name, err)
	}
	return nil
}

// Keys lists keys for username, or for every user when username is empty.
// Users are read concurrently.
func (s *Service) Keys(ctx context.Context, username string) ([]Key, error) {
	if s.attachments == nil {
		return nil, apierrors.Internal("key storage is not configured")
	}

	var names []string
	if username != "" {
		u, err := s.repo.Get(ctx, username)
		if err != nil {
			return nil, err
		}
		names = []string{u.Username}
	} else {
		all, err := s.repo.All(ctx)
		if err != nil {
			return nil, err
		}
		for _, u := range all {
			names = append(names, u.Username)
		}
	}

	perUser := make([][]Key, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(keyFanOut)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			keys, err := s.userKeys(gctx, name)
			if err != nil {
				return err
			}
			perUser[i] = keys
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := []Key{}
	for _, keys := range perUser {
		out = append(out, keys...)
	}
	return out, nil
}

func (s *Service) userKeys(ctx context.Context, username string) ([]Key, error) {
	attachments, err := s.attachments.List(ctx, DocID(username))
	if err != nil {
		return nil, fmt.Errorf("failed to list keys for %s: %w", username, err)
	}
	sort.Strings(attachments)

	var keys []Key
	for _, attachment := range attachments {
		if !strings.HasPrefix(attachment, keyPrefix) {
			continue
		}
		data, err := s.attachments.Get(ctx, DocID(username), attachment)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read key %s for %s: %w", attachment, username, err)
		}
		keys = append(keys, Key{
			Username: username,
			Name:     strings.TrimPrefix(attachment, keyPrefix),
			Key:      string(data),
		})
	}
	return keys, nil
}

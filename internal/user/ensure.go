package user

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Identity is what a verified Firebase token says about the caller
type Identity struct {
	UID         string
	Email       string
	DisplayName string
	PictureURL  string
	ProviderID  string
}

// Ensure returns the profile of id, creating it on the first call and
// stamping LastLoginAt on later ones. A provider the profile has not seen
// yet is linked.
func Ensure(ctx context.Context, repo Repository, id Identity, now time.Time) (*User, error) {
	u, err := repo.GetByUID(ctx, id.UID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if u == nil {
		created := newUser(id, now)
		docID, err := repo.Create(ctx, created)
		if errors.Is(err, ErrDuplicateUID) {
			// Lost a race with a concurrent first call.
			return repo.GetByUID(ctx, id.UID)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		created.ID = docID
		return &created, nil
	}

	if err := repo.UpdateLastLogin(ctx, u.ID, now); err != nil {
		return nil, fmt.Errorf("failed to update last login: %w", err)
	}
	u.LastLoginAt = now

	if id.ProviderID != "" && !u.HasProvider(id.ProviderID) {
		p := linkedProvider(id, now)
		err := repo.AddProvider(ctx, u.ID, p)
		if err != nil && !errors.Is(err, ErrProviderExists) {
			return nil, fmt.Errorf("failed to link provider: %w", err)
		}
		if err == nil {
			u.Providers = append(u.Providers, p)
		}
	}
	return u, nil
}

func newUser(id Identity, now time.Time) User {
	u := User{
		UID:         id.UID,
		Email:       id.Email,
		DisplayName: id.DisplayName,
		PictureURL:  id.PictureURL,
		Providers:   []LinkedProvider{},
		CreatedAt:   now,
		UpdatedAt:   now,
		LastLoginAt: now,
	}
	if id.ProviderID != "" {
		u.Providers = append(u.Providers, linkedProvider(id, now))
	}
	return u
}

func linkedProvider(id Identity, now time.Time) LinkedProvider {
	return LinkedProvider{
		ProviderID:  id.ProviderID,
		Subject:     id.UID,
		Email:       id.Email,
		DisplayName: id.DisplayName,
		LinkedAt:    now,
	}
}

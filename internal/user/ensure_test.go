package user

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeRepository implements Repository in memory
type fakeRepository struct {
	users     map[string]*User
	uidIndex  map[string]string
	getErr    error
	createErr error
	lastLogin int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{users: map[string]*User{}, uidIndex: map[string]string{}}
}

func (f *fakeRepository) Create(_ context.Context, u User) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	id := "user-" + u.UID
	u.ID = id
	f.users[id] = &u
	f.uidIndex[u.UID] = id
	return id, nil
}

func (f *fakeRepository) Get(_ context.Context, id string) (*User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	c := u.Copy()
	return &c, nil
}

func (f *fakeRepository) GetByUID(ctx context.Context, uid string) (*User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	id, ok := f.uidIndex[uid]
	if !ok {
		return nil, nil
	}
	return f.Get(ctx, id)
}

func (f *fakeRepository) UpdateProfile(_ context.Context, id, displayName, pictureURL string) error {
	u, ok := f.users[id]
	if !ok {
		return ErrNotFound
	}
	u.DisplayName, u.PictureURL = displayName, pictureURL
	return nil
}

func (f *fakeRepository) UpdateLastLogin(_ context.Context, id string, t time.Time) error {
	u, ok := f.users[id]
	if !ok {
		return ErrNotFound
	}
	f.lastLogin++
	u.LastLoginAt = t
	return nil
}

func (f *fakeRepository) AddProvider(_ context.Context, id string, p LinkedProvider) error {
	u, ok := f.users[id]
	if !ok {
		return ErrNotFound
	}
	if u.HasProvider(p.ProviderID) {
		return ErrProviderExists
	}
	u.Providers = append(u.Providers, p)
	return nil
}

func (f *fakeRepository) SetStripeCustomerID(_ context.Context, id, customerID string) error {
	u, ok := f.users[id]
	if !ok {
		return ErrNotFound
	}
	u.StripeCustomerID = customerID
	return nil
}

var _ Repository = (*fakeRepository)(nil)

func TestEnsure(t *testing.T) {
	ctx := context.Background()
	first := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	later := first.Add(48 * time.Hour)
	identity := Identity{UID: "uid-1", Email: "a@example.com", DisplayName: "A", ProviderID: ProviderPassword}

	t.Run("creates the profile on first call", func(t *testing.T) {
		repo := newFakeRepository()

		u, err := Ensure(ctx, repo, identity, first)
		if err != nil {
			t.Fatalf("Ensure failed: %v", err)
		}
		if u.ID != "user-uid-1" {
			t.Errorf("ID = %q", u.ID)
		}
		if !u.CreatedAt.Equal(first) || !u.LastLoginAt.Equal(first) {
			t.Errorf("unexpected timestamps: %+v", u)
		}
		if len(u.Providers) != 1 || u.Providers[0].ProviderID != ProviderPassword {
			t.Errorf("unexpected providers: %+v", u.Providers)
		}
		if repo.lastLogin != 0 {
			t.Error("first call should not stamp last login separately")
		}
	})

	t.Run("stamps last login on later calls", func(t *testing.T) {
		repo := newFakeRepository()
		if _, err := Ensure(ctx, repo, identity, first); err != nil {
			t.Fatal(err)
		}

		u, err := Ensure(ctx, repo, identity, later)
		if err != nil {
			t.Fatalf("Ensure failed: %v", err)
		}
		if !u.LastLoginAt.Equal(later) {
			t.Errorf("LastLoginAt = %v, want %v", u.LastLoginAt, later)
		}
		if !u.CreatedAt.Equal(first) {
			t.Errorf("CreatedAt changed: %v", u.CreatedAt)
		}
		if len(u.Providers) != 1 {
			t.Errorf("provider duplicated: %+v", u.Providers)
		}
	})

	t.Run("links a new provider", func(t *testing.T) {
		repo := newFakeRepository()
		if _, err := Ensure(ctx, repo, identity, first); err != nil {
			t.Fatal(err)
		}

		google := identity
		google.ProviderID = ProviderGoogle
		u, err := Ensure(ctx, repo, google, later)
		if err != nil {
			t.Fatalf("Ensure failed: %v", err)
		}
		if !u.HasProvider(ProviderGoogle) || !u.HasProvider(ProviderPassword) {
			t.Errorf("expected both providers, got %+v", u.Providers)
		}
	})

	t.Run("recovers from a concurrent create", func(t *testing.T) {
		repo := newFakeRepository()
		if _, err := repo.Create(ctx, User{UID: "uid-1"}); err != nil {
			t.Fatal(err)
		}
		// Pretend the lookup missed the row another caller just wrote.
		racing := &racingRepository{fakeRepository: repo}

		u, err := Ensure(ctx, racing, identity, first)
		if err != nil {
			t.Fatalf("Ensure failed: %v", err)
		}
		if u == nil || u.ID != "user-uid-1" {
			t.Errorf("unexpected user: %+v", u)
		}
	})

	t.Run("propagates lookup errors", func(t *testing.T) {
		repo := newFakeRepository()
		repo.getErr = errors.New("unavailable")

		if _, err := Ensure(ctx, repo, identity, first); !errors.Is(err, repo.getErr) {
			t.Errorf("expected wrapped lookup error, got %v", err)
		}
	})

	t.Run("propagates create errors", func(t *testing.T) {
		repo := newFakeRepository()
		repo.createErr = errors.New("quota exceeded")

		if _, err := Ensure(ctx, repo, identity, first); !errors.Is(err, repo.createErr) {
			t.Errorf("expected wrapped create error, got %v", err)
		}
	})
}

// racingRepository misses the first GetByUID and rejects Create as a duplicate
type racingRepository struct {
	*fakeRepository
	looked bool
}

func (r *racingRepository) GetByUID(ctx context.Context, uid string) (*User, error) {
	if !r.looked {
		r.looked = true
		return nil, nil
	}
	return r.fakeRepository.GetByUID(ctx, uid)
}

func (r *racingRepository) Create(context.Context, User) (string, error) {
	return "", ErrDuplicateUID
}

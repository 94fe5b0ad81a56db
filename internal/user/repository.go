package user

import (
	"context"
	"time"
)

// Repository defines the interface for user storage operations
type Repository interface {
	// Create creates a new user (first authenticated call)
	//
	// Parameters:
	//   - ctx: Context for cancellation control
	//   - user: User to create
	//
	// Returns:
	//   - ID of the created user document
	//   - Error if Firestore operation fails or UID already exists
	Create(ctx context.Context, user User) (string, error)

	// Get retrieves a user by document ID
	//
	// Returns:
	//   - Pointer to the user (nil if not found)
	//   - Error if Firestore operation fails (nil for not found)
	Get(ctx context.Context, id string) (*User, error)

	// GetByUID retrieves a user by Firebase UID
	//
	// Returns:
	//   - Pointer to the user (nil if not found)
	//   - Error if Firestore operation fails (nil for not found)
	GetByUID(ctx context.Context, uid string) (*User, error)

	// UpdateProfile overwrites the display name and picture URL
	UpdateProfile(ctx context.Context, id string, displayName, pictureURL string) error

	// UpdateLastLogin updates the LastLoginAt field
	//
	// Returns:
	//   - ErrNotFound if the user does not exist
	UpdateLastLogin(ctx context.Context, id string, t time.Time) error

	// AddProvider adds a linked provider to a user
	//
	// Returns:
	//   - ErrProviderExists if the provider is already linked
	//   - ErrNotFound if the user does not exist
	AddProvider(ctx context.Context, id string, provider LinkedProvider) error

	// SetStripeCustomerID records the Stripe customer created for the user
	SetStripeCustomerID(ctx context.Context, id string, customerID string) error
}

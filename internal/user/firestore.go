package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	// collectionName is the Firestore collection for owner profiles
	collectionName = "users"
)

// Error definitions
var (
	// ErrNotFound is returned when a user is not found
	ErrNotFound = errors.New("user not found")

	// ErrDuplicateUID is returned when trying to create a user with an existing UID
	ErrDuplicateUID = errors.New("user with this UID already exists")

	// ErrProviderExists is returned when trying to add a provider that already exists
	ErrProviderExists = errors.New("provider already linked to user")
)

// FirestoreRepository implements Repository using Firestore
type FirestoreRepository struct {
	client *firestore.Client
	now    func() time.Time
}

var _ Repository = (*FirestoreRepository)(nil)

// NewFirestoreRepository creates a new FirestoreRepository
func NewFirestoreRepository(client *firestore.Client) *FirestoreRepository {
	return &FirestoreRepository{
		client: client,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create creates a new user and returns its document ID
func (r *FirestoreRepository) Create(ctx context.Context, user User) (string, error) {
	existing, err := r.GetByUID(ctx, user.UID)
	if err != nil {
		return "", fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return "", ErrDuplicateUID
	}

	docRef, _, err := r.client.Collection(collectionName).Add(ctx, userToMap(user))
	if err != nil {
		return "", fmt.Errorf("failed to create user: %w", err)
	}
	return docRef.ID, nil
}

// Get retrieves a user by document ID
func (r *FirestoreRepository) Get(ctx context.Context, id string) (*User, error) {
	doc, err := r.client.Collection(collectionName).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user := documentToUser(doc.Ref.ID, doc.Data())
	return &user, nil
}

// GetByUID retrieves a user by Firebase UID
func (r *FirestoreRepository) GetByUID(ctx context.Context, uid string) (*User, error) {
	docs, err := r.client.Collection(collectionName).
		Where("uid", "==", uid).
		Limit(1).
		Documents(ctx).
		GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query user by UID: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	user := documentToUser(docs[0].Ref.ID, docs[0].Data())
	return &user, nil
}

// UpdateProfile overwrites the display name and picture URL
func (r *FirestoreRepository) UpdateProfile(ctx context.Context, id string, displayName, pictureURL string) error {
	return r.update(ctx, id, "update profile", []firestore.Update{
		{Path: "displayName", Value: displayName},
		{Path: "pictureUrl", Value: pictureURL},
	})
}

// UpdateLastLogin updates the LastLoginAt field
func (r *FirestoreRepository) UpdateLastLogin(ctx context.Context, id string, t time.Time) error {
	return r.update(ctx, id, "update last login", []firestore.Update{
		{Path: "lastLoginAt", Value: t},
	})
}

// SetStripeCustomerID records the Stripe customer created for the user
func (r *FirestoreRepository) SetStripeCustomerID(ctx context.Context, id string, customerID string) error {
	return r.update(ctx, id, "set stripe customer", []firestore.Update{
		{Path: "stripeCustomerId", Value: customerID},
	})
}

// AddProvider adds a linked provider to a user
func (r *FirestoreRepository) AddProvider(ctx context.Context, id string, provider LinkedProvider) error {
	docRef := r.client.Collection(collectionName).Doc(id)

	doc, err := docRef.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	user := documentToUser(doc.Ref.ID, doc.Data())
	if user.HasProvider(provider.ProviderID) {
		return ErrProviderExists
	}

	_, err = docRef.Update(ctx, []firestore.Update{
		{Path: "providers", Value: firestore.ArrayUnion(providerToMap(provider))},
		{Path: "updatedAt", Value: r.now()},
	})
	if err != nil {
		return fmt.Errorf("failed to add provider: %w", err)
	}
	return nil
}

// update applies updates plus updatedAt, mapping a missing document to ErrNotFound
func (r *FirestoreRepository) update(ctx context.Context, id, action string, updates []firestore.Update) error {
	updates = append(updates, firestore.Update{Path: "updatedAt", Value: r.now()})
	_, err := r.client.Collection(collectionName).Doc(id).Update(ctx, updates)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		return fmt.Errorf("failed to %s: %w", action, err)
	}
	return nil
}

// userToMap converts a User to a map for Firestore storage
func userToMap(user User) map[string]any {
	providers := make([]map[string]any, len(user.Providers))
	for i, p := range user.Providers {
		providers[i] = providerToMap(p)
	}

	data := map[string]any{
		"uid":         user.UID,
		"email":       user.Email,
		"displayName": user.DisplayName,
		"pictureUrl":  user.PictureURL,
		"providers":   providers,
		"createdAt":   user.CreatedAt,
		"updatedAt":   user.UpdatedAt,
		"lastLoginAt": user.LastLoginAt,
	}
	if user.StripeCustomerID != "" {
		data["stripeCustomerId"] = user.StripeCustomerID
	}
	return data
}

// providerToMap converts a LinkedProvider to a map for Firestore storage
func providerToMap(provider LinkedProvider) map[string]any {
	return map[string]any{
		"providerId":  provider.ProviderID,
		"subject":     provider.Subject,
		"email":       provider.Email,
		"displayName": provider.DisplayName,
		"linkedAt":    provider.LinkedAt,
	}
}

// documentToUser converts Firestore document data to a User
func documentToUser(id string, data map[string]any) User {
	user := User{ID: id}

	user.UID, _ = data["uid"].(string)
	user.Email, _ = data["email"].(string)
	user.DisplayName, _ = data["displayName"].(string)
	user.PictureURL, _ = data["pictureUrl"].(string)
	user.StripeCustomerID, _ = data["stripeCustomerId"].(string)
	user.CreatedAt, _ = data["createdAt"].(time.Time)
	user.UpdatedAt, _ = data["updatedAt"].(time.Time)
	user.LastLoginAt, _ = data["lastLoginAt"].(time.Time)

	if providers, ok := data["providers"].([]any); ok {
		user.Providers = make([]LinkedProvider, 0, len(providers))
		for _, p := range providers {
			if m, ok := p.(map[string]any); ok {
				user.Providers = append(user.Providers, mapToProvider(m))
			}
		}
	}
	return user
}

// mapToProvider converts a map to a LinkedProvider
func mapToProvider(data map[string]any) LinkedProvider {
	var provider LinkedProvider
	provider.ProviderID, _ = data["providerId"].(string)
	provider.Subject, _ = data["subject"].(string)
	provider.Email, _ = data["email"].(string)
	provider.DisplayName, _ = data["displayName"].(string)
	provider.LinkedAt, _ = data["linkedAt"].(time.Time)
	return provider
}

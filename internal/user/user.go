// Package user keeps the DoggyDay owner profile in the Firestore "users"
// collection. The profile mirrors the Firebase identity and carries the
// Stripe customer used for daycare payments.
package user

import (
	"time"
)

// User is the owner profile stored in Firestore
type User struct {
	ID               string           `firestore:"-" json:"id,omitempty"`
	UID              string           `firestore:"uid" json:"uid"` // Firebase UID
	Email            string           `firestore:"email" json:"email"`
	DisplayName      string           `firestore:"displayName" json:"displayName"`
	PictureURL       string           `firestore:"pictureUrl,omitempty" json:"pictureUrl,omitempty"`
	Providers        []LinkedProvider `firestore:"providers" json:"providers"`
	StripeCustomerID string           `firestore:"stripeCustomerId,omitempty" json:"-"`
	CreatedAt        time.Time        `firestore:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time        `firestore:"updatedAt" json:"updatedAt"`
	LastLoginAt      time.Time        `firestore:"lastLoginAt" json:"lastLoginAt"`
}

// LinkedProvider is one sign-in method linked to the owner
type LinkedProvider struct {
	ProviderID  string    `firestore:"providerId" json:"providerId"` // "google.com", "password"
	Subject     string    `firestore:"subject" json:"subject"`
	Email       string    `firestore:"email,omitempty" json:"email,omitempty"`
	DisplayName string    `firestore:"displayName,omitempty" json:"displayName,omitempty"`
	LinkedAt    time.Time `firestore:"linkedAt" json:"linkedAt"`
}

// ProviderID constants for authentication providers
const (
	ProviderGoogle   = "google.com"
	ProviderPassword = "password"
)

// Copy creates a deep copy of the User
func (u User) Copy() User {
	copied := u
	if u.Providers != nil {
		copied.Providers = make([]LinkedProvider, len(u.Providers))
		copy(copied.Providers, u.Providers)
	}
	return copied
}

// HasProvider reports whether providerID is linked to the user
func (u User) HasProvider(providerID string) bool {
	return findProviderIndex(u.Providers, providerID) >= 0
}

// findProviderIndex returns the index of providerID or -1
func findProviderIndex(providers []LinkedProvider, providerID string) int {
	for i, p := range providers {
		if p.ProviderID == providerID {
			return i
		}
	}
	return -1
}

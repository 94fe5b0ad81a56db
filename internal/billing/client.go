// Package billing takes payment for daycare appointments through Stripe
// Checkout and reconciles the result from Stripe webhooks.
package billing

import (
	"github.com/stripe/stripe-go/v78"
)

// Client wraps Stripe API operations
type Client struct {
	secretKey string
	pricing   Pricing
}

// NewClient creates a new Stripe billing client
//
// Parameters:
//   - secretKey: Stripe API secret key (sk_test_xxx or sk_live_xxx)
//   - pricing: price of each booked service
func NewClient(secretKey string, pricing Pricing) *Client {
	// Set the global API key for the stripe-go library
	stripe.Key = secretKey

	return &Client{
		secretKey: secretKey,
		pricing:   pricing,
	}
}

// Pricing returns the configured prices
func (c *Client) Pricing() Pricing {
	return c.pricing
}

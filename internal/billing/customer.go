package billing

import (
	"context"
	"fmt"

	"github.com/otiai10/doggyday/internal/user"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/customer"
)

// OwnerCustomer returns the Stripe customer that appointment checkouts are
// billed to, creating it on the owner's first checkout. The caller stores a
// new ID on the owner's profile.
func (c *Client) OwnerCustomer(ctx context.Context, owner *user.User) (string, error) {
	if owner.StripeCustomerID != "" {
		return owner.StripeCustomerID, nil
	}
	if owner.UID == "" {
		return "", fmt.Errorf("owner has no uid")
	}

	params := ownerCustomerParams(owner)
	params.Context = ctx
	cust, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create Stripe customer for %s: %w", owner.UID, err)
	}
	return cust.ID, nil
}

// ownerCustomerParams keys creation on the uid, so two checkouts racing
// for a new owner get the same customer back from Stripe.
func ownerCustomerParams(owner *user.User) *stripe.CustomerParams {
	params := &stripe.CustomerParams{
		Description: stripe.String("DoggyDay owner"),
		Metadata: map[string]string{
			"owner_uid":  owner.UID,
			"profile_id": owner.ID,
		},
	}
	if owner.Email != "" {
		params.Email = stripe.String(owner.Email)
	}
	if owner.DisplayName != "" {
		params.Name = stripe.String(owner.DisplayName)
	}
	params.SetIdempotencyKey("doggyday-owner-" + owner.UID)
	return params
}

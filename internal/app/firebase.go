package app

import (
	"context"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"github.com/otiai10/doggyday/internal/auth"
	"github.com/otiai10/doggyday/internal/billing"
	"github.com/otiai10/doggyday/internal/config"
	"github.com/otiai10/doggyday/internal/identity"
	"github.com/otiai10/doggyday/internal/storage"
	"github.com/otiai10/doggyday/internal/store"
	"github.com/otiai10/doggyday/internal/user"
)

// NewFirebaseApp connects every backend of cfg.Firebase and returns an App
// running on them: Firebase Authentication for the session, Firestore for
// documents and profiles, and Cloud Storage for photos. Stripe is added when
// billing is configured. Close releases the Firestore client.
func NewFirebaseApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if err := cfg.Firebase.Validate(); err != nil {
		return nil, err
	}

	var clientOpts []option.ClientOption
	if cfg.Firebase.Credentials != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.Firebase.Credentials))
	}

	bucketName := cfg.Firebase.StorageBucket
	if bucketName == "" {
		bucketName = cfg.Firebase.ProjectID + ".appspot.com"
	}

	logger.Info("initializing Firebase", "project", cfg.Firebase.ProjectID, "database", cfg.Firebase.Database)
	fbApp, err := firebase.NewApp(ctx, &firebase.Config{
		ProjectID:     cfg.Firebase.ProjectID,
		StorageBucket: bucketName,
	}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firebase app: %w", err)
	}

	authClient, err := fbApp.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get auth client: %w", err)
	}
	verifier, err := auth.NewFirebaseTokenVerifierFromClient(authClient, cfg.Firebase.TenantID, cfg.Firebase.CheckRevoked)
	if err != nil {
		return nil, err
	}

	toolkit, err := identity.NewToolkitService(ctx, cfg.Firebase.APIKey)
	if err != nil {
		return nil, err
	}
	storeOpts := []identity.FirebaseStoreOption{
		identity.WithUserDirectory(authClient),
		identity.WithTokenRefresher(identity.NewSecureTokenRefresher(cfg.Firebase.APIKey)),
		identity.WithStatePath(cfg.Session.StatePath),
		identity.WithLogger(logger),
	}
	if cfg.Session.WatchInterval > 0 {
		storeOpts = append(storeOpts, identity.WithWatchInterval(cfg.Session.WatchInterval))
	}
	sessions := identity.NewFirebaseStore(toolkit, verifier, storeOpts...)

	docs, err := store.NewFirestoreClient(ctx, store.FirestoreConfig{
		ProjectID:   cfg.Firebase.ProjectID,
		Database:    cfg.Firebase.Database,
		Credentials: cfg.Firebase.Credentials,
	})
	if err != nil {
		return nil, err
	}

	bucket, err := storage.NewFirebaseBucket(ctx, fbApp, bucketName, logger)
	if err != nil {
		docs.Close()
		return nil, err
	}

	base := []Option{
		WithDocuments(docs),
		WithObjects(bucket),
		WithTokenVerifier(verifier),
		WithUserRepository(user.NewFirestoreRepository(docs.Client())),
		WithLogger(logger),
	}
	if cfg.Billing.Enabled() {
		base = append(base, WithPayments(billing.NewClient(cfg.Billing.SecretKey, billing.Pricing{
			Currency: cfg.Billing.Currency,
			Amounts:  cfg.Billing.Amounts(),
		})))
		logger.Info("stripe checkout enabled", "currency", cfg.Billing.Currency)
	}

	a := NewApp(cfg, sessions, append(base, opts...)...)
	a.closers = append(a.closers, docs)
	return a, nil
}

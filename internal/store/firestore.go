package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreClient wraps the Firestore client for data persistence
type FirestoreClient struct {
	client    *firestore.Client
	projectID string
	database  string
}

// Ensure FirestoreClient implements Documents and Transactor
var (
	_ Documents  = (*FirestoreClient)(nil)
	_ Transactor = (*FirestoreClient)(nil)
)

// FirestoreConfig holds configuration for Firestore client
type FirestoreConfig struct {
	ProjectID   string // GCP Project ID (required)
	Database    string // Database name (optional, defaults to "(default)")
	Credentials string // Path to service account JSON file (optional)
}

// NewFirestoreClient creates a new Firestore client.
// If FIRESTORE_EMULATOR_HOST is set, the client will connect to the emulator.
func NewFirestoreClient(ctx context.Context, cfg FirestoreConfig) (*FirestoreClient, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}

	emulatorHost := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if emulatorHost != "" {
		slog.Info("using Firestore emulator", "host", emulatorHost)
	}

	var opts []option.ClientOption
	if cfg.Credentials != "" && emulatorHost == "" {
		// Only use credentials file when not using emulator
		opts = append(opts, option.WithCredentialsFile(cfg.Credentials))
	}

	database := cfg.Database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}

	client, err := firestore.NewClientWithDatabase(ctx, cfg.ProjectID, database, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	return NewFirestoreClientFrom(client, cfg.ProjectID, database), nil
}

// NewFirestoreClientFrom wraps an existing client, e.g. one from firebase.App.Firestore
func NewFirestoreClientFrom(client *firestore.Client, projectID, database string) *FirestoreClient {
	return &FirestoreClient{
		client:    client,
		projectID: projectID,
		database:  database,
	}
}

// Close releases resources held by the Firestore client
func (f *FirestoreClient) Close() error {
	if f.client == nil {
		return nil
	}
	return f.client.Close()
}

// Client returns the underlying Firestore client
func (f *FirestoreClient) Client() *firestore.Client {
	return f.client
}

// ProjectID returns the GCP project ID
func (f *FirestoreClient) ProjectID() string {
	return f.projectID
}

// Database returns the Firestore database name
func (f *FirestoreClient) Database() string {
	return f.database
}

// Create adds a document with a generated ID
func (f *FirestoreClient) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	ref, _, err := f.client.Collection(collection).Add(ctx, stamped(data))
	if err != nil {
		return "", fmt.Errorf("failed to create document in %s: %w", collection, err)
	}
	return ref.ID, nil
}

// Read returns the document, or nil if it does not exist
func (f *FirestoreClient) Read(ctx context.Context, collection, id string) (*Record, error) {
	snap, err := f.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s/%s: %w", collection, id, err)
	}
	return &Record{ID: snap.Ref.ID, Data: snap.Data()}, nil
}

// Update merges partial into an existing document
func (f *FirestoreClient) Update(ctx context.Context, collection, id string, partial map[string]any) error {
	updates := make([]firestore.Update, 0, len(partial)+1)
	for k, v := range partial {
		updates = append(updates, firestore.Update{Path: k, Value: v})
	}
	updates = append(updates, firestore.Update{Path: FieldUpdatedAt, Value: firestore.ServerTimestamp})

	if _, err := f.client.Collection(collection).Doc(id).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("failed to update %s/%s: %w", collection, id, ErrNotFound)
		}
		return fmt.Errorf("failed to update %s/%s: %w", collection, id, err)
	}
	return nil
}

// Delete removes a document. Deleting a missing document is not an error.
func (f *FirestoreClient) Delete(ctx context.Context, collection, id string) error {
	if _, err := f.client.Collection(collection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// Query returns the documents matching every condition, ordered by sorts
func (f *FirestoreClient) Query(ctx context.Context, collection string, conditions []Condition, sorts []Sort) ([]Record, error) {
	if err := validate(conditions); err != nil {
		return nil, err
	}

	records, err := collect(f.query(collection, conditions, sorts).Documents(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}
	return records, nil
}

// List returns every document in the collection
func (f *FirestoreClient) List(ctx context.Context, collection string) ([]Record, error) {
	records, err := collect(f.client.Collection(collection).Documents(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	return records, nil
}

// RunTransaction implements Transactor with a Firestore transaction.
// Firestore retries fn when a document it read changes before commit.
func (f *FirestoreClient) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	err := f.client.RunTransaction(ctx, func(ctx context.Context, t *firestore.Transaction) error {
		return fn(ctx, &firestoreTx{f: f, t: t})
	})
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}
	return nil
}

type firestoreTx struct {
	f *FirestoreClient
	t *firestore.Transaction
}

func (tx *firestoreTx) Query(collection string, conditions []Condition) ([]Record, error) {
	if err := validate(conditions); err != nil {
		return nil, err
	}
	records, err := collect(tx.t.Documents(tx.f.query(collection, conditions, nil)))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}
	return records, nil
}

func (tx *firestoreTx) Create(collection string, data map[string]any) (string, error) {
	ref := tx.f.client.Collection(collection).NewDoc()
	if err := tx.t.Create(ref, stamped(data)); err != nil {
		return "", fmt.Errorf("failed to create document in %s: %w", collection, err)
	}
	return ref.ID, nil
}

func (f *FirestoreClient) query(collection string, conditions []Condition, sorts []Sort) firestore.Query {
	q := f.client.Collection(collection).Query
	for _, c := range conditions {
		q = q.Where(c.Field, string(c.Operator), c.Value)
	}
	for _, s := range sorts {
		dir := firestore.Asc
		if s.Direction == Desc {
			dir = firestore.Desc
		}
		q = q.OrderBy(s.Field, dir)
	}
	return q
}

// stamped copies data with server-side createdAt and updatedAt
func stamped(data map[string]any) map[string]any {
	doc := make(map[string]any, len(data)+2)
	for k, v := range data {
		doc[k] = v
	}
	doc[FieldCreatedAt] = firestore.ServerTimestamp
	doc[FieldUpdatedAt] = firestore.ServerTimestamp
	return doc
}

func collect(iter *firestore.DocumentIterator) ([]Record, error) {
	defer iter.Stop()

	records := []Record{}
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		records = append(records, Record{ID: snap.Ref.ID, Data: snap.Data()})
	}
	return records, nil
}

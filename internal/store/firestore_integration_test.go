//go:build integration

package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

// TestFirestoreClient_Integration exercises the Document Access Layer against a real Firestore instance.
// Run with: go test -tags=integration ./internal/store/... -v
//
// Requires environment variables:
//   - DOGGYDAY_FIREBASE_PROJECT_ID
//   - DOGGYDAY_FIREBASE_DATABASE (optional, defaults to "(default)")
//   - DOGGYDAY_FIREBASE_CREDENTIALS (path to service account JSON for local dev)
//
// FIRESTORE_EMULATOR_HOST works as well.
func TestFirestoreClient_Integration(t *testing.T) {
	projectID := os.Getenv("DOGGYDAY_FIREBASE_PROJECT_ID")
	if projectID == "" {
		t.Skip("DOGGYDAY_FIREBASE_PROJECT_ID not set, skipping integration test")
	}

	ctx := context.Background()
	client, err := NewFirestoreClient(ctx, FirestoreConfig{
		ProjectID:   projectID,
		Database:    os.Getenv("DOGGYDAY_FIREBASE_DATABASE"),
		Credentials: os.Getenv("DOGGYDAY_FIREBASE_CREDENTIALS"),
	})
	if err != nil {
		t.Fatalf("failed to create Firestore client: %v", err)
	}
	defer client.Close()

	collection := "tests"
	marker := "integration-" + time.Now().Format("20060102-150405")
	var id string

	t.Run("Create", func(t *testing.T) {
		id, err = client.Create(ctx, collection, map[string]any{"marker": marker, "n": 1})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	})

	t.Run("Read stamps timestamps", func(t *testing.T) {
		rec, err := client.Read(ctx, collection, id)
		if err != nil || rec == nil {
			t.Fatalf("Read failed: %v, %v", rec, err)
		}
		if _, ok := rec.Data[FieldCreatedAt].(time.Time); !ok {
			t.Errorf("expected createdAt timestamp, got %T", rec.Data[FieldCreatedAt])
		}
	})

	t.Run("Update and Query", func(t *testing.T) {
		if err := client.Update(ctx, collection, id, map[string]any{"n": 2}); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		recs, err := client.Query(ctx, collection, []Condition{Where("marker", OpEqual, marker)}, nil)
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(recs) != 1 || recs[0].Data["n"] != int64(2) {
			t.Errorf("unexpected query result: %+v", recs)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := client.Delete(ctx, collection, id); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		rec, err := client.Read(ctx, collection, id)
		if err != nil || rec != nil {
			t.Errorf("expected (nil, nil) after delete, got (%v, %v)", rec, err)
		}
	})

	t.Run("Update does not create a missing document", func(t *testing.T) {
		if err := client.Update(ctx, collection, id, map[string]any{"n": 3}); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if rec, _ := client.Read(ctx, collection, id); rec != nil {
			t.Errorf("Update recreated %s: %v", id, rec.Data)
		}
	})

	t.Run("RunTransaction", func(t *testing.T) {
		errAbort := errors.New("abort")
		var created string
		err := client.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
			if _, err := tx.Query(collection, []Condition{Where("marker", OpEqual, marker)}); err != nil {
				return err
			}
			id, err := tx.Create(collection, map[string]any{"marker": marker})
			if err != nil {
				return err
			}
			created = id
			return errAbort
		})
		if !errors.Is(err, errAbort) {
			t.Fatalf("expected abort, got %v", err)
		}
		if rec, _ := client.Read(ctx, collection, created); rec != nil {
			t.Errorf("aborted transaction wrote %s", created)
		}
	})
}

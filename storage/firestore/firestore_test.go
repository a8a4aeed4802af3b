package firestore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/mihaimyh/gobilling/storage/storagetest"
)

const testProjectID = "test-project"

// setupFirestoreClient connects to the emulator named by FIRESTORE_EMULATOR_HOST.
func setupFirestoreClient(t *testing.T) *firestore.Client {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	client, err := firestore.NewClient(context.Background(), testProjectID)
	if err != nil {
		t.Fatalf("Failed to create Firestore client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNew(t *testing.T) {
	if _, err := New(nil, Config{}); err == nil {
		t.Error("expected error for nil client")
	}
}

func TestStorage_UserStore(t *testing.T) {
	client := setupFirestoreClient(t)
	storage, err := New(client, Config{
		UsersCollection: fmt.Sprintf("test_users_%d", time.Now().UnixNano()),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	storagetest.Run(t, storage)
}

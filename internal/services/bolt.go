package services

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// BoltKeyring is the credential selector backed by a BoltDB file. It keeps the API key the user
// selected in the browser so it survives restarts of the server.
type BoltKeyring struct {
	db *bolt.DB
}

var (
	credentialsBucket = []byte("credentials")
	apiKeyKey         = []byte("api_key")
)

// NewBoltKeyring opens (or creates) the keyring at path. The database file is created with 0600
// permissions if it doesn't exist.
func NewBoltKeyring(path string) (BoltKeyring, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return BoltKeyring{}, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(credentialsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return BoltKeyring{}, fmt.Errorf("failed to create credentials bucket: %w", err)
	}

	return BoltKeyring{db: db}, nil
}

// HasSelectedCredential reports whether an API key has been stored.
func (b BoltKeyring) HasSelectedCredential(ctx context.Context) (bool, error) {
	cred, err := b.Credential(ctx)
	if err != nil {
		return false, err
	}
	return cred != "", nil
}

// SelectCredential stores credential, replacing any previous one.
func (b BoltKeyring) SelectCredential(_ context.Context, credential string) error {
	if credential == "" {
		return fmt.Errorf("credential is empty")
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(credentialsBucket)
		if bucket == nil {
			return fmt.Errorf("credentials bucket not found")
		}
		return bucket.Put(apiKeyKey, []byte(credential))
	})
}

// Credential returns the stored API key, or an empty string if none was selected.
func (b BoltKeyring) Credential(context.Context) (string, error) {
	var cred string
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(credentialsBucket)
		if bucket == nil {
			return nil
		}
		// Bolt values are only valid inside the transaction.
		cred = string(bucket.Get(apiKeyKey))
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to read credential: %w", err)
	}
	return cred, nil
}

// Close releases the database file.
func (b BoltKeyring) Close() error {
	return b.db.Close()
}

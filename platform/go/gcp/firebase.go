package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// Credentials selects how Google clients authenticate. An empty CredentialsFile falls back to
// Application Default Credentials.
type Credentials struct {
	ProjectID       string
	CredentialsFile string
}

func (c Credentials) options() []option.ClientOption {
	if c.CredentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(c.CredentialsFile)}
}

// GetApp creates a Firebase App instance.
func GetApp(ctx context.Context, creds Credentials) (*firebase.App, error) {
	var cfg *firebase.Config
	if creds.ProjectID != "" {
		cfg = &firebase.Config{ProjectID: creds.ProjectID}
	}
	return firebase.NewApp(ctx, cfg, creds.options()...)
}

// InitFirebaseAuth initializes the Firebase App and returns an Auth client used to verify ID tokens.
func InitFirebaseAuth(ctx context.Context, creds Credentials) (*firebase.App, *firebaseauth.Client, error) {
	firebaseApp, err := GetApp(ctx, creds)
	if err != nil {
		return nil, nil, fmt.Errorf("error initializing firebase app [%w]", err)
	}

	fbAuth, err := firebaseApp.Auth(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("error initializing firebase auth [%w]", err)
	}

	return firebaseApp, fbAuth, nil
}

// NewStorageClient opens a Cloud Storage client for the report archive.
func NewStorageClient(ctx context.Context, creds Credentials) (*storage.Client, error) {
	client, err := storage.NewClient(ctx, creds.options()...)
	if err != nil {
		return nil, fmt.Errorf("error initializing storage client [%w]", err)
	}
	return client, nil
}

package gcp

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/tourdesk/tourdesk-saas/platform/go/setups"
)

// GetApp creates a Firebase App, from a service account file when one is given.
func GetApp(ctx context.Context, pathToJSON *string) (*firebase.App, error) {
	var cfg *firebase.Config
	if project := setups.ProjectID(); project != "" {
		cfg = &firebase.Config{ProjectID: project}
	}

	if pathToJSON != nil {
		return firebase.NewApp(ctx, cfg, option.WithCredentialsFile(*pathToJSON))
	}
	return firebase.NewApp(ctx, cfg)
}

// InitFirebaseAuth initializes the Firebase App and returns an Auth client.
// Used when tenants sign in through Firebase instead of Supabase.
func InitFirebaseAuth(ctx context.Context) (*firebase.App, *firebaseauth.Client, error) {
	firebaseApp, err := GetApp(ctx, setups.FirebaseCredentialsPath())
	if err != nil {
		return nil, nil, fmt.Errorf("error initializing firebase app [%w]", err)
	}

	fbAuth, err := firebaseApp.Auth(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("error initializing firebase auth [%w]", err)
	}

	return firebaseApp, fbAuth, nil
}

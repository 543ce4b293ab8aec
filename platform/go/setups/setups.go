// Package setups reads the process-level settings shared by the Google Cloud integrations.
package setups

import (
	"os"
	"strings"
)

const (
	DevCredentialsPathEnv = "FIREBASE_CONFIG"
	DevProjectEnv         = "GCLOUD_PROJECT"
)

// FirebaseCredentialsPath returns the service account file configured for local runs, or nil
// to use application default credentials.
func FirebaseCredentialsPath() *string {
	path, found := os.LookupEnv(DevCredentialsPathEnv)
	if !found || strings.TrimSpace(path) == "" {
		return nil
	}
	return &path
}

// ProjectID returns the Google Cloud project pinned for local runs, if any.
func ProjectID() string {
	return strings.TrimSpace(os.Getenv(DevProjectEnv))
}

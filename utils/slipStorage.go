package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const (
	StorageProviderGCS   = "gcs"
	StorageProviderLocal = "local"
)

func GetStorageProvider() string {
	provider := strings.TrimSpace(strings.ToLower(os.Getenv("STORAGE_PROVIDER")))
	if provider == "" {
		return StorageProviderGCS
	}
	return provider
}

// SlipStorage resolves a stored payment-proof path to a readable local file.
// Fetch returns the local path plus a cleanup func for any temp file it made.
type SlipStorage interface {
	Fetch(ctx context.Context, path string) (localPath string, cleanup func(), err error)
}

// NewSlipStorage picks the backend from STORAGE_PROVIDER.
func NewSlipStorage() SlipStorage {
	if GetStorageProvider() == StorageProviderLocal {
		return LocalSlipStorage{}
	}
	return GCSSlipStorage{}
}

// LocalSlipStorage serves slips straight off the filesystem (dev, tests).
type LocalSlipStorage struct {
	// BaseDir is prepended to relative paths. Empty means paths are used as-is.
	BaseDir string
}

func (s LocalSlipStorage) Fetch(_ context.Context, path string) (string, func(), error) {
	full := path
	if s.BaseDir != "" {
		full = s.BaseDir + "/" + strings.TrimPrefix(path, "/")
	}
	info, err := os.Stat(full)
	if err != nil {
		return "", func() {}, err
	}
	if info.IsDir() {
		return "", func() {}, fmt.Errorf("slip path %q is a directory", full)
	}
	return full, func() {}, nil
}

// GCSSlipStorage downloads the object to a temp file for the checker process.
type GCSSlipStorage struct{}

func getGoogleClient(ctx context.Context) (*storage.Client, error) {
	// Prefer ADC (Cloud Run service account / GOOGLE_APPLICATION_CREDENTIALS).
	// If you need to provide explicit JSON (e.g. locally), set GCS_CREDENTIALS_JSON.
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	}
	return storage.NewClient(ctx)
}

func (GCSSlipStorage) Fetch(ctx context.Context, path string) (string, func(), error) {
	bucketName := os.Getenv("GCS_BUCKET")
	if bucketName == "" {
		return "", func() {}, errors.New("GCS_BUCKET is required")
	}

	client, err := getGoogleClient(ctx)
	if err != nil {
		return "", func() {}, err
	}
	defer client.Close()

	rc, err := client.Bucket(bucketName).Object(strings.TrimPrefix(path, "/")).NewReader(ctx)
	if err != nil {
		return "", func() {}, err
	}
	defer rc.Close()

	tmp, err := os.CreateTemp("", "slip-*")
	if err != nil {
		return "", func() {}, err
	}
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}
	if _, err := io.Copy(tmp, rc); err != nil {
		cleanup()
		return "", func() {}, err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", func() {}, err
	}
	return tmp.Name(), func() { _ = os.Remove(tmp.Name()) }, nil
}

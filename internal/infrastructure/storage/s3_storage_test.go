package storage

import (
	"testing"

	"github.com/cutout/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validStorageConfig() *config.StorageConfig {
	return &config.StorageConfig{
		Endpoint:     "http://localhost:9000",
		Region:       "us-east-1",
		Bucket:       "cutouts",
		AccessKey:    "minio",
		SecretKey:    "minio123",
		UsePathStyle: true,
	}
}

func TestNewS3ObjectStorageValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.StorageConfig)
	}{
		{"missing bucket", func(c *config.StorageConfig) { c.Bucket = "" }},
		{"missing access key", func(c *config.StorageConfig) { c.AccessKey = "" }},
		{"missing secret key", func(c *config.StorageConfig) { c.SecretKey = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validStorageConfig()
			tt.mutate(cfg)
			_, err := NewS3ObjectStorage(cfg)
			assert.Error(t, err)
		})
	}

	_, err := NewS3ObjectStorage(nil)
	assert.Error(t, err)
}

func TestPublicBaseURLDefaultsToEndpointAndBucket(t *testing.T) {
	s, err := NewS3ObjectStorage(validStorageConfig())
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/cutouts", s.publicBaseURL)
}

func TestPublicBaseURLOverrideTrimsTrailingSlash(t *testing.T) {
	cfg := validStorageConfig()
	cfg.PublicBaseURL = "https://cdn.example.com/cutouts/"

	s, err := NewS3ObjectStorage(cfg)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/cutouts", s.publicBaseURL)
}

func TestEndpointSchemeInferred(t *testing.T) {
	cfg := validStorageConfig()
	cfg.Endpoint = "storage.internal:9000"
	cfg.UseSSL = true

	s, err := NewS3ObjectStorage(cfg)
	require.NoError(t, err)
	assert.Equal(t, "https://storage.internal:9000/cutouts", s.publicBaseURL)
}

func TestGetBucket(t *testing.T) {
	s, err := NewS3ObjectStorage(validStorageConfig())
	require.NoError(t, err)
	assert.Equal(t, "cutouts", s.GetBucket())
}

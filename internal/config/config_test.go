package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stefando/streamupload/internal/errs"
)

func lookupFrom(env map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestLoad_S3Defaults(t *testing.T) {
	cfg, err := Load(lookupFrom(map[string]string{
		"S3_BUCKET_NAME":  "media",
		"S3_ENDPOINT_URL": "https://s3.example.com",
		"S3_ACCESS_KEY":   "ak",
		"S3_SECRET_KEY":   "sk",
	}))
	require.NoError(t, err)

	assert.Equal(t, ProviderS3, cfg.Provider)
	assert.Equal(t, "media", cfg.Bucket)
	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, "https://s3.example.com", cfg.PublicURLBase)
	assert.Equal(t, int64(MinPartSize), cfg.PartSize)
	assert.Equal(t, 1024*1024, cfg.ReadChunkSize)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
	assert.Equal(t, time.Hour, cfg.SignedURLTTL)
	assert.Equal(t, "streamupload/1.0", cfg.UserAgent)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_GCS(t *testing.T) {
	cfg, err := Load(lookupFrom(map[string]string{
		"STORAGE_PROVIDER":               "GCS",
		"GCS_BUCKET_NAME":                "assets",
		"GOOGLE_APPLICATION_CREDENTIALS": "/secrets/sa.json",
	}))
	require.NoError(t, err)

	assert.Equal(t, ProviderGCS, cfg.Provider)
	assert.Equal(t, "assets", cfg.Bucket)
	assert.Equal(t, DefaultGCSPublicURLBase, cfg.PublicURLBase)
	assert.Empty(t, cfg.AccessKey)
}

func TestLoad_GCSEndpoints(t *testing.T) {
	tests := []struct {
		name         string
		env          map[string]string
		wantEndpoint string
		wantJSON     string
	}{
		{
			name:         "interoperability endpoint is not the JSON endpoint",
			env:          map[string]string{"GCS_ENDPOINT_URL": "https://storage.googleapis.com"},
			wantEndpoint: "https://storage.googleapis.com",
		},
		{
			name:     "JSON endpoint override",
			env:      map[string]string{"GCS_JSON_ENDPOINT": "http://localhost:4443/storage/v1/"},
			wantJSON: "http://localhost:4443/storage/v1/",
		},
		{
			name: "both set",
			env: map[string]string{
				"GCS_ENDPOINT_URL":  "https://storage.googleapis.com",
				"GCS_JSON_ENDPOINT": "https://storage.example.com/storage/v1/",
			},
			wantEndpoint: "https://storage.googleapis.com",
			wantJSON:     "https://storage.example.com/storage/v1/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := map[string]string{
				"STORAGE_PROVIDER":               "gcs",
				"GCS_BUCKET_NAME":                "assets",
				"GOOGLE_APPLICATION_CREDENTIALS": "/secrets/sa.json",
			}
			for k, v := range tt.env {
				env[k] = v
			}

			cfg, err := Load(lookupFrom(env))
			require.NoError(t, err)
			assert.Equal(t, tt.wantEndpoint, cfg.Endpoint)
			assert.Equal(t, tt.wantJSON, cfg.GCSJSONEndpoint)
		})
	}
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := Load(lookupFrom(map[string]string{
		"STORAGE_PROVIDER":       "minio",
		"S3_BUCKET_NAME":         "media",
		"S3_ENDPOINT_URL":        "http://localhost:9000",
		"S3_ACCESS_KEY":          "ak",
		"S3_SECRET_KEY":          "sk",
		"S3_PUBLIC_URL_BASE":     "https://cdn.example.com",
		"UPLOAD_PART_SIZE":       "8388608",
		"UPLOAD_FETCH_TIMEOUT":   "45s",
		"UPLOAD_SIGNED_URL_TTL":  "15m",
		"UPLOAD_READ_CHUNK_SIZE": "65536",
		"LOG_LEVEL":              "DEBUG",
		"LOG_PRETTY":             "true",
	}))
	require.NoError(t, err)

	assert.Equal(t, ProviderMinio, cfg.Provider)
	assert.Equal(t, "https://cdn.example.com", cfg.PublicURLBase)
	assert.Equal(t, int64(8388608), cfg.PartSize)
	assert.Equal(t, 45*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 15*time.Minute, cfg.SignedURLTTL)
	assert.Equal(t, 65536, cfg.ReadChunkSize)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.LogPretty)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		errContains string
	}{
		{
			name:        "missing bucket",
			env:         map[string]string{"S3_ENDPOINT_URL": "https://e", "S3_ACCESS_KEY": "a", "S3_SECRET_KEY": "s"},
			errContains: "Bucket",
		},
		{
			name:        "missing credentials",
			env:         map[string]string{"S3_BUCKET_NAME": "b", "S3_ENDPOINT_URL": "https://e"},
			errContains: "AccessKey",
		},
		{
			name:        "gcs without credential file",
			env:         map[string]string{"STORAGE_PROVIDER": "gcs", "GCS_BUCKET_NAME": "b"},
			errContains: "CredentialsFile",
		},
		{
			name: "malformed gcs JSON endpoint",
			env: map[string]string{
				"STORAGE_PROVIDER": "gcs", "GCS_BUCKET_NAME": "b", "GOOGLE_APPLICATION_CREDENTIALS": "/sa.json",
				"GCS_JSON_ENDPOINT": "not a url",
			},
			errContains: "GCSJSONEndpoint",
		},
		{
			name:        "unknown provider",
			env:         map[string]string{"STORAGE_PROVIDER": "azure", "S3_BUCKET_NAME": "b"},
			errContains: "Provider",
		},
		{
			name: "part size below provider minimum",
			env: map[string]string{
				"S3_BUCKET_NAME": "b", "S3_ENDPOINT_URL": "https://e", "S3_ACCESS_KEY": "a", "S3_SECRET_KEY": "s",
				"UPLOAD_PART_SIZE": "1024",
			},
			errContains: "PartSize",
		},
		{
			name: "unparseable duration",
			env: map[string]string{
				"S3_BUCKET_NAME": "b", "S3_ENDPOINT_URL": "https://e", "S3_ACCESS_KEY": "a", "S3_SECRET_KEY": "s",
				"UPLOAD_FETCH_TIMEOUT": "soon",
			},
			errContains: "UPLOAD_FETCH_TIMEOUT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(lookupFrom(tt.env))
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.True(t, errs.IsConfiguration(err))
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

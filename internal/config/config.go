// Package config loads process configuration from the environment.
package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/mcuadros/go-defaults"

	"github.com/stefando/streamupload/internal/errs"
)

// Object store providers.
const (
	ProviderS3    = "s3"
	ProviderGCS   = "gcs"
	ProviderMinio = "minio"
)

// MinPartSize is the smallest non-final part accepted by S3-compatible multipart APIs.
const MinPartSize = 5 * 1024 * 1024

// DefaultGCSPublicURLBase is used for gcs public URLs when none is configured.
const DefaultGCSPublicURLBase = "https://storage.googleapis.com"

// Config holds every setting the service needs. It is built once at startup
// and passed to the components that need it.
type Config struct {
	Provider        string `default:"s3" validate:"oneof=s3 gcs minio"`
	Bucket          string `validate:"required"`
	Endpoint        string `validate:"required_unless=Provider gcs"`
	AccessKey       string `validate:"required_unless=Provider gcs"`
	SecretKey       string `validate:"required_unless=Provider gcs"`
	Region          string `default:"us-east-1"`
	RoleARN         string
	CredentialsFile string `validate:"required_if=Provider gcs"`
	// GCSJSONEndpoint overrides the JSON API base path of the native gcs
	// client, e.g. "http://localhost:4443/storage/v1/" for an emulator.
	// Endpoint stays the S3 interoperability URL.
	GCSJSONEndpoint string `validate:"omitempty,url"`
	PublicURLBase   string `validate:"omitempty,url"`

	PartSize      int64         `default:"5242880" validate:"gte=5242880"`
	ReadChunkSize int           `default:"1048576" validate:"gt=0"`
	FetchTimeout  time.Duration `default:"30s" validate:"gt=0"`
	UserAgent     string        `default:"streamupload/1.0"`
	SignedURLTTL  time.Duration `default:"1h" validate:"gt=0"`

	ListenAddr string `default:":8080"`
	APIKey     string
	LogLevel   string `default:"info" validate:"oneof=trace debug info warn error"`
	LogPretty  bool
}

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load reads the configuration through lookup, fills defaults and validates
// the result. Any failure is a configuration error.
func Load(lookup LookupFunc) (*Config, error) {
	env := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := lookup(k); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}

	cfg := &Config{Provider: strings.ToLower(env("STORAGE_PROVIDER"))}

	// gcs keeps its own variable names; the S3 names are the fallback so a
	// GCS interoperability deployment can use either set.
	if cfg.Provider == ProviderGCS {
		cfg.Bucket = env("GCS_BUCKET_NAME", "S3_BUCKET_NAME")
		cfg.Endpoint = env("GCS_ENDPOINT_URL")
		cfg.AccessKey = env("GCS_ACCESS_KEY")
		cfg.SecretKey = env("GCS_SECRET_KEY")
		cfg.Region = env("GCS_REGION")
		cfg.PublicURLBase = env("GCS_PUBLIC_URL_BASE")
	} else {
		cfg.Bucket = env("S3_BUCKET_NAME", "GCS_BUCKET_NAME")
		cfg.Endpoint = env("S3_ENDPOINT_URL", "GCS_ENDPOINT_URL")
		cfg.AccessKey = env("S3_ACCESS_KEY", "GCS_ACCESS_KEY")
		cfg.SecretKey = env("S3_SECRET_KEY", "GCS_SECRET_KEY")
		cfg.Region = env("S3_REGION", "GCS_REGION")
		cfg.PublicURLBase = env("S3_PUBLIC_URL_BASE", "GCS_PUBLIC_URL_BASE")
	}
	cfg.RoleARN = env("S3_ROLE_ARN")
	cfg.CredentialsFile = env("GOOGLE_APPLICATION_CREDENTIALS")
	cfg.GCSJSONEndpoint = env("GCS_JSON_ENDPOINT")
	cfg.UserAgent = env("UPLOAD_USER_AGENT")
	cfg.ListenAddr = env("LISTEN_ADDR")
	cfg.APIKey = env("API_KEY")
	cfg.LogLevel = strings.ToLower(env("LOG_LEVEL"))

	var err error
	if cfg.PartSize, err = parseInt(env("UPLOAD_PART_SIZE")); err != nil {
		return nil, errs.Configuration("load", errors.Wrap(err, "UPLOAD_PART_SIZE"))
	}
	chunk, err := parseInt(env("UPLOAD_READ_CHUNK_SIZE"))
	if err != nil {
		return nil, errs.Configuration("load", errors.Wrap(err, "UPLOAD_READ_CHUNK_SIZE"))
	}
	cfg.ReadChunkSize = int(chunk)
	if cfg.FetchTimeout, err = parseDuration(env("UPLOAD_FETCH_TIMEOUT")); err != nil {
		return nil, errs.Configuration("load", errors.Wrap(err, "UPLOAD_FETCH_TIMEOUT"))
	}
	if cfg.SignedURLTTL, err = parseDuration(env("UPLOAD_SIGNED_URL_TTL")); err != nil {
		return nil, errs.Configuration("load", errors.Wrap(err, "UPLOAD_SIGNED_URL_TTL"))
	}
	if v := env("LOG_PRETTY"); v != "" {
		if cfg.LogPretty, err = strconv.ParseBool(v); err != nil {
			return nil, errs.Configuration("load", errors.Wrap(err, "LOG_PRETTY"))
		}
	}

	defaults.SetDefaults(cfg)
	if cfg.PublicURLBase == "" {
		if cfg.Provider == ProviderGCS {
			cfg.PublicURLBase = DefaultGCSPublicURLBase
		} else {
			cfg.PublicURLBase = cfg.Endpoint
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks the configuration and reports every offending field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errs.Configuration("validate", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field()+" ("+fe.Tag()+")")
	}
	return errs.Configuration("validate",
		errors.Newf("invalid settings: %s", strings.Join(fields, ", ")))
}

func parseInt(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

func parseDuration(v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	return time.ParseDuration(v)
}

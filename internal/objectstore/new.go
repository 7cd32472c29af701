package objectstore

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/stefando/streamupload/internal/config"
	"github.com/stefando/streamupload/internal/errs"
)

// New builds the Store selected by cfg.Provider.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (Store, error) {
	switch cfg.Provider {
	case config.ProviderS3, "":
		client, err := NewS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewS3Store(client, s3.NewPresignClient(client), cfg.Bucket, log), nil

	case config.ProviderGCS:
		bucket, err := NewGCSBucket(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewGCSStore(bucket, cfg.Bucket, log), nil

	case config.ProviderMinio:
		core, err := NewMinioCore(cfg)
		if err != nil {
			return nil, err
		}
		return NewMinioStore(core, cfg.Bucket, log), nil

	default:
		return nil, errs.Configuration("objectstore", errors.Newf("unknown provider %q", cfg.Provider))
	}
}

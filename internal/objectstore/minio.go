package objectstore

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"github.com/stefando/streamupload/internal/config"
	"github.com/stefando/streamupload/internal/errs"
)

// MinioCore is the subset of minio.Core used by MinioStore.
type MinioCore interface {
	NewMultipartUpload(ctx context.Context, bucket, object string, opts minio.PutObjectOptions) (string, error)
	PutObjectPart(ctx context.Context, bucket, object, uploadID string, partID int, data io.Reader, size int64, opts minio.PutObjectPartOptions) (minio.ObjectPart, error)
	CompleteMultipartUpload(ctx context.Context, bucket, object, uploadID string, parts []minio.CompletePart, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	AbortMultipartUpload(ctx context.Context, bucket, object, uploadID string) error
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	CopyObject(ctx context.Context, sourceBucket, sourceObject, destBucket, destObject string, metadata map[string]string, srcOpts minio.CopySrcOptions, dstOpts minio.PutObjectOptions) (minio.ObjectInfo, error)
	PresignedGetObject(ctx context.Context, bucket, object string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

var _ MinioCore = (*minio.Core)(nil)

// MinioStore implements Store with the minio-go low level multipart API.
type MinioStore struct {
	core   MinioCore
	bucket string
	log    zerolog.Logger
}

// NewMinioStore creates a store for bucket using core.
func NewMinioStore(core MinioCore, bucket string, log zerolog.Logger) *MinioStore {
	return &MinioStore{
		core:   core,
		bucket: bucket,
		log:    log.With().Str("store", "minio").Str("bucket", bucket).Logger(),
	}
}

// NewMinioCore connects to the configured endpoint. The scheme of
// cfg.Endpoint selects TLS.
func NewMinioCore(cfg *config.Config) (*minio.Core, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Host == "" {
		return nil, errs.Configuration("minioClient", errors.Newf("invalid endpoint %q", cfg.Endpoint))
	}
	core, err := minio.NewCore(u.Host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: u.Scheme == "https",
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errs.Configuration("minioClient", errors.Wrap(err, "failed to create minio client"))
	}
	return core, nil
}

func (s *MinioStore) Name() string   { return "minio" }
func (s *MinioStore) Bucket() string { return s.bucket }

func (s *MinioStore) CreateMultipartUpload(ctx context.Context, key string, opts CreateOptions) (string, error) {
	id, err := s.core.NewMultipartUpload(ctx, s.bucket, key, minio.PutObjectOptions{ContentType: opts.ContentType})
	if err != nil {
		return "", errs.ObjectStore("newMultipartUpload", s.bucket, key, err)
	}
	return id, nil
}

func (s *MinioStore) UploadPart(ctx context.Context, key, uploadID string, number int32, data []byte) (string, error) {
	part, err := s.core.PutObjectPart(ctx, s.bucket, key, uploadID, int(number),
		bytes.NewReader(data), int64(len(data)), minio.PutObjectPartOptions{})
	if err != nil {
		return "", errs.ObjectStore("putObjectPart", s.bucket, key, errors.Wrapf(err, "part %d", number))
	}
	return part.ETag, nil
}

func (s *MinioStore) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []Part) error {
	completed := make([]minio.CompletePart, len(parts))
	for i, p := range parts {
		completed[i] = minio.CompletePart{PartNumber: int(p.Number), ETag: p.ETag}
	}
	if _, err := s.core.CompleteMultipartUpload(ctx, s.bucket, key, uploadID, completed, minio.PutObjectOptions{}); err != nil {
		return errs.ObjectStore("completeMultipartUpload", s.bucket, key, err)
	}
	s.log.Debug().Str("key", key).Int("parts", len(parts)).Msg("multipart upload completed")
	return nil
}

func (s *MinioStore) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	if err := s.core.AbortMultipartUpload(ctx, s.bucket, key, uploadID); err != nil {
		return errs.ObjectStore("abortMultipartUpload", s.bucket, key, err)
	}
	return nil
}

// SetPublicRead copies the object onto itself with a public-read canned ACL.
// minio-go has no object ACL call. An in-place copy is only accepted as a
// metadata replacement, so the object's own content type and user metadata
// are sent back with the REPLACE directive.
func (s *MinioStore) SetPublicRead(ctx context.Context, key string) error {
	info, err := s.core.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return errs.ObjectStore("statObject", s.bucket, key, err)
	}

	meta := map[string]string{
		"x-amz-acl":                "public-read",
		"x-amz-metadata-directive": "REPLACE",
	}
	if info.ContentType != "" {
		meta["Content-Type"] = info.ContentType
	}
	for k, v := range info.UserMetadata {
		meta["X-Amz-Meta-"+k] = v
	}

	_, err = s.core.CopyObject(ctx, s.bucket, key, s.bucket, key, meta,
		minio.CopySrcOptions{Bucket: s.bucket, Object: key},
		minio.PutObjectOptions{})
	if err != nil {
		return errs.ObjectStore("setPublicRead", s.bucket, key, err)
	}
	return nil
}

func (s *MinioStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.core.PresignedGetObject(ctx, s.bucket, key, ttl, nil)
	if err != nil {
		return "", errs.ObjectStore("presignedGetObject", s.bucket, key, err)
	}
	return u.String(), nil
}

package objectstore

import (
	"bytes"
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/stefando/streamupload/internal/errs"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	PutObjectAcl(ctx context.Context, params *s3.PutObjectAclInput, optFns ...func(*s3.Options)) (*s3.PutObjectAclOutput, error)
}

// Presigner is the subset of the S3 presign client used by S3Store.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

var (
	_ S3API     = (*s3.Client)(nil)
	_ Presigner = (*s3.PresignClient)(nil)
)

// Sentinel errors for S3 error codes callers may want to tell apart.
var (
	ErrNoSuchUpload = errors.New("s3: no such upload")
	ErrAccessDenied = errors.New("s3: access denied")
)

// S3Store implements Store against any S3-compatible endpoint.
type S3Store struct {
	client    S3API
	presigner Presigner
	bucket    string
	log       zerolog.Logger
}

// NewS3Store creates a store for bucket using the given clients.
func NewS3Store(client S3API, presigner Presigner, bucket string, log zerolog.Logger) *S3Store {
	return &S3Store{
		client:    client,
		presigner: presigner,
		bucket:    bucket,
		log:       log.With().Str("store", "s3").Str("bucket", bucket).Logger(),
	}
}

func (s *S3Store) Name() string   { return "s3" }
func (s *S3Store) Bucket() string { return s.bucket }

func (s *S3Store) CreateMultipartUpload(ctx context.Context, key string, opts CreateOptions) (string, error) {
	// No ACL here: GCS interoperability rejects canned ACLs on multipart
	// creation, so visibility is applied after completion.
	out, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: ptrOrNil(opts.ContentType),
	})
	if err != nil {
		return "", errs.ObjectStore("createMultipartUpload", s.bucket, key, mapS3Err(err))
	}
	uploadID := aws.ToString(out.UploadId)
	if uploadID == "" {
		return "", errs.ObjectStore("createMultipartUpload", s.bucket, key, errors.New("empty upload id"))
	}
	return uploadID, nil
}

func (s *S3Store) UploadPart(ctx context.Context, key, uploadID string, number int32, data []byte) (string, error) {
	out, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(number),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", errs.ObjectStore("uploadPart", s.bucket, key, errors.Wrapf(mapS3Err(err), "part %d", number))
	}
	return aws.ToString(out.ETag), nil
}

func (s *S3Store) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []Part) error {
	completed := make([]types.CompletedPart, len(parts))
	for i, p := range parts {
		completed[i] = types.CompletedPart{
			ETag:       aws.String(p.ETag),
			PartNumber: aws.Int32(p.Number),
		}
	}

	_, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	if err != nil {
		return errs.ObjectStore("completeMultipartUpload", s.bucket, key, mapS3Err(err))
	}
	s.log.Debug().Str("key", key).Int("parts", len(parts)).Msg("multipart upload completed")
	return nil
}

func (s *S3Store) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return errs.ObjectStore("abortMultipartUpload", s.bucket, key, mapS3Err(err))
	}
	return nil
}

func (s *S3Store) SetPublicRead(ctx context.Context, key string) error {
	_, err := s.client.PutObjectAcl(ctx, &s3.PutObjectAclInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		ACL:    types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return errs.ObjectStore("putObjectAcl", s.bucket, key, mapS3Err(err))
	}
	return nil
}

func (s *S3Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = ttl
	})
	if err != nil {
		return "", errs.ObjectStore("presignGetObject", s.bucket, key, mapS3Err(err))
	}
	return req.URL, nil
}

func mapS3Err(err error) error {
	var (
		noSuchUpload *types.NoSuchUpload
		apiErr       smithy.APIError
	)
	switch {
	case err == nil:
		return nil
	case errors.As(err, &noSuchUpload):
		return errors.Mark(err, ErrNoSuchUpload)
	case errors.As(err, &apiErr):
		switch apiErr.ErrorCode() {
		case "NoSuchUpload":
			return errors.Mark(err, ErrNoSuchUpload)
		case "AccessDenied", "Forbidden":
			return errors.Mark(err, ErrAccessDenied)
		}
		return err
	default:
		return err
	}
}

func ptrOrNil[T comparable](val T) *T {
	var zero T
	if val != zero {
		return &val
	}
	return nil
}

package objectstore

import (
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/cockroachdb/errors"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/stefando/streamupload/internal/config"
	"github.com/stefando/streamupload/internal/errs"
)

// GCSBucket is the subset of a GCS bucket handle used by GCSStore.
type GCSBucket interface {
	// NewWriter starts a resumable upload of key. Data is committed on Close;
	// cancelling ctx discards it.
	NewWriter(ctx context.Context, key, contentType string) io.WriteCloser
	SetPublicRead(ctx context.Context, key string) error
	SignedURL(key string, opts *storage.SignedURLOptions) (string, error)
}

// Errors returned for out-of-order session use.
var (
	ErrUnknownSession = errors.New("gcs: unknown upload session")
	ErrPartOrder      = errors.New("gcs: parts must be uploaded in order")
	ErrPartMismatch   = errors.New("gcs: completed parts do not match uploaded parts")
)

var _ ContentTypeHinter = (*GCSStore)(nil)

var crc32c = crc32.MakeTable(crc32.Castagnoli)

// GCSStore implements Store on the native Cloud Storage API. Each session is
// one resumable upload; parts are streamed into it in order.
type GCSStore struct {
	bucket     GCSBucket
	bucketName string
	log        zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*gcsSession
}

type gcsSession struct {
	key         string
	contentType string
	ctx         context.Context
	cancel      context.CancelFunc
	w           io.WriteCloser
	parts       []Part
}

// NewGCSStore creates a store writing to bucketName through bucket.
func NewGCSStore(bucket GCSBucket, bucketName string, log zerolog.Logger) *GCSStore {
	return &GCSStore{
		bucket:     bucket,
		bucketName: bucketName,
		log:        log.With().Str("store", "gcs").Str("bucket", bucketName).Logger(),
		sessions:   make(map[string]*gcsSession),
	}
}

// NewGCSBucket opens the configured bucket with the service account credential file.
func NewGCSBucket(ctx context.Context, cfg *config.Config) (GCSBucket, error) {
	if cfg.CredentialsFile == "" {
		return nil, errs.Configuration("gcsClient", errors.New("credentials file is required"))
	}
	client, err := storage.NewClient(ctx, gcsClientOptions(cfg)...)
	if err != nil {
		return nil, errs.Configuration("gcsClient", errors.Wrap(err, "failed to create storage client"))
	}
	return bucketHandle{h: client.Bucket(cfg.Bucket)}, nil
}

// gcsClientOptions builds the native client options. cfg.Endpoint is the S3
// interoperability URL and is never used as the JSON API base path.
func gcsClientOptions(cfg *config.Config) []option.ClientOption {
	opts := []option.ClientOption{option.WithCredentialsFile(cfg.CredentialsFile)}
	if cfg.GCSJSONEndpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.GCSJSONEndpoint))
	}
	return opts
}

func (s *GCSStore) Name() string   { return "gcs" }
func (s *GCSStore) Bucket() string { return s.bucketName }

func (s *GCSStore) CreateMultipartUpload(ctx context.Context, key string, opts CreateOptions) (string, error) {
	sctx, cancel := context.WithCancel(ctx)
	id := uuid.NewString()

	s.mu.Lock()
	s.sessions[id] = &gcsSession{
		key:         key,
		contentType: opts.ContentType,
		ctx:         sctx,
		cancel:      cancel,
	}
	s.mu.Unlock()

	s.log.Debug().Str("key", key).Str("session", id).Msg("resumable session registered")
	return id, nil
}

// HintContentType replaces a generic session content type with contentType
// until the first part is written.
func (s *GCSStore) HintContentType(key, uploadID, contentType string) error {
	sess, err := s.session(key, uploadID)
	if err != nil {
		return errs.ObjectStore("hintContentType", s.bucketName, key, err)
	}
	if sess.w != nil || contentType == "" {
		return nil
	}
	if sess.contentType == "" || sess.contentType == DefaultContentType {
		sess.contentType = contentType
	}
	return nil
}

func (s *GCSStore) UploadPart(ctx context.Context, key, uploadID string, number int32, data []byte) (string, error) {
	sess, err := s.session(key, uploadID)
	if err != nil {
		return "", errs.ObjectStore("uploadPart", s.bucketName, key, err)
	}
	if want := int32(len(sess.parts)) + 1; number != want {
		return "", errs.ObjectStore("uploadPart", s.bucketName, key,
			errors.Wrapf(ErrPartOrder, "got part %d, want %d", number, want))
	}
	if err := ctx.Err(); err != nil {
		return "", errs.ObjectStore("uploadPart", s.bucketName, key, err)
	}

	if sess.w == nil {
		ct := sess.contentType
		if ct == "" || ct == DefaultContentType {
			ct = mimetype.Detect(data).String()
		}
		sess.w = s.bucket.NewWriter(sess.ctx, key, ct)
	}

	if _, err := sess.w.Write(data); err != nil {
		return "", errs.ObjectStore("uploadPart", s.bucketName, key, errors.Wrapf(err, "part %d", number))
	}

	etag := fmt.Sprintf("%08x", crc32.Checksum(data, crc32c))
	sess.parts = append(sess.parts, Part{Number: number, ETag: etag, Size: int64(len(data))})
	return etag, nil
}

func (s *GCSStore) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []Part) error {
	sess, err := s.session(key, uploadID)
	if err != nil {
		return errs.ObjectStore("completeMultipartUpload", s.bucketName, key, err)
	}
	if len(parts) == 0 || len(parts) != len(sess.parts) {
		return errs.ObjectStore("completeMultipartUpload", s.bucketName, key,
			errors.Wrapf(ErrPartMismatch, "got %d parts, uploaded %d", len(parts), len(sess.parts)))
	}
	for i, p := range parts {
		if p.Number != sess.parts[i].Number || p.ETag != sess.parts[i].ETag {
			return errs.ObjectStore("completeMultipartUpload", s.bucketName, key,
				errors.Wrapf(ErrPartMismatch, "part %d", p.Number))
		}
	}

	if err := sess.w.Close(); err != nil {
		return errs.ObjectStore("completeMultipartUpload", s.bucketName, key, err)
	}
	s.forget(uploadID)
	return nil
}

func (s *GCSStore) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	sess, err := s.session(key, uploadID)
	if err != nil {
		return errs.ObjectStore("abortMultipartUpload", s.bucketName, key, err)
	}
	sess.cancel()
	if sess.w != nil {
		// Close after cancel reports the cancellation; nothing is committed.
		_ = sess.w.Close()
	}
	s.forget(uploadID)
	return nil
}

func (s *GCSStore) SetPublicRead(ctx context.Context, key string) error {
	if err := s.bucket.SetPublicRead(ctx, key); err != nil {
		return errs.ObjectStore("setPublicRead", s.bucketName, key, err)
	}
	return nil
}

func (s *GCSStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.bucket.SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", errs.ObjectStore("signedURL", s.bucketName, key, err)
	}
	return u, nil
}

func (s *GCSStore) session(key, uploadID string) (*gcsSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[uploadID]
	if !ok || sess.key != key {
		return nil, errors.Wrapf(ErrUnknownSession, "upload %s", uploadID)
	}
	return sess, nil
}

func (s *GCSStore) forget(uploadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[uploadID]; ok {
		sess.cancel()
		delete(s.sessions, uploadID)
	}
}

// bucketHandle adapts *storage.BucketHandle to GCSBucket.
type bucketHandle struct {
	h *storage.BucketHandle
}

func (b bucketHandle) NewWriter(ctx context.Context, key, contentType string) io.WriteCloser {
	w := b.h.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	return w
}

func (b bucketHandle) SetPublicRead(ctx context.Context, key string) error {
	return b.h.Object(key).ACL().Set(ctx, storage.AllUsers, storage.RoleReader)
}

func (b bucketHandle) SignedURL(key string, opts *storage.SignedURLOptions) (string, error) {
	return b.h.SignedURL(key, opts)
}

// Package upload streams remote files into object storage.
package upload

import (
	"context"
	"strings"
	"time"

	"github.com/aws/smithy-go/encoding/httpbinding"
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/mcuadros/go-defaults"
	"github.com/rs/zerolog"

	"github.com/stefando/streamupload/internal/config"
	"github.com/stefando/streamupload/internal/errs"
	"github.com/stefando/streamupload/internal/fetch"
	"github.com/stefando/streamupload/internal/objectstore"
)

var (
	// ErrInvalidRequest marks requests rejected before any work is done.
	ErrInvalidRequest = errors.New("invalid upload request")
	// ErrEmptySource is reported when the source has no content.
	ErrEmptySource = errors.New("source is empty")
)

// Fetcher opens a source URL as a stream.
type Fetcher interface {
	Open(ctx context.Context, rawURL string) (*fetch.Response, error)
}

var _ Fetcher = (*fetch.Client)(nil)

// Request describes one upload.
type Request struct {
	SourceURL string `json:"file_url" validate:"required,http_url"`
	Filename  string `json:"filename,omitempty" validate:"omitempty,max=1024"`
	Public    bool   `json:"public"`
}

// Result describes a committed object.
type Result struct {
	FileURL         string `json:"file_url"`
	Filename        string `json:"filename"`
	Bucket          string `json:"bucket"`
	Public          bool   `json:"public"`
	StorageProvider string `json:"storage_provider"`
}

// Options tune the upload pipeline. Zero fields take the defaults below.
type Options struct {
	PartSize      int64         `default:"5242880"`
	ReadChunkSize int           `default:"1048576"`
	SignedURLTTL  time.Duration `default:"1h"`
	AbortTimeout  time.Duration `default:"30s"`
	PublicURLBase string
}

// OptionsFromConfig extracts the upload options from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		PartSize:      cfg.PartSize,
		ReadChunkSize: cfg.ReadChunkSize,
		SignedURLTTL:  cfg.SignedURLTTL,
		PublicURLBase: cfg.PublicURLBase,
	}
}

// Service streams sources into a single object store.
type Service struct {
	store   objectstore.Store
	fetcher Fetcher
	opts    Options
	log     zerolog.Logger
}

// NewService creates an upload service writing to store.
func NewService(store objectstore.Store, fetcher Fetcher, opts Options, log zerolog.Logger) *Service {
	defaults.SetDefaults(&opts)
	return &Service{
		store:   store,
		fetcher: fetcher,
		opts:    opts,
		log:     log.With().Str("component", "upload").Logger(),
	}
}

// NewFromConfig builds the store and fetch client described by cfg and
// returns a service using them.
func NewFromConfig(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Service, error) {
	store, err := objectstore.New(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return NewService(store, fetch.New(cfg, log), OptionsFromConfig(cfg), log), nil
}

var validate = validator.New()

// Upload streams req.SourceURL into the store part by part and returns where
// the object can be read. Any failure after the session was opened aborts it.
func (s *Service) Upload(ctx context.Context, req Request) (*Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if err := s.checkConfig(req); err != nil {
		return nil, err
	}

	bucket := s.store.Bucket()
	key := ResolveFilename(req.SourceURL, req.Filename)
	log := s.log.With().Str("bucket", bucket).Str("key", key).Logger()

	sess, err := openSession(ctx, s.store, key, objectstore.ContentTypeFor(key), log)
	if err != nil {
		return nil, err
	}
	defer sess.release(ctx, s.opts.AbortTimeout)

	if err := s.transfer(ctx, sess, req.SourceURL); err != nil {
		return nil, err
	}
	if err := sess.complete(ctx); err != nil {
		return nil, err
	}

	result := &Result{
		Filename:        key,
		Bucket:          bucket,
		StorageProvider: s.store.Name(),
	}

	if req.Public {
		if err := s.store.SetPublicRead(ctx, key); err != nil {
			log.Error().Err(err).Msg("failed to make object public, falling back to signed URL")
		} else {
			result.FileURL = publicURL(s.opts.PublicURLBase, bucket, key)
			result.Public = true
			return result, nil
		}
	}

	signed, err := s.store.SignedURL(ctx, key, s.opts.SignedURLTTL)
	if err != nil {
		return nil, asObjectStore(err, "signedURL", bucket, key)
	}
	result.FileURL = signed
	return result, nil
}

// transfer copies the source into sess one PartSize block at a time.
func (s *Service) transfer(ctx context.Context, sess *session, sourceURL string) error {
	resp, err := s.fetcher.Open(ctx, sourceURL)
	if err != nil {
		return asFetch(err, "get", sourceURL)
	}
	defer resp.Body.Close()
	sess.hintContentType(resp.ContentType)

	acc := newAccumulator(int(s.opts.PartSize))
	for {
		eof, err := acc.fill(resp.Body, s.opts.ReadChunkSize)
		if err != nil {
			return asFetch(err, "read", sourceURL)
		}
		if acc.len() > 0 && (acc.full() || eof) {
			if err := sess.upload(ctx, acc.bytes()); err != nil {
				return err
			}
			acc.reset()
		}
		if eof {
			break
		}
	}

	if len(sess.parts) == 0 {
		return errs.Fetch("read", sourceURL, 0, ErrEmptySource)
	}
	return nil
}

func (s *Service) checkConfig(req Request) error {
	switch {
	case s.store == nil:
		return errs.Configuration("upload", errors.New("object store is not configured"))
	case s.store.Bucket() == "":
		return errs.Configuration("upload", errors.New("bucket name is not configured"))
	case s.fetcher == nil:
		return errs.Configuration("upload", errors.New("fetch client is not configured"))
	case s.opts.PartSize < config.MinPartSize:
		return errs.Configuration("upload", errors.Newf("part size %d is below the %d byte minimum", s.opts.PartSize, config.MinPartSize))
	case s.opts.ReadChunkSize <= 0:
		return errs.Configuration("upload", errors.New("read chunk size must be positive"))
	case req.Public && s.opts.PublicURLBase == "":
		return errs.Configuration("upload", errors.New("public URL base is not configured"))
	}
	return nil
}

func validateRequest(req Request) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Mark(err, ErrInvalidRequest)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field()+" ("+fe.Tag()+")")
	}
	return errors.Mark(errors.Newf("invalid request: %s", strings.Join(fields, ", ")), ErrInvalidRequest)
}

// publicURL joins base, bucket and the key. Every key byte outside the
// unreserved set is percent-encoded except the "/" separators.
func publicURL(base, bucket, key string) string {
	return strings.TrimRight(base, "/") + "/" + bucket + "/" + httpbinding.EscapePath(key, false)
}

func asFetch(err error, op, sourceURL string) error {
	if errs.KindOf(err) != 0 {
		return err
	}
	return errs.Fetch(op, sourceURL, 0, err)
}

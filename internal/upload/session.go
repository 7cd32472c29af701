package upload

import (
	"context"
	"mime"
	"time"

	"github.com/rs/zerolog"

	"github.com/stefando/streamupload/internal/errs"
	"github.com/stefando/streamupload/internal/objectstore"
)

// session tracks one open multipart upload. It ends either committed by
// complete or discarded by release.
type session struct {
	store       objectstore.Store
	key         string
	uploadID    string
	contentType string
	parts       []objectstore.Part
	committed   bool
	log         zerolog.Logger
}

func openSession(ctx context.Context, store objectstore.Store, key, contentType string, log zerolog.Logger) (*session, error) {
	id, err := store.CreateMultipartUpload(ctx, key, objectstore.CreateOptions{ContentType: contentType})
	if err != nil {
		return nil, asObjectStore(err, "createMultipartUpload", store.Bucket(), key)
	}
	log = log.With().Str("upload_id", id).Logger()
	log.Info().Str("content_type", contentType).Msg("multipart upload opened")
	return &session{store: store, key: key, uploadID: id, contentType: contentType, log: log}, nil
}

// hintContentType passes the source's Content-Type header to stores that
// can still apply it. It only replaces the generic default type.
func (s *session) hintContentType(header string) {
	hinter, ok := s.store.(objectstore.ContentTypeHinter)
	if !ok || header == "" || s.contentType != objectstore.DefaultContentType {
		return
	}
	mediaType, params, err := mime.ParseMediaType(header)
	if err != nil || mediaType == objectstore.DefaultContentType {
		return
	}
	ct := mime.FormatMediaType(mediaType, params)
	if ct == "" {
		return
	}
	if err := hinter.HintContentType(s.key, s.uploadID, ct); err != nil {
		s.log.Warn().Err(err).Str("content_type", ct).Msg("failed to apply source content type")
		return
	}
	s.contentType = ct
	s.log.Debug().Str("content_type", ct).Msg("using source content type")
}

// upload stores data as the next part.
func (s *session) upload(ctx context.Context, data []byte) error {
	number := int32(len(s.parts)) + 1
	etag, err := s.store.UploadPart(ctx, s.key, s.uploadID, number, data)
	if err != nil {
		return asObjectStore(err, "uploadPart", s.store.Bucket(), s.key)
	}
	s.parts = append(s.parts, objectstore.Part{Number: number, ETag: etag, Size: int64(len(data))})
	s.log.Debug().Int32("part", number).Int("size", len(data)).Msg("part uploaded")
	return nil
}

func (s *session) complete(ctx context.Context) error {
	if err := s.store.CompleteMultipartUpload(ctx, s.key, s.uploadID, s.parts); err != nil {
		return asObjectStore(err, "completeMultipartUpload", s.store.Bucket(), s.key)
	}
	s.committed = true
	s.log.Info().Int("parts", len(s.parts)).Int64("size", s.size()).Msg("multipart upload completed")
	return nil
}

// release aborts the upload unless it was committed. The abort outlives
// cancellation of ctx and its failure is only logged.
func (s *session) release(ctx context.Context, timeout time.Duration) {
	if s.committed {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := s.store.AbortMultipartUpload(ctx, s.key, s.uploadID); err != nil {
		s.log.Error().
			Err(errs.Abort(s.store.Bucket(), s.key, s.uploadID, err)).
			Msg("failed to abort multipart upload")
		return
	}
	s.log.Info().Int("parts", len(s.parts)).Msg("multipart upload aborted")
}

func (s *session) size() int64 {
	var n int64
	for _, p := range s.parts {
		n += p.Size
	}
	return n
}

// asObjectStore classifies err as an object store failure unless it already
// carries a kind.
func asObjectStore(err error, op, bucket, key string) error {
	if errs.KindOf(err) != 0 {
		return err
	}
	return errs.ObjectStore(op, bucket, key, err)
}

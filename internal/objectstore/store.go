// Package objectstore defines the multipart object store used by streaming
// uploads and provides its s3, gcs and minio implementations.
package objectstore

import (
	"context"
	"mime"
	"path"
	"time"
)

// DefaultContentType is used when nothing better is known about an object.
const DefaultContentType = "application/octet-stream"

// Part is one committed piece of a multipart upload.
type Part struct {
	// Number is the 1-based part sequence number.
	Number int32
	// ETag is the provider-assigned integrity tag, passed back verbatim on completion.
	ETag string
	// Size is the part length in bytes.
	Size int64
}

// CreateOptions carries object attributes fixed when the session is opened.
type CreateOptions struct {
	ContentType string
}

// Store is a bucket-bound object store supporting part-sequenced uploads.
//
// A session is opened with CreateMultipartUpload and ends with exactly one of
// CompleteMultipartUpload or AbortMultipartUpload. Parts must be uploaded in
// ascending order starting at 1. UploadPart must not retain data after it
// returns.
type Store interface {
	// Name identifies the backend ("s3", "gcs", "minio").
	Name() string

	// Bucket returns the bucket every operation targets.
	Bucket() string

	// CreateMultipartUpload opens a session for key and returns its id.
	CreateMultipartUpload(ctx context.Context, key string, opts CreateOptions) (string, error)

	// UploadPart stores data as part number of the session and returns its integrity tag.
	UploadPart(ctx context.Context, key, uploadID string, number int32, data []byte) (string, error)

	// CompleteMultipartUpload commits the session from parts in ascending order.
	CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []Part) error

	// AbortMultipartUpload discards the session and any parts uploaded to it.
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error

	// SetPublicRead grants anonymous read access to key.
	SetPublicRead(ctx context.Context, key string) error

	// SignedURL returns a GET URL for key valid for ttl.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// ContentTypeHinter is implemented by stores that fix the object's content
// type when the first part arrives rather than when the session opens.
type ContentTypeHinter interface {
	// HintContentType offers contentType for the session. It has no effect
	// once a part was uploaded or when the session already has a specific type.
	HintContentType(key, uploadID, contentType string) error
}

// ContentTypeFor guesses a content type from the key's extension.
func ContentTypeFor(key string) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return DefaultContentType
}

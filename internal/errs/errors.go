// Package errs provides the error types returned by streaming uploads.
//
// Every failure is an *Error carrying the Kind of failure plus whatever
// context was available (operation, bucket, key, source URL). Kinds can be
// matched with errors.Is against the sentinel values below.
package errs

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Kind classifies a failure.
type Kind int

const (
	// KindConfiguration means a required setting is missing or invalid.
	KindConfiguration Kind = iota + 1
	// KindFetch means the source could not be retrieved.
	KindFetch
	// KindObjectStore means an object store call failed.
	KindObjectStore
	// KindAbort means cleanup of a failed session failed. It is logged, never returned
	// in place of the failure that triggered the cleanup.
	KindAbort
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindFetch:
		return "fetch"
	case KindObjectStore:
		return "objectstore"
	case KindAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// Sentinel errors, one per Kind. Use with errors.Is.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrFetch         = errors.New("fetch error")
	ErrObjectStore   = errors.New("object store error")
	ErrAbort         = errors.New("abort failure")
)

func (k Kind) sentinel() error {
	switch k {
	case KindConfiguration:
		return ErrConfiguration
	case KindFetch:
		return ErrFetch
	case KindObjectStore:
		return ErrObjectStore
	case KindAbort:
		return ErrAbort
	default:
		return nil
	}
}

// Error describes a failed step of an upload.
type Error struct {
	// Kind is the failure class.
	Kind Kind

	// Op is the operation that failed (e.g. "uploadPart", "fetch").
	Op string

	// Bucket is the destination bucket (if applicable).
	Bucket string

	// Key is the destination object key (if applicable).
	Key string

	// URL is the source URL (fetch errors only).
	URL string

	// StatusCode is the HTTP status returned by the source (fetch errors only).
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Op != "" {
		b.WriteString(".")
		b.WriteString(e.Op)
	}
	switch {
	case e.Bucket != "" && e.Key != "":
		fmt.Fprintf(&b, " %s/%s", e.Bucket, e.Key)
	case e.Bucket != "":
		fmt.Fprintf(&b, " bucket %s", e.Bucket)
	case e.Key != "":
		fmt.Fprintf(&b, " object %s", e.Key)
	}
	if e.URL != "" {
		fmt.Fprintf(&b, " %s", e.URL)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's Kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// WithBucket adds bucket context.
func (e *Error) WithBucket(bucket string) *Error {
	e.Bucket = bucket
	return e
}

// WithKey adds object key context.
func (e *Error) WithKey(key string) *Error {
	e.Key = key
	return e
}

// Configuration returns a configuration error.
func Configuration(op string, err error) *Error {
	return &Error{Kind: KindConfiguration, Op: op, Err: err}
}

// Fetch returns a source retrieval error.
func Fetch(op, url string, status int, err error) *Error {
	return &Error{Kind: KindFetch, Op: op, URL: url, StatusCode: status, Err: err}
}

// ObjectStore returns an object store error with bucket and key context.
func ObjectStore(op, bucket, key string, err error) *Error {
	return &Error{Kind: KindObjectStore, Op: op, Bucket: bucket, Key: key, Err: err}
}

// Abort returns an abort failure for the given session.
func Abort(bucket, key, uploadID string, err error) *Error {
	return &Error{Kind: KindAbort, Op: "abortMultipartUpload", Bucket: bucket, Key: key,
		Err: errors.Wrapf(err, "upload %s", uploadID)}
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsFetch reports whether err is a source retrieval error.
func IsFetch(err error) bool {
	return errors.Is(err, ErrFetch)
}

// IsObjectStore reports whether err is an object store error.
func IsObjectStore(err error) bool {
	return errors.Is(err, ErrObjectStore)
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

package testutil

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/stefando/streamupload/internal/objectstore"
)

var (
	_ objectstore.Store             = (*MemoryStore)(nil)
	_ objectstore.ContentTypeHinter = (*MemoryStore)(nil)
)

// CreateCall records a CreateMultipartUpload call.
type CreateCall struct {
	Key         string
	UploadID    string
	ContentType string
}

// PartCall records an UploadPart call. Data is a copy of the part bytes.
type PartCall struct {
	Key      string
	UploadID string
	Number   int32
	Data     []byte
}

// CompleteCall records a CompleteMultipartUpload call.
type CompleteCall struct {
	Key      string
	UploadID string
	Parts    []objectstore.Part
}

// AbortCall records an AbortMultipartUpload call.
type AbortCall struct {
	Key      string
	UploadID string
}

// SignCall records a SignedURL call.
type SignCall struct {
	Key string
	TTL time.Duration
}

// MemoryStore is an in-memory objectstore.Store that records every call.
// Set the error fields to inject failures.
type MemoryStore struct {
	BucketName   string
	ProviderName string

	CreateErr   error
	FailPart    int32 // UploadPart returns PartErr for this part number
	PartErr     error
	CompleteErr error
	AbortErr    error
	ACLErr      error
	SignErr     error

	mu        sync.Mutex
	nextID    int
	Created   []CreateCall
	Hinted    []CreateCall
	Uploaded  []PartCall
	Completed []CompleteCall
	Aborted   []AbortCall
	Public    []string
	Signed    []SignCall
	Objects   map[string][]byte
}

// NewMemoryStore returns an empty store for bucket.
func NewMemoryStore(bucket string) *MemoryStore {
	return &MemoryStore{
		BucketName:   bucket,
		ProviderName: "memory",
		Objects:      make(map[string][]byte),
	}
}

func (m *MemoryStore) Name() string   { return m.ProviderName }
func (m *MemoryStore) Bucket() string { return m.BucketName }

func (m *MemoryStore) CreateMultipartUpload(_ context.Context, key string, opts objectstore.CreateOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return "", m.CreateErr
	}
	m.nextID++
	id := fmt.Sprintf("upload-%d", m.nextID)
	m.Created = append(m.Created, CreateCall{Key: key, UploadID: id, ContentType: opts.ContentType})
	return id, nil
}

func (m *MemoryStore) HintContentType(key, uploadID, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Hinted = append(m.Hinted, CreateCall{Key: key, UploadID: uploadID, ContentType: contentType})
	return nil
}

func (m *MemoryStore) UploadPart(_ context.Context, key, uploadID string, number int32, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PartErr != nil && number == m.FailPart {
		return "", m.PartErr
	}
	m.Uploaded = append(m.Uploaded, PartCall{
		Key:      key,
		UploadID: uploadID,
		Number:   number,
		Data:     append([]byte(nil), data...),
	})
	sum := md5.Sum(data)
	return `"` + hex.EncodeToString(sum[:]) + `"`, nil
}

func (m *MemoryStore) CompleteMultipartUpload(_ context.Context, key, uploadID string, parts []objectstore.Part) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Completed = append(m.Completed, CompleteCall{
		Key:      key,
		UploadID: uploadID,
		Parts:    append([]objectstore.Part(nil), parts...),
	})
	if m.CompleteErr != nil {
		return m.CompleteErr
	}

	var obj []byte
	for _, p := range parts {
		found := false
		for _, u := range m.Uploaded {
			if u.UploadID == uploadID && u.Number == p.Number {
				obj = append(obj, u.Data...)
				found = true
				break
			}
		}
		if !found {
			return errors.Newf("part %d was never uploaded", p.Number)
		}
	}
	m.Objects[key] = obj
	return nil
}

func (m *MemoryStore) AbortMultipartUpload(_ context.Context, key, uploadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Aborted = append(m.Aborted, AbortCall{Key: key, UploadID: uploadID})
	return m.AbortErr
}

func (m *MemoryStore) SetPublicRead(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ACLErr != nil {
		return m.ACLErr
	}
	m.Public = append(m.Public, key)
	return nil
}

func (m *MemoryStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Signed = append(m.Signed, SignCall{Key: key, TTL: ttl})
	if m.SignErr != nil {
		return "", m.SignErr
	}
	return fmt.Sprintf("https://signed.example/%s/%s?expires=%d", m.BucketName, key, int(ttl.Seconds())), nil
}

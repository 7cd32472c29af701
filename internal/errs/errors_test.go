package errs

import (
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "bucket and key",
			err:  ObjectStore("uploadPart", "media", "a/b.mp4", cause),
			want: "objectstore.uploadPart media/a/b.mp4: boom",
		},
		{
			name: "bucket only",
			err:  ObjectStore("createMultipartUpload", "media", "", cause),
			want: "objectstore.createMultipartUpload bucket media: boom",
		},
		{
			name: "key only",
			err:  ObjectStore("signedURL", "", "a.txt", cause),
			want: "objectstore.signedURL object a.txt: boom",
		},
		{
			name: "fetch with status",
			err:  Fetch("get", "https://example.com/x", 404, cause),
			want: "fetch.get https://example.com/x (status 404): boom",
		},
		{
			name: "configuration",
			err:  Configuration("load", cause),
			want: "configuration.load: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_Is(t *testing.T) {
	cause := errors.New("boom")

	fetchErr := fmt.Errorf("wrapped: %w", Fetch("get", "u", 500, cause))
	assert.True(t, IsFetch(fetchErr))
	assert.False(t, IsObjectStore(fetchErr))
	assert.False(t, IsConfiguration(fetchErr))
	assert.ErrorIs(t, fetchErr, cause)

	storeErr := ObjectStore("completeMultipartUpload", "b", "k", cause)
	assert.True(t, IsObjectStore(storeErr))
	assert.Equal(t, KindObjectStore, KindOf(storeErr))

	cfgErr := Configuration("load", cause)
	assert.True(t, IsConfiguration(cfgErr))

	abortErr := Abort("b", "k", "upload-1", cause)
	assert.ErrorIs(t, abortErr, ErrAbort)
	assert.Contains(t, abortErr.Error(), "upload upload-1")

	assert.Equal(t, Kind(0), KindOf(cause))
}

func TestError_With(t *testing.T) {
	err := ObjectStore("uploadPart", "", "", errors.New("x")).WithBucket("b").WithKey("k")
	assert.Equal(t, "b", err.Bucket)
	assert.Equal(t, "k", err.Key)
}

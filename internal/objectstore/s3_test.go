package objectstore_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awstypes "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stefando/streamupload/internal/errs"
	"github.com/stefando/streamupload/internal/objectstore"
	"github.com/stefando/streamupload/internal/testutil"
)

func newS3Store(client *testutil.MockS3Client, presigner *testutil.MockPresigner) *objectstore.S3Store {
	if presigner == nil {
		presigner = &testutil.MockPresigner{}
	}
	return objectstore.NewS3Store(client, presigner, "media", zerolog.Nop())
}

func TestS3Store_CreateMultipartUpload(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		mockFunc    func(*testutil.MockS3Client)
		wantID      string
		wantErr     error
	}{
		{
			name:        "returns upload id",
			contentType: "video/mp4",
			mockFunc: func(m *testutil.MockS3Client) {
				m.CreateMultipartUploadFunc = func(ctx context.Context, input *s3.CreateMultipartUploadInput, opts ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
					assert.Equal(t, "media", aws.ToString(input.Bucket))
					assert.Equal(t, "clip.mp4", aws.ToString(input.Key))
					assert.Equal(t, "video/mp4", aws.ToString(input.ContentType))
					assert.Empty(t, input.ACL)
					return &s3.CreateMultipartUploadOutput{UploadId: aws.String("abc")}, nil
				}
			},
			wantID: "abc",
		},
		{
			name: "omits empty content type",
			mockFunc: func(m *testutil.MockS3Client) {
				m.CreateMultipartUploadFunc = func(ctx context.Context, input *s3.CreateMultipartUploadInput, opts ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
					assert.Nil(t, input.ContentType)
					return &s3.CreateMultipartUploadOutput{UploadId: aws.String("abc")}, nil
				}
			},
			wantID: "abc",
		},
		{
			name:    "empty upload id",
			wantErr: errs.ErrObjectStore,
		},
		{
			name: "access denied",
			mockFunc: func(m *testutil.MockS3Client) {
				m.CreateMultipartUploadFunc = func(ctx context.Context, input *s3.CreateMultipartUploadInput, opts ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
					return nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "nope"}
				}
			},
			wantErr: objectstore.ErrAccessDenied,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &testutil.MockS3Client{}
			if tt.mockFunc != nil {
				tt.mockFunc(client)
			}
			store := newS3Store(client, nil)

			id, err := store.CreateMultipartUpload(context.Background(), "clip.mp4", objectstore.CreateOptions{ContentType: tt.contentType})
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
				assert.True(t, errs.IsObjectStore(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestS3Store_UploadPart(t *testing.T) {
	client := &testutil.MockS3Client{
		UploadPartFunc: func(ctx context.Context, input *s3.UploadPartInput, opts ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
			assert.Equal(t, "media", aws.ToString(input.Bucket))
			assert.Equal(t, "clip.mp4", aws.ToString(input.Key))
			assert.Equal(t, "abc", aws.ToString(input.UploadId))
			assert.Equal(t, int32(2), aws.ToInt32(input.PartNumber))
			assert.Equal(t, int64(5), aws.ToInt64(input.ContentLength))

			body, err := io.ReadAll(input.Body)
			require.NoError(t, err)
			assert.Equal(t, "hello", string(body))
			return &s3.UploadPartOutput{ETag: aws.String(`"etag-2"`)}, nil
		},
	}

	etag, err := newS3Store(client, nil).UploadPart(context.Background(), "clip.mp4", "abc", 2, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, `"etag-2"`, etag)
}

func TestS3Store_UploadPart_NoSuchUpload(t *testing.T) {
	client := &testutil.MockS3Client{
		UploadPartFunc: func(ctx context.Context, input *s3.UploadPartInput, opts ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
			return nil, &awstypes.NoSuchUpload{}
		},
	}

	_, err := newS3Store(client, nil).UploadPart(context.Background(), "clip.mp4", "abc", 3, []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, objectstore.ErrNoSuchUpload))
	assert.Contains(t, err.Error(), "objectstore.uploadPart media/clip.mp4")
	assert.Contains(t, err.Error(), "part 3")
}

func TestS3Store_CompleteMultipartUpload(t *testing.T) {
	var got []awstypes.CompletedPart
	client := &testutil.MockS3Client{
		CompleteMultipartUploadFunc: func(ctx context.Context, input *s3.CompleteMultipartUploadInput, opts ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
			assert.Equal(t, "abc", aws.ToString(input.UploadId))
			got = input.MultipartUpload.Parts
			return &s3.CompleteMultipartUploadOutput{}, nil
		},
	}

	parts := []objectstore.Part{
		{Number: 1, ETag: `"a"`, Size: 5},
		{Number: 2, ETag: `"b"`, Size: 2},
	}
	require.NoError(t, newS3Store(client, nil).CompleteMultipartUpload(context.Background(), "clip.mp4", "abc", parts))

	require.Len(t, got, 2)
	assert.Equal(t, int32(1), aws.ToInt32(got[0].PartNumber))
	assert.Equal(t, `"a"`, aws.ToString(got[0].ETag))
	assert.Equal(t, int32(2), aws.ToInt32(got[1].PartNumber))
	assert.Equal(t, `"b"`, aws.ToString(got[1].ETag))
}

func TestS3Store_AbortMultipartUpload(t *testing.T) {
	called := false
	client := &testutil.MockS3Client{
		AbortMultipartUploadFunc: func(ctx context.Context, input *s3.AbortMultipartUploadInput, opts ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
			called = true
			assert.Equal(t, "abc", aws.ToString(input.UploadId))
			assert.Equal(t, "clip.mp4", aws.ToString(input.Key))
			return &s3.AbortMultipartUploadOutput{}, nil
		},
	}

	require.NoError(t, newS3Store(client, nil).AbortMultipartUpload(context.Background(), "clip.mp4", "abc"))
	assert.True(t, called)
}

func TestS3Store_SetPublicRead(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{name: "grants public read"},
		{name: "forbidden", err: &smithy.GenericAPIError{Code: "Forbidden"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &testutil.MockS3Client{
				PutObjectAclFunc: func(ctx context.Context, input *s3.PutObjectAclInput, opts ...func(*s3.Options)) (*s3.PutObjectAclOutput, error) {
					assert.Equal(t, awstypes.ObjectCannedACLPublicRead, input.ACL)
					assert.Equal(t, "clip.mp4", aws.ToString(input.Key))
					return &s3.PutObjectAclOutput{}, tt.err
				},
			}

			err := newS3Store(client, nil).SetPublicRead(context.Background(), "clip.mp4")
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, objectstore.ErrAccessDenied))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestS3Store_SignedURL(t *testing.T) {
	presigner := &testutil.MockPresigner{
		PresignGetObjectFunc: func(ctx context.Context, input *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
			var opts s3.PresignOptions
			for _, fn := range optFns {
				fn(&opts)
			}
			assert.Equal(t, time.Hour, opts.Expires)
			assert.Equal(t, "media", aws.ToString(input.Bucket))
			return &v4.PresignedHTTPRequest{URL: "https://s3.example/media/clip.mp4?X-Amz-Expires=3600"}, nil
		},
	}

	u, err := newS3Store(&testutil.MockS3Client{}, presigner).SignedURL(context.Background(), "clip.mp4", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "https://s3.example/media/clip.mp4?X-Amz-Expires=3600", u)
}

func TestS3Store_Identity(t *testing.T) {
	store := newS3Store(&testutil.MockS3Client{}, nil)
	assert.Equal(t, "s3", store.Name())
	assert.Equal(t, "media", store.Bucket())
}

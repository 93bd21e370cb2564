package upload

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"cv/abc.pdf", false},
		{"perfiles/x.png", false},
		{"", true},
		{"/etc/passwd", true},
		{"../secret", true},
		{"cv/../../x", true},
		{"cv\\x.pdf", true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			err := ValidateKey(tt.key)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLocalStore_RoundTrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "cv/a.pdf", strings.NewReader("%PDF-data"), 9, "application/pdf"))

	rc, err := store.Open(ctx, "cv/a.pdf")
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	require.Equal(t, "%PDF-data", string(b))

	require.NoError(t, store.Delete(ctx, "cv/a.pdf"))
	_, err = store.Open(ctx, "cv/a.pdf")
	require.ErrorIs(t, err, ErrNotExist)

	// 存在しないファイルの削除はエラーにしない
	require.NoError(t, store.Delete(ctx, "cv/a.pdf"))
}

func TestLocalStore_RejectsTraversal(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	err = store.Put(context.Background(), "../fuera.pdf", strings.NewReader("x"), 1, "application/pdf")
	require.Error(t, err)
}

type fakeS3 struct {
	objects map[string]string
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Bucket+"/"+*in.Key] = string(b)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	v, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(v))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *in.Bucket+"/"+*in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store_RoundTrip(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{}}
	store := &S3Store{client: fake, bucket: "devjobs"}
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "cv/a.pdf", strings.NewReader("pdf"), 3, "application/pdf"))
	require.Contains(t, fake.objects, "devjobs/cv/a.pdf")

	rc, err := store.Open(ctx, "cv/a.pdf")
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	rc.Close()
	require.Equal(t, "pdf", string(b))

	require.NoError(t, store.Delete(ctx, "cv/a.pdf"))
	_, err = store.Open(ctx, "cv/a.pdf")
	require.True(t, errors.Is(err, ErrNotExist))
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), S3Config{Region: "us-east-1"})
	require.Error(t, err)
}

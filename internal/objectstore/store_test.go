package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func TestMemoryStore_UploadDownload(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	if _, err := m.Download(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Download(missing) err = %v, want ErrNotFound", err)
	}

	data := []byte("hello")
	if err := m.Upload(ctx, "indexes/t1.index", data); err != nil {
		t.Fatal(err)
	}
	data[0] = 'j' // stored copy must not alias the caller's slice

	got, err := m.Download(ctx, "indexes/t1.index")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Errorf("Download = %q, want hello", got)
	}
	if len(m.Keys()) != 1 {
		t.Errorf("Keys = %v", m.Keys())
	}
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestS3Store_PrefixAndNotFound(t *testing.T) {
	ctx := context.Background()
	fake := &fakeS3{objects: make(map[string][]byte)}
	s := newS3Store(fake, "bucket", "ragcore")

	if err := s.Upload(ctx, "indexes/t1.index", []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if _, ok := fake.objects["bucket/ragcore/indexes/t1.index"]; !ok {
		t.Errorf("object stored under unexpected key: %v", fake.objects)
	}

	got, err := s.Download(ctx, "indexes/t1.index")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("Download = %v", got)
	}

	if _, err := s.Download(ctx, "indexes/t2.index"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Download(missing) err = %v, want ErrNotFound", err)
	}
}

func TestS3Store_UploadError(t *testing.T) {
	fake := &fakeS3{objects: make(map[string][]byte), putErr: errors.New("access denied")}
	s := newS3Store(fake, "bucket", "")
	if err := s.Upload(context.Background(), "k", []byte("x")); err == nil {
		t.Error("expected upload error")
	}
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	if _, err := NewS3Store(context.Background(), S3Config{}); err == nil {
		t.Error("expected error for empty bucket")
	}
}

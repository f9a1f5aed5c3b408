package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLocalStorage_UploadExists(t *testing.T) {
	base := t.TempDir()
	s, err := NewLocalStorage(base)
	require.NoError(t, err)
	ctx := context.Background()

	src := writeTemp(t, "plazas_2024-03-01.csv", "plaza_id,name\n1,Bugis\n")

	ok, err := s.Exists(ctx, "erp/2024-03-01/plazas_2024-03-01.csv")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Upload(ctx, src, "erp/2024-03-01/plazas_2024-03-01.csv"))

	ok, err = s.Exists(ctx, "erp/2024-03-01/plazas_2024-03-01.csv")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := os.ReadFile(filepath.Join(base, "erp", "2024-03-01", "plazas_2024-03-01.csv"))
	require.NoError(t, err)
	assert.Equal(t, "plaza_id,name\n1,Bugis\n", string(data))
}

func TestLocalStorage_UploadMissingSource(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	err = s.Upload(context.Background(), filepath.Join(t.TempDir(), "nope.csv"), "x/nope.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive: open")
}

func TestLocalStorage_ContextCancelled(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Upload(ctx, "a", "b"), context.Canceled)
}

type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string]string
	putFails int
	puts     int
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.putFails > 0 {
		f.putFails--
		return nil, errors.New("slow down")
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = string(data)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func newFakeS3Storage(f *fakeS3) *S3Storage {
	s := NewS3StorageWithClient(f, "tolls")
	s.retry.InitialBackoff = time.Millisecond
	return s
}

func TestS3Storage_UploadRetries(t *testing.T) {
	f := &fakeS3{objects: map[string]string{}, putFails: 2}
	s := newFakeS3Storage(f)
	src := writeTemp(t, "rates.csv", "payload")

	require.NoError(t, s.Upload(context.Background(), src, "erp/rates.csv"))
	assert.Equal(t, 3, f.puts)
	assert.Equal(t, "payload", f.objects["erp/rates.csv"])

	ok, err := s.Exists(context.Background(), "erp/rates.csv")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(context.Background(), "erp/missing.csv")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestS3Storage_UploadExhausted(t *testing.T) {
	f := &fakeS3{objects: map[string]string{}, putFails: 10}
	s := newFakeS3Storage(f)
	src := writeTemp(t, "rates.csv", "payload")

	err := s.Upload(context.Background(), src, "erp/rates.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, f.puts)
}

func TestS3Storage_UploadStopsOnCancel(t *testing.T) {
	f := &fakeS3{objects: map[string]string{}, putFails: 10}
	s := newFakeS3Storage(f)
	src := writeTemp(t, "rates.csv", "payload")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Error(t, s.Upload(ctx, src, "erp/rates.csv"))
	assert.Equal(t, 1, f.puts)
}

func TestNewS3Storage_RequiresBucket(t *testing.T) {
	_, err := NewS3Storage(context.Background(), "", S3Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket is required")
}

func TestPublisher_Publish(t *testing.T) {
	base := t.TempDir()
	s, err := NewLocalStorage(base)
	require.NoError(t, err)

	plazas := writeTemp(t, "plazas_2024-03-01.csv", "p")
	rates := writeTemp(t, "rates_2024-03-01.csv", "r")
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	p := NewPublisher(s, "erp")
	written, err := p.Publish(context.Background(), date, rates, plazas, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"erp/2024-03-01/rates_2024-03-01.csv",
		"erp/2024-03-01/plazas_2024-03-01.csv",
	}, written)

	for _, obj := range written {
		ok, err := s.Exists(context.Background(), obj)
		require.NoError(t, err)
		assert.True(t, ok, obj)
	}
}

func TestPublisher_StopsOnFailure(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	good := writeTemp(t, "rates_2024-03-01.csv", "r")
	missing := filepath.Join(t.TempDir(), "changes_2024-03-01.csv")

	p := NewPublisher(s, "")
	written, err := p.Publish(context.Background(), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), good, missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish changes_2024-03-01.csv")
	assert.Equal(t, []string{"2024-03-01/rates_2024-03-01.csv"}, written)
}

package export

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/fedsearch/fedsearch/internal/errors"
)

type fakePutter struct {
	bucket      string
	key         string
	contentType string
	data        []byte
	err         error
}

func (f *fakePutter) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.err != nil {
		return minio.UploadInfo{}, f.err
	}
	f.bucket = bucketName
	f.key = objectName
	f.contentType = opts.ContentType
	data, err := io.ReadAll(reader)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.data = data
	return minio.UploadInfo{Bucket: bucketName, Key: objectName, Size: int64(len(data))}, nil
}

func TestSinkPutBuildsDatedKey(t *testing.T) {
	putter := &fakePutter{}
	sink := newObjectSink(putter, "exports", "fedsearch/")
	sink.now = func() time.Time {
		return time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	}

	key, err := sink.Put(context.Background(), "req-42", "json", []byte(`[]`))

	require.NoError(t, err)
	assert.Equal(t, "fedsearch/2026/03/01/req-42.json", key)
	assert.Equal(t, "exports", putter.bucket)
	assert.Equal(t, key, putter.key)
	assert.Equal(t, "application/json", putter.contentType)
	assert.Equal(t, []byte(`[]`), putter.data)
}

func TestSinkPutWrapsUploadFailure(t *testing.T) {
	putter := &fakePutter{err: assert.AnError}
	sink := newObjectSink(putter, "exports", "")

	_, err := sink.Put(context.Background(), "req-1", "csv", []byte("a,b"))

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConnection))
}

func TestExporterUploadEncodesThenPuts(t *testing.T) {
	putter := &fakePutter{}
	exporter := NewExporter(newObjectSink(putter, "exports", ""))

	key, err := exporter.Upload(context.Background(), sampleResponse(), "csv")

	require.NoError(t, err)
	assert.Contains(t, key, "req-42.csv")
	assert.Equal(t, "text/csv", putter.contentType)
	assert.Contains(t, string(putter.data), "_relevance")
}

func TestNewObjectSinkValidatesConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  SinkConfig
	}{
		{name: "missing bucket", cfg: SinkConfig{Endpoint: "minio.local:9000"}},
		{name: "missing endpoint", cfg: SinkConfig{Bucket: "exports"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewObjectSink(tt.cfg)

			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
		})
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		useSSL     bool
		wantHost   string
		wantSecure bool
		wantErr    bool
	}{
		{name: "bare host keeps flag", raw: "minio.local:9000", useSSL: true, wantHost: "minio.local:9000", wantSecure: true},
		{name: "https scheme forces tls", raw: "https://minio.local", useSSL: false, wantHost: "minio.local", wantSecure: true},
		{name: "http scheme disables tls", raw: "http://minio.local:9000", useSSL: true, wantHost: "minio.local:9000", wantSecure: false},
		{name: "empty", raw: "  ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, secure, err := parseEndpoint(tt.raw, tt.useSSL)

			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantSecure, secure)
		})
	}
}

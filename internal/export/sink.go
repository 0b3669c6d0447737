package export

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	apperrors "github.com/fedsearch/fedsearch/internal/errors"
)

// SinkConfig locates the S3-compatible bucket export artifacts land in.
type SinkConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// objectPutter is the slice of the minio client the sink uses.
type objectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// ObjectSink uploads export artifacts to one bucket under a date-based
// prefix.
type ObjectSink struct {
	client objectPutter
	bucket string
	prefix string
	now    func() time.Time
}

func NewObjectSink(cfg SinkConfig) (*ObjectSink, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, apperrors.New(apperrors.ErrTypeConfig, "object store bucket is required")
	}
	endpoint, secure, err := parseEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrTypeConfig, "create object store client")
	}

	return newObjectSink(client, cfg.Bucket, cfg.Prefix), nil
}

func newObjectSink(client objectPutter, bucket, prefix string) *ObjectSink {
	return &ObjectSink{
		client: client,
		bucket: strings.TrimSpace(bucket),
		prefix: strings.Trim(prefix, "/"),
		now:    time.Now,
	}
}

// Put uploads one artifact and returns its object key.
func (s *ObjectSink) Put(ctx context.Context, requestID, format string, data []byte) (string, error) {
	key := s.objectKey(requestID, format)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentTypeFor(format)})
	if err != nil {
		return "", apperrors.Wrapf(err, apperrors.ErrTypeConnection, "upload export %s", key)
	}
	return key, nil
}

func (s *ObjectSink) objectKey(requestID, format string) string {
	day := s.now().UTC().Format("2006/01/02")
	name := requestID + "." + extensionFor(format)
	if s.prefix != "" {
		return path.Join(s.prefix, day, name)
	}
	return path.Join(day, name)
}

func parseEndpoint(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, apperrors.New(apperrors.ErrTypeConfig, "object store endpoint is required")
	}
	if strings.Contains(raw, "://") {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Host == "" {
			return "", false, apperrors.Newf(apperrors.ErrTypeConfig, "invalid object store endpoint %q", raw)
		}
		return parsed.Host, parsed.Scheme == "https", nil
	}
	return raw, useSSL, nil
}

func extensionFor(format string) string {
	switch strings.ToLower(format) {
	case FormatJSON:
		return "json"
	case FormatParquet:
		return "parquet"
	default:
		return "csv"
	}
}

func contentTypeFor(format string) string {
	switch strings.ToLower(format) {
	case FormatJSON:
		return "application/json"
	case FormatParquet:
		return "application/octet-stream"
	default:
		return "text/csv"
	}
}

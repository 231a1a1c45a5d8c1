// Пакет s3store — хранилище бинарных файлов артефактов в S3-совместимом
// объектном хранилище (MinIO, SeaweedFS, AWS S3).
// Ключ объекта: {prefix}/{project_id}/{branch}/{identifier}.{ext}.
package s3store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/bigkaa/opendist/internal/domain/model"
	"github.com/bigkaa/opendist/internal/storage/blob"
)

// Options — параметры подключения к S3.
type Options struct {
	Endpoint       string
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	Prefix         string
	ForcePathStyle bool
	// Таймаут HTTP-клиента (0 — без таймаута, загрузки могут быть долгими)
	ClientTimeout time.Duration
}

// API — используемое подмножество методов s3.Client.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// Store — хранилище артефактов в бакете S3.
type Store struct {
	api    API
	bucket string
	prefix string
}

// New создаёт клиент S3 со статическими ключами доступа.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Endpoint == "" || opts.Bucket == "" {
		return nil, errors.New("s3: endpoint и bucket обязательны")
	}

	endpoint := opts.Endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")),
		awsconfig.WithHTTPClient(&http.Client{Timeout: opts.ClientTimeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("s3: загрузка конфигурации: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = opts.ForcePathStyle
		o.BaseEndpoint = aws.String(endpoint)
	})

	return NewWithAPI(client, opts.Bucket, opts.Prefix), nil
}

// NewWithAPI создаёт Store поверх готового клиента (используется в тестах).
func NewWithAPI(api API, bucket, prefix string) *Store {
	return &Store{api: api, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// Resolve строит ключ объекта. Побочных эффектов нет: в S3 нет директорий.
func (s *Store) Resolve(projectID, branch, identifier string, ext model.Extension) (string, error) {
	rel, err := blob.RelativePath(projectID, branch, identifier, ext)
	if err != nil {
		return "", err
	}
	if s.prefix == "" {
		return rel, nil
	}
	return path.Join(s.prefix, rel), nil
}

// Put загружает объект. Существующий ключ перезаписывается.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          r,
		ContentLength: aws.Int64(size),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	if _, err := s.api.PutObject(ctx, in); err != nil {
		return fmt.Errorf("s3: загрузка %s: %w", key, err)
	}
	return nil
}

// Open открывает объект на чтение. Body не поддерживает Seek.
func (s *Store) Open(ctx context.Context, key string) (*blob.Object, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", blob.ErrNotFound, key)
		}
		return nil, fmt.Errorf("s3: чтение %s: %w", key, err)
	}

	return &blob.Object{
		Body: out.Body,
		Info: blob.Info{
			Size:    aws.ToInt64(out.ContentLength),
			ModTime: aws.ToTime(out.LastModified),
		},
	}, nil
}

// Stat возвращает атрибуты объекта через HeadObject.
func (s *Store) Stat(ctx context.Context, key string) (*blob.Info, error) {
	out, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", blob.ErrNotFound, key)
		}
		return nil, fmt.Errorf("s3: stat %s: %w", key, err)
	}

	return &blob.Info{
		Size:    aws.ToInt64(out.ContentLength),
		ModTime: aws.ToTime(out.LastModified),
	}, nil
}

// CheckBucket проверяет доступность бакета. Используется readiness-проверкой.
func (s *Store) CheckBucket(ctx context.Context) error {
	if _, err := s.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("s3: бакет %s недоступен: %w", s.bucket, err)
	}
	return nil
}

// isNotFound распознаёт ответы S3 «объект отсутствует».
func isNotFound(err error) bool {
	var noSuchKey *s3types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *s3types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var respErr *awshttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}

var _ blob.Store = (*Store)(nil)

// Package objstore скачивает файлы источников из S3 совместимого хранилища
// в локальный кэш, откуда их читает встроенный движок.
package objstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ruslano69/semlayer/pkg/retry"
)

// Scheme префикс адресов объектного хранилища
const Scheme = "s3://"

// Config параметры подключения к хранилищу
type Config struct {
	Region string `yaml:"region"`
	// Endpoint для MinIO и других S3 совместимых хранилищ
	Endpoint     string `yaml:"endpoint"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	UsePathStyle bool   `yaml:"use_path_style"`
	// CacheDir каталог скачанных объектов
	CacheDir string `yaml:"cache_dir"`
}

// Fetcher скачивает каждый объект один раз.
// Клиент создается при первом обращении к s3://.
type Fetcher struct {
	cfg Config

	mu         sync.Mutex
	downloader *manager.Downloader
	retryer    *retry.Retryer
}

// New создает Fetcher; пустой CacheDir означает <tmp>/semlayer-cache
func New(cfg Config) *Fetcher {
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(os.TempDir(), "semlayer-cache")
	}
	return &Fetcher{cfg: cfg}
}

// NewWithClient создает Fetcher поверх готового клиента
func NewWithClient(client manager.DownloadAPIClient, cacheDir string) *Fetcher {
	f := New(Config{CacheDir: cacheDir})
	f.downloader = manager.NewDownloader(client)
	return f
}

// WithRetry повторяет скачивание при сбоях сети
func (f *Fetcher) WithRetry(r *retry.Retryer) *Fetcher {
	f.retryer = r
	return f
}

// ParseURI разбирает s3://bucket/key
func ParseURI(uri string) (bucket, key string, err error) {
	if !strings.HasPrefix(uri, Scheme) {
		return "", "", fmt.Errorf("not an s3 uri: %s", uri)
	}
	bucket, key, ok := strings.Cut(strings.TrimPrefix(uri, Scheme), "/")
	if !ok || bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("s3 uri must be s3://bucket/key: %s", uri)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", "", fmt.Errorf("s3 key must not contain '..': %s", uri)
		}
	}
	return bucket, key, nil
}

// LocalPath путь объекта в кэше
func (f *Fetcher) LocalPath(bucket, key string) string {
	return filepath.Join(f.cfg.CacheDir, bucket, filepath.FromSlash(key))
}

// Fetch возвращает локальный путь объекта. Обычные пути возвращаются как есть.
func (f *Fetcher) Fetch(ctx context.Context, uri string) (string, error) {
	if !strings.HasPrefix(uri, Scheme) {
		return uri, nil
	}
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	local := f.LocalPath(bucket, key)
	if _, err := os.Stat(local); err == nil {
		return local, nil
	}

	downloader, err := f.client(ctx)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(local), ".download-*")
	if err != nil {
		return "", fmt.Errorf("failed to create cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	err = f.retryer.Do(ctx, func(ctx context.Context) error {
		_, err := downloader.Download(ctx, tmp, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		return err
	})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", uri, err)
	}

	if err := os.Rename(tmp.Name(), local); err != nil {
		return "", fmt.Errorf("failed to store %s: %w", uri, err)
	}
	return local, nil
}

func (f *Fetcher) client(ctx context.Context) (*manager.Downloader, error) {
	if f.downloader != nil {
		return f.downloader, nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	if f.cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(f.cfg.Region))
	}
	if f.cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(f.cfg.AccessKey, f.cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if f.cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(f.cfg.Endpoint)
		}
		o.UsePathStyle = f.cfg.UsePathStyle
	})
	f.downloader = manager.NewDownloader(client)
	return f.downloader, nil
}

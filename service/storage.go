package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	neturl "net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	gstorage "cloud.google.com/go/storage"
	"github.com/airbusgeo/geocube/interface/storage/uri"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrFileNotFound is returned by ImportFile
type ErrFileNotFound struct {
	File string
}

func (e ErrFileNotFound) Error() string {
	return fmt.Sprintf("File not found: %s", e.File)
}

func isErrNotFound(err error) bool {
	var epath *os.PathError
	var nsk *types.NoSuchKey
	return errors.Is(err, gstorage.ErrObjectNotExist) ||
		errors.As(err, &nsk) ||
		(errors.As(err, &epath) && os.IsNotExist(epath))
}

// S3Config configures the access to s3:// uris
// If AccessKeyID is empty, the default credential chain is used
type S3Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// Storage exports and imports files to/from a local path or a storage uri (gs://bucket/path, s3://bucket/key)
type Storage struct {
	S3 S3Config
}

// IsLocal returns true if the location is a local path
func IsLocal(location string) bool {
	return !strings.Contains(location, "://") || strings.HasPrefix(location, "file://")
}

func localPath(location string) string {
	return strings.TrimPrefix(location, "file://")
}

// ExportFile writes data to dst, a local path or a storage uri
func (s Storage) ExportFile(ctx context.Context, dst string, data []byte) error {
	if IsLocal(dst) {
		dst = localPath(dst)
		if dir := filepath.Dir(dst); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("ExportFile.MkdirAll: %w", err)
			}
		}
		if err := os.WriteFile(dst, data, 0644); err != nil {
			return fmt.Errorf("ExportFile.WriteFile: %w", err)
		}
		return nil
	}

	// Remote storages upload from a file
	f, err := os.CreateTemp("", "export-*"+filepath.Ext(dst))
	if err != nil {
		return fmt.Errorf("ExportFile.CreateTemp: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("ExportFile.Write: %w", err)
	}

	return Retriable(ctx, func() error {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return MakeFatal(err)
		}
		err := s.upload(ctx, dst, f)
		if err != nil && !Temporary(err) {
			return MakeFatal(err)
		}
		return err
	}, time.Second, 3)
}

// ImportFile returns a local path to the content of src.
// If src is a storage uri, the file is downloaded in localDir (or in a temporary file if localDir is empty)
// and the caller is responsible for removing it.
// Raise ErrFileNotFound
func (s Storage) ImportFile(ctx context.Context, src, localDir string) (string, error) {
	if IsLocal(src) {
		src = localPath(src)
		if _, err := os.Stat(src); err != nil {
			if isErrNotFound(err) {
				return "", ErrFileNotFound{src}
			}
			return "", fmt.Errorf("ImportFile.Stat: %w", err)
		}
		return src, nil
	}

	dst, err := importPath(localDir, src)
	if err != nil {
		return "", fmt.Errorf("ImportFile.%w", err)
	}
	if err := s.download(ctx, src, dst); err != nil {
		os.Remove(dst)
		if isErrNotFound(err) {
			return "", ErrFileNotFound{src}
		}
		return "", fmt.Errorf("ImportFile[%s].%w", src, err)
	}
	return dst, nil
}

// importPath reserves a new file in localDir (or the temporary directory) with the extension of src
func importPath(localDir, src string) (string, error) {
	f, err := os.CreateTemp(localDir, "import-*"+filepath.Ext(src))
	if err != nil {
		return "", fmt.Errorf("importPath: %w", err)
	}
	defer f.Close()
	return f.Name(), nil
}

func (s Storage) upload(ctx context.Context, dst string, f *os.File) error {
	if strings.HasPrefix(dst, "s3://") {
		bucket, key, err := parseS3(dst)
		if err != nil {
			return err
		}
		client, err := s.s3Client(ctx)
		if err != nil {
			return err
		}
		uploader := manager.NewUploader(client)
		if _, err = uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
			Body:   f,
		}); err != nil {
			return fmt.Errorf("upload: failed to upload %s: %w", dst, err)
		}
		return nil
	}

	u, err := uri.ParseUri(dst)
	if err != nil {
		return MakeFatal(fmt.Errorf("upload.ParseUri: %w", err))
	}
	strategy, err := u.NewStorageStrategy(ctx)
	if err != nil {
		return fmt.Errorf("upload.NewStorageStrategy: %w", err)
	}
	if err := strategy.UploadFile(ctx, dst, f); err != nil {
		return fmt.Errorf("upload.UploadFile to %s: %w", dst, err)
	}
	return nil
}

func (s Storage) download(ctx context.Context, src, dst string) error {
	if strings.HasPrefix(src, "s3://") {
		bucket, key, err := parseS3(src)
		if err != nil {
			return err
		}
		client, err := s.s3Client(ctx)
		if err != nil {
			return err
		}
		file, err := os.Create(dst)
		if err != nil {
			return fmt.Errorf("download: failed to create file %s: %w", dst, err)
		}
		defer file.Close()
		downloader := manager.NewDownloader(client)
		if _, err = downloader.Download(ctx, file, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		}); err != nil {
			os.Remove(dst)
			return fmt.Errorf("download: failed to download object %s:%s: %w", bucket, key, err)
		}
		return nil
	}

	u, err := uri.ParseUri(src)
	if err != nil {
		return fmt.Errorf("download.ParseUri: %w", err)
	}
	strategy, err := u.NewStorageStrategy(ctx)
	if err != nil {
		return fmt.Errorf("download.NewStorageStrategy: %w", err)
	}
	if err := strategy.DownloadToFile(ctx, src, dst); err != nil {
		return fmt.Errorf("download.DownloadToFile: %w", err)
	}
	return nil
}

func (s Storage) s3Client(ctx context.Context) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{}
	if s.S3.Region != "" {
		opts = append(opts, config.WithRegion(s.S3.Region))
	}
	if s.S3.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(s.S3.AccessKeyID, s.S3.SecretAccessKey, "")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3Client.LoadDefaultConfig: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// parseS3 splits s3://bucket/key
func parseS3(location string) (string, string, error) {
	u, err := neturl.Parse(location)
	if err != nil {
		return "", "", MakeFatal(fmt.Errorf("parseS3: %w", err))
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Scheme != "s3" || u.Host == "" || key == "" {
		return "", "", MakeFatal(fmt.Errorf("parseS3: malformed uri (must be s3://bucket/key): %s", location))
	}
	return u.Host, key, nil
}

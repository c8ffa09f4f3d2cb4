package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"manuscript-converter/config"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/gabriel-vasile/mimetype"
)

// ObjectStore is the private bucket holding sources, media and PDFs.
type ObjectStore interface {
	Download(ctx context.Context, key, localPath string) error
	Save(ctx context.Context, key string, data []byte) error
	DeleteRecursive(ctx context.Context, prefix string) error
	CopyRecursive(ctx context.Context, localDir, remotePrefix string) error
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

type ObjectInfo struct {
	Key  string
	Size int64
}

type S3Service struct {
	client     s3iface.S3API
	bucket     string
	downloader *s3manager.Downloader
	uploader   *s3manager.Uploader
	deleter    *s3manager.BatchDelete
}

func NewS3Service(cfg *config.Config) *S3Service {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.S3Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AWSS3AccessKey,
			cfg.AWSS3SecretKey,
			"",
		),
	}

	if cfg.S3Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.S3Endpoint)
	}

	if cfg.S3UsePathStyle {
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess := session.Must(session.NewSession(awsCfg))
	client := s3.New(sess)

	return &S3Service{
		client:     client,
		bucket:     cfg.S3Bucket,
		downloader: s3manager.NewDownloaderWithClient(client),
		uploader:   s3manager.NewUploaderWithClient(client),
		deleter:    s3manager.NewBatchDeleteWithClient(client),
	}
}

func (s *S3Service) Download(ctx context.Context, key, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("failed to create local dir: %w", err)
	}

	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file: %w", err)
	}
	defer file.Close()

	_, err = s.downloader.DownloadWithContext(ctx, file, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to download %s from S3: %w", key, err)
	}
	return nil
}

func (s *S3Service) Save(ctx context.Context, key string, data []byte) error {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mimetype.Detect(data).String()),
	})
	if err != nil {
		return fmt.Errorf("failed to save %s to S3: %w", key, err)
	}
	return nil
}

func (s *S3Service) upload(ctx context.Context, localPath, key string) error {
	mtype, err := mimetype.DetectFile(localPath)
	if err != nil {
		return fmt.Errorf("failed to detect content type: %w", err)
	}

	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	_, err = s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(mtype.String()),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to S3: %w", key, err)
	}
	return nil
}

// DeleteRecursive removes every object under prefix. An empty prefix is
// not a no-op on S3, so it is rejected.
func (s *S3Service) DeleteRecursive(ctx context.Context, prefix string) error {
	if prefix == "" {
		return fmt.Errorf("refusing to delete the whole bucket")
	}
	iter := s3manager.NewDeleteListIterator(s.client, &s3.ListObjectsInput{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	if err := s.deleter.Delete(ctx, iter); err != nil {
		return fmt.Errorf("failed to delete %s: %w", prefix, err)
	}
	return nil
}

// CopyRecursive uploads every file under localDir to the same relative key
// under remotePrefix.
func (s *S3Service) CopyRecursive(ctx context.Context, localDir, remotePrefix string) error {
	files, err := listFiles(localDir)
	if err != nil {
		return err
	}
	for _, p := range files {
		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		if err := s.upload(ctx, p, remotePrefix+filepath.ToSlash(rel)); err != nil {
			return err
		}
	}
	return nil
}

func (s *S3Service) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			objects = append(objects, ObjectInfo{
				Key:  aws.StringValue(obj.Key),
				Size: aws.Int64Value(obj.Size),
			})
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	return objects, nil
}

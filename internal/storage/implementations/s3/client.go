package s3

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/flsim/pkg/errors"
)

// S3Config holds configuration for S3 experiment storage.
type S3Config struct {
	Region          string `json:"region"`
	Bucket          string `json:"bucket"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	Endpoint        string `json:"endpoint,omitempty"`
	ForcePathStyle  bool   `json:"force_path_style"`
	Prefix          string `json:"prefix"`
}

// S3Storage keeps experiment documents as S3 objects under a key prefix.
type S3Storage struct {
	config     *S3Config
	s3Client   *s3.S3
	uploader   *s3manager.Uploader
	downloader *s3manager.Downloader
	logger     *logrus.Logger
	mu         sync.RWMutex
}

// NewS3Storage creates an S3 storage instance.
func NewS3Storage(config *S3Config, logger *logrus.Logger) (*S3Storage, error) {
	if config == nil {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "S3 config cannot be nil")
	}
	if config.Bucket == "" {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "S3 bucket is required")
	}
	if config.Region == "" {
		config.Region = "us-east-1"
	}
	if config.Prefix == "" {
		config.Prefix = "experiments"
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &S3Storage{config: config, logger: logger}, nil
}

// Connect builds the AWS session and verifies bucket access.
func (s *S3Storage) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.s3Client != nil {
		return nil
	}

	awsConfig := &aws.Config{
		Region:           aws.String(s.config.Region),
		S3ForcePathStyle: aws.Bool(s.config.ForcePathStyle),
	}
	if s.config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(s.config.Endpoint)
	}
	if s.config.AccessKeyID != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			s.config.AccessKeyID, s.config.SecretAccessKey, "")
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed,
			"failed to create AWS session")
	}

	client := s3.New(sess)
	if _, err := client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.config.Bucket),
	}); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed,
			fmt.Sprintf("bucket %s is not accessible", s.config.Bucket))
	}

	s.s3Client = client
	s.uploader = s3manager.NewUploaderWithClient(client)
	s.downloader = s3manager.NewDownloaderWithClient(client)
	s.logger.WithFields(logrus.Fields{
		"bucket": s.config.Bucket,
		"region": s.config.Region,
	}).Info("S3 storage connected")
	return nil
}

// Put uploads a document to its object key.
func (s *S3Storage) Put(ctx context.Context, id string, data []byte) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.config.Bucket),
		Key:         aws.String(s.key(id)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
			fmt.Sprintf("failed to upload experiment %s", id))
	}
	return nil
}

// Get downloads a document by experiment id.
func (s *S3Storage) Get(ctx context.Context, id string) ([]byte, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	buf := aws.NewWriteAtBuffer(nil)
	_, err := s.downloader.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, errors.NewExperimentError(errors.CodeExperimentNotFound,
				fmt.Sprintf("experiment %s not found", id))
		}
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
			fmt.Sprintf("failed to download experiment %s", id))
	}
	return buf.Bytes(), nil
}

// List enumerates the ids of all stored documents under the prefix.
func (s *S3Storage) List(ctx context.Context) ([]string, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	prefix := s.config.Prefix + "/"
	var ids []string
	err := s.s3Client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.config.Bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.StringValue(obj.Key), prefix)
			ids = append(ids, strings.TrimSuffix(name, ".json"))
		}
		return true
	})
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
			"failed to list experiment objects")
	}
	return ids, nil
}

// Delete removes a document by experiment id.
func (s *S3Storage) Delete(ctx context.Context, id string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	_, err := s.s3Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
			fmt.Sprintf("failed to delete experiment %s", id))
	}
	return nil
}

// Close releases the client. The AWS SDK holds no persistent connections,
// so this only clears state.
func (s *S3Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.s3Client = nil
	s.uploader = nil
	s.downloader = nil
	return nil
}

func (s *S3Storage) checkConnected() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.s3Client == nil {
		return errors.NewStorageError(errors.CodeNotConnected, "S3 storage is not connected")
	}
	return nil
}

func (s *S3Storage) key(id string) string {
	return path.Join(s.config.Prefix, id+".json")
}

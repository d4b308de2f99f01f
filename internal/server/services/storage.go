package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/campusfix/campusfix/internal/server/config"
)

var ErrBadStoragePath = errors.New("invalid bucket or path")

// StorageService presigns direct-to-bucket PUTs so media bytes never pass
// through the API server.
type StorageService struct {
	config *config.Config
}

func NewStorageService(cfg *config.Config) *StorageService {
	return &StorageService{config: cfg}
}

func (s *StorageService) getPresignClient(ctx context.Context) (*s3.PresignClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(s.config.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3AccessKey,
			s.config.S3SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return s3.NewPresignClient(client), nil
}

// PresignPut returns a time-limited upload URL for bucket/path plus the
// public URL the object will be readable at.
func (s *StorageService) PresignPut(ctx context.Context, bucket, path string) (uploadURL, publicURL string, err error) {
	if bucket == "" || path == "" || strings.Contains(path, "..") {
		return "", "", ErrBadStoragePath
	}

	presignClient, err := s.getPresignClient(ctx)
	if err != nil {
		return "", "", err
	}

	req, err := presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &path,
	}, s3.WithPresignExpires(s.config.PresignValidity))
	if err != nil {
		return "", "", err
	}

	publicURL = fmt.Sprintf("%s/%s/%s",
		strings.TrimRight(s.config.S3PublicBase, "/"), bucket, path)
	return req.URL, publicURL, nil
}

// Copyright 2025 pgsubset
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package s3

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	awsS3 "github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"

	"github.com/pgsubset/pgsubset/internal/exporters"
)

const (
	awsErrorCodeNotFound     = "NotFound"
	awsErrorCodeNoSuchBucket = "NoSuchBucket"
	awsErrorCodeForbidden    = "Forbidden"
)

// Exporter uploads backup artifacts to an S3 bucket via the multipart
// uploader.
type Exporter struct {
	config   *Config
	service  s3iface.S3API
	uploader s3manageriface.UploaderAPI
	prefix   string
}

func NewExporter(cfg *Config) (*Exporter, error) {
	ses, err := session.NewSession()
	if err != nil {
		return nil, fmt.Errorf("cannot establish session: %w", err)
	}

	awsCfg := aws.NewConfig()
	awsCfg.WithS3ForcePathStyle(cfg.ForcePathStyle)
	request.WithRetryer(awsCfg, client.DefaultRetryer{NumMaxRetries: cfg.MaxRetries})

	if cfg.AccessKeyId != "" && cfg.SecretAccessKey != "" {
		awsCfg.WithCredentials(credentials.NewStaticCredentials(
			cfg.AccessKeyId, cfg.SecretAccessKey, cfg.SessionToken,
		))
	}

	if cfg.Endpoint != "" {
		awsCfg.WithEndpoint(cfg.Endpoint)
	}
	if cfg.Region != "" {
		awsCfg.WithRegion(cfg.Region)
	}

	service := awsS3.New(ses, awsCfg)
	uploader := s3manager.NewUploaderWithClient(
		service, func(uploader *s3manager.Uploader) {
			uploader.PartSize = cfg.MaxPartSize
			if cfg.Concurrency > 0 {
				uploader.Concurrency = cfg.Concurrency
			}
		},
	)

	return &Exporter{
		config:   cfg,
		service:  service,
		uploader: uploader,
		prefix:   fixPrefix(cfg.Prefix),
	}, nil
}

func (e *Exporter) Export(ctx context.Context, backupPath string, metadata map[string]any) (string, error) {
	f, err := os.Open(backupPath)
	if err != nil {
		return "", &exporters.ExportError{
			Dest: e.bucketURL(""),
			Err:  errors.Wrap(err, "cannot open backup file"),
		}
	}
	defer f.Close()

	key := e.prefix + filepath.Base(backupPath)

	ui := &s3manager.UploadInput{
		Bucket:       aws.String(e.config.Bucket),
		Key:          aws.String(key),
		Body:         f,
		StorageClass: aws.String(e.config.StorageClass),
	}

	if len(metadata) > 0 {
		// S3 object metadata values must be strings.
		md := make(map[string]*string, len(metadata))
		for k, v := range metadata {
			md[k] = aws.String(cast.ToString(v))
		}
		ui.Metadata = md
	}

	log.Info().Str("Bucket", e.config.Bucket).Str("Key", key).Msg("uploading backup to s3")

	if _, err := e.uploader.UploadWithContext(ctx, ui); err != nil {
		return "", &exporters.ExportError{
			Dest: e.bucketURL(key),
			Err:  errors.Wrap(err, "s3 object uploading error"),
		}
	}

	location := e.bucketURL(key)
	log.Info().Str("Location", location).Msg("upload successful")

	if e.config.DeleteLocal {
		if err := os.Remove(backupPath); err != nil {
			log.Warn().Err(err).Str("File", backupPath).Msg("cannot delete local backup file")
		} else {
			log.Info().Str("File", backupPath).Msg("deleted local backup file")
		}
	}

	return location, nil
}

func (e *Exporter) ValidateConfig(ctx context.Context) bool {
	if err := e.config.Validate(); err != nil {
		log.Error().Err(err).Msg("invalid s3 exporter config")
		return false
	}

	_, err := e.service.HeadBucketWithContext(ctx, &awsS3.HeadBucketInput{
		Bucket: aws.String(e.config.Bucket),
	})
	if err == nil {
		return true
	}

	var awsErr awserr.Error
	if errors.As(err, &awsErr) {
		switch awsErr.Code() {
		case awsErrorCodeNotFound, awsErrorCodeNoSuchBucket:
			log.Error().Str("Bucket", e.config.Bucket).Msg("bucket does not exist")
		case awsErrorCodeForbidden:
			log.Error().Str("Bucket", e.config.Bucket).Msg("access denied to bucket")
		default:
			log.Error().Err(err).Msg("s3 error")
		}
		return false
	}

	log.Error().Err(err).Msg("s3 validation error")
	return false
}

func (e *Exporter) bucketURL(key string) string {
	if e.config.Region != "" {
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", e.config.Bucket, e.config.Region, key)
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", e.config.Bucket, key)
}

func fixPrefix(prefix string) string {
	if prefix == "" {
		return ""
	}
	return path.Clean(prefix) + "/"
}

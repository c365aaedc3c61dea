// Package storage wraps the S3-compatible object store (MinIO in the
// default deployment) that holds uploaded audio/text files and alignment
// results.
package storage

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/alignlab/alignd/internal/config"
)

// Client is an object store client bound to a single bucket.
type Client struct {
	s3         *s3.S3
	uploader   *s3manager.Uploader
	downloader *s3manager.Downloader
	bucket     string
}

// New connects to the configured endpoint and ensures the bucket exists.
func New(cfg config.StorageConfig) (*Client, error) {
	sess, err := session.NewSession(&aws.Config{
		Region:           aws.String(cfg.Region),
		Endpoint:         aws.String(cfg.Endpoint),
		DisableSSL:       aws.Bool(!cfg.Secure),
		S3ForcePathStyle: aws.Bool(true),
		Credentials:      credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating object storage session")
	}

	c := &Client{
		s3:         s3.New(sess),
		uploader:   s3manager.NewUploader(sess),
		downloader: s3manager.NewDownloader(sess),
		bucket:     cfg.Bucket,
	}
	if err := c.ensureBucket(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) ensureBucket() error {
	_, err := c.s3.CreateBucket(&s3.CreateBucketInput{Bucket: aws.String(c.bucket)})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok {
			switch aerr.Code() {
			case s3.ErrCodeBucketAlreadyExists, s3.ErrCodeBucketAlreadyOwnedByYou:
				return nil
			}
		}
		return errors.Wrapf(err, "creating bucket %s", c.bucket)
	}
	log.Infof("created storage bucket %s", c.bucket)
	return nil
}

// Upload stores an object under the given key.
func (c *Client) Upload(
	ctx context.Context, key string, body io.Reader, contentType string,
) error {
	_, err := c.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	return errors.Wrapf(err, "uploading %s", key)
}

// Download writes the object with the given key to w.
func (c *Client) Download(ctx context.Context, key string, w io.WriterAt) error {
	_, err := c.downloader.DownloadWithContext(ctx, w, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	return errors.Wrapf(err, "downloading %s", key)
}

// Delete removes the object with the given key. Missing objects are not an error.
func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.s3.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	return errors.Wrapf(err, "deleting %s", key)
}

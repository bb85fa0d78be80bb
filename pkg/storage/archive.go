// Package storage keeps client configuration files of issued keys in an
// S3-compatible bucket (Cloudflare R2 in production) and hands out
// short-lived download links.
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"gshvpn_backend/internal/model"
)

type R2Config struct {
	AccountID string
	AccessKey string
	SecretKey string
	Bucket    string
	// Endpoint overrides the account endpoint, e.g. for MinIO or tests.
	Endpoint string
}

func (c R2Config) endpoint() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.AccountID)
}

func NewS3Client(ctx context.Context, c R2Config) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(c.endpoint())
		o.UsePathStyle = true
		o.Region = "auto"
	}), nil
}

// ConfigArchive stores one config object per key.
type ConfigArchive struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	ttl     time.Duration
}

func NewConfigArchive(client *s3.Client, bucket string, linkTTL time.Duration) *ConfigArchive {
	return &ConfigArchive{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
		ttl:     linkTTL,
	}
}

// ObjectKey is the bucket path of k's config. Keys without a server go
// under "unassigned".
func ObjectKey(k *model.VPNKey) string {
	folder := "unassigned"
	if k.Server != nil {
		folder = slug.Make(k.Server.Name)
	}
	return path.Join("keys", folder, fmt.Sprintf("user-%d", k.UserID), fmt.Sprintf("key-%d.txt", k.ID))
}

// RenderConfig is the text stored for k. accessURL may be empty when the
// server has no panel.
func RenderConfig(k *model.VPNKey, accessURL string) string {
	var b strings.Builder
	b.WriteString("# GSH VPN access key\n")
	fmt.Fprintf(&b, "key_id=%d\n", k.ID)
	if k.Server != nil {
		fmt.Fprintf(&b, "server=%s\nhost=%s\nport=%d\n", k.Server.Name, k.Server.Host, k.Server.Port)
	}
	fmt.Fprintf(&b, "token=%s\n", k.Token)
	if k.ExpiresAt != nil {
		fmt.Fprintf(&b, "expires_at=%s\n", k.ExpiresAt.UTC().Format(time.RFC3339))
	}
	if accessURL != "" {
		fmt.Fprintf(&b, "access_url=%s\n", accessURL)
	}
	return b.String()
}

func (a *ConfigArchive) Put(ctx context.Context, k *model.VPNKey, accessURL string) (string, error) {
	objectKey := ObjectKey(k)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(objectKey),
		Body:        strings.NewReader(RenderConfig(k, accessURL)),
		ContentType: aws.String("text/plain; charset=utf-8"),
		Metadata:    map[string]string{"upload-id": uuid.NewString()},
	})
	if err != nil {
		return "", fmt.Errorf("could not upload config to R2: %w", err)
	}
	return objectKey, nil
}

// URL returns a presigned GET link to k's config.
func (a *ConfigArchive) URL(ctx context.Context, k *model.VPNKey) (string, error) {
	req, err := a.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(ObjectKey(k)),
	}, s3.WithPresignExpires(a.ttl))
	if err != nil {
		return "", fmt.Errorf("could not presign config url: %w", err)
	}
	return req.URL, nil
}

func (a *ConfigArchive) Delete(ctx context.Context, k *model.VPNKey) error {
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(ObjectKey(k)),
	})
	if err != nil {
		return fmt.Errorf("could not delete config from R2: %w", err)
	}
	return nil
}

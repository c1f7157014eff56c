package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"webfile-go/internal/config"
	"webfile-go/internal/webfile"
)

// S3API is the subset of the S3 client used by S3Vault. *s3.Client
// satisfies it.
type S3API interface {
	manager.UploadAPIClient
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Vault stores blobs as objects keyed "<prefix>/<area>/<storage path>".
// Uploads stream through the multipart upload manager, so the size of a
// blob does not need to be known in advance.
type S3Vault struct {
	client   S3API
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Vault creates a vault on an existing client.
func NewS3Vault(client S3API, bucket, prefix string) *S3Vault {
	return &S3Vault{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
	}
}

// NewS3Client builds an S3 client from the vault config. Static credentials
// are used when configured; otherwise the default AWS credential chain
// applies. A custom endpoint (MinIO, R2, ...) switches to path-style
// addressing.
func NewS3Client(ctx context.Context, cfg config.VaultConfig) (*s3.Client, error) {
	var opts []func(*awsConfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsConfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyID != "" {
		opts = append(opts, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func (v *S3Vault) key(ref webfile.StorageRef) string {
	k := string(ref.Area) + "/" + ref.Path
	if v.prefix != "" {
		k = v.prefix + "/" + k
	}
	return k
}

// isNotFound reports whether err means the object does not exist.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

// Put uploads r unless the object already exists.
func (v *S3Vault) Put(ctx context.Context, ref webfile.StorageRef, r io.Reader, size int64) error {
	exists, err := v.Exists(ctx, ref)
	if err != nil {
		return err
	}
	if exists {
		if _, err := io.Copy(io.Discard, r); err != nil {
			return fmt.Errorf("failed to read content: %w", err)
		}
		return nil
	}

	counter := &countingReader{r: r}
	_, err = v.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.key(ref)),
		Body:   counter,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", ref, err)
	}
	if size >= 0 && counter.n != size {
		// The object is incomplete or padded; do not leave it behind.
		v.Delete(context.WithoutCancel(ctx), ref)
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, counter.n)
	}
	return nil
}

// Get streams the object to w.
func (v *S3Vault) Get(ctx context.Context, ref webfile.StorageRef, w io.Writer) error {
	out, err := v.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.key(ref)),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: blob %s", webfile.ErrNotFound, ref)
		}
		return fmt.Errorf("failed to get %s: %w", ref, err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("failed to read %s: %w", ref, err)
	}
	return nil
}

// Exists issues a HeadObject request.
func (v *S3Vault) Exists(ctx context.Context, ref webfile.StorageRef) (bool, error) {
	_, err := v.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.key(ref)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check %s: %w", ref, err)
	}
	return true, nil
}

// Move is a server-side copy followed by a delete of the source.
func (v *S3Vault) Move(ctx context.Context, ref webfile.StorageRef, to webfile.Area) error {
	if err := v.Copy(ctx, ref, to); err != nil {
		return err
	}
	if ref.Area == to {
		return nil
	}
	return v.Delete(ctx, ref)
}

// Copy duplicates the object server-side. An existing destination is kept.
func (v *S3Vault) Copy(ctx context.Context, ref webfile.StorageRef, to webfile.Area) error {
	dest := ref.In(to)
	exists, err := v.Exists(ctx, dest)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err = v.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(v.bucket),
		Key:        aws.String(v.key(dest)),
		CopySource: aws.String(v.bucket + "/" + v.key(ref)),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: blob %s", webfile.ErrNotFound, ref)
		}
		return fmt.Errorf("failed to copy %s to %s: %w", ref, to, err)
	}
	return nil
}

// Delete removes the object. S3 deletes are idempotent.
func (v *S3Vault) Delete(ctx context.Context, ref webfile.StorageRef) error {
	_, err := v.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.key(ref)),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete %s: %w", ref, err)
	}
	return nil
}

// ValidateSetup checks that the bucket is reachable.
func (v *S3Vault) ValidateSetup(ctx context.Context) error {
	if _, err := v.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(v.bucket)}); err != nil {
		return fmt.Errorf("failed to access bucket %q: %w", v.bucket, err)
	}
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

var _ webfile.ContentStore = (*S3Vault)(nil)

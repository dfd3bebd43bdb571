package storage

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/dmitrijs2005/sitevisit/internal/common"
	"github.com/dmitrijs2005/sitevisit/internal/logging"
	sc "github.com/dmitrijs2005/sitevisit/internal/server/config"
	"github.com/dmitrijs2005/sitevisit/internal/server/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignPostObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignPostOptions)) (*s3.PresignedPostRequest, error) {
		return pc.PresignPostObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// ObjectStore issues presigned S3 credentials; clients move the bytes.
type ObjectStore struct {
	config *sc.Config
	log    logging.Logger
}

func NewObjectStore(config *sc.Config, log logging.Logger) *ObjectStore {
	if log == nil {
		log = logging.Discard()
	}
	return &ObjectStore{config: config, log: log.With("module", "storage")}
}

func (o *ObjectStore) Mode() Mode { return ModeObjectStore }

func (o *ObjectStore) Store(context.Context, []byte, string, string) (string, error) {
	return "", modeError(ModeObjectStore, "storing inline photos")
}

func (o *ObjectStore) Discard(context.Context, string) error {
	return modeError(ModeObjectStore, "discarding stored photos")
}

func (o *ObjectStore) getPresignClient(ctx context.Context) (*s3.PresignClient, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(o.region())}
	if o.config.S3AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			o.config.S3AccessKey,
			o.config.S3SecretKey,
			"",
		)))
	}

	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(opt *s3.Options) {
		if o.config.S3BaseEndpoint != "" {
			opt.BaseEndpoint = aws.String(o.config.S3BaseEndpoint)
			opt.UsePathStyle = true
		}
	})

	return newS3PresignClient(client), nil
}

// CheckPolicy validates the declared content type and size against the
// configured allow-list and ceiling.
func (o *ObjectStore) CheckPolicy(contentType string, size *int64) error {
	return CheckUploadPolicy(o.config.UploadAllowedTypes, o.config.UploadMaxBytes, contentType, size)
}

// CheckUploadPolicy requires a declared content type from allowed (any
// type when allowed is empty) and a declared size in 1..maxBytes.
func CheckUploadPolicy(allowed []string, maxBytes int64, contentType string, size *int64) error {
	ct := strings.TrimSpace(contentType)
	if ct == "" {
		return fmt.Errorf("%w: content_type is required", common.ErrMalformedInput)
	}
	if len(allowed) > 0 && !slices.Contains(allowed, ct) {
		return fmt.Errorf("%w: content_type %q not allowed", common.ErrPolicyViolation, ct)
	}
	if size == nil {
		return fmt.Errorf("%w: size_bytes is required", common.ErrMalformedInput)
	}
	if *size <= 0 {
		return fmt.Errorf("%w: size_bytes must be positive", common.ErrMalformedInput)
	}
	if *size > maxBytes {
		return fmt.Errorf("%w: %d bytes exceeds the %d byte limit", common.ErrPolicyViolation, *size, maxBytes)
	}
	return nil
}

func (o *ObjectStore) IssueUploadSlot(ctx context.Context, req UploadRequest) (*models.UploadSlot, error) {
	if err := o.CheckPolicy(req.ContentType, req.SizeBytes); err != nil {
		return nil, err
	}

	presignClient, err := o.getPresignClient(ctx)
	if err != nil {
		return nil, err
	}

	bucket := o.config.S3Bucket
	key := BuildObjectKey(o.config.S3Prefix, req)
	contentType := strings.TrimSpace(req.ContentType)

	in := &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		ContentType: aws.String(contentType),
	}
	if o.config.S3ACL != "" {
		in.ACL = types.ObjectCannedACL(o.config.S3ACL)
	}

	slot := &models.UploadSlot{
		ObjectKey:   key,
		PublicURL:   o.PublicURL(key),
		ContentType: contentType,
		ExpiresIn:   int(o.config.S3PresignTTL.Seconds()),
	}

	if strings.EqualFold(o.config.S3PresignMethod, sc.PresignPUT) {
		put, err := presignPutObject(presignClient, ctx, in, s3.WithPresignExpires(o.config.S3PresignTTL))
		if err != nil {
			return nil, fmt.Errorf("presign put: %w", err)
		}
		slot.Method = sc.PresignPUT
		slot.UploadURL = put.URL
		return slot, nil
	}

	conditions := []interface{}{
		map[string]string{"Content-Type": contentType},
		[]interface{}{"content-length-range", 1, o.config.UploadMaxBytes},
	}
	if o.config.S3ACL != "" {
		conditions = append(conditions, map[string]string{"acl": o.config.S3ACL})
	}

	post, err := presignPostObject(presignClient, ctx, in, func(opt *s3.PresignPostOptions) {
		opt.Expires = o.config.S3PresignTTL
		opt.Conditions = conditions
	})
	if err != nil {
		return nil, fmt.Errorf("presign post: %w", err)
	}

	fields := make(map[string]string, len(post.Values)+2)
	for k, v := range post.Values {
		fields[k] = v
	}
	if _, ok := fields["Content-Type"]; !ok {
		fields["Content-Type"] = contentType
	}
	if o.config.S3ACL != "" {
		if _, ok := fields["acl"]; !ok {
			fields["acl"] = o.config.S3ACL
		}
	}

	slot.Method = sc.PresignPOST
	slot.UploadURL = post.URL
	slot.Fields = fields
	return slot, nil
}

func (o *ObjectStore) IssueDownloadSlot(ctx context.Context, key string) (*models.DownloadSlot, error) {
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("%w: object key is required", common.ErrMalformedInput)
	}

	presignClient, err := o.getPresignClient(ctx)
	if err != nil {
		return nil, err
	}

	bucket := o.config.S3Bucket

	req, err := presignGetObject(presignClient, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(o.config.S3PresignTTL))
	if err != nil {
		return nil, fmt.Errorf("presign get: %w", err)
	}

	return &models.DownloadSlot{
		DownloadURL: req.URL,
		ObjectKey:   key,
		ExpiresIn:   int(o.config.S3PresignTTL.Seconds()),
	}, nil
}

// PublicURL derives where key is readable: the public base URL when
// configured, else endpoint/bucket/key, else the virtual-hosted AWS URL.
func (o *ObjectStore) PublicURL(key string) string {
	if base := strings.TrimRight(o.config.S3PublicBaseURL, "/"); base != "" {
		return base + "/" + key
	}
	if endpoint := strings.TrimRight(o.config.S3BaseEndpoint, "/"); endpoint != "" {
		return endpoint + "/" + o.config.S3Bucket + "/" + key
	}
	region := o.region()
	if region == "us-east-1" {
		return "https://" + o.config.S3Bucket + ".s3.amazonaws.com/" + key
	}
	return "https://" + o.config.S3Bucket + ".s3." + region + ".amazonaws.com/" + key
}

func (o *ObjectStore) region() string {
	if o.config.S3Region == "" {
		return "us-east-1"
	}
	return o.config.S3Region
}

package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/bluesearch/bluesearch/internal/domain"
)

// S3ClientConfig holds configuration for S3Client
type S3ClientConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UsePathStyle    bool
}

// S3Client archives firehose collection sessions to S3-compatible storage
// (AWS S3, MinIO, and the like) as JSONL objects, one post per line.
type S3Client struct {
	client *s3.Client
	bucket string
}

// NewS3Client creates a new S3Client with the given configuration
func NewS3Client(ctx context.Context, cfg S3ClientConfig) (*S3Client, error) {
	// Custom resolver for S3-compatible endpoints
	customResolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			if cfg.Endpoint != "" {
				return aws.Endpoint{
					URL:               cfg.Endpoint,
					HostnameImmutable: true,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		},
	)

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
		config.WithEndpointResolverWithOptions(customResolver),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Path-style addressing for S3-compatible services
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Client{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// archivedPost is the stored form of one collected post.
type archivedPost struct {
	URI               string    `json:"uri"`
	CID               string    `json:"cid,omitempty"`
	Author            string    `json:"author"`
	AuthorDisplayName string    `json:"author_display_name,omitempty"`
	Text              string    `json:"text"`
	CreatedAt         time.Time `json:"created_at"`
	ReplyCount        int       `json:"reply_count,omitempty"`
	RepostCount       int       `json:"repost_count,omitempty"`
	LikeCount         int       `json:"like_count,omitempty"`
}

// ArchiveSession writes the raw posts of one collection session as a JSONL
// object keyed by session start time, and returns the object key.
func (c *S3Client) ArchiveSession(ctx context.Context, startedAt time.Time, posts []domain.Post) (string, error) {
	if len(posts) == 0 {
		return "", fmt.Errorf("nothing to archive")
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, post := range posts {
		record := archivedPost{
			URI:               post.URI,
			CID:               post.CID,
			Author:            post.Author,
			AuthorDisplayName: post.AuthorDisplayName,
			Text:              post.Text,
			CreatedAt:         post.CreatedAt.UTC(),
			ReplyCount:        post.ReplyCount,
			RepostCount:       post.RepostCount,
			LikeCount:         post.LikeCount,
		}
		if err := enc.Encode(record); err != nil {
			return "", fmt.Errorf("failed to encode post: %w", err)
		}
	}

	key := SessionKey(startedAt)
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to put session object: %w", err)
	}
	return key, nil
}

// FetchSession reads back an archived session by key.
func (c *S3Client) FetchSession(ctx context.Context, key string) ([]domain.Post, error) {
	output, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get session object: %w", err)
	}
	defer output.Body.Close()

	var posts []domain.Post
	dec := json.NewDecoder(output.Body)
	for dec.More() {
		var record archivedPost
		if err := dec.Decode(&record); err != nil {
			return nil, fmt.Errorf("failed to decode archived post: %w", err)
		}
		posts = append(posts, domain.Post{
			URI:               record.URI,
			CID:               record.CID,
			Author:            record.Author,
			AuthorDisplayName: record.AuthorDisplayName,
			Text:              record.Text,
			CreatedAt:         record.CreatedAt,
			ReplyCount:        record.ReplyCount,
			RepostCount:       record.RepostCount,
			LikeCount:         record.LikeCount,
		})
	}
	return posts, nil
}

// DeleteSession removes an archived session from storage
func (c *S3Client) DeleteSession(ctx context.Context, key string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete session object: %w", err)
	}
	return nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (c *S3Client) EnsureBucket(ctx context.Context) error {
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err == nil {
		return nil
	}

	_, err = c.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// SessionKey derives the object key for a session started at the given time.
func SessionKey(startedAt time.Time) string {
	startedAt = startedAt.UTC()
	return fmt.Sprintf("sessions/%s/%s.jsonl",
		startedAt.Format("2006/01/02"), startedAt.Format("20060102T150405Z"))
}

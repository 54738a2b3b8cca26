package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"deribitarb/internal/domain"
)

// SegmentArchiver implements domain.SegmentArchiver on top of an S3 bucket.
// All keys are namespaced under the configured root prefix.
type SegmentArchiver struct {
	client   *Client
	uploader *manager.Uploader
	prefix   string
}

// NewSegmentArchiver creates a SegmentArchiver. The prefix may be empty, in
// which case segments are stored at the bucket root.
func NewSegmentArchiver(client *Client, prefix string) *SegmentArchiver {
	return &SegmentArchiver{
		client:   client,
		uploader: manager.NewUploader(client.S3()),
		prefix:   strings.Trim(prefix, "/"),
	}
}

func (a *SegmentArchiver) fullKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	if a.prefix == "" {
		return key
	}
	return a.prefix + "/" + key
}

// ArchiveSegment uploads one rotated tick segment and returns the object key
// it was stored under.
func (a *SegmentArchiver) ArchiveSegment(ctx context.Context, key string, data []byte) (string, error) {
	objectKey := a.fullKey(key)

	_, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.client.Bucket()),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/jsonl"),
	})
	if err != nil {
		return "", fmt.Errorf("s3blob: archive segment %s: %w", objectKey, err)
	}
	return objectKey, nil
}

// ListSegments returns the object keys stored under the given prefix,
// relative to the archiver's root prefix.
func (a *SegmentArchiver) ListSegments(ctx context.Context, prefix string) ([]string, error) {
	listPrefix := a.fullKey(prefix)

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(a.client.S3(), &s3.ListObjectsV2Input{
		Bucket: aws.String(a.client.Bucket()),
		Prefix: aws.String(listPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3blob: list segments %s: %w", listPrefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}
	return keys, nil
}

// PruneSegments deletes segments under the given prefix whose last-modified
// time is before the cutoff. It returns the number of objects removed.
func (a *SegmentArchiver) PruneSegments(ctx context.Context, prefix string, olderThan time.Time) (int, error) {
	listPrefix := a.fullKey(prefix)

	var stale []types.ObjectIdentifier
	paginator := s3.NewListObjectsV2Paginator(a.client.S3(), &s3.ListObjectsV2Input{
		Bucket: aws.String(a.client.Bucket()),
		Prefix: aws.String(listPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("s3blob: prune list %s: %w", listPrefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil || obj.LastModified == nil {
				continue
			}
			if obj.LastModified.Before(olderThan) {
				stale = append(stale, types.ObjectIdentifier{Key: obj.Key})
			}
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	deleted := 0
	// DeleteObjects accepts at most 1000 keys per call.
	for start := 0; start < len(stale); start += 1000 {
		end := min(start+1000, len(stale))
		out, err := a.client.S3().DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(a.client.Bucket()),
			Delete: &types.Delete{
				Objects: stale[start:end],
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return deleted, fmt.Errorf("s3blob: prune delete %s: %w", listPrefix, err)
		}
		deleted += end - start - len(out.Errors)
	}
	return deleted, nil
}

// Compile-time interface check.
var _ domain.SegmentArchiver = (*SegmentArchiver)(nil)

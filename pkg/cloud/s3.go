// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package cloud

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/dustin/go-humanize"
	cerrors "github.com/icrar/chiles02/pkg/errors"
	"github.com/icrar/chiles02/pkg/retry"
	"github.com/icrar/chiles02/pkg/workset"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

const listPageSize = 1000

// S3Store lists the objects of one bucket.
type S3Store struct {
	client s3iface.S3API
	bucket string
}

// NewS3Client creates an S3 client from the session and options.
func NewS3Client(sess *session.Session, opts *Options) s3iface.S3API {
	return s3.New(sess, opts.S3Config())
}

// NewS3Store creates a store over bucket.
func NewS3Store(client s3iface.S3API, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

// Bucket returns the bucket name.
func (s *S3Store) Bucket() string {
	return s.bucket
}

// ListObjects implements workset.ObjectLister. The whole listing is retried
// on transient failures; a missing bucket or a denied request is not retried.
func (s *S3Store) ListObjects(ctx context.Context, prefix string) ([]workset.ObjectInfo, error) {
	var objects []workset.ObjectInfo
	err := retry.Do(ctx, func() error {
		objects = objects[:0]
		input := &s3.ListObjectsV2Input{
			Bucket:  aws.String(s.bucket),
			MaxKeys: aws.Int64(listPageSize),
		}
		if prefix != "" {
			input.Prefix = aws.String(prefix)
		}
		return s.client.ListObjectsV2PagesWithContext(ctx, input,
			func(page *s3.ListObjectsV2Output, _ bool) bool {
				for _, obj := range page.Contents {
					objects = append(objects, workset.ObjectInfo{
						Key:  aws.StringValue(obj.Key),
						Size: aws.Int64Value(obj.Size),
					})
				}
				return true
			})
	}, retry.WithIsRetryableErr(isRetryableS3Err))
	if err != nil {
		log.Warn("list objects failed",
			zap.String("bucket", s.bucket), zap.String("prefix", prefix), zap.Error(err))
		return nil, cerrors.WrapError(cerrors.ErrRemoteStoreUnavailable, err, s.bucket, prefix)
	}

	var total int64
	for _, obj := range objects {
		total += obj.Size
	}
	log.Debug("list objects",
		zap.String("bucket", s.bucket), zap.String("prefix", prefix),
		zap.Int("count", len(objects)), zap.String("size", humanize.IBytes(uint64(total))))
	return objects, nil
}

func isRetryableS3Err(err error) bool {
	if errors.Cause(err) == context.Canceled || errors.Cause(err) == context.DeadlineExceeded {
		return false
	}
	switch errorCode(err) {
	case s3.ErrCodeNoSuchBucket, request.CanceledErrorCode, "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return false
	}
	return true
}

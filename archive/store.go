/*
Copyright © 2020 the ncnorm authors.
This file is part of ncnorm.

ncnorm is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

ncnorm is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with ncnorm.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package archive lays out normalized files in the campaign archive tree
// and locates and fetches input files.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/gcsblob"
	"gocloud.dev/blob/s3blob"
	"gocloud.dev/gcp"
)

// Store receives output files. Put calls write with a destination for the
// file named name in archive tier tier (e.g. "Level_2"). Nothing is left
// at the destination if write fails.
type Store interface {
	Put(ctx context.Context, tier, name string, write func(io.Writer) error) error
	// Location returns where Put stores the given file.
	Location(tier, name string) string
}

// Open returns the store rooted at root, which is either a local
// directory or a bucket URL of the form provider://bucket/prefix.
// The accepted providers are "file" for the local filesystem (e.g., for
// testing), "gs" for Google Cloud Storage, and "s3" for AWS S3.
func Open(ctx context.Context, root string) (Store, error) {
	if !IsBlob(root) {
		return &DirStore{Root: root}, nil
	}
	bucket, prefix, err := OpenBucket(ctx, root)
	if err != nil {
		return nil, err
	}
	return &BucketStore{Bucket: bucket, Prefix: prefix, URL: root}, nil
}

// DirStore stores files under a local directory, one subdirectory per
// tier. Files are written to a temporary name and renamed into place
// once complete.
type DirStore struct {
	Root string
}

// Location implements Store.
func (s *DirStore) Location(tier, name string) string {
	return filepath.Join(s.Root, tier, name)
}

// Put implements Store.
func (s *DirStore) Put(ctx context.Context, tier, name string, write func(io.Writer) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Join(s.Root, tier)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return fmt.Errorf("archive: creating tier directory: %v", err)
	}
	f, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("archive: %v", err)
	}
	tmp := f.Name()
	// CreateTemp opens with 0600; archived files are world readable.
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("archive: %v", err)
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("archive: writing %s: %v", name, err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, name)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("archive: %v", err)
	}
	return nil
}

// BucketStore stores files as blobs with keys prefix/tier/name.
// Uploads that fail are retried with exponential backoff.
type BucketStore struct {
	Bucket *blob.Bucket
	Prefix string
	// URL is the bucket URL the store was opened from.
	URL string

	// MaxElapsedTime bounds the time spent retrying one upload.
	// Zero means the backoff package default.
	MaxElapsedTime time.Duration

	Log logrus.FieldLogger
}

func (s *BucketStore) key(tier, name string) string {
	return path.Join(s.Prefix, tier, name)
}

// Location implements Store.
func (s *BucketStore) Location(tier, name string) string {
	u, err := url.Parse(s.URL)
	if err != nil {
		return s.key(tier, name)
	}
	return u.Scheme + "://" + path.Join(u.Host, u.Path, tier, name)
}

// Put implements Store. The file is assembled in memory so that it can
// be uploaded again after a failure.
func (s *BucketStore) Put(ctx context.Context, tier, name string, write func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return err
	}
	key := s.key(tier, name)
	b := backoff.NewExponentialBackOff()
	if s.MaxElapsedTime > 0 {
		b.MaxElapsedTime = s.MaxElapsedTime
	}
	log := s.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return backoff.RetryNotify(
		func() error {
			return writeBlob(ctx, s.Bucket, key, buf.Bytes())
		},
		backoff.WithContext(b, ctx),
		func(err error, d time.Duration) {
			log.WithFields(logrus.Fields{"key": key, "retry_in": d}).Warn(err)
		},
	)
}

// Close closes the underlying bucket.
func (s *BucketStore) Close() error {
	return s.Bucket.Close()
}

// writeBlob writes the given data to the given bucket. The blob is only
// committed if all data is copied.
func writeBlob(ctx context.Context, bucket *blob.Bucket, key string, data []byte) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w, err := bucket.NewWriter(ctx, key, &blob.WriterOptions{})
	if err != nil {
		return fmt.Errorf("archive: creating writer for blob %s: %v", key, err)
	}
	if _, err = io.Copy(w, bytes.NewReader(data)); err != nil {
		cancel()
		w.Close()
		return fmt.Errorf("archive: copying blob %s: %v", key, err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("archive: writing blob %s: %v", key, err)
	}
	return nil
}

// IsBlob returns whether the given path represents a blob
// (i.e., if it starts with `gs://`, 's3://', or 'file://').
func IsBlob(path string) bool {
	return strings.HasPrefix(path, "gs://") || strings.HasPrefix(path, "s3://") || strings.HasPrefix(path, "file://")
}

// OpenBucket opens the bucket named in bucketURL and returns it along
// with the key prefix given by the rest of the URL path. For "file"
// URLs the whole path is the bucket directory and the prefix is empty.
func OpenBucket(ctx context.Context, bucketURL string) (*blob.Bucket, string, error) {
	u, err := url.Parse(bucketURL)
	if err != nil {
		return nil, "", fmt.Errorf("archive.OpenBucket: %v", err)
	}
	prefix := strings.Trim(u.Path, "/")
	var b *blob.Bucket
	switch u.Scheme {
	case "file":
		dir := filepath.FromSlash(u.Host + u.Path)
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return nil, "", fmt.Errorf("archive.OpenBucket: %v", err)
		}
		b, err = fileblob.OpenBucket(dir, nil)
		prefix = ""
	case "gs":
		b, err = gsBucket(ctx, u.Host)
	case "s3":
		b, err = s3Bucket(ctx, u.Host)
	default:
		return nil, "", fmt.Errorf("archive.OpenBucket: invalid provider %s", u.Scheme)
	}
	if err != nil {
		return nil, "", fmt.Errorf("archive.OpenBucket: %v", err)
	}
	return b, prefix, nil
}

func gsBucket(ctx context.Context, name string) (*blob.Bucket, error) {
	// See here for information on credentials:
	// https://cloud.google.com/docs/authentication/getting-started
	creds, err := gcp.DefaultCredentials(ctx)
	if err != nil {
		return nil, err
	}
	c, err := gcp.NewHTTPClient(gcp.DefaultTransport(), gcp.CredentialsTokenSource(creds))
	if err != nil {
		return nil, err
	}
	return gcsblob.OpenBucket(ctx, c, name, nil)
}

// s3Bucket opens an s3 storage bucket. It assumes the following
// environment variables are set: AWS_REGION, AWS_ACCESS_KEY_ID, and
// AWS_SECRET_ACCESS_KEY.
func s3Bucket(ctx context.Context, name string) (*blob.Bucket, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-2"
	}
	c := &aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewEnvCredentials(),
	}
	s, err := session.NewSession(c)
	if err != nil {
		return nil, err
	}
	return s3blob.OpenBucket(ctx, s, name, nil)
}

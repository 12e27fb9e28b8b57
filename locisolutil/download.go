/*
Copyright © 2026 the locisol authors.
This file is part of locisol.

locisol is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

locisol is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with locisol.  If not, see <http://www.gnu.org/licenses/>.
*/


package locisolutil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/cenkalti/backoff"
	"github.com/google/go-cloud/blob"
	"github.com/google/go-cloud/blob/fileblob"
	"github.com/google/go-cloud/blob/gcsblob"
	"github.com/google/go-cloud/blob/s3blob"
	"github.com/google/go-cloud/gcp"
	"github.com/sirupsen/logrus"
)

// maxFetchTime bounds the retries of a single download or upload.
const maxFetchTime = 2 * time.Minute

// maybeDownload checks if the input is an existing file locally.
// If not, it checks if the file is a URL or a blob storage location.
// If it is, it downloads the file and returns the path to the
// downloaded file. For shapefiles, it downloads all associated files and
// returns the path to the file with the ".shp" extension.
func maybeDownload(ctx context.Context, path string, log logrus.FieldLogger) (string, error) {
	// Check if local file exists. If it does, return the given path.
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return path, nil
	}
	var fetch func(ctx context.Context, src string, w io.Writer) error
	switch {
	case strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://"):
		fetch = fetchHTTP
	case IsBlob(path):
		u, err := url.Parse(path)
		if err != nil {
			return path, fmt.Errorf("locisol: parsing %s: %v", path, err)
		}
		bucket, err := OpenBucket(ctx, u.Scheme+"://"+u.Host)
		if err != nil {
			return path, fmt.Errorf("locisol: opening bucket for %s: %v", path, err)
		}
		fetch = func(ctx context.Context, src string, w io.Writer) error {
			su, err := url.Parse(src)
			if err != nil {
				return backoff.Permanent(err)
			}
			r, err := bucket.NewReader(ctx, strings.TrimPrefix(su.Path, "/"))
			if err != nil {
				return err
			}
			defer r.Close()
			_, err = io.Copy(w, r)
			return err
		}
	default:
		return path, nil
	}

	// Prepare a temporary directory for the downloads.
	dir, err := os.MkdirTemp("", "locisol")
	if err != nil {
		return path, fmt.Errorf("locisol: creating temporary download directory: %v", err)
	}
	fnames := expandShp(path)
	for i, fname := range fnames {
		dst := filepath.Join(dir, filepath.Base(fname))
		log.WithFields(logrus.Fields{"source": fname, "destination": dst}).Info("downloading")
		err := retry(ctx, log, func() error {
			w, err := os.Create(dst)
			if err != nil {
				return backoff.Permanent(err)
			}
			if err := fetch(ctx, fname, w); err != nil {
				w.Close()
				return err
			}
			return w.Close()
		})
		if err != nil {
			if i > 0 && strings.HasSuffix(fname, ".prj") {
				// The projection file is optional.
				os.Remove(dst)
				continue
			}
			return path, fmt.Errorf("locisol: downloading %s: %v", fname, err)
		}
	}
	return filepath.Join(dir, filepath.Base(fnames[0])), nil
}

type httpStatusError struct {
	url    string
	status int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("GET %s: %s", e.url, http.StatusText(e.status))
}

func fetchHTTP(ctx context.Context, src string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err := &httpStatusError{url: src, status: resp.StatusCode}
		if resp.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

// retry runs op with exponential backoff until it succeeds, returns a
// permanent error, or maxFetchTime passes.
func retry(ctx context.Context, log logrus.FieldLogger, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxFetchTime
	return backoff.RetryNotify(op, backoff.WithContext(b, ctx), func(err error, d time.Duration) {
		log.WithError(err).Warnf("retrying in %v", d)
	})
}

// IsBlob returns whether the given filename represents a blob.
// (i.e., if it starts with `gs://`, 's3://', or 'file://').
func IsBlob(path string) bool {
	return strings.HasPrefix(path, "gs://") || strings.HasPrefix(path, "s3://") || strings.HasPrefix(path, "file://")
}

// OpenBucket returns the blob storage bucket specified by bucketName,
// where bucketName must be in the format 'provider://name' where provider
// is the name of the storage provider and name is the name of the bucket.
// Even if name contains subdirectories, only the base directory name will be
// used when opening the bucket.
// The currently accepted storage providers are "file" for the local filesystem
// (e.g., for testing), "gs" for Google Cloud Storage, and "s3" for AWS S3.
func OpenBucket(ctx context.Context, bucketName string) (*blob.Bucket, error) {
	u, err := url.Parse(bucketName)
	if err != nil {
		return nil, fmt.Errorf("locisolutil.OpenBucket: %v", err)
	}
	switch u.Scheme {
	case "file":
		return fileblob.NewBucket(u.Hostname())
	case "gs":
		return gsBucket(ctx, u.Hostname())
	case "s3":
		return s3Bucket(ctx, u.Hostname())
	default:
		return nil, fmt.Errorf("locisolutil.OpenBucket: invalid provider %s", u.Scheme)
	}
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
	return gcsblob.OpenBucket(ctx, name, c)
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
	return s3blob.OpenBucket(ctx, s, name)
}

// expandShp returns the given file + associated [.dbf, .shx, .prj]
// files if the given file has the .shp extension, and returns the given
// file otherwise
func expandShp(filename string) []string {
	o := []string{filename}
	ext := filepath.Ext(filename)
	if ext != ".shp" {
		return o
	}
	for _, newExt := range []string{".dbf", ".shx", ".prj"} {
		o = append(o, filename[0:len(filename)-4]+newExt)
	}
	return o
}

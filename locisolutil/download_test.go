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
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func helperLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestMaybeDownloadLocal(t *testing.T) {
	ctx := context.Background()
	for _, path := range []string{"/dev/null", "/blah/test/"} {
		k, err := maybeDownload(ctx, path, helperLog())
		require.NoError(t, err)
		assert.Equal(t, path, k)
	}
}

func TestMaybeDownloadHTTP(t *testing.T) {
	dir := t.TempDir()
	writeInputs(t, dir)
	srv := httptest.NewServer(http.FileServer(http.Dir(dir)))
	defer srv.Close()
	ctx := context.Background()

	k, err := maybeDownload(ctx, srv.URL+"/grid.shp", helperLog())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(k, "grid.shp"), k)
	assert.NotEqual(t, filepath.Join(dir, "grid.shp"), k)
	for _, ext := range []string{".shp", ".dbf", ".shx"} {
		want, err := os.ReadFile(filepath.Join(dir, "grid"+ext))
		require.NoError(t, err)
		have, err := os.ReadFile(strings.TrimSuffix(k, ".shp") + ext)
		require.NoError(t, err)
		assert.Equal(t, want, have, ext)
	}
	// There is no projection file to download.
	_, err = os.Stat(strings.TrimSuffix(k, ".shp") + ".prj")
	assert.True(t, os.IsNotExist(err))

	start := time.Now()
	_, err = maybeDownload(ctx, srv.URL+"/none.ncf", helperLog())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Not Found")
	assert.True(t, time.Since(start) < maxFetchTime/2, "client errors should not be retried")
}

func TestMaybeDownloadRetry(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, "cost")
	}))
	defer srv.Close()

	k, err := maybeDownload(context.Background(), srv.URL+"/cost.ncf", helperLog())
	require.NoError(t, err)
	b, err := os.ReadFile(k)
	require.NoError(t, err)
	assert.Equal(t, "cost", string(b))
	assert.Equal(t, 3, calls)
}

func TestMaybeDownloadCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := maybeDownload(ctx, srv.URL+"/cost.ncf", helperLog())
	assert.Error(t, err)
}

func TestBlobRoundTrip(t *testing.T) {
	dir := t.TempDir()
	oldWD, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(oldWD) })
	require.NoError(t, os.Mkdir("bucket", 0755))
	ctx := context.Background()

	var u uploader
	local := u.maybeUpload("file://bucket/hmi.csv")
	require.NoError(t, u.err)
	assert.NotEqual(t, "file://bucket/hmi.csv", local)
	assert.Equal(t, "local.csv", u.maybeUpload("local.csv"))
	require.NoError(t, os.WriteFile(local, []byte("id,region_code,avlcpcost\n"), 0644))
	// Files that were never written are skipped.
	u.maybeUpload("file://bucket/errors.csv")
	require.NoError(t, u.uploadOutput(ctx, helperLog()))

	b, err := os.ReadFile(filepath.Join("bucket", "hmi.csv"))
	require.NoError(t, err)
	assert.Equal(t, "id,region_code,avlcpcost\n", string(b))
	_, err = os.Stat(filepath.Join("bucket", "errors.csv"))
	assert.True(t, os.IsNotExist(err))

	k, err := maybeDownload(ctx, "file://bucket/hmi.csv", helperLog())
	require.NoError(t, err)
	b, err = os.ReadFile(k)
	require.NoError(t, err)
	assert.Equal(t, "id,region_code,avlcpcost\n", string(b))
}

func TestIsBlob(t *testing.T) {
	for path, want := range map[string]bool{
		"gs://bucket/grid.shp": true,
		"s3://bucket/grid.shp": true,
		"file://bucket/x":      true,
		"http://host/x":        false,
		"/tmp/grid.shp":        false,
	} {
		assert.Equal(t, want, IsBlob(path), path)
	}
	_, err := OpenBucket(context.Background(), "ftp://bucket")
	assert.Error(t, err)
}

func TestExpandShp(t *testing.T) {
	assert.Equal(t, []string{"a/grid.shp", "a/grid.dbf", "a/grid.shx", "a/grid.prj"}, expandShp("a/grid.shp"))
	assert.Equal(t, []string{"cost.ncf"}, expandShp("cost.ncf"))
}

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

package archive

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
)

// DateFormat is the layout substituted for [DATE] in file templates.
const DateFormat = "20060102"

// Candidate is the result of a FirstExisting lookup.
type Candidate struct {
	// Path is the first existing candidate, or "" if none exists.
	Path  string
	Found bool
}

// FirstExisting returns the first of candidates that exists as a local
// file.
func FirstExisting(candidates []string) Candidate {
	for _, c := range candidates {
		if fi, err := os.Stat(c); err == nil && !fi.IsDir() {
			return Candidate{Path: c, Found: true}
		}
	}
	return Candidate{}
}

// Expand replaces every [DATE] in template with date formatted as
// YYYYMMDD.
func Expand(template string, date time.Time) string {
	return strings.Replace(template, "[DATE]", date.Format(DateFormat), -1)
}

// Fetch returns a local path holding the file at path. Existing local
// files are returned as-is; http(s) URLs and blob URLs are downloaded
// into a temporary directory.
func Fetch(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	switch {
	case strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://"):
		return downloadHTTP(ctx, path)
	case IsBlob(path):
		return downloadBlob(ctx, path)
	}
	return "", fmt.Errorf("archive: input file %s does not exist", path)
}

// downloadHTTP downloads a file from the specified URL and returns
// the path to the downloaded file.
func downloadHTTP(ctx context.Context, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", fmt.Errorf("archive: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("archive: downloading %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("archive: downloading %s: %s", path, resp.Status)
	}
	u, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("archive: %v", err)
	}
	return saveTemp(filepath.Base(u.Path), resp.Body)
}

// downloadBlob downloads the specified file from blob storage.
func downloadBlob(ctx context.Context, path string) (string, error) {
	u, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("archive: %v", err)
	}
	var bucket, key string
	if u.Scheme == "file" {
		bucket, key = u.Scheme+"://"+filepath.ToSlash(filepath.Dir(u.Host+u.Path)), filepath.Base(u.Path)
	} else {
		bucket, key = u.Scheme+"://"+u.Host, strings.TrimPrefix(u.Path, "/")
	}
	b, _, err := OpenBucket(ctx, bucket)
	if err != nil {
		return "", err
	}
	defer b.Close()
	r, err := b.NewReader(ctx, key, nil)
	if err != nil {
		return "", fmt.Errorf("archive: reading blob %s: %v", path, err)
	}
	defer r.Close()
	return saveTemp(filepath.Base(key), r)
}

func saveTemp(name string, r io.Reader) (string, error) {
	dir, err := os.MkdirTemp("", "ncnorm")
	if err != nil {
		return "", fmt.Errorf("archive: failed creating temporary download directory: %v", err)
	}
	fname := filepath.Join(dir, name)
	w, err := os.Create(fname)
	if err != nil {
		return "", fmt.Errorf("archive: failed creating file for download: %v", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return "", fmt.Errorf("archive: downloading %s: %v", name, err)
	}
	return fname, w.Close()
}

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
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDirStore(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := Open(ctx, root)
	if err != nil {
		t.Fatal(err)
	}
	err = s.Put(ctx, "Level_2", "a.nc", func(w io.Writer) error {
		_, err := io.WriteString(w, "data")
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(filepath.Join(root, "Level_2", "a.nc"))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "data" {
		t.Errorf("contents = %q", b)
	}
	fi, err := os.Stat(filepath.Join(root, "Level_2", "a.nc"))
	if err != nil {
		t.Fatal(err)
	}
	if perm := fi.Mode().Perm(); perm != 0o644 {
		t.Errorf("mode = %v", perm)
	}
	if loc := s.Location("Level_2", "a.nc"); loc != filepath.Join(root, "Level_2", "a.nc") {
		t.Errorf("location = %s", loc)
	}

	t.Run("failed write", func(t *testing.T) {
		fail := errors.New("no variable")
		err := s.Put(ctx, "Level_3", "b.nc", func(w io.Writer) error {
			io.WriteString(w, "partial")
			return fail
		})
		if err != fail {
			t.Fatalf("err = %v", err)
		}
		entries, err := os.ReadDir(filepath.Join(root, "Level_3"))
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 0 {
			t.Errorf("left behind %v", entries)
		}
	})
}

func TestBucketStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := Open(ctx, "file://"+filepath.ToSlash(dir))
	if err != nil {
		t.Fatal(err)
	}
	bs, ok := s.(*BucketStore)
	if !ok {
		t.Fatalf("store has type %T", s)
	}
	defer bs.Close()
	bs.MaxElapsedTime = time.Second

	err = s.Put(ctx, "Level_3", "c.nc", func(w io.Writer) error {
		_, err := io.WriteString(w, "blob data")
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	b, err := bs.Bucket.ReadAll(ctx, "Level_3/c.nc")
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "blob data" {
		t.Errorf("contents = %q", b)
	}
	if loc := s.Location("Level_3", "c.nc"); loc != "file://"+filepath.ToSlash(dir)+"/Level_3/c.nc" {
		t.Errorf("location = %s", loc)
	}

	// The uploaded blob can be fetched back.
	local, err := Fetch(ctx, s.Location("Level_3", "c.nc"))
	if err != nil {
		t.Fatal(err)
	}
	if b, _ := os.ReadFile(local); string(b) != "blob data" {
		t.Errorf("fetched %q", b)
	}
}

func TestOpenBucketInvalidProvider(t *testing.T) {
	if _, _, err := OpenBucket(context.Background(), "ftp://x"); err == nil {
		t.Error("expected an error")
	}
}

func TestFirstExisting(t *testing.T) {
	dir := t.TempDir()
	second := filepath.Join(dir, "CAS_20200131.cdf")
	if err := os.WriteFile(second, nil, 0644); err != nil {
		t.Fatal(err)
	}
	c := FirstExisting([]string{filepath.Join(dir, "CAS_20200131.nc"), second, dir})
	if !c.Found || c.Path != second {
		t.Errorf("got %+v", c)
	}
	if c := FirstExisting([]string{dir, filepath.Join(dir, "x")}); c.Found || c.Path != "" {
		t.Errorf("got %+v", c)
	}
}

func TestExpand(t *testing.T) {
	got := Expand("data/[DATE]/CAS_[DATE].nc", time.Date(2020, 2, 9, 0, 0, 0, 0, time.UTC))
	if want := "data/20200209/CAS_20200209.nc"; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestFetchLocal(t *testing.T) {
	if k, err := Fetch(context.Background(), "/dev/null"); err != nil || k != "/dev/null" {
		t.Errorf("got %s, %v", k, err)
	}
	if _, err := Fetch(context.Background(), "/blah/test.nc"); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestFetchHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/flight/20200117_A.nc" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, "netcdf")
	}))
	defer srv.Close()

	k, err := Fetch(context.Background(), srv.URL+"/flight/20200117_A.nc")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(k, "20200117_A.nc") {
		t.Errorf("path = %s", k)
	}
	if b, _ := os.ReadFile(k); string(b) != "netcdf" {
		t.Errorf("contents = %q", b)
	}
	if _, err := Fetch(context.Background(), srv.URL+"/missing.nc"); err == nil {
		t.Error("expected an error for a 404")
	}
}

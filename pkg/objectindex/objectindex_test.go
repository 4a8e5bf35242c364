// Copyright 2023 The Colossus Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package objectindex_test

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/joystream/colossus/pkg/objectindex"
	"github.com/spf13/afero"
)

const (
	uploadDir = "/uploads"
	tempDir   = "temp"
)

func newFs(t *testing.T, files ...string) afero.Fs {
	t.Helper()

	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll(filepath.Join(uploadDir, tempDir), 0755); err != nil {
		t.Fatal(err)
	}
	for _, f := range files {
		if err := afero.WriteFile(fs, filepath.Join(uploadDir, f), []byte(f), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return fs
}

func TestListIDs(t *testing.T) {
	t.Parallel()

	fs := newFs(t, "1", "2", "3", "temp/inflight")
	if err := fs.MkdirAll(filepath.Join(uploadDir, "nested"), 0755); err != nil {
		t.Fatal(err)
	}

	got, err := objectindex.ListIDs(fs, uploadDir, tempDir)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]struct{}{"1": {}, "2": {}, "3": {}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ListIDs mismatch (-want +have):\n%s", diff)
	}
}

func TestListIDsMissingDir(t *testing.T) {
	t.Parallel()

	if _, err := objectindex.ListIDs(afero.NewMemMapFs(), "/nowhere", tempDir); err == nil {
		t.Fatal("expected error")
	}
}

func TestIndex(t *testing.T) {
	t.Parallel()

	idx := objectindex.New(newFs(t, "b", "a"))
	if err := idx.Load(uploadDir, tempDir); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"a", "b"}, idx.SortedIDs()); diff != "" {
		t.Errorf("SortedIDs mismatch (-want +have):\n%s", diff)
	}

	idx.Add("c")
	idx.Add("c")
	idx.Remove("a")
	idx.Remove("missing")

	if idx.Has("a") {
		t.Error("removed id still present")
	}
	if !idx.Has("c") {
		t.Error("added id not present")
	}
	if got := idx.Len(); got != 2 {
		t.Errorf("got len %d, want 2", got)
	}
}

func TestIndexIDsIsCopy(t *testing.T) {
	t.Parallel()

	idx := objectindex.New(afero.NewMemMapFs())
	idx.Add("a")

	ids := idx.IDs()
	ids["b"] = struct{}{}
	delete(ids, "a")

	if !idx.Has("a") || idx.Has("b") {
		t.Error("mutating the returned set changed the index")
	}
}

func TestIndexLoadErrorKeepsState(t *testing.T) {
	t.Parallel()

	idx := objectindex.New(afero.NewMemMapFs())
	idx.Add("a")

	if err := idx.Load("/nowhere", tempDir); err == nil {
		t.Fatal("expected error")
	}
	if !idx.Has("a") {
		t.Error("failed load changed the index")
	}
}

func TestIndexConcurrent(t *testing.T) {
	t.Parallel()

	idx := objectindex.New(afero.NewMemMapFs())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := fmt.Sprintf("%d-%d", i, j)
				idx.Add(id)
				_ = idx.IDs()
				if j%2 == 0 {
					idx.Remove(id)
				}
			}
		}(i)
	}
	wg.Wait()

	if got := idx.Len(); got != 500 {
		t.Errorf("got len %d, want 500", got)
	}
}

// Copyright 2023 The Colossus Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package objectindex keeps track of the data objects that are present in
// the local upload directory.
//
// The upload directory holds one file per object, named by the object id.
// The temporary directory inside it holds in-flight writes and is never
// part of the index.
package objectindex

import (
	"fmt"
	"sort"
	"sync"

	"github.com/spf13/afero"
)

// ListIDs scans uploadDir and returns the names of all regular files in it.
// The entry named tempDirName and any other directory are skipped.
func ListIDs(fs afero.Fs, uploadDir, tempDirName string) (map[string]struct{}, error) {
	infos, err := afero.ReadDir(fs, uploadDir)
	if err != nil {
		return nil, fmt.Errorf("read upload dir %s: %w", uploadDir, err)
	}
	ids := make(map[string]struct{}, len(infos))
	for _, fi := range infos {
		if fi.Name() == tempDirName || fi.IsDir() {
			continue
		}
		ids[fi.Name()] = struct{}{}
	}
	return ids, nil
}

// Index is an in-memory mirror of the object ids stored in the upload
// directory. It is safe for concurrent use.
type Index struct {
	fs  afero.Fs
	mu  sync.Mutex
	ids map[string]struct{}
}

// New returns an empty Index that reads directories from fs.
func New(fs afero.Fs) *Index {
	return &Index{
		fs:  fs,
		ids: make(map[string]struct{}),
	}
}

// Load replaces the content of the index with the ids found in uploadDir.
// On error the index is left unchanged.
func (i *Index) Load(uploadDir, tempDirName string) error {
	ids, err := ListIDs(i.fs, uploadDir, tempDirName)
	if err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	i.ids = ids
	return nil
}

// IDs returns a copy of the current id set.
func (i *Index) IDs() map[string]struct{} {
	i.mu.Lock()
	defer i.mu.Unlock()

	ids := make(map[string]struct{}, len(i.ids))
	for id := range i.ids {
		ids[id] = struct{}{}
	}
	return ids
}

// SortedIDs returns the current ids in lexical order.
func (i *Index) SortedIDs() []string {
	i.mu.Lock()
	defer i.mu.Unlock()

	ids := make([]string, 0, len(i.ids))
	for id := range i.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (i *Index) Has(id string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	_, ok := i.ids[id]
	return ok
}

func (i *Index) Add(id string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.ids[id] = struct{}{}
}

func (i *Index) Remove(id string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	delete(i.ids, id)
}

func (i *Index) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()

	return len(i.ids)
}

// Copyright 2023 The Colossus Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package synchronizer

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// ResetTempDir removes everything left in the temporary directory by a
// previous process and recreates it empty. It must only be called before
// any download is started.
func ResetTempDir(fs afero.Fs, uploadDir, tempDirName string) error {
	dir := filepath.Join(uploadDir, tempDirName)
	if err := fs.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove temp dir: %w", err)
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	return nil
}

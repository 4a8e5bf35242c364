// Copyright 2023 The Colossus Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package api

import (
	"net/http"

	"github.com/joystream/colossus/pkg/jsonhttp"
)

// syncListHandler lists the ids of all locally stored objects.
func (s *server) syncListHandler(w http.ResponseWriter, r *http.Request) {
	jsonhttp.OK(w, s.index.SortedIDs())
}

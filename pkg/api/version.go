// Copyright 2023 The Colossus Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package api

import (
	"net/http"

	"github.com/joystream/colossus"
	"github.com/joystream/colossus/pkg/jsonhttp"
)

type versionResponse struct {
	Version string `json:"version"`
}

func (s *server) versionHandler(w http.ResponseWriter, r *http.Request) {
	jsonhttp.OK(w, versionResponse{
		Version: colossus.Version,
	})
}

// Copyright 2023 The Colossus Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debugapi

import (
	"net/http"

	"github.com/joystream/colossus/pkg/jsonhttp"
)

func (s *Service) syncStatusHandler(w http.ResponseWriter, _ *http.Request) {
	if s.syncStatus == nil {
		jsonhttp.ServiceUnavailable(w, "sync is disabled")
		return
	}
	jsonhttp.OK(w, s.syncStatus.Status())
}

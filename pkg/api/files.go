// Copyright 2023 The Colossus Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package api

import (
	"net/http"
	"path/filepath"

	"github.com/gorilla/mux"
	"github.com/joystream/colossus/pkg/jsonhttp"
	"github.com/joystream/colossus/pkg/tracing"
)

func (s *server) fileDownloadHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	// continue the trace of the downloading operator, if any
	ctx, _ := s.tracer.WithContextFromHTTPHeaders(r.Context(), r.Header)
	span, logger, _ := s.tracer.StartSpanFromContext(ctx, "api-file-download", s.logger)
	defer span.Finish()
	span.SetTag(tracing.TagObject, id)

	if !s.index.Has(id) {
		logger.Tracef("file download: object %s not found", id)
		jsonhttp.NotFound(w, "data object not found")
		return
	}

	f, err := s.fs.Open(filepath.Join(s.uploadDir, id))
	if err != nil {
		logger.Debugf("file download: open %s: %v", id, err)
		logger.Errorf("file download: open %s", id)
		jsonhttp.NotFound(w, "data object not found")
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		logger.Debugf("file download: stat %s: %v", id, err)
		logger.Errorf("file download: stat %s", id)
		jsonhttp.InternalServerError(w, nil)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Cache-Control", "max-age=31536000, immutable")
	http.ServeContent(w, r, id, fi.ModTime(), f)
}

// Copyright 2023 The Colossus Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/joystream/colossus/pkg/jsonhttp"
	"github.com/joystream/colossus/pkg/logging/httpaccess"
	"github.com/sirupsen/logrus"
	"resenje.org/web"
)

func (s *server) setupRouting() {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(jsonhttp.NotFoundHandler)

	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "Colossus storage node")
	})

	router.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "User-agent: *\nDisallow: /")
	})

	v1 := router.PathPrefix("/api/v1").Subrouter()

	v1.Handle("/sync", jsonhttp.MethodHandler{
		"GET": http.HandlerFunc(s.syncListHandler),
	})

	v1.Handle("/files/{id}", jsonhttp.MethodHandler{
		"GET":  http.HandlerFunc(s.fileDownloadHandler),
		"HEAD": http.HandlerFunc(s.fileDownloadHandler),
	})

	v1.Handle("/version", jsonhttp.MethodHandler{
		"GET": http.HandlerFunc(s.versionHandler),
	})

	s.Handler = web.ChainHandlers(
		httpaccess.NewHTTPAccessLogHandler(s.logger, logrus.InfoLevel, "api access"),
		handlers.CompressHandler,
		s.pageviewMetricsHandler,
		web.FinalHandler(router),
	)
}

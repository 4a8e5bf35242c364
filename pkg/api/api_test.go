// Copyright 2023 The Colossus Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package api_test

import (
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/joystream/colossus"
	"github.com/joystream/colossus/pkg/api"
	"github.com/joystream/colossus/pkg/jsonhttp"
	"github.com/joystream/colossus/pkg/jsonhttp/jsonhttptest"
	"github.com/joystream/colossus/pkg/logging"
	"github.com/joystream/colossus/pkg/objectindex"
	"github.com/joystream/colossus/pkg/tracing"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/spf13/afero"
	"resenje.org/web"
)

const uploadDir = "/uploads"

type testServerOptions struct {
	Files  map[string]string
	Tracer *tracing.Tracer
}

func newTestServer(t *testing.T, o testServerOptions) (*http.Client, *objectindex.Index) {
	t.Helper()

	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll(filepath.Join(uploadDir, "temp"), 0o755); err != nil {
		t.Fatal(err)
	}
	for id, content := range o.Files {
		if err := afero.WriteFile(fs, filepath.Join(uploadDir, id), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	index := objectindex.New(fs)
	if err := index.Load(uploadDir, "temp"); err != nil {
		t.Fatal(err)
	}

	s := api.New(index, fs, logging.New(ioutil.Discard, 0), api.Options{UploadDir: uploadDir, Tracer: o.Tracer})
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)

	return &http.Client{
		Transport: web.RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			u, err := url.Parse(ts.URL + r.URL.String())
			if err != nil {
				return nil, err
			}
			r.URL = u
			return ts.Client().Transport.RoundTrip(r)
		}),
	}, index
}

func TestSyncList(t *testing.T) {
	t.Parallel()

	client, index := newTestServer(t, testServerOptions{
		Files: map[string]string{"2": "two", "1": "one"},
	})

	jsonhttptest.Request(t, client, http.MethodGet, "/api/v1/sync", http.StatusOK,
		jsonhttptest.WithExpectedJSONResponse([]string{"1", "2"}),
	)

	index.Add("3")
	index.Remove("1")
	jsonhttptest.Request(t, client, http.MethodGet, "/api/v1/sync", http.StatusOK,
		jsonhttptest.WithExpectedJSONResponse([]string{"2", "3"}),
	)
}

func TestSyncListEmpty(t *testing.T) {
	t.Parallel()

	client, _ := newTestServer(t, testServerOptions{})

	jsonhttptest.Request(t, client, http.MethodGet, "/api/v1/sync", http.StatusOK,
		jsonhttptest.WithExpectedJSONResponse([]string{}),
	)
	jsonhttptest.Request(t, client, http.MethodPost, "/api/v1/sync", http.StatusMethodNotAllowed,
		jsonhttptest.WithExpectedJSONResponse(jsonhttp.StatusResponse{
			Message: http.StatusText(http.StatusMethodNotAllowed),
			Code:    http.StatusMethodNotAllowed,
		}),
	)
}

func TestFileDownload(t *testing.T) {
	t.Parallel()

	client, _ := newTestServer(t, testServerOptions{
		Files: map[string]string{"objA": "content of objA"},
	})

	header := jsonhttptest.Request(t, client, http.MethodGet, "/api/v1/files/objA", http.StatusOK,
		jsonhttptest.WithExpectedResponse([]byte("content of objA")),
	)
	if got := header.Get("Content-Type"); got != "application/octet-stream" {
		t.Errorf("got content type %q", got)
	}

	jsonhttptest.Request(t, client, http.MethodGet, "/api/v1/files/objB", http.StatusNotFound,
		jsonhttptest.WithExpectedJSONResponse(jsonhttp.StatusResponse{
			Message: "data object not found",
			Code:    http.StatusNotFound,
		}),
	)
}

func TestFileDownloadContinuesTrace(t *testing.T) {
	t.Parallel()

	mt := mocktracer.New()
	tracer := tracing.Wrap(mt)
	client, _ := newTestServer(t, testServerOptions{
		Files:  map[string]string{"objA": "content of objA"},
		Tracer: tracer,
	})

	// the downloading operator's span
	remote := mt.StartSpan("sync-download")
	header := make(http.Header)
	if err := mt.Inject(remote.Context(), opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(header)); err != nil {
		t.Fatal(err)
	}
	opts := []jsonhttptest.Option{jsonhttptest.WithExpectedResponse([]byte("content of objA"))}
	for k := range header {
		opts = append(opts, jsonhttptest.WithRequestHeader(k, header.Get(k)))
	}
	jsonhttptest.Request(t, client, http.MethodGet, "/api/v1/files/objA", http.StatusOK, opts...)

	// the handler finishes its span after the response is written
	var served *mocktracer.MockSpan
	for i := 0; i < 100 && served == nil; i++ {
		for _, s := range mt.FinishedSpans() {
			if s.OperationName == "api-file-download" {
				served = s
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	if served == nil {
		t.Fatal("no span for the served file")
	}
	if got := served.Tag(tracing.TagObject); got != "objA" {
		t.Errorf("got object tag %v", got)
	}
	if served.ParentID != remote.Context().(mocktracer.MockSpanContext).SpanID {
		t.Error("served span does not continue the remote trace")
	}
	remote.Finish()
}

func TestFileDownloadTempNotServed(t *testing.T) {
	t.Parallel()

	client, _ := newTestServer(t, testServerOptions{})

	jsonhttptest.Request(t, client, http.MethodGet, "/api/v1/files/temp", http.StatusNotFound)
}

func TestVersion(t *testing.T) {
	t.Parallel()

	client, _ := newTestServer(t, testServerOptions{})

	jsonhttptest.Request(t, client, http.MethodGet, "/api/v1/version", http.StatusOK,
		jsonhttptest.WithExpectedJSONResponse(struct {
			Version string `json:"version"`
		}{
			Version: colossus.Version,
		}),
	)
}

func TestNotFound(t *testing.T) {
	t.Parallel()

	client, _ := newTestServer(t, testServerOptions{})

	jsonhttptest.Request(t, client, http.MethodGet, "/api/v1/unknown", http.StatusNotFound,
		jsonhttptest.WithExpectedJSONResponse(jsonhttp.StatusResponse{
			Message: http.StatusText(http.StatusNotFound),
			Code:    http.StatusNotFound,
		}),
	)
}

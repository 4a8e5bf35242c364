// Copyright 2023 The Colossus Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joystream/colossus/pkg/availability"
	"github.com/joystream/colossus/pkg/logging"
	"github.com/joystream/colossus/pkg/objectindex"
	"github.com/joystream/colossus/pkg/tracing"
	"github.com/joystream/colossus/pkg/workqueue"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// FilesPath is the operator endpoint that serves object content.
const FilesPath = "api/v1/files"

// DefaultDownloadTimeout bounds a single object download.
const DefaultDownloadTimeout = 30 * time.Minute

// ErrDownloadStatus is returned when an operator answers a file request with
// a non-2xx status.
var ErrDownloadStatus = errors.New("unexpected download status")

var (
	_ workqueue.Task = (*DeleteLocalFileTask)(nil)
	_ workqueue.Task = (*DownloadFileTask)(nil)
	_ workqueue.Task = (*PrepareDownloadFileTask)(nil)
)

// FileURL returns the address of an object on an operator.
func FileURL(operatorURL, id string) string {
	return strings.TrimRight(operatorURL, "/") + "/" + FilesPath + "/" + url.PathEscape(id)
}

// DeleteLocalFileTask removes an object from the upload directory.
type DeleteLocalFileTask struct {
	FS        afero.Fs
	UploadDir string
	ID        string
	Index     *objectindex.Index
	Tracer    *tracing.Tracer

	metrics *metrics
}

func (t *DeleteLocalFileTask) Description() string {
	return fmt.Sprintf("Deleting local file: %s", t.ID)
}

// Execute returns the filesystem error, including when the file is already
// gone.
func (t *DeleteLocalFileTask) Execute(ctx context.Context) error {
	span, _, _ := t.Tracer.StartSpanFromContext(ctx, "sync-delete", nil)
	defer span.Finish()
	span.SetTag(tracing.TagObject, t.ID)

	if err := t.FS.Remove(filepath.Join(t.UploadDir, t.ID)); err != nil {
		markError(span, err)
		return fmt.Errorf("delete object %s: %w", t.ID, err)
	}
	if t.Index != nil {
		t.Index.Remove(t.ID)
	}
	t.metrics.objectDeleted()
	return nil
}

// DownloadFileTask fetches an object from an operator into the upload
// directory. The content is written to a temporary file first and renamed
// once complete, so the final name only ever holds complete objects.
type DownloadFileTask struct {
	Client      *http.Client
	FS          afero.Fs
	BaseURL     string
	ID          string
	UploadDir   string
	TempDirName string
	Timeout     time.Duration
	Index       *objectindex.Index
	Logger      logging.Logger
	Tracer      *tracing.Tracer

	metrics *metrics
}

func (t *DownloadFileTask) Description() string {
	return fmt.Sprintf("Sync - downloading file: %s from %s", t.ID, t.BaseURL)
}

// Execute never returns an error. A failed download is logged and its
// leftovers removed; the object stays missing until the next cycle.
func (t *DownloadFileTask) Execute(ctx context.Context) error {
	span, _, ctx := t.Tracer.StartSpanFromContext(ctx, "sync-download", nil)
	defer span.Finish()
	span.SetTag(tracing.TagObject, t.ID)
	span.SetTag(tracing.TagOperator, t.BaseURL)

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultDownloadTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tempPath := filepath.Join(t.UploadDir, t.TempDirName, uuid.NewString())
	finalPath := filepath.Join(t.UploadDir, t.ID)

	n, err := t.download(ctx, tempPath)
	if err == nil {
		err = t.FS.Rename(tempPath, finalPath)
	}
	if err != nil {
		markError(span, err)
		t.metrics.downloadFailed()
		t.Logger.WithFields(logrus.Fields{
			"object":   t.ID,
			"operator": t.BaseURL,
		}).Errorf("synchronizer: download: %v", err)

		if rerr := t.FS.Remove(tempPath); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			t.Logger.Debugf("synchronizer: remove temp file %s: %v", tempPath, rerr)
		}
		if rerr := t.FS.Remove(finalPath); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			t.Logger.Debugf("synchronizer: remove file %s: %v", finalPath, rerr)
		}
		return nil
	}

	if t.Index != nil {
		t.Index.Add(t.ID)
	}
	t.metrics.objectDownloaded(n)
	return nil
}

func (t *DownloadFileTask) download(ctx context.Context, path string) (int64, error) {
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, FileURL(t.BaseURL, t.ID), nil)
	if err != nil {
		return 0, err
	}
	_ = t.Tracer.AddContextHTTPHeader(ctx, req.Header)

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("%w: %s", ErrDownloadStatus, resp.Status)
	}

	f, err := t.FS.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("write %s: %w", path, err)
	}
	return n, nil
}

// PrepareDownloadFileTask looks for an operator that has the object and
// schedules its download. Candidates are probed in random order.
type PrepareDownloadFileTask struct {
	Candidates []string
	ID         string
	Prober     availability.Interface
	Sink       workqueue.Sink
	// Download is the task added to Sink, with BaseURL set to the first
	// candidate that lists the object.
	Download DownloadFileTask
	Logger   logging.Logger
	Tracer   *tracing.Tracer
}

func (t *PrepareDownloadFileTask) Description() string {
	return fmt.Sprintf("Sync - preparing for download of: %s", t.ID)
}

// Execute never returns an error. If no candidate has the object, a warning
// is logged and nothing is scheduled.
func (t *PrepareDownloadFileTask) Execute(ctx context.Context) error {
	span, _, ctx := t.Tracer.StartSpanFromContext(ctx, "sync-prepare-download", nil)
	defer span.Finish()
	span.SetTag(tracing.TagObject, t.ID)

	candidates := append([]string(nil), t.Candidates...)

	for len(candidates) > 0 {
		if ctx.Err() != nil {
			return nil
		}

		operatorURL := candidates[rand.Intn(len(candidates))]
		candidates = removeValue(candidates, operatorURL)

		ids, err := t.Prober.AvailableIDs(ctx, operatorURL)
		if err != nil {
			t.Logger.WithFields(logrus.Fields{
				"object":   t.ID,
				"operator": operatorURL,
			}).Debugf("synchronizer: probe: %v", err)
			continue
		}
		if !ids.Has(t.ID) {
			continue
		}

		span.SetTag(tracing.TagOperator, operatorURL)
		d := t.Download
		d.ID = t.ID
		d.BaseURL = operatorURL
		t.Sink.Add(&d)
		return nil
	}

	span.SetTag("found", false)
	t.Logger.Warningf("synchronizer: cannot get an operator URL for data object %s", t.ID)
	return nil
}

// removeValue returns s without any element equal to v. The order of the
// remaining elements is kept.
func removeValue(s []string, v string) []string {
	res := s[:0]
	for _, e := range s {
		if e != v {
			res = append(res, e)
		}
	}
	return res
}

func markError(span opentracing.Span, err error) {
	ext.Error.Set(span, true)
	span.LogKV("error", err.Error())
}

// Copyright 2023 The Colossus Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd_test

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joystream/colossus/cmd/colossus/cmd"
)

// newNetwork starts an operator that stores objA and a GraphQL endpoint
// that assigns objA to worker 1.
func newNetwork(t *testing.T) (indexerURL string) {
	t.Helper()

	peer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/sync":
			_ = json.NewEncoder(w).Encode([]string{"objA"})
		case "/api/v1/files/objA":
			_, _ = w.Write([]byte("content of objA"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(peer.Close)

	responses := map[string]interface{}{
		"storageBuckets": []map[string]interface{}{
			{"id": "1", "operatorMetadata": hex.EncodeToString([]byte(peer.URL)), "operatorStatus": map[string]interface{}{"workerId": 1}},
		},
		"storageBags": []map[string]interface{}{
			{"id": "bag:1", "storageBuckets": []map[string]string{{"id": "1"}}},
		},
		"storageDataObjects": []map[string]string{
			{"id": "objA", "storageBagId": "bag:1"},
		},
	}
	indexer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for field, data := range responses {
			if strings.Contains(req.Query, field+"(") {
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"data": map[string]interface{}{field: data},
				})
				return
			}
		}
		w.WriteHeader(http.StatusBadRequest)
	}))
	t.Cleanup(indexer.Close)

	return indexer.URL
}

func TestSyncCmd(t *testing.T) {
	uploadsDir, err := ioutil.TempDir("", "colossus-uploads-")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(uploadsDir)

	var outputBuf bytes.Buffer
	if err := newCommand(t,
		cmd.WithArgs("sync",
			"--worker-id", "1",
			"--uploads-dir", uploadsDir,
			"--query-node-endpoint", newNetwork(t),
			"--verbosity", "silent",
		),
		cmd.WithOutput(&outputBuf),
	).Execute(); err != nil {
		t.Fatal(err)
	}

	if got := outputBuf.String(); !strings.HasPrefix(got, "added 1, deleted 0 in ") {
		t.Errorf("got output %q", got)
	}

	b, err := ioutil.ReadFile(filepath.Join(uploadsDir, "objA"))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "content of objA" {
		t.Errorf("got content %q", b)
	}
}

func TestSyncCmdConfigFile(t *testing.T) {
	uploadsDir, err := ioutil.TempDir("", "colossus-uploads-")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(uploadsDir)

	cfgFile := filepath.Join(homeDir, "sync-config.yaml")
	config := "worker-id: 1\n" +
		"uploads-dir: " + uploadsDir + "\n" +
		"query-node-endpoint: " + newNetwork(t) + "\n" +
		"verbosity: silent\n"
	if err := ioutil.WriteFile(cfgFile, []byte(config), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := newCommand(t,
		cmd.WithArgs("sync"),
		cmd.WithCfgFile(cfgFile),
		cmd.WithOutput(ioutil.Discard),
	).Execute(); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(uploadsDir, "objA")); err != nil {
		t.Fatal(err)
	}
}

func TestSyncCmdWorkerIDRequired(t *testing.T) {
	err := newCommand(t,
		cmd.WithArgs("sync", "--verbosity", "silent"),
		cmd.WithOutput(ioutil.Discard),
	).Execute()
	if !errors.Is(err, cmd.ErrWorkerIDRequired) {
		t.Fatalf("got error %v, want %v", err, cmd.ErrWorkerIDRequired)
	}
}

func TestSyncCmdInvalidVerbosity(t *testing.T) {
	err := newCommand(t,
		cmd.WithArgs("sync", "--worker-id", "1", "--verbosity", "loud"),
		cmd.WithOutput(ioutil.Discard),
	).Execute()
	if err == nil || !strings.Contains(err.Error(), "unknown verbosity level") {
		t.Fatalf("got error %v", err)
	}
}

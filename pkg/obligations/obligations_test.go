// Copyright 2023 The Colossus Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obligations_test

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/ioutil"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/joystream/colossus/pkg/logging"
	"github.com/joystream/colossus/pkg/obligations"
	"github.com/joystream/colossus/pkg/querynode"
	"github.com/joystream/colossus/pkg/querynode/mock"
)

func metadata(url string) *string {
	s := "0x" + hex.EncodeToString([]byte(url))
	return &s
}

func worker(id int) *querynode.OperatorStatus {
	return &querynode.OperatorStatus{WorkerID: &id}
}

func bag(id string, buckets ...string) querynode.StorageBag {
	b := querynode.StorageBag{ID: id}
	for _, bucket := range buckets {
		b.StorageBuckets = append(b.StorageBuckets, querynode.BucketRef{ID: bucket})
	}
	return b
}

func newResolver(qn querynode.Interface, pageSize int) *obligations.Resolver {
	return obligations.New(qn, pageSize, logging.New(ioutil.Discard, 0))
}

func TestResolve(t *testing.T) {
	t.Parallel()

	bad := "0xzz"
	qn := mock.New(
		mock.WithBuckets(
			querynode.StorageBucket{ID: "1", OperatorMetadata: metadata("http://peer1"), OperatorStatus: worker(1)},
			querynode.StorageBucket{ID: "2", OperatorMetadata: metadata("http://peer2"), OperatorStatus: worker(2)},
			querynode.StorageBucket{ID: "3", OperatorMetadata: &bad, OperatorStatus: worker(3)},
			querynode.StorageBucket{ID: "4"},
		),
		mock.WithBags(
			bag("bag:1", "1", "2"),
			bag("bag:2", "2"),
			bag("bag:3", "1", "3", "99"),
		),
		mock.WithDataObjects(
			querynode.DataObject{ID: "a", StorageBagID: "bag:1"},
			querynode.DataObject{ID: "b", StorageBagID: "bag:2"},
			querynode.DataObject{ID: "c", StorageBagID: "bag:3"},
		),
	)

	got, err := newResolver(qn, 2).Resolve(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}

	one, two, three := 1, 2, 3
	want := obligations.Snapshot{
		Buckets: []obligations.Bucket{
			{ID: "1", OperatorURL: "http://peer1", WorkerID: &one},
			{ID: "2", OperatorURL: "http://peer2", WorkerID: &two},
			{ID: "3", WorkerID: &three},
			{ID: "4"},
		},
		Bags: []obligations.Bag{
			{ID: "bag:1", BucketIDs: []string{"1", "2"}},
			{ID: "bag:3", BucketIDs: []string{"1", "3", "99"}},
		},
		Objects: []obligations.DataObject{
			{ID: "a", BagID: "bag:1"},
			{ID: "c", BagID: "bag:3"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("snapshot mismatch (-want +have):\n%s", diff)
	}

	// 4 buckets with page size 2 need 3 requests.
	if calls := qn.Calls("storageBuckets"); calls != 3 {
		t.Errorf("got %d bucket queries, want 3", calls)
	}
}

func TestResolveNoBuckets(t *testing.T) {
	t.Parallel()

	qn := mock.New(
		mock.WithBuckets(querynode.StorageBucket{ID: "1", OperatorStatus: worker(2)}),
		mock.WithBags(bag("bag:1", "1")),
	)

	got, err := newResolver(qn, 10).Resolve(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Bags) != 0 || len(got.Objects) != 0 {
		t.Errorf("got %d bags and %d objects, want none", len(got.Bags), len(got.Objects))
	}
}

func TestResolveError(t *testing.T) {
	t.Parallel()

	errQuery := errors.New("indexer down")
	_, err := newResolver(mock.New(mock.WithError(errQuery)), 10).Resolve(context.Background(), 1)
	if !errors.Is(err, errQuery) {
		t.Fatalf("got error %v, want %v", err, errQuery)
	}
}

func TestResolveManyPages(t *testing.T) {
	t.Parallel()

	var objects []querynode.DataObject
	for i := 0; i < 2400; i++ {
		objects = append(objects, querynode.DataObject{ID: fmt.Sprint(i), StorageBagID: "bag:1"})
	}
	qn := mock.New(
		mock.WithBuckets(querynode.StorageBucket{ID: "1", OperatorStatus: worker(1)}),
		mock.WithBags(bag("bag:1", "1")),
		mock.WithDataObjects(objects...),
	)

	got, err := newResolver(qn, 1000).Resolve(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.RequiredIDs()) != 2400 {
		t.Errorf("got %d required ids, want 2400", len(got.RequiredIDs()))
	}
	if calls := qn.Calls("storageDataObjects"); calls != 3 {
		t.Errorf("got %d object queries, want 3", calls)
	}
}

func TestSnapshotSourceURLs(t *testing.T) {
	t.Parallel()

	s := obligations.Snapshot{
		Buckets: []obligations.Bucket{
			{ID: "1", OperatorURL: "http://peer1"},
			{ID: "2", OperatorURL: "http://peer1"},
			{ID: "3", OperatorURL: "http://peer3"},
			{ID: "4"},
		},
		Bags: []obligations.Bag{
			{ID: "bag:1", BucketIDs: []string{"1", "2", "3", "4", "missing"}},
			{ID: "bag:2", BucketIDs: []string{"4"}},
		},
		Objects: []obligations.DataObject{
			{ID: "a", BagID: "bag:1"},
			{ID: "b", BagID: "bag:2"},
		},
	}

	want := map[string][]string{
		"a": {"http://peer1", "http://peer3"},
		"b": {},
	}
	if diff := cmp.Diff(want, s.SourceURLs()); diff != "" {
		t.Errorf("source urls mismatch (-want +have):\n%s", diff)
	}

	wantIDs := map[string]struct{}{"a": {}, "b": {}}
	if diff := cmp.Diff(wantIDs, s.RequiredIDs()); diff != "" {
		t.Errorf("required ids mismatch (-want +have):\n%s", diff)
	}
}

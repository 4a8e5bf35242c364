// Copyright 2023 The Colossus Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package obligations resolves which data objects a storage worker is
// responsible for, based on the buckets it operates.
package obligations

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/joystream/colossus/pkg/logging"
	"github.com/joystream/colossus/pkg/querynode"
)

const DefaultPageSize = 1000

type Bucket struct {
	ID          string
	OperatorURL string
	WorkerID    *int
}

type Bag struct {
	ID        string
	BucketIDs []string
}

type DataObject struct {
	ID    string
	BagID string
}

// Snapshot is a consistent view of the obligations of one worker. It is
// built once per sync cycle and never modified.
type Snapshot struct {
	// Buckets holds every bucket known to the indexing service.
	Buckets []Bucket
	// Bags holds the bags stored by at least one bucket of the worker.
	Bags []Bag
	// Objects holds the accepted data objects of Bags.
	Objects []DataObject
}

// RequiredIDs returns the ids of all objects in the snapshot.
func (s Snapshot) RequiredIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(s.Objects))
	for _, o := range s.Objects {
		ids[o.ID] = struct{}{}
	}
	return ids
}

// SourceURLs returns, per object id, the distinct operator URLs of the
// buckets that store the object's bag. Buckets that are unknown or have no
// URL are skipped, so an object may map to no URL at all.
func (s Snapshot) SourceURLs() map[string][]string {
	bagURLs := s.bagURLs()
	res := make(map[string][]string, len(s.Objects))
	for _, o := range s.Objects {
		urls, ok := bagURLs[o.BagID]
		if !ok {
			urls = []string{}
		}
		res[o.ID] = urls
	}
	return res
}

func (s Snapshot) bagURLs() map[string][]string {
	bucketURLs := make(map[string]string, len(s.Buckets))
	for _, b := range s.Buckets {
		bucketURLs[b.ID] = b.OperatorURL
	}

	res := make(map[string][]string, len(s.Bags))
	for _, bag := range s.Bags {
		seen := make(map[string]struct{})
		urls := []string{}
		for _, id := range bag.BucketIDs {
			u := bucketURLs[id]
			if u == "" {
				continue
			}
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			urls = append(urls, u)
		}
		res[bag.ID] = urls
	}
	return res
}

// Resolver builds snapshots from the indexing service.
type Resolver struct {
	qn       querynode.Interface
	pageSize int
	logger   logging.Logger
}

func New(qn querynode.Interface, pageSize int, logger logging.Logger) *Resolver {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Resolver{
		qn:       qn,
		pageSize: pageSize,
		logger:   logger,
	}
}

// Resolve returns the obligations of the worker. Any failed page request
// fails the whole resolution.
func (r *Resolver) Resolve(ctx context.Context, workerID int) (Snapshot, error) {
	rawBuckets, err := querynode.FetchAll(ctx, r.pageSize, r.qn.StorageBuckets)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch storage buckets: %w", err)
	}

	buckets := make([]Bucket, 0, len(rawBuckets))
	var own []string
	for _, rb := range rawBuckets {
		b := Bucket{ID: rb.ID}
		if rb.OperatorMetadata != nil {
			b.OperatorURL = r.decodeOperatorURL(rb.ID, *rb.OperatorMetadata)
		}
		if rb.OperatorStatus != nil && rb.OperatorStatus.WorkerID != nil {
			id := *rb.OperatorStatus.WorkerID
			b.WorkerID = &id
			if id == workerID {
				own = append(own, b.ID)
			}
		}
		buckets = append(buckets, b)
	}

	rawBags, err := querynode.FetchAll(ctx, r.pageSize, func(ctx context.Context, offset, limit int) ([]querynode.StorageBag, error) {
		return r.qn.StorageBags(ctx, own, offset, limit)
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch storage bags: %w", err)
	}

	bags := make([]Bag, 0, len(rawBags))
	bagIDs := make([]string, 0, len(rawBags))
	for _, rb := range rawBags {
		bag := Bag{ID: rb.ID, BucketIDs: make([]string, 0, len(rb.StorageBuckets))}
		for _, ref := range rb.StorageBuckets {
			bag.BucketIDs = append(bag.BucketIDs, ref.ID)
		}
		bags = append(bags, bag)
		bagIDs = append(bagIDs, rb.ID)
	}

	rawObjects, err := querynode.FetchAll(ctx, r.pageSize, func(ctx context.Context, offset, limit int) ([]querynode.DataObject, error) {
		return r.qn.StorageDataObjects(ctx, bagIDs, offset, limit)
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch data objects: %w", err)
	}

	objects := make([]DataObject, 0, len(rawObjects))
	for _, ro := range rawObjects {
		objects = append(objects, DataObject{ID: ro.ID, BagID: ro.StorageBagID})
	}

	r.logger.Debugf("obligations: worker %d operates %d of %d buckets, %d bags, %d objects", workerID, len(own), len(buckets), len(bags), len(objects))

	return Snapshot{
		Buckets: buckets,
		Bags:    bags,
		Objects: objects,
	}, nil
}

// decodeOperatorURL decodes hex encoded operator metadata. Invalid metadata
// is logged and yields an empty URL.
func (r *Resolver) decodeOperatorURL(bucketID, metadata string) string {
	b, err := hex.DecodeString(strings.TrimPrefix(metadata, "0x"))
	if err != nil {
		r.logger.Warningf("obligations: invalid operator metadata for bucket %s: %v", bucketID, err)
		return ""
	}
	return strings.TrimSpace(string(b))
}

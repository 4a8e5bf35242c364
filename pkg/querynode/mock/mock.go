// Copyright 2023 The Colossus Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mock

import (
	"context"
	"sync"

	"github.com/joystream/colossus/pkg/querynode"
)

var _ querynode.Interface = (*QueryNode)(nil)

// QueryNode serves buckets, bags and data objects from memory and applies
// the same filters as the indexing service.
type QueryNode struct {
	mtx     sync.Mutex
	buckets []querynode.StorageBucket
	bags    []querynode.StorageBag
	objects []querynode.DataObject
	err     error
	calls   map[string]int
}

type Option interface {
	apply(*QueryNode)
}
type optionFunc func(*QueryNode)

func (f optionFunc) apply(q *QueryNode) { f(q) }

func WithBuckets(b ...querynode.StorageBucket) Option {
	return optionFunc(func(q *QueryNode) {
		q.buckets = append(q.buckets, b...)
	})
}

func WithBags(b ...querynode.StorageBag) Option {
	return optionFunc(func(q *QueryNode) {
		q.bags = append(q.bags, b...)
	})
}

func WithDataObjects(o ...querynode.DataObject) Option {
	return optionFunc(func(q *QueryNode) {
		q.objects = append(q.objects, o...)
	})
}

// WithError makes every query fail with err.
func WithError(err error) Option {
	return optionFunc(func(q *QueryNode) {
		q.err = err
	})
}

func New(opts ...Option) *QueryNode {
	q := &QueryNode{calls: make(map[string]int)}
	for _, o := range opts {
		o.apply(q)
	}
	return q
}

// Calls returns how many times the named query was called.
func (q *QueryNode) Calls(query string) int {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	return q.calls[query]
}

func (q *QueryNode) StorageBuckets(_ context.Context, offset, limit int) ([]querynode.StorageBucket, error) {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	q.calls["storageBuckets"]++
	if q.err != nil {
		return nil, q.err
	}
	return page(q.buckets, offset, limit), nil
}

func (q *QueryNode) StorageBags(_ context.Context, bucketIDs []string, offset, limit int) ([]querynode.StorageBag, error) {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	q.calls["storageBags"]++
	if q.err != nil {
		return nil, q.err
	}
	in := set(bucketIDs)
	var res []querynode.StorageBag
	for _, b := range q.bags {
		for _, ref := range b.StorageBuckets {
			if _, ok := in[ref.ID]; ok {
				res = append(res, b)
				break
			}
		}
	}
	return page(res, offset, limit), nil
}

func (q *QueryNode) StorageDataObjects(_ context.Context, bagIDs []string, offset, limit int) ([]querynode.DataObject, error) {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	q.calls["storageDataObjects"]++
	if q.err != nil {
		return nil, q.err
	}
	in := set(bagIDs)
	var res []querynode.DataObject
	for _, o := range q.objects {
		if _, ok := in[o.StorageBagID]; ok {
			res = append(res, o)
		}
	}
	return page(res, offset, limit), nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func set(ids []string) map[string]struct{} {
	s := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

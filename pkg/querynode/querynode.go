// Copyright 2023 The Colossus Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package querynode is a client of the indexing service that exposes
// storage buckets, bags and data objects through paged GraphQL queries.
package querynode

import (
	"context"
	"errors"
	"net/http"

	"github.com/joystream/colossus/pkg/logging"
	"github.com/machinebox/graphql"
)

// ErrInvalidPageSize is returned by FetchAll for a non-positive page size.
var ErrInvalidPageSize = errors.New("invalid page size")

// OperatorStatus is set on buckets with an active operator.
type OperatorStatus struct {
	WorkerID *int `json:"workerId"`
}

type StorageBucket struct {
	ID string `json:"id"`
	// OperatorMetadata is the hex encoded operator endpoint.
	OperatorMetadata *string         `json:"operatorMetadata"`
	OperatorStatus   *OperatorStatus `json:"operatorStatus"`
}

type BucketRef struct {
	ID string `json:"id"`
}

type StorageBag struct {
	ID             string      `json:"id"`
	StorageBuckets []BucketRef `json:"storageBuckets"`
}

type DataObject struct {
	ID           string `json:"id"`
	StorageBagID string `json:"storageBagId"`
}

// Interface holds the three paged queries used to resolve storage obligations.
type Interface interface {
	StorageBuckets(ctx context.Context, offset, limit int) ([]StorageBucket, error)
	StorageBags(ctx context.Context, bucketIDs []string, offset, limit int) ([]StorageBag, error)
	// StorageDataObjects returns only objects accepted on chain.
	StorageDataObjects(ctx context.Context, bagIDs []string, offset, limit int) ([]DataObject, error)
}

// FetchAll calls page with increasing offsets and accumulates the results
// until a page shorter than limit is returned.
func FetchAll[T any](ctx context.Context, limit int, page func(ctx context.Context, offset, limit int) ([]T, error)) ([]T, error) {
	if limit <= 0 {
		return nil, ErrInvalidPageSize
	}
	var all []T
	for offset := 0; ; offset += limit {
		items, err := page(ctx, offset, limit)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if len(items) < limit {
			return all, nil
		}
	}
}

const (
	storageBucketsQuery = `query getStorageBuckets($offset: Int!, $limit: Int!) {
  storageBuckets(offset: $offset, limit: $limit, orderBy: id_ASC) {
    id
    operatorMetadata
    operatorStatus {
      ... on StorageBucketOperatorStatusActive {
        workerId
      }
    }
  }
}`

	storageBagsQuery = `query getStorageBags($bucketIds: [ID!], $offset: Int!, $limit: Int!) {
  storageBags(where: { storageBuckets_some: { id_in: $bucketIds } }, offset: $offset, limit: $limit, orderBy: id_ASC) {
    id
    storageBuckets {
      id
    }
  }
}`

	storageDataObjectsQuery = `query getStorageDataObjects($bagIds: [ID!], $offset: Int!, $limit: Int!) {
  storageDataObjects(where: { storageBagId_in: $bagIds, isAccepted_eq: true }, offset: $offset, limit: $limit, orderBy: id_ASC) {
    id
    storageBagId
  }
}`
)

var _ Interface = (*Client)(nil)

type Options struct {
	HTTPClient *http.Client
	Logger     logging.Logger
}

// Client talks to the GraphQL endpoint of the indexing service.
type Client struct {
	gql    *graphql.Client
	logger logging.Logger
}

func NewClient(endpoint string, o Options) *Client {
	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}
	gql := graphql.NewClient(endpoint, graphql.WithHTTPClient(o.HTTPClient))
	if o.Logger != nil {
		gql.Log = func(s string) { o.Logger.Trace(s) }
	}
	return &Client{
		gql:    gql,
		logger: o.Logger,
	}
}

func (c *Client) StorageBuckets(ctx context.Context, offset, limit int) ([]StorageBucket, error) {
	req := graphql.NewRequest(storageBucketsQuery)
	req.Var("offset", offset)
	req.Var("limit", limit)

	var resp struct {
		StorageBuckets []StorageBucket `json:"storageBuckets"`
	}
	if err := c.gql.Run(ctx, req, &resp); err != nil {
		return nil, err
	}
	return resp.StorageBuckets, nil
}

func (c *Client) StorageBags(ctx context.Context, bucketIDs []string, offset, limit int) ([]StorageBag, error) {
	if len(bucketIDs) == 0 {
		return nil, nil
	}
	req := graphql.NewRequest(storageBagsQuery)
	req.Var("bucketIds", bucketIDs)
	req.Var("offset", offset)
	req.Var("limit", limit)

	var resp struct {
		StorageBags []StorageBag `json:"storageBags"`
	}
	if err := c.gql.Run(ctx, req, &resp); err != nil {
		return nil, err
	}
	return resp.StorageBags, nil
}

func (c *Client) StorageDataObjects(ctx context.Context, bagIDs []string, offset, limit int) ([]DataObject, error) {
	if len(bagIDs) == 0 {
		return nil, nil
	}
	req := graphql.NewRequest(storageDataObjectsQuery)
	req.Var("bagIds", bagIDs)
	req.Var("offset", offset)
	req.Var("limit", limit)

	var resp struct {
		StorageDataObjects []DataObject `json:"storageDataObjects"`
	}
	if err := c.gql.Run(ctx, req, &resp); err != nil {
		return nil, err
	}
	return resp.StorageDataObjects, nil
}

package client

import (
	"context"

	"github.com/elastic/go-elasticsearch/v8"
)

type RefreshRate string

const (
	// Wait for the changes made by the request to be made visible by a refresh before replying.
	Wait RefreshRate = "wait_for"
	// Immediate Refresh the relevant primary and replica shards (not the whole index) immediately after the operation occurs.
	Immediate RefreshRate = "true"
	// Async Take no refresh related actions. The changes made by this request will be made visible at some point after the request returns.
	Async RefreshRate = "false"
)

type SpanlifeClient interface {
	// BulkIndex indexes (inserts) multiple documents in the same index
	// https://www.elastic.co/guide/en/elasticsearch/reference/master/docs-bulk.html
	BulkIndex(ctx context.Context, actions []BulkAction, index string) error
	// Count counts the number of documents in the index matching the query
	// https://www.elastic.co/guide/en/elasticsearch/reference/master/search-count.html
	Count(ctx context.Context, query string, indices []string) (int64, error)
}

type SpanlifeClientImpl struct {
	es          *elasticsearch.Client
	refreshRate string
}

func NewSpanlifeClientImpl(es *elasticsearch.Client, refreshRate RefreshRate) *SpanlifeClientImpl {
	return &SpanlifeClientImpl{es: es, refreshRate: string(refreshRate)}
}

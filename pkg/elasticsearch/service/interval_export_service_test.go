package service

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/Avi18971911/spanlife/pkg/elasticsearch/client"
	"github.com/Avi18971911/spanlife/pkg/quark"
	"github.com/Avi18971911/spanlife/pkg/state"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const okBulkResponse = `{"took":1,"errors":false,"items":[]}`

func TestIntervalExportService(t *testing.T) {
	tree, intervals := getExportFixture()
	runID := uuid.MustParse("0d6c3c8e-4f7b-4d6a-9d61-0a36b3f0e8a1")

	t.Run("Should index every interval in batches", func(t *testing.T) {
		transport := &fakeTransport{body: okBulkResponse}
		ies := NewIntervalExportService(getNewClient(t, transport), 2, zap.NewNop())

		exported, err := ies.Export(context.Background(), runID, tree, intervals)

		require.NoError(t, err)
		assert.Equal(t, 3, exported)
		require.Len(t, transport.requests, 2)
		assert.Equal(t, "/interval_index/_bulk", transport.requests[0].path)

		lines := transport.requests[0].lines
		require.Len(t, lines, 4)
		var meta map[string]map[string]string
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &meta))
		assert.Equal(t, runID.String()+"-0", meta["index"]["_id"])
		var document map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(lines[1]), &document))
		assert.Equal(t, "5b8efff798038103d269b633813fc60c/spans/a", document["path"])
		assert.Equal(t, "5b8efff798038103d269b633813fc60c", document["trace_id"])
		assert.Equal(t, "op-a", document["text"])
		assert.Equal(t, float64(100), document["end"])
		assert.NotContains(t, document, "_id")
	})

	t.Run("Should leave the end out of an ongoing interval", func(t *testing.T) {
		transport := &fakeTransport{body: okBulkResponse}
		ies := NewIntervalExportService(getNewClient(t, transport), 10, zap.NewNop())

		_, err := ies.Export(context.Background(), runID, tree, intervals)

		require.NoError(t, err)
		lines := transport.requests[0].lines
		require.Len(t, lines, 6)
		var document map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(lines[5]), &document))
		assert.Equal(t, true, document["ongoing"])
		assert.NotContains(t, document, "end")
	})

	t.Run("Should report documents rejected by Elasticsearch", func(t *testing.T) {
		transport := &fakeTransport{body: `{"took":1,"errors":true,"items":[` +
			`{"index":{"_id":"x","status":400,"error":{"type":"mapper_parsing_exception","reason":"bad start"}}}]}`}
		ies := NewIntervalExportService(getNewClient(t, transport), 10, zap.NewNop())

		exported, err := ies.Export(context.Background(), runID, tree, intervals)

		assert.ErrorIs(t, err, client.ErrPartialBulkIndex)
		assert.Equal(t, 0, exported)
	})

	t.Run("Should not call Elasticsearch without intervals", func(t *testing.T) {
		transport := &fakeTransport{body: okBulkResponse}
		ies := NewIntervalExportService(getNewClient(t, transport), 10, zap.NewNop())

		exported, err := ies.Export(context.Background(), runID, tree, nil)

		require.NoError(t, err)
		assert.Equal(t, 0, exported)
		assert.Empty(t, transport.requests)
	})
}

type recordedRequest struct {
	path  string
	lines []string
}

type fakeTransport struct {
	mu       sync.Mutex
	body     string
	requests []recordedRequest
}

func (ft *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	recorded := recordedRequest{path: req.URL.Path}
	if req.Body != nil {
		scanner := bufio.NewScanner(req.Body)
		for scanner.Scan() {
			recorded.lines = append(recorded.lines, scanner.Text())
		}
	}
	ft.mu.Lock()
	ft.requests = append(ft.requests, recorded)
	ft.mu.Unlock()

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("X-Elastic-Product", "Elasticsearch")
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(ft.body)),
		Request:    req,
	}, nil
}

func getNewClient(t *testing.T, transport http.RoundTripper) client.SpanlifeClient {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{"http://localhost:9200"},
		Transport: transport,
	})
	require.NoError(t, err)
	return client.NewSpanlifeClientImpl(es, client.Immediate)
}

func getExportFixture() (*quark.AttributeTree, []state.Interval) {
	tree := quark.NewAttributeTree()
	a := tree.GetOrCreatePath(quark.Root, "5b8efff798038103d269b633813fc60c", "spans", "a")
	b := tree.GetOrCreate(a, "b")
	intervals := []state.Interval{
		{Quark: a, Value: state.TextValue("op-a"), Start: 0, End: 100},
		{Quark: b, Value: state.TextValue("op-b"), Start: 10, End: 90},
		{Quark: b, Value: state.TextValue("op-b2"), Start: 90, End: state.OngoingEnd, Ongoing: true},
	}
	return tree, intervals
}

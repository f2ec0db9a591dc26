package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Avi18971911/spanlife/pkg/elasticsearch/model"
)

func (a *SpanlifeClientImpl) BulkIndex(
	ctx context.Context,
	actions []BulkAction,
	index string,
) error {
	if len(actions) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := writeBulkBody(&buf, actions); err != nil {
		return err
	}

	res, err := a.es.Bulk(
		bytes.NewReader(buf.Bytes()),
		a.es.Bulk.WithIndex(index),
		a.es.Bulk.WithContext(ctx),
		a.es.Bulk.WithRefresh(a.refreshRate),
	)
	if err != nil {
		return fmt.Errorf("error bulk indexing: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("bulk index error: %s", res.String())
	}

	var bulkResponse model.BulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResponse); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if failures := bulkResponse.Failures(); len(failures) > 0 {
		reasons := make([]string, 0, len(failures))
		for _, failure := range failures {
			reasons = append(reasons, fmt.Sprintf("%s: %s", failure.ID, failure.Error.Reason))
		}
		return fmt.Errorf("%d of %d documents rejected (%s): %w",
			len(failures), len(actions), strings.Join(reasons, "; "), ErrPartialBulkIndex)
	}
	return nil
}

var (
	ErrPartialBulkIndex = errors.New("bulk index partially failed")
)

package client

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// BulkAction indexes Document under ID. An empty ID lets Elasticsearch pick one.
type BulkAction struct {
	ID       string
	Document any
}

type bulkIndexMeta struct {
	Index bulkIndexTarget `json:"index"`
}

type bulkIndexTarget struct {
	ID string `json:"_id,omitempty"`
}

// IndexActions builds one index action per document, keyed by id(document).
func IndexActions[T any](documents []T, id func(document T) string) []BulkAction {
	actions := make([]BulkAction, len(documents))
	for i, document := range documents {
		actions[i] = BulkAction{ID: id(document), Document: document}
	}
	return actions
}

// writeBulkBody encodes actions as newline delimited action and source lines.
func writeBulkBody(buf *bytes.Buffer, actions []BulkAction) error {
	encoder := json.NewEncoder(buf)
	for i, action := range actions {
		if err := encoder.Encode(bulkIndexMeta{Index: bulkIndexTarget{ID: action.ID}}); err != nil {
			return fmt.Errorf("error marshaling action %d of bulk index: %w", i, err)
		}
		if err := encoder.Encode(action.Document); err != nil {
			return fmt.Errorf("error marshaling document %d of bulk index: %w", i, err)
		}
	}
	return nil
}

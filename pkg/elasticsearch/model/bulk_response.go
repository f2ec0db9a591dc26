package model

type BulkResponse struct {
	Took   int        `json:"took"`
	Errors bool       `json:"errors"`
	Items  []BulkItem `json:"items"`
}

// BulkItem holds the outcome of one action, keyed by the action name ("index", "create", ...).
type BulkItem map[string]BulkItemResult

type BulkItemResult struct {
	Index  string     `json:"_index"`
	ID     string     `json:"_id"`
	Status int        `json:"status"`
	Error  *BulkError `json:"error,omitempty"`
}

type BulkError struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func (br BulkResponse) Failures() []BulkItemResult {
	if !br.Errors {
		return nil
	}
	var failures []BulkItemResult
	for _, item := range br.Items {
		for _, result := range item {
			if result.Error != nil {
				failures = append(failures, result)
			}
		}
	}
	return failures
}

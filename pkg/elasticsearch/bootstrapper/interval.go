package bootstrapper

const IntervalIndexName = "interval_index"

var intervalIndex = map[string]interface{}{
	"settings": map[string]interface{}{
		"number_of_shards":   1,
		"number_of_replicas": 1,
	},
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"run_id": map[string]interface{}{
				"type": "keyword",
			},
			"trace_id": map[string]interface{}{
				"type": "keyword",
			},
			"path": map[string]interface{}{
				"type": "keyword",
			},
			"name": map[string]interface{}{
				"type": "keyword",
			},
			"depth": map[string]interface{}{
				"type": "integer",
			},
			"start": map[string]interface{}{
				"type": "long",
			},
			"end": map[string]interface{}{
				"type": "long",
			},
			"ongoing": map[string]interface{}{
				"type": "boolean",
			},
			"text": map[string]interface{}{
				"type": "text",
			},
			"attributes": map[string]interface{}{
				"type": "flattened",
			},
		},
	},
}

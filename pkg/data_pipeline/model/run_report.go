package model

import spanlifeModel "github.com/Avi18971911/spanlife/pkg/spanlife/model"

// RunReport is published once per construction run.
type RunReport struct {
	RunID     string                `json:"run_id"`
	Summary   spanlifeModel.Summary `json:"summary"`
	Intervals int                   `json:"intervals"`
	Exported  int                   `json:"exported"`
	Persisted bool                  `json:"persisted"`
}

package reminder

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// TaskTypeRun is the asynq task type for executing a reminder run.
const TaskTypeRun = "reminder:run"

// RunTaskPayload is the serialized payload for a reminder run task.
type RunTaskPayload struct {
	DryRun bool `json:"dry_run"`
}

// NewRunTask creates a new asynq task for a reminder run.
func NewRunTask(dryRun bool) (*asynq.Task, error) {
	payload, err := json.Marshal(RunTaskPayload{DryRun: dryRun})
	if err != nil {
		return nil, fmt.Errorf("marshaling task payload: %w", err)
	}
	return asynq.NewTask(TaskTypeRun, payload), nil
}

// ParseRunTaskPayload deserializes the task payload.
func ParseRunTaskPayload(data []byte) (*RunTaskPayload, error) {
	var p RunTaskPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshaling task payload: %w", err)
	}
	return &p, nil
}

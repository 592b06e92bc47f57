package task

import (
	"encoding/json"
	"errors"
	"strings"
)

// Errors returned by Client and Check.
var (
	ErrUnauthorized = errors.New("unauthorized: invalid api key")
	ErrTimeout      = errors.New("task timed out")
	ErrFailed       = errors.New("task failed")
	ErrNoTaskID     = errors.New("no task id")
)

// Task states reported by the prediction API.
const (
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusProcessing = "processing"
)

// pendingStates are reported while a task has not finished yet.
var pendingStates = map[string]bool{
	"created":    true,
	"processing": true,
	"pending":    true,
	"running":    true,
	"queued":     true,
}

// Pending reports whether status means the task is still in progress.
func Pending(status string) bool {
	return pendingStates[strings.ToLower(status)]
}

// Result is one prediction as returned by the API.
type Result struct {
	ID      string `json:"id" yaml:"id"`
	Model   string `json:"model,omitempty" yaml:"model,omitempty"`
	Status  string `json:"status" yaml:"status"`
	Outputs []any  `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

// envelope wraps most API responses. Responses without a code are the
// payload itself.
type envelope struct {
	Code    *int            `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type apiError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

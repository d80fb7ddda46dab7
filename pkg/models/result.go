package models

import "time"

// StepExecutionResult is the transient contract every step executor returns
// to the engine. It is never persisted.
type StepExecutionResult struct {
	Success    bool           `json:"success"`
	Status     StepStatus     `json:"status"`
	NextStepID *string        `json:"next_step_id,omitempty"` // Explicit override, wins over routes
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	DueAt      *time.Time     `json:"due_at,omitempty"` // Set when Status is scheduled
}

// CompletedResult returns a successful completed result with the given output.
func CompletedResult(output map[string]any) *StepExecutionResult {
	return &StepExecutionResult{
		Success: true,
		Status:  StepStatusCompleted,
		Output:  output,
	}
}

// SkippedResult returns a successful skipped result.
func SkippedResult(output map[string]any) *StepExecutionResult {
	return &StepExecutionResult{
		Success: true,
		Status:  StepStatusSkipped,
		Output:  output,
	}
}

// RoutedResult returns a successful completed result that forces the next
// step id, used by decision steps and handled error routes.
func RoutedResult(nextStepID string, output map[string]any) *StepExecutionResult {
	return &StepExecutionResult{
		Success:    true,
		Status:     StepStatusCompleted,
		NextStepID: &nextStepID,
		Output:     output,
	}
}

// FailedResult returns a terminal failure carrying the error message.
func FailedResult(message string) *StepExecutionResult {
	return &StepExecutionResult{
		Success: false,
		Status:  StepStatusFailed,
		Error:   message,
	}
}

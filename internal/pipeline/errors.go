package pipeline

import "fmt"

// ConnectorError reports that every source connector a task depends on
// failed. Recoverable: the record stays at its stage and retries next batch.
type ConnectorError struct {
	Connector string
	Err       error
}

func (e *ConnectorError) Error() string {
	return fmt.Sprintf("connector %s: %v", e.Connector, e.Err)
}

func (e *ConnectorError) Unwrap() error {
	return e.Err
}

// Transient marks connector failures as retryable for the retry helpers.
func (e *ConnectorError) Transient() bool {
	return true
}

// ValidationError reports malformed raw data. Permanent: retrying cannot
// help, so the orchestrator routes the record to manual review instead.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid raw data: %s %s", e.Field, e.Reason)
}

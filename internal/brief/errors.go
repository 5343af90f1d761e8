package brief

import "fmt"

// StageFailure marks an unrecoverable error raised by a pipeline stage.
// Per-source summarization failures are absorbed into degraded summaries and
// never surface as a StageFailure.
type StageFailure struct {
	Stage string
	Err   error
}

func (e *StageFailure) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageFailure) Unwrap() error { return e.Err }

// SchemaViolation is returned when structured generation exhausted its retry
// budget without producing output that conforms to the declared schema.
type SchemaViolation struct {
	Artifact string
	Attempts int
	Err      error
}

func (e *SchemaViolation) Error() string {
	return fmt.Sprintf("%s violated schema after %d attempts: %v", e.Artifact, e.Attempts, e.Err)
}

func (e *SchemaViolation) Unwrap() error { return e.Err }

// ProviderError wraps failures from the search or generation collaborators,
// including per-call timeouts.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ContextStoreError wraps persistence failures. Reads degrade to "no prior
// context"; a write failure is attached to an otherwise successful run as a
// warning, never as a run failure.
type ContextStoreError struct {
	Op  string
	Err error
}

func (e *ContextStoreError) Error() string {
	return fmt.Sprintf("context store %s: %v", e.Op, e.Err)
}

func (e *ContextStoreError) Unwrap() error { return e.Err }

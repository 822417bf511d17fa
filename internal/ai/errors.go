package ai

import "fmt"

// ExtractionError reports that a single document could not be structured.
type ExtractionError struct {
	MediaType string
	Err       error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed (%s): %v", e.MediaType, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// AnalysisError reports that a pattern-analysis call failed outright.
type AnalysisError struct {
	Op  string // "analyze_spending" or "detect_subscriptions"
	Err error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis %s failed: %v", e.Op, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

package constants

// Pipeline Error Codes
// These constants define specific error scenarios for the ingestion pipeline

// Upstream (flight data source) errors
const (
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrCodeUpstreamRateLimited = "UPSTREAM_RATE_LIMITED"
	ErrCodeUpstreamMalformed   = "UPSTREAM_MALFORMED"
	ErrCodeNotFound            = "NOT_FOUND"
)

// Record validation errors
const (
	ErrCodeValidationFailed = "VALIDATION_FAILED"
)

// Index store errors
const (
	ErrCodeStoreUnavailable = "STORE_UNAVAILABLE"
	ErrCodeConflictRejected = "CONFLICT_REJECTED"
)

// Attempt-level errors
const (
	ErrCodeTimeout = "TIMEOUT"
)

// Error Messages
// Human-readable messages corresponding to error codes

var PipelineErrorMessages = map[string]string{
	ErrCodeUpstreamUnavailable: "Unable to reach the flight data source. Please check connectivity",
	ErrCodeUpstreamRateLimited: "Flight data source rate limit exceeded. Please try again later",
	ErrCodeUpstreamMalformed:   "The flight data source returned a payload that could not be parsed",
	ErrCodeNotFound:            "The flight is no longer trackable upstream",
	ErrCodeValidationFailed:    "The flight detail payload failed validation",
	ErrCodeStoreUnavailable:    "Unable to reach the index store",
	ErrCodeConflictRejected:    "The index store already holds a newer version of this flight",
	ErrCodeTimeout:             "The operation timed out",
}

// GetErrorMessage returns the human-readable message for an error code
func GetErrorMessage(code string) string {
	if msg, exists := PipelineErrorMessages[code]; exists {
		return msg
	}
	return "An unknown error occurred"
}

// retriableCodes lists error codes where reattempting the same operation
// can plausibly succeed.
var retriableCodes = map[string]bool{
	ErrCodeUpstreamUnavailable: true,
	ErrCodeUpstreamRateLimited: true,
	ErrCodeStoreUnavailable:    true,
	ErrCodeTimeout:             true,
}

// IsRetriableCode reports whether the error code is worth retrying
func IsRetriableCode(code string) bool {
	return retriableCodes[code]
}

// benignCodes lists error codes that are surfaced as success rather than
// counted as failures (skip and no-op outcomes).
var benignCodes = map[string]bool{
	ErrCodeNotFound:         true,
	ErrCodeConflictRejected: true,
}

// IsBenignCode reports whether the error code represents a benign outcome
func IsBenignCode(code string) bool {
	return benignCodes[code]
}

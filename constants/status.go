package constants

// Outcome is the canonical result label of one pipeline invocation.
type Outcome string

// Stable values (used in logs and API error payloads).
const (
	OutcomeOK            Outcome = "OK"
	OutcomeBadRequest    Outcome = "BAD_REQUEST"    // no (or more than one) file supplied
	OutcomeOCRFailed     Outcome = "OCR_FAILED"     // engine could not produce text
	OutcomeInternalError Outcome = "INTERNAL_ERROR" // unexpected fault during orchestration
)

package domain

// ValidationResult is the verdict of static flow analysis.
// Errors are ordered by rule evaluation and are data, not faults.
type ValidationResult struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors"`
}

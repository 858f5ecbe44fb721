package models

// CheckResult is the outcome of one named check. Never mutated after
// creation; decision records embed it by value.
type CheckResult struct {
	Rule    string `json:"rule"`
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

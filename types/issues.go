package types

import "strings"

// Issue is a single validation finding.
type Issue struct {
	Path    string                 `json:"path"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Meta    map[string]interface{} `json:"meta,omitempty"`
}

// Outcome is the result of a validation pass. OK is true only when Issues is empty.
type Outcome struct {
	OK     bool    `json:"ok"`
	Issues []Issue `json:"issues"`
}

// NewIssue creates an issue without metadata.
func NewIssue(path, code, message string) Issue {
	return Issue{Path: path, Code: code, Message: message}
}

// NewOutcome builds an outcome from a list of issues.
func NewOutcome(issues []Issue) Outcome {
	if issues == nil {
		issues = []Issue{}
	}
	return Outcome{OK: len(issues) == 0, Issues: issues}
}

// MergeOutcomes concatenates issues in order; the merged outcome is OK only if every input is.
func MergeOutcomes(outcomes ...Outcome) Outcome {
	merged := Outcome{OK: true, Issues: []Issue{}}
	for _, o := range outcomes {
		if !o.OK {
			merged.OK = false
		}
		merged.Issues = append(merged.Issues, o.Issues...)
	}
	return merged
}

// HasCode reports whether any issue carries code.
func (o Outcome) HasCode(code string) bool {
	for _, issue := range o.Issues {
		if issue.Code == code {
			return true
		}
	}
	return false
}

// Find returns the first issue at path.
func (o Outcome) Find(path string) (Issue, bool) {
	for _, issue := range o.Issues {
		if issue.Path == path {
			return issue, true
		}
	}
	return Issue{}, false
}

// Summary joins issue messages into one line, suitable for a PaymentRequired error string.
func (o Outcome) Summary() string {
	parts := make([]string, 0, len(o.Issues))
	for _, issue := range o.Issues {
		parts = append(parts, issue.Message)
	}
	return strings.Join(parts, "; ")
}

// AsError converts a failed outcome into a *PaymentError carrying the first
// issue's code. It returns nil for a successful outcome.
func (o Outcome) AsError() error {
	if o.OK || len(o.Issues) == 0 {
		return nil
	}
	return &PaymentError{
		Code:    o.Issues[0].Code,
		Message: o.Summary(),
		Details: map[string]interface{}{"issues": o.Issues},
	}
}

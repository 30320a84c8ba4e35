package schema

import "fmt"

// ValidationSeverity distinguishes blocking issues from advisory ones.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue is one problem found in a workflow document. Path is a
// document path such as "nodes[2].config.condition"; NodeID is set when the
// issue belongs to an identifiable node.
type ValidationIssue struct {
	Path     string             `json:"path"`
	Code     string             `json:"code"`
	Message  string             `json:"message"`
	NodeID   string             `json:"node_id,omitempty"`
	Severity ValidationSeverity `json:"severity"`
}

func (i ValidationIssue) String() string {
	if i.NodeID != "" {
		return fmt.Sprintf("%s (node %s): %s", i.Path, i.NodeID, i.Message)
	}
	return fmt.Sprintf("%s: %s", i.Path, i.Message)
}

// ValidationResult collects the issues of every validation pass.
type ValidationResult struct {
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

// Valid reports whether no errors were found. Warnings do not block a run.
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

func (r *ValidationResult) AddError(path, code, message string) {
	r.Errors = append(r.Errors, ValidationIssue{Path: path, Code: code, Message: message, Severity: SeverityError})
}

func (r *ValidationResult) AddWarning(path, code, message string) {
	r.Warnings = append(r.Warnings, ValidationIssue{Path: path, Code: code, Message: message, Severity: SeverityWarning})
}

// Mark returns the current error and warning counts for a later TagNode.
func (r *ValidationResult) Mark() (errs, warns int) {
	return len(r.Errors), len(r.Warnings)
}

// TagNode attributes every issue added since Mark to nodeID, leaving issues
// that already name a node untouched.
func (r *ValidationResult) TagNode(nodeID string, errs, warns int) {
	if nodeID == "" {
		return
	}
	for i := errs; i < len(r.Errors); i++ {
		if r.Errors[i].NodeID == "" {
			r.Errors[i].NodeID = nodeID
		}
	}
	for i := warns; i < len(r.Warnings); i++ {
		if r.Warnings[i].NodeID == "" {
			r.Warnings[i].NodeID = nodeID
		}
	}
}

// NodeErrors returns the errors attributed to nodeID.
func (r *ValidationResult) NodeErrors(nodeID string) []ValidationIssue {
	var out []ValidationIssue
	for _, issue := range r.Errors {
		if issue.NodeID == nodeID {
			out = append(out, issue)
		}
	}
	return out
}

func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// ToError returns nil for a valid result. Otherwise it returns a VALIDATION
// FlowError carrying every issue, attached to the first failing node.
func (r *ValidationResult) ToError() error {
	if r.Valid() {
		return nil
	}

	first := r.Errors[0]
	msg := first.String()
	if len(r.Errors) > 1 {
		msg = fmt.Sprintf("workflow is invalid: %d errors, first: %s", len(r.Errors), first.String())
	}

	var nodes []string
	seen := make(map[string]bool)
	for _, issue := range r.Errors {
		if issue.NodeID != "" && !seen[issue.NodeID] {
			seen[issue.NodeID] = true
			nodes = append(nodes, issue.NodeID)
		}
	}

	fe := NewError(ErrCodeValidation, msg).WithDetails(map[string]any{
		"error_count":   len(r.Errors),
		"warning_count": len(r.Warnings),
		"errors":        r.Errors,
		"warnings":      r.Warnings,
		"nodes":         nodes,
	})
	if first.NodeID != "" {
		fe = fe.WithNode(first.NodeID)
	}
	return fe
}

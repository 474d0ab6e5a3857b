// Validator: checks a line against the same structural rules the
// Repairer fixes, reporting an ordered defect list per record instead of
// mutating it. Grounded directly on original_source/src/linter.rs,
// translated from serde_json::Value to goccy/go-json's interface{}
// decode and from compiled Regex counts to strings.Count.
package caret

import (
	"strings"

	json "github.com/goccy/go-json"
)

// DefectKind classifies a single validation finding.
type DefectKind int

const (
	DefectInvalidJSON DefectKind = iota
	DefectMissingKey
	DefectUnbalancedMarkers
	DefectTrailingWhitespace
	DefectEmptyContent
)

// Severity is ERROR or WARNING, matching the original linter's table.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityError {
		return "ERROR"
	}
	return "WARNING"
}

// Defect is one finding from validating a line.
type Defect struct {
	Line  int
	Kind  DefectKind
	// Detail carries the JSON parse error for DefectInvalidJSON or the
	// missing key name for DefectMissingKey. DefectUnbalancedMarkers
	// reports its counts in Open and Close instead.
	Detail string
	Open   int // populated for DefectUnbalancedMarkers
	Close  int // populated for DefectUnbalancedMarkers
}

func (d Defect) Severity() Severity {
	switch d.Kind {
	case DefectInvalidJSON, DefectUnbalancedMarkers:
		return SeverityError
	default:
		return SeverityWarning
	}
}

func (d Defect) Message() string {
	switch d.Kind {
	case DefectInvalidJSON:
		return "invalid JSON: " + d.Detail
	case DefectMissingKey:
		return "missing required key: " + d.Detail
	case DefectUnbalancedMarkers:
		return "unbalanced reasoning markers"
	case DefectTrailingWhitespace:
		return "trailing whitespace detected"
	case DefectEmptyContent:
		return "empty content field"
	default:
		return "unknown defect"
	}
}

// Validator checks lines for structural defects.
type Validator struct {
	marker       MarkerPair
	requiredKeys []string
}

// NewValidator returns a Validator with no required keys.
func NewValidator() *Validator {
	return &Validator{marker: DefaultMarkerPair()}
}

// WithRequiredKeys sets the top-level keys every record must contain.
func (v *Validator) WithRequiredKeys(keys []string) *Validator {
	v.requiredKeys = keys
	return v
}

// WithMarkerPair overrides the reasoning marker pair checked for balance.
func (v *Validator) WithMarkerPair(marker MarkerPair) *Validator {
	v.marker = marker
	return v
}

// ValidateLine checks one line, returning its defects in the order
// found. An invalid-JSON line short-circuits — no further checks run —
// matching the original linter's early return.
func (v *Validator) ValidateLine(line string, lineNum int) []Defect {
	var defects []Defect

	var value any
	if err := json.Unmarshal([]byte(line), &value); err != nil {
		return []Defect{{Line: lineNum, Kind: DefectInvalidJSON, Detail: err.Error()}}
	}

	if obj, ok := value.(map[string]any); ok {
		for _, key := range v.requiredKeys {
			if _, present := obj[key]; !present {
				defects = append(defects, Defect{Line: lineNum, Kind: DefectMissingKey, Detail: key})
			} else if s, isStr := obj[key].(string); isStr && strings.TrimSpace(s) == "" {
				defects = append(defects, Defect{Line: lineNum, Kind: DefectEmptyContent, Detail: key})
			}
		}
	}

	textContent := extractTextContent(value)
	openCount := strings.Count(textContent, v.marker.Open)
	closeCount := strings.Count(textContent, v.marker.Close)
	if openCount != closeCount {
		defects = append(defects, Defect{Line: lineNum, Kind: DefectUnbalancedMarkers, Open: openCount, Close: closeCount})
	}

	if strings.Contains(textContent, " \n") || strings.HasSuffix(textContent, " ") {
		defects = append(defects, Defect{Line: lineNum, Kind: DefectTrailingWhitespace})
	}

	return defects
}

// ValidateDataset runs ValidateLine over every non-blank line.
func (v *Validator) ValidateDataset(dataset *Dataset) []Defect {
	var all []Defect
	for i := 0; i < dataset.LineCount(); i++ {
		line, ok := dataset.GetLine(i)
		if !ok || strings.TrimSpace(string(line)) == "" {
			continue
		}
		all = append(all, v.ValidateLine(string(line), i)...)
	}
	return all
}

// extractTextContent recursively joins every string value in a decoded
// JSON value with single spaces, for the marker-balance and trailing-
// whitespace checks. Mirrors linter.rs's extract_text_content.
func extractTextContent(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = extractTextContent(item)
		}
		return strings.Join(parts, " ")
	case map[string]any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, extractTextContent(item))
		}
		return strings.Join(parts, " ")
	default:
		return ""
	}
}

// Package match evaluates match profiles against parsed MARC records. The
// engine is a pure function over the structured field list; it never touches
// storage.
package match

import (
	"encoding/json"

	"github.com/vijay-eis/mod-source-record-storage/internal/marc"
)

type Criterion string

const (
	CriterionExactlyMatches Criterion = "EXACTLY_MATCHES"
)

type DataValueType string

const (
	ValueFromRecord DataValueType = "VALUE_FROM_RECORD"
)

// Expression describes where a comparison value is read from: a field tag,
// an indicator pair and a subfield code. Blank indicators match any
// occurrence; the subfield code is ignored for control fields.
type Expression struct {
	DataValueType DataValueType `json:"dataValueType"`
	Field         string        `json:"field"`
	Ind1          string        `json:"indicator1"`
	Ind2          string        `json:"indicator2"`
	Subfield      string        `json:"recordSubfield"`
}

// Detail pairs the expressions for the existing and incoming side with a
// comparison criterion.
type Detail struct {
	Criterion          Criterion  `json:"matchCriterion"`
	ExistingExpression Expression `json:"existingMatchExpression"`
	IncomingExpression Expression `json:"incomingMatchExpression"`
}

// Profile is the content of a MATCH_PROFILE node as far as the engine needs
// it. Multiple details are AND-combined.
type Profile struct {
	Name               string   `json:"name"`
	ExistingRecordType string   `json:"existingRecordType"`
	IncomingRecordType string   `json:"incomingRecordType"`
	MatchDetails       []Detail `json:"matchDetails"`
}

// ParseProfile decodes a MATCH_PROFILE node content payload.
func ParseProfile(content []byte) (*Profile, error) {
	var p Profile
	if err := json.Unmarshal(content, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ExtractValue returns the value the expression selects from the record, or
// ok=false when no matching occurrence or subfield exists.
func ExtractValue(rec *marc.ParsedRecord, expr Expression) (string, bool) {
	if rec == nil || expr.Field == "" {
		return "", false
	}
	for _, field := range rec.FieldsByTag(expr.Field) {
		if field.IsControl() {
			// Control fields have no indicators or subfields; the whole
			// value is the comparison value.
			return field.Value, true
		}
		if expr.Ind1 != "" && expr.Ind1 != field.Ind1 {
			continue
		}
		if expr.Ind2 != "" && expr.Ind2 != field.Ind2 {
			continue
		}
		if value, ok := field.SubfieldValue(expr.Subfield); ok {
			return value, true
		}
	}
	return "", false
}

// Matches applies one detail: both sides must yield a value and the criterion
// must hold. Unknown criteria never match.
func Matches(existing, incoming *marc.ParsedRecord, detail Detail) bool {
	existingValue, ok := ExtractValue(existing, detail.ExistingExpression)
	if !ok {
		return false
	}
	incomingValue, ok := ExtractValue(incoming, detail.IncomingExpression)
	if !ok {
		return false
	}
	switch detail.Criterion {
	case CriterionExactlyMatches:
		return existingValue == incomingValue
	default:
		return false
	}
}

// MatchesAll reports whether every detail of the profile holds.
func MatchesAll(existing, incoming *marc.ParsedRecord, details []Detail) bool {
	if len(details) == 0 {
		return false
	}
	for _, detail := range details {
		if !Matches(existing, incoming, detail) {
			return false
		}
	}
	return true
}

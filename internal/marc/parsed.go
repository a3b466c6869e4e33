// Package marc models the structured form of a parsed MARC record: an
// ordered field list keyed by three-character tags, where control fields
// (tags below "010") carry a bare value and data fields carry an indicator
// pair plus ordered subfields. The JSON shape matches the parsed-record
// payload stored alongside each record.
package marc

import (
	"encoding/json"
	"fmt"
)

// ControlFieldLimit is the first tag that carries indicators and subfields.
const ControlFieldLimit = "010"

type ParsedRecord struct {
	Leader string
	Fields []Field
}

// Field is one occurrence of a tag. Control fields populate Value only; data
// fields populate Ind1/Ind2/Subfields.
type Field struct {
	Tag       string
	Value     string
	Ind1      string
	Ind2      string
	Subfields []Subfield
}

type Subfield struct {
	Code  string
	Value string
}

// IsControlTag reports whether the tag belongs to the control field range
// (three digits below "010").
func IsControlTag(tag string) bool {
	if len(tag) != 3 {
		return false
	}
	for _, r := range tag {
		if r < '0' || r > '9' {
			return false
		}
	}
	return tag < ControlFieldLimit
}

func (f Field) IsControl() bool { return IsControlTag(f.Tag) }

// SubfieldValue returns the first subfield with the given code.
func (f Field) SubfieldValue(code string) (string, bool) {
	for _, sf := range f.Subfields {
		if sf.Code == code {
			return sf.Value, true
		}
	}
	return "", false
}

// FieldsByTag returns every occurrence of the tag in record order.
func (r *ParsedRecord) FieldsByTag(tag string) []Field {
	var out []Field
	for _, f := range r.Fields {
		if f.Tag == tag {
			out = append(out, f)
		}
	}
	return out
}

// MutateSubfields applies fn to the value of every subfield matching
// tag/indicators/code and stores the result. Empty indicator selectors match
// any occurrence. Returns the number of subfields changed.
func (r *ParsedRecord) MutateSubfields(tag, ind1, ind2, code string, fn func(string) string) int {
	changed := 0
	for fi := range r.Fields {
		f := &r.Fields[fi]
		if f.Tag != tag || f.IsControl() {
			continue
		}
		if !indicatorMatches(ind1, f.Ind1) || !indicatorMatches(ind2, f.Ind2) {
			continue
		}
		for si := range f.Subfields {
			if f.Subfields[si].Code != code {
				continue
			}
			f.Subfields[si].Value = fn(f.Subfields[si].Value)
			changed++
		}
	}
	return changed
}

// RemoveSubfields deletes every subfield matching tag/indicators/code and
// drops data fields left without subfields. Returns the number removed.
func (r *ParsedRecord) RemoveSubfields(tag, ind1, ind2, code string) int {
	removed := 0
	fields := r.Fields[:0]
	for _, f := range r.Fields {
		if f.Tag == tag && !f.IsControl() &&
			indicatorMatches(ind1, f.Ind1) && indicatorMatches(ind2, f.Ind2) {
			kept := f.Subfields[:0]
			for _, sf := range f.Subfields {
				if sf.Code == code {
					removed++
					continue
				}
				kept = append(kept, sf)
			}
			f.Subfields = kept
			if len(f.Subfields) == 0 {
				continue
			}
		}
		fields = append(fields, f)
	}
	r.Fields = fields
	return removed
}

func indicatorMatches(selector, actual string) bool {
	return selector == "" || selector == actual
}

type dataField struct {
	Ind1      string              `json:"ind1"`
	Ind2      string              `json:"ind2"`
	Subfields []map[string]string `json:"subfields"`
}

func (r *ParsedRecord) UnmarshalJSON(data []byte) error {
	var raw struct {
		Leader string                       `json:"leader"`
		Fields []map[string]json.RawMessage `json:"fields"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Leader = raw.Leader
	r.Fields = r.Fields[:0]
	for _, entry := range raw.Fields {
		for tag, body := range entry {
			field, err := decodeField(tag, body)
			if err != nil {
				return err
			}
			r.Fields = append(r.Fields, field)
		}
	}
	return nil
}

func decodeField(tag string, body json.RawMessage) (Field, error) {
	if IsControlTag(tag) {
		var value string
		if err := json.Unmarshal(body, &value); err != nil {
			return Field{}, fmt.Errorf("control field %s: %w", tag, err)
		}
		return Field{Tag: tag, Value: value}, nil
	}
	var df dataField
	if err := json.Unmarshal(body, &df); err != nil {
		return Field{}, fmt.Errorf("data field %s: %w", tag, err)
	}
	field := Field{Tag: tag, Ind1: df.Ind1, Ind2: df.Ind2}
	for _, sf := range df.Subfields {
		for code, value := range sf {
			field.Subfields = append(field.Subfields, Subfield{Code: code, Value: value})
		}
	}
	return field, nil
}

func (r ParsedRecord) MarshalJSON() ([]byte, error) {
	fields := make([]map[string]any, 0, len(r.Fields))
	for _, f := range r.Fields {
		if f.IsControl() {
			fields = append(fields, map[string]any{f.Tag: f.Value})
			continue
		}
		subfields := make([]map[string]string, 0, len(f.Subfields))
		for _, sf := range f.Subfields {
			subfields = append(subfields, map[string]string{sf.Code: sf.Value})
		}
		fields = append(fields, map[string]any{f.Tag: dataField{
			Ind1:      f.Ind1,
			Ind2:      f.Ind2,
			Subfields: subfields,
		}})
	}
	return json.Marshal(struct {
		Leader string           `json:"leader"`
		Fields []map[string]any `json:"fields"`
	}{Leader: r.Leader, Fields: fields})
}

// Parse decodes the stored parsed-record payload.
func Parse(content []byte) (*ParsedRecord, error) {
	var rec ParsedRecord
	if err := json.Unmarshal(content, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

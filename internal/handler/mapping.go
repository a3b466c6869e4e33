package handler

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/vijay-eis/mod-source-record-storage/internal/marc"
	"github.com/vijay-eis/mod-source-record-storage/internal/storeerr"
)

// Subactions and positions of a field edit instruction.
const (
	SubactionInsert  = "INSERT"
	SubactionReplace = "REPLACE"
	SubactionRemove  = "REMOVE"

	PositionBeforeString = "BEFORE_STRING"
	PositionAfterString  = "AFTER_STRING"
)

// MappingDetail is one field-level edit carried by a mapping profile.
type MappingDetail struct {
	Order  int       `json:"order"`
	Action string    `json:"action"`
	Field  MarcField `json:"field"`
}

type MarcField struct {
	Field     string         `json:"field"`
	Ind1      string         `json:"indicator1"`
	Ind2      string         `json:"indicator2"`
	Subfields []MarcSubfield `json:"subfields"`
}

type MarcSubfield struct {
	Subfield  string       `json:"subfield"`
	Subaction string       `json:"subaction"`
	Position  string       `json:"position"`
	Data      SubfieldData `json:"data"`
}

type SubfieldData struct {
	Text        string `json:"text"`
	Find        string `json:"find"`
	ReplaceWith string `json:"replaceWith"`
}

type mappingProfileContent struct {
	MappingDetails struct {
		MarcMappingDetails []MappingDetail `json:"marcMappingDetails"`
	} `json:"mappingDetails"`
}

// ParseMappingDetails reads the field edits out of a mapping profile's
// content.
func ParseMappingDetails(content []byte) ([]MappingDetail, error) {
	var parsed mappingProfileContent
	if err := json.Unmarshal(content, &parsed); err != nil {
		return nil, fmt.Errorf("mapping profile: %v: %w", err, storeerr.ErrProcessing)
	}
	details := parsed.MappingDetails.MarcMappingDetails
	sort.SliceStable(details, func(i, j int) bool { return details[i].Order < details[j].Order })
	return details, nil
}

// ApplyEdits runs every EDIT instruction against the parsed record in order.
// An edit targeting an absent field is a no-op; an unknown subaction or
// position is a processing error.
func ApplyEdits(rec *marc.ParsedRecord, details []MappingDetail) error {
	for _, detail := range details {
		if detail.Action != "EDIT" {
			return fmt.Errorf("mapping action %q not supported: %w", detail.Action, storeerr.ErrProcessing)
		}
		field := detail.Field
		for _, sub := range field.Subfields {
			if err := applySubfieldEdit(rec, field, sub); err != nil {
				return err
			}
		}
	}
	return nil
}

func applySubfieldEdit(rec *marc.ParsedRecord, field MarcField, sub MarcSubfield) error {
	switch sub.Subaction {
	case SubactionInsert:
		switch sub.Position {
		case PositionBeforeString:
			rec.MutateSubfields(field.Field, field.Ind1, field.Ind2, sub.Subfield, func(v string) string {
				return sub.Data.Text + v
			})
		case PositionAfterString:
			rec.MutateSubfields(field.Field, field.Ind1, field.Ind2, sub.Subfield, func(v string) string {
				return v + sub.Data.Text
			})
		default:
			return fmt.Errorf("insert position %q not supported: %w", sub.Position, storeerr.ErrProcessing)
		}
	case SubactionReplace:
		rec.MutateSubfields(field.Field, field.Ind1, field.Ind2, sub.Subfield, func(v string) string {
			return strings.ReplaceAll(v, sub.Data.Find, sub.Data.ReplaceWith)
		})
	case SubactionRemove:
		rec.RemoveSubfields(field.Field, field.Ind1, field.Ind2, sub.Subfield)
	default:
		return fmt.Errorf("subaction %q not supported: %w", sub.Subaction, storeerr.ErrProcessing)
	}
	return nil
}

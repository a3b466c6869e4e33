package match

import (
	"testing"

	"github.com/vijay-eis/mod-source-record-storage/internal/marc"
)

func mustParse(t *testing.T, content string) *marc.ParsedRecord {
	t.Helper()
	rec, err := marc.Parse([]byte(content))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return rec
}

func existingRecord(t *testing.T) *marc.ParsedRecord {
	return mustParse(t, `{
		"leader": "01234nam",
		"fields": [
			{"001": "in001"},
			{"010": {"ind1": " ", "ind2": " ", "subfields": [{"a": "  2012022047"}]}},
			{"999": {"ind1": "f", "ind2": "f", "subfields": [{"s": "srs-1"}]}}
		]
	}`)
}

func detail999ffs() Detail {
	expr := Expression{
		DataValueType: ValueFromRecord,
		Field:         "999",
		Ind1:          "f",
		Ind2:          "f",
		Subfield:      "s",
	}
	return Detail{
		Criterion:          CriterionExactlyMatches,
		ExistingExpression: expr,
		IncomingExpression: expr,
	}
}

func TestExtractValueFromDataField(t *testing.T) {
	rec := existingRecord(t)
	v, ok := ExtractValue(rec, Expression{
		DataValueType: ValueFromRecord,
		Field:         "999", Ind1: "f", Ind2: "f", Subfield: "s",
	})
	if !ok || v != "srs-1" {
		t.Fatalf("got %q %v", v, ok)
	}
}

func TestExtractValueIndicatorMismatch(t *testing.T) {
	rec := existingRecord(t)
	if _, ok := ExtractValue(rec, Expression{
		DataValueType: ValueFromRecord,
		Field:         "999", Ind1: "1", Ind2: "f", Subfield: "s",
	}); ok {
		t.Fatal("indicator mismatch must yield absent")
	}
}

// Control fields have no indicators or subfields; the whole value is
// returned and the subfield code is ignored.
func TestExtractValueControlField(t *testing.T) {
	rec := existingRecord(t)
	v, ok := ExtractValue(rec, Expression{
		DataValueType: ValueFromRecord,
		Field:         "001", Subfield: "a",
	})
	if !ok || v != "in001" {
		t.Fatalf("got %q %v", v, ok)
	}
}

// Blank indicator selectors act as wildcards, the 010 $a case.
func TestExtractValueBlankIndicatorsMatchAnything(t *testing.T) {
	rec := existingRecord(t)
	v, ok := ExtractValue(rec, Expression{
		DataValueType: ValueFromRecord,
		Field:         "010", Subfield: "a",
	})
	if !ok || v != "  2012022047" {
		t.Fatalf("got %q %v", v, ok)
	}
}

func TestMatchesExactly(t *testing.T) {
	existing := existingRecord(t)
	incoming := mustParse(t, `{
		"leader": "01234nam",
		"fields": [{"999": {"ind1": "f", "ind2": "f", "subfields": [{"s": "srs-1"}]}}]
	}`)
	if !Matches(existing, incoming, detail999ffs()) {
		t.Fatal("expected match")
	}
}

func TestMatchesIsCaseSensitive(t *testing.T) {
	existing := existingRecord(t)
	incoming := mustParse(t, `{
		"leader": "01234nam",
		"fields": [{"999": {"ind1": "f", "ind2": "f", "subfields": [{"s": "SRS-1"}]}}]
	}`)
	if Matches(existing, incoming, detail999ffs()) {
		t.Fatal("EXACTLY_MATCHES must be case sensitive")
	}
}

func TestMatchesAbsentValueNeverMatches(t *testing.T) {
	existing := existingRecord(t)
	incoming := mustParse(t, `{"leader": "01234nam", "fields": [{"001": "in001"}]}`)
	if Matches(existing, incoming, detail999ffs()) {
		t.Fatal("absent incoming value must not match")
	}
}

func TestMatchesAllIsConjunction(t *testing.T) {
	existing := existingRecord(t)
	incoming := mustParse(t, `{
		"leader": "01234nam",
		"fields": [
			{"001": "in001"},
			{"999": {"ind1": "f", "ind2": "f", "subfields": [{"s": "srs-1"}]}}
		]
	}`)

	controlExpr := Expression{DataValueType: ValueFromRecord, Field: "001"}
	controlDetail := Detail{
		Criterion:          CriterionExactlyMatches,
		ExistingExpression: controlExpr,
		IncomingExpression: controlExpr,
	}

	if !MatchesAll(existing, incoming, []Detail{detail999ffs(), controlDetail}) {
		t.Fatal("both details hold, expected match")
	}

	failing := detail999ffs()
	failing.IncomingExpression.Subfield = "i"
	if MatchesAll(existing, incoming, []Detail{controlDetail, failing}) {
		t.Fatal("one failing detail must fail the conjunction")
	}
}

func TestMatchesAllEmptyDetails(t *testing.T) {
	existing := existingRecord(t)
	if MatchesAll(existing, existing, nil) {
		t.Fatal("no details must never match")
	}
}

func TestParseProfile(t *testing.T) {
	content := []byte(`{
		"name": "999 ff s match",
		"existingRecordType": "MARC_BIBLIOGRAPHIC",
		"incomingRecordType": "MARC_BIBLIOGRAPHIC",
		"matchDetails": [{
			"matchCriterion": "EXACTLY_MATCHES",
			"existingMatchExpression": {
				"dataValueType": "VALUE_FROM_RECORD",
				"field": "999", "indicator1": "f", "indicator2": "f", "recordSubfield": "s"
			},
			"incomingMatchExpression": {
				"dataValueType": "VALUE_FROM_RECORD",
				"field": "999", "indicator1": "f", "indicator2": "f", "recordSubfield": "s"
			}
		}]
	}`)
	prof, err := ParseProfile(content)
	if err != nil {
		t.Fatalf("parse profile: %v", err)
	}
	if prof.ExistingRecordType != "MARC_BIBLIOGRAPHIC" || len(prof.MatchDetails) != 1 {
		t.Fatalf("profile: %+v", prof)
	}
	if prof.MatchDetails[0].ExistingExpression.Field != "999" {
		t.Fatalf("expression: %+v", prof.MatchDetails[0].ExistingExpression)
	}
}

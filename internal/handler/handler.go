// Package handler implements the event handler chain: match, modify, delete
// and post-processing marker handlers behind one contract, selected through an
// explicit registry built once at startup.
package handler

import (
	"context"
	"encoding/json"

	"github.com/vijay-eis/mod-source-record-storage/internal/events"
	"github.com/vijay-eis/mod-source-record-storage/internal/profile"
	"github.com/vijay-eis/mod-source-record-storage/internal/record/domain"
)

// Handler is the common contract of the chain. Handle returns the next
// payload; failures surface as errors and never mutate the events chain.
// IsPostProcessingNeeded inspects the handled payload so a handler can
// request post-processing for some outcomes only; when it reports true, the
// pipeline publishes PostProcessingEventType instead of the plain result.
type Handler interface {
	IsEligible(payload *events.Payload) bool
	Handle(ctx context.Context, payload *events.Payload) (*events.Payload, error)
	IsPostProcessingNeeded(payload *events.Payload) bool
	PostProcessingEventType() string
}

// Entity context keys by record type. The payload context uses the
// data-import entity names, not the storage type names.
var entityKeys = map[domain.RecordType]string{
	domain.TypeMarcBib:       events.KeyMarcBibliographic,
	domain.TypeMarcAuthority: events.KeyMarcAuthority,
	domain.TypeMarcHolding:   events.KeyMarcHoldings,
}

var recordTypesByEntity = map[string]domain.RecordType{
	events.KeyMarcBibliographic: domain.TypeMarcBib,
	events.KeyMarcAuthority:     domain.TypeMarcAuthority,
	events.KeyMarcHoldings:      domain.TypeMarcHolding,
}

// EntityKey returns the context key of a record type.
func EntityKey(recordType domain.RecordType) string {
	return entityKeys[recordType]
}

// RecordTypeForEntity maps a payload entity name to the storage record type.
func RecordTypeForEntity(entity string) (domain.RecordType, bool) {
	recordType, ok := recordTypesByEntity[entity]
	return recordType, ok
}

// contextRecord decodes the stored record serialized under the given context
// key.
func contextRecord(payload *events.Payload, key string) (*domain.Record, bool, error) {
	raw, ok := payload.ContextValue(key)
	if !ok || raw == "" {
		return nil, false, nil
	}
	var record domain.Record
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, true, err
	}
	return &record, true, nil
}

func putContextRecord(payload *events.Payload, key string, record *domain.Record) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	payload.PutContext(key, string(raw))
	return nil
}

// nodeActionProfile is the slice of an action profile's content the chain
// inspects.
type nodeActionProfile struct {
	Action      string `json:"action"`
	FolioRecord string `json:"folioRecord"`
}

func decodeActionProfile(node *profile.Node) (*nodeActionProfile, error) {
	var content nodeActionProfile
	if err := json.Unmarshal(node.Content, &content); err != nil {
		return nil, err
	}
	return &content, nil
}

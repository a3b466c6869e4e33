// Package events defines the data-import event vocabulary, the payload that
// moves through the pipeline and the transactional outbox on the publishing
// side.
package events

import (
	"encoding/json"

	"github.com/vijay-eis/mod-source-record-storage/internal/profile"
)

// Data-import event types consumed and produced by this module.
const (
	EventError = "DI_ERROR"

	EventMarcBibRecordCreated        = "DI_SRS_MARC_BIB_RECORD_CREATED"
	EventMarcBibRecordMatched        = "DI_SRS_MARC_BIB_RECORD_MATCHED"
	EventMarcBibRecordNotMatched     = "DI_SRS_MARC_BIB_RECORD_NOT_MATCHED"
	EventMarcBibMatchedReadyForPost  = "DI_SRS_MARC_BIB_RECORD_MATCHED_READY_FOR_POST_PROCESSING"
	EventMarcBibRecordModified       = "DI_SRS_MARC_BIB_RECORD_MODIFIED"
	EventMarcBibModifiedReadyForPost = "DI_SRS_MARC_BIB_RECORD_MODIFIED_READY_FOR_POST_PROCESSING"

	EventMarcAuthorityRecordCreated    = "DI_SRS_MARC_AUTHORITY_RECORD_CREATED"
	EventMarcAuthorityRecordMatched    = "DI_SRS_MARC_AUTHORITY_RECORD_MATCHED"
	EventMarcAuthorityRecordNotMatched = "DI_SRS_MARC_AUTHORITY_RECORD_NOT_MATCHED"
	EventMarcAuthorityRecordModified   = "DI_SRS_MARC_AUTHORITY_RECORD_MODIFIED"
	EventMarcAuthorityRecordDeleted    = "DI_SRS_MARC_AUTHORITY_RECORD_DELETED"
	EventMarcForDeleteReceived         = "DI_MARC_FOR_DELETE_RECEIVED"

	EventMarcHoldingsRecordCreated    = "DI_SRS_MARC_HOLDINGS_RECORD_CREATED"
	EventMarcHoldingsRecordMatched    = "DI_SRS_MARC_HOLDINGS_RECORD_MATCHED"
	EventMarcHoldingsRecordNotMatched = "DI_SRS_MARC_HOLDINGS_RECORD_NOT_MATCHED"
	EventMarcHoldingsRecordModified   = "DI_SRS_MARC_HOLDINGS_RECORD_MODIFIED"

	EventInstanceCreated  = "DI_INVENTORY_INSTANCE_CREATED"
	EventHoldingsCreated  = "DI_INVENTORY_HOLDING_CREATED"
	EventAuthorityCreated = "DI_INVENTORY_AUTHORITY_CREATED"

	EventCompleted = "DI_COMPLETED"
)

// Well-known payload context keys.
const (
	KeyMarcBibliographic = "MARC_BIBLIOGRAPHIC"
	KeyMarcAuthority     = "MARC_AUTHORITY"
	KeyMarcHoldings      = "MARC_HOLDINGS"
	KeyAuthorityRecordID = "AUTHORITY_RECORD_ID"
	KeyProfileSnapshotID = "JOB_PROFILE_SNAPSHOT_ID"

	// MatchedKeyPrefix prefixes the entity key of a record a match handler
	// found, e.g. MATCHED_MARC_BIBLIOGRAPHIC.
	MatchedKeyPrefix = "MATCHED_"
)

// Envelope is the wire form of one event-stream message.
type Envelope struct {
	ID           string `json:"id,omitempty"`
	EventType    string `json:"eventType"`
	EventPayload string `json:"eventPayload"`
}

// Payload is the unit of work moving through the pipeline: the tenant scope,
// the current profile node, a context of serialized entities and the ordered
// trail of event types already consumed.
type Payload struct {
	EventType      string            `json:"eventType"`
	Tenant         string            `json:"tenant"`
	Token          string            `json:"token,omitempty"`
	OkapiURL       string            `json:"okapiUrl,omitempty"`
	JobExecutionID string            `json:"jobExecutionId"`
	Context        map[string]string `json:"context"`
	CurrentNode    *profile.Node     `json:"currentNode,omitempty"`
	EventsChain    []string          `json:"eventsChain,omitempty"`
}

// ContextValue returns the named context entry.
func (p *Payload) ContextValue(key string) (string, bool) {
	if p.Context == nil {
		return "", false
	}
	value, ok := p.Context[key]
	return value, ok
}

// PutContext sets a context entry, allocating the map on first use.
func (p *Payload) PutContext(key, value string) {
	if p.Context == nil {
		p.Context = make(map[string]string)
	}
	p.Context[key] = value
}

// Wrap serializes the payload into an outbound envelope.
func Wrap(payload *Payload) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{EventType: payload.EventType, EventPayload: string(raw)}, nil
}

// Unwrap deserializes an inbound envelope into its payload.
func Unwrap(envelope Envelope) (*Payload, error) {
	var payload Payload
	if err := json.Unmarshal([]byte(envelope.EventPayload), &payload); err != nil {
		return nil, err
	}
	if payload.EventType == "" {
		payload.EventType = envelope.EventType
	}
	return &payload, nil
}

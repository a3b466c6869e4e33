package handler

import (
	"go.uber.org/zap"

	"github.com/vijay-eis/mod-source-record-storage/internal/events"
	"github.com/vijay-eis/mod-source-record-storage/internal/match"
	"github.com/vijay-eis/mod-source-record-storage/internal/profile"
	"github.com/vijay-eis/mod-source-record-storage/internal/record/domain"
)

// Key addresses a node-driven handler: the profile node's content type plus
// the record type it operates on.
type Key struct {
	Content profile.ContentType
	Record  domain.RecordType
}

// Registry is the handler lookup built once at startup and passed into the
// pipeline. Node-driven handlers are keyed by (content type, record type);
// event-driven handlers by the inbound event type.
type Registry struct {
	byKey   map[Key]Handler
	byEvent map[string]Handler
}

func NewRegistry(records domain.Service, log *zap.Logger) *Registry {
	r := &Registry{
		byKey:   make(map[Key]Handler),
		byEvent: make(map[string]Handler),
	}

	r.RegisterNode(Key{profile.ContentMatchProfile, domain.TypeMarcBib},
		newMatchHandler(domain.TypeMarcBib,
			events.EventMarcBibRecordMatched, events.EventMarcBibRecordNotMatched,
			events.EventMarcBibMatchedReadyForPost, records, log))
	r.RegisterNode(Key{profile.ContentMatchProfile, domain.TypeMarcAuthority},
		newMatchHandler(domain.TypeMarcAuthority,
			events.EventMarcAuthorityRecordMatched, events.EventMarcAuthorityRecordNotMatched,
			"", records, log))
	r.RegisterNode(Key{profile.ContentMatchProfile, domain.TypeMarcHolding},
		newMatchHandler(domain.TypeMarcHolding,
			events.EventMarcHoldingsRecordMatched, events.EventMarcHoldingsRecordNotMatched,
			"", records, log))

	r.RegisterNode(Key{profile.ContentActionProfile, domain.TypeMarcBib},
		newModifyHandler(domain.TypeMarcBib,
			events.EventMarcBibModifiedReadyForPost, true, records, log))
	r.RegisterNode(Key{profile.ContentActionProfile, domain.TypeMarcAuthority},
		newModifyHandler(domain.TypeMarcAuthority,
			events.EventMarcAuthorityRecordModified, false, records, log))
	r.RegisterNode(Key{profile.ContentActionProfile, domain.TypeMarcHolding},
		newModifyHandler(domain.TypeMarcHolding,
			events.EventMarcHoldingsRecordModified, false, records, log))

	r.RegisterEvent(events.EventMarcForDeleteReceived, newDeleteHandler(records, log))

	r.RegisterEvent(events.EventInstanceCreated, newMarkerHandler(events.EventInstanceCreated, false, ""))
	r.RegisterEvent(events.EventHoldingsCreated, newMarkerHandler(events.EventHoldingsCreated, false, ""))
	r.RegisterEvent(events.EventAuthorityCreated, newMarkerHandler(events.EventAuthorityCreated, false, ""))

	return r
}

// RegisterNode binds a node-driven handler.
func (r *Registry) RegisterNode(key Key, h Handler) { r.byKey[key] = h }

// RegisterEvent binds an event-driven handler.
func (r *Registry) RegisterEvent(eventType string, h Handler) { r.byEvent[eventType] = h }

// Resolve selects the handler for a payload, or reports that none applies.
// Event-driven handlers take precedence; node-driven lookup derives the
// record type from the current node's content.
func (r *Registry) Resolve(payload *events.Payload) (Handler, bool) {
	if h, ok := r.byEvent[payload.EventType]; ok && h.IsEligible(payload) {
		return h, true
	}

	node := payload.CurrentNode
	if node == nil {
		return nil, false
	}

	var key Key
	switch node.ContentType {
	case profile.ContentMatchProfile:
		prof, err := match.ParseProfile(node.Content)
		if err != nil {
			return nil, false
		}
		existing, okExisting := RecordTypeForEntity(prof.ExistingRecordType)
		incoming, okIncoming := RecordTypeForEntity(prof.IncomingRecordType)
		if !okExisting || !okIncoming || existing != incoming {
			return nil, false
		}
		key = Key{profile.ContentMatchProfile, existing}
	case profile.ContentActionProfile:
		content, err := decodeActionProfile(node)
		if err != nil {
			return nil, false
		}
		recordType, ok := RecordTypeForEntity(content.FolioRecord)
		if !ok {
			return nil, false
		}
		key = Key{profile.ContentActionProfile, recordType}
	default:
		return nil, false
	}

	h, ok := r.byKey[key]
	if !ok || !h.IsEligible(payload) {
		return nil, false
	}
	return h, true
}

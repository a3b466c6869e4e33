package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/vijay-eis/mod-source-record-storage/internal/events"
	"github.com/vijay-eis/mod-source-record-storage/internal/marc"
	"github.com/vijay-eis/mod-source-record-storage/internal/profile"
	"github.com/vijay-eis/mod-source-record-storage/internal/record/domain"
	"github.com/vijay-eis/mod-source-record-storage/internal/storeerr"
)

// Action profile actions in scope for the modify handler.
const (
	actionModify = "MODIFY"
	actionUpdate = "UPDATE"
)

// modifyHandler applies the field edits of an action node's mapping profile
// to the target record and persists the result. A record type that requires
// post-processing emits the ready-for-post-processing event instead of the
// plain modified event.
type modifyHandler struct {
	recordType     domain.RecordType
	resultEvent    string
	postProcessing bool
	records        domain.Service
	log            *zap.Logger
}

func newModifyHandler(recordType domain.RecordType, resultEvent string, postProcessing bool, records domain.Service, log *zap.Logger) *modifyHandler {
	return &modifyHandler{
		recordType:     recordType,
		resultEvent:    resultEvent,
		postProcessing: postProcessing,
		records:        records,
		log:            log.Named("handler.modify"),
	}
}

func (h *modifyHandler) IsEligible(payload *events.Payload) bool {
	node := payload.CurrentNode
	if node == nil || node.ContentType != profile.ContentActionProfile {
		return false
	}
	content, err := decodeActionProfile(node)
	if err != nil {
		return false
	}
	if content.Action != actionModify && content.Action != actionUpdate {
		return false
	}
	recordType, ok := RecordTypeForEntity(content.FolioRecord)
	return ok && recordType == h.recordType
}

func (h *modifyHandler) Handle(ctx context.Context, payload *events.Payload) (*events.Payload, error) {
	node := payload.CurrentNode
	if node == nil {
		return nil, fmt.Errorf("modify: missing profile node: %w", storeerr.ErrProcessing)
	}
	mappingNode := node.FirstChild(profile.ContentMappingProfile)
	if mappingNode == nil {
		return nil, fmt.Errorf("modify: action node %s has no mapping profile: %w", node.ID, storeerr.ErrProcessing)
	}
	details, err := ParseMappingDetails(mappingNode.Content)
	if err != nil {
		return nil, err
	}

	target, err := h.targetRecord(payload)
	if err != nil {
		return nil, err
	}
	stored, err := h.records.GetByID(ctx, target.ID)
	if err != nil {
		return nil, err
	}
	if stored.ParsedRecord == nil {
		return nil, fmt.Errorf("modify: record %s has no parsed content: %w", stored.ID, storeerr.ErrProcessing)
	}

	parsed, err := marc.Parse(stored.ParsedRecord.Content)
	if err != nil {
		return nil, fmt.Errorf("modify: parse record %s: %v: %w", stored.ID, err, storeerr.ErrProcessing)
	}
	if err := ApplyEdits(parsed, details); err != nil {
		return nil, err
	}
	content, err := json.Marshal(parsed)
	if err != nil {
		return nil, fmt.Errorf("modify: encode record %s: %v: %w", stored.ID, err, storeerr.ErrProcessing)
	}
	stored.ParsedRecord.Content = content

	updated, err := h.records.Update(ctx, *stored)
	if err != nil {
		return nil, err
	}
	if err := putContextRecord(payload, EntityKey(h.recordType), updated); err != nil {
		return nil, fmt.Errorf("modify: encode context entry: %v: %w", err, storeerr.ErrProcessing)
	}

	consumed := payload.EventType
	payload.EventsChain = append(payload.EventsChain, consumed)
	payload.EventType = h.resultEvent

	h.log.Debug("record modified",
		zap.String("recordId", updated.ID),
		zap.String("recordType", string(h.recordType)),
		zap.Int("edits", len(details)))
	return payload, nil
}

// targetRecord prefers the record a preceding match step found; a modify on
// an unmatched payload edits the incoming record itself.
func (h *modifyHandler) targetRecord(payload *events.Payload) (*domain.Record, error) {
	entityKey := EntityKey(h.recordType)
	if record, present, err := contextRecord(payload, events.MatchedKeyPrefix+entityKey); present {
		if err != nil {
			return nil, fmt.Errorf("modify: decode matched record: %v: %w", err, storeerr.ErrProcessing)
		}
		return record, nil
	}
	record, present, err := contextRecord(payload, entityKey)
	if err != nil {
		return nil, fmt.Errorf("modify: decode %s: %v: %w", entityKey, err, storeerr.ErrProcessing)
	}
	if !present {
		return nil, fmt.Errorf("modify: context entry %s absent: %w", entityKey, storeerr.ErrProcessing)
	}
	return record, nil
}

func (h *modifyHandler) IsPostProcessingNeeded(*events.Payload) bool { return h.postProcessing }

func (h *modifyHandler) PostProcessingEventType() string {
	if h.postProcessing {
		return h.resultEvent
	}
	return ""
}

package handler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vijay-eis/mod-source-record-storage/internal/events"
	"github.com/vijay-eis/mod-source-record-storage/internal/marc"
	"github.com/vijay-eis/mod-source-record-storage/internal/match"
	"github.com/vijay-eis/mod-source-record-storage/internal/profile"
	"github.com/vijay-eis/mod-source-record-storage/internal/record/domain"
	"github.com/vijay-eis/mod-source-record-storage/internal/storeerr"
)

const matchCandidateBatch = 100

// matchHandler evaluates a match profile node against the stored ACTUAL
// records of its bound type.
type matchHandler struct {
	recordType      domain.RecordType
	matchedEvent    string
	notMatchedEvent string
	postEventType   string
	records         domain.Service
	log             *zap.Logger
}

func newMatchHandler(recordType domain.RecordType, matchedEvent, notMatchedEvent, postEventType string, records domain.Service, log *zap.Logger) *matchHandler {
	return &matchHandler{
		recordType:      recordType,
		matchedEvent:    matchedEvent,
		notMatchedEvent: notMatchedEvent,
		postEventType:   postEventType,
		records:         records,
		log:             log.Named("handler.match"),
	}
}

func (h *matchHandler) IsEligible(payload *events.Payload) bool {
	node := payload.CurrentNode
	if node == nil || node.ContentType != profile.ContentMatchProfile {
		return false
	}
	prof, err := match.ParseProfile(node.Content)
	if err != nil {
		return false
	}
	existing, okExisting := RecordTypeForEntity(prof.ExistingRecordType)
	incoming, okIncoming := RecordTypeForEntity(prof.IncomingRecordType)
	return okExisting && okIncoming && existing == h.recordType && incoming == h.recordType
}

func (h *matchHandler) Handle(ctx context.Context, payload *events.Payload) (*events.Payload, error) {
	node := payload.CurrentNode
	if node == nil {
		return nil, fmt.Errorf("match: missing profile node: %w", storeerr.ErrProcessing)
	}
	prof, err := match.ParseProfile(node.Content)
	if err != nil {
		return nil, fmt.Errorf("match: %v: %w", err, storeerr.ErrProcessing)
	}

	entityKey := EntityKey(h.recordType)
	incoming, present, err := contextRecord(payload, entityKey)
	if err != nil {
		return nil, fmt.Errorf("match: decode %s: %v: %w", entityKey, err, storeerr.ErrProcessing)
	}
	if !present {
		return nil, fmt.Errorf("match: context entry %s absent: %w", entityKey, storeerr.ErrProcessing)
	}
	if incoming.ParsedRecord == nil {
		return nil, fmt.Errorf("match: record %s has no parsed content: %w", incoming.ID, storeerr.ErrProcessing)
	}
	incomingParsed, err := marc.Parse(incoming.ParsedRecord.Content)
	if err != nil {
		return nil, fmt.Errorf("match: parse incoming %s: %v: %w", incoming.ID, err, storeerr.ErrProcessing)
	}

	matched, err := h.findMatches(ctx, prof.MatchDetails, incomingParsed)
	if err != nil {
		return nil, err
	}

	consumed := payload.EventType
	switch len(matched) {
	case 0:
		payload.EventType = h.notMatchedEvent
	case 1:
		if err := putContextRecord(payload, events.MatchedKeyPrefix+entityKey, matched[0]); err != nil {
			return nil, fmt.Errorf("match: encode matched record: %v: %w", err, storeerr.ErrProcessing)
		}
		payload.EventType = h.matchedEvent
	default:
		return nil, fmt.Errorf("match: %d records satisfy profile %q: %w", len(matched), prof.Name, storeerr.ErrProcessing)
	}
	payload.EventsChain = append(payload.EventsChain, consumed)

	h.log.Debug("match evaluated",
		zap.String("profile", prof.Name),
		zap.String("recordType", string(h.recordType)),
		zap.Int("matched", len(matched)))
	return payload, nil
}

// findMatches pages through the ACTUAL records of the bound type and returns
// every one satisfying all match details.
func (h *matchHandler) findMatches(ctx context.Context, details []match.Detail, incoming *marc.ParsedRecord) ([]*domain.Record, error) {
	var matched []*domain.Record
	offset := 0
	for {
		page, err := h.records.List(ctx, domain.ListRequest{
			RecordType: h.recordType,
			State:      domain.StateActual,
			Limit:      matchCandidateBatch,
			Offset:     offset,
		})
		if err != nil {
			return nil, err
		}
		for i := range page.Records {
			candidate := &page.Records[i]
			if candidate.ParsedRecord == nil {
				continue
			}
			existingParsed, err := marc.Parse(candidate.ParsedRecord.Content)
			if err != nil {
				continue
			}
			if match.MatchesAll(existingParsed, incoming, details) {
				matched = append(matched, candidate)
			}
		}
		offset += len(page.Records)
		if len(page.Records) < matchCandidateBatch || int64(offset) >= page.TotalRecords {
			return matched, nil
		}
	}
}

// IsPostProcessingNeeded is true only for the matched outcome; a not-matched
// payload keeps its plain result event.
func (h *matchHandler) IsPostProcessingNeeded(payload *events.Payload) bool {
	return h.postEventType != "" && payload != nil && payload.EventType == h.matchedEvent
}

func (h *matchHandler) PostProcessingEventType() string { return h.postEventType }

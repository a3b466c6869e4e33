package handler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vijay-eis/mod-source-record-storage/internal/events"
	"github.com/vijay-eis/mod-source-record-storage/internal/record/domain"
	"github.com/vijay-eis/mod-source-record-storage/internal/storeerr"
)

// deleteHandler marks an authority record DELETED and exposes its external
// authority id to downstream consumers.
type deleteHandler struct {
	records domain.Service
	log     *zap.Logger
}

func newDeleteHandler(records domain.Service, log *zap.Logger) *deleteHandler {
	return &deleteHandler{records: records, log: log.Named("handler.delete")}
}

func (h *deleteHandler) IsEligible(payload *events.Payload) bool {
	return payload.EventType == events.EventMarcForDeleteReceived
}

func (h *deleteHandler) Handle(ctx context.Context, payload *events.Payload) (*events.Payload, error) {
	target, present, err := contextRecord(payload, events.KeyMarcAuthority)
	if err != nil {
		return nil, fmt.Errorf("delete: decode %s: %v: %w", events.KeyMarcAuthority, err, storeerr.ErrProcessing)
	}
	if !present {
		return nil, fmt.Errorf("delete: context entry %s absent: %w", events.KeyMarcAuthority, storeerr.ErrProcessing)
	}

	stored, err := h.records.GetByID(ctx, target.ID)
	if err != nil {
		return nil, err
	}
	stored.State = domain.StateDeleted
	updated, err := h.records.Update(ctx, *stored)
	if err != nil {
		return nil, err
	}

	if authorityID := updated.ExternalID(domain.ExternalAuthorityID); authorityID != "" {
		payload.PutContext(events.KeyAuthorityRecordID, authorityID)
	}
	if err := putContextRecord(payload, events.KeyMarcAuthority, updated); err != nil {
		return nil, fmt.Errorf("delete: encode context entry: %v: %w", err, storeerr.ErrProcessing)
	}

	consumed := payload.EventType
	payload.EventsChain = append(payload.EventsChain, consumed)
	payload.EventType = events.EventMarcAuthorityRecordDeleted

	h.log.Info("authority record deleted", zap.String("recordId", updated.ID))
	return payload, nil
}

func (h *deleteHandler) IsPostProcessingNeeded(*events.Payload) bool { return false }

func (h *deleteHandler) PostProcessingEventType() string { return "" }

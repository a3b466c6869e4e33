package handler

import (
	"context"

	"github.com/vijay-eis/mod-source-record-storage/internal/events"
)

// markerHandler is a passthrough for inventory-created events. It exists so
// the pipeline can route post-processing round-trips without special cases.
type markerHandler struct {
	eventType       string
	postProcessing  bool
	postProcessType string
}

func newMarkerHandler(eventType string, postProcessing bool, postProcessType string) *markerHandler {
	return &markerHandler{
		eventType:       eventType,
		postProcessing:  postProcessing,
		postProcessType: postProcessType,
	}
}

func (h *markerHandler) IsEligible(payload *events.Payload) bool {
	return payload.EventType == h.eventType
}

func (h *markerHandler) Handle(_ context.Context, payload *events.Payload) (*events.Payload, error) {
	payload.EventsChain = append(payload.EventsChain, payload.EventType)
	return payload, nil
}

func (h *markerHandler) IsPostProcessingNeeded(*events.Payload) bool { return h.postProcessing }

func (h *markerHandler) PostProcessingEventType() string { return h.postProcessType }

package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cmlabs-hris/hris-checkin-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-checkin-go/internal/domain/timesync"
	"github.com/cmlabs-hris/hris-checkin-go/internal/handler/http/response"
	"github.com/cmlabs-hris/hris-checkin-go/internal/service/clock"
)

type ClockHandler interface {
	Status(w http.ResponseWriter, r *http.Request)
	Sync(w http.ResponseWriter, r *http.Request)
}

// ClockReader is the display side of the trusted clock.
type ClockReader interface {
	Status() clock.Status
	Location() *time.Location
}

// ClockSyncer runs an on-demand sync and notifies open sessions.
type ClockSyncer interface {
	SyncClock(ctx context.Context) error
}

type clockHandlerImpl struct {
	clock  ClockReader
	syncer ClockSyncer
}

func NewClockHandler(clock ClockReader, syncer ClockSyncer) ClockHandler {
	return &clockHandlerImpl{
		clock:  clock,
		syncer: syncer,
	}
}

// Status implements ClockHandler.
func (h *clockHandlerImpl) Status(w http.ResponseWriter, r *http.Request) {
	response.Success(w, h.statusResponse())
}

// Sync implements ClockHandler. A failed sync keeps a previous anchor, so the
// request only fails when the clock is still not ready afterwards.
func (h *clockHandlerImpl) Sync(w http.ResponseWriter, r *http.Request) {
	err := h.syncer.SyncClock(r.Context())
	status := h.statusResponse()

	if err != nil {
		slog.Warn("On-demand clock sync failed", "error", err, "ready", status.Ready)
		if !status.Ready {
			response.Blocked(w, http.StatusServiceUnavailable, "TIME_NOT_READY", attendance.ErrTimeNotReady.Error())
			return
		}
		response.SuccessWithMessage(w, "Clock sync failed, previous sync kept", status)
		return
	}

	response.SuccessWithMessage(w, "Clock synced", status)
}

func (h *clockHandlerImpl) statusResponse() timesync.StatusResponse {
	st := h.clock.Status()
	resp := timesync.StatusResponse{
		State:      string(st.State),
		Ready:      st.State == clock.StateReady,
		Timezone:   h.clock.Location().String(),
		Source:     st.Source,
		RTTMs:      st.RTT.Milliseconds(),
		AccuracyMs: st.Accuracy.Milliseconds(),
		LastError:  st.LastError,
	}
	if st.Now != nil {
		resp.Now = attendance.FormatTimestamp(st.Now)
		resp.Date = st.Now.Format(attendance.DateLayout)
	}
	resp.SyncedAt = attendance.FormatTimestamp(st.SyncedAt)
	return resp
}

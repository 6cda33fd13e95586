package manager

import (
	"context"
	"time"

	"modeldash/internal/scheduler"
	"modeldash/pkg/types"
)

// Status builds the status response for /status.
func (m *Manager) Status() types.StatusResponse {
	return m.report(m.sched.Status())
}

// Refresh triggers an on-demand cycle of every collection. Collections already
// being fetched are joined rather than fetched twice.
func (m *Manager) Refresh(ctx context.Context) types.StatusResponse {
	return m.report(m.sched.Refresh(ctx))
}

func (m *Manager) report(st scheduler.Status) types.StatusResponse {
	resp := types.StatusResponse{
		OK:            st.OK,
		At:            st.At,
		Message:       st.Message,
		BackendURL:    m.backendURL,
		Pending:       m.installed.Pending(),
		UptimeSeconds: int64(time.Since(m.startTime).Seconds()),
	}
	if st.Cycles == 0 && !st.OK {
		resp.Message = "Waiting for first refresh"
	}
	byID := make(map[types.CollectionID]scheduler.Result, len(st.Collections))
	for _, r := range st.Collections {
		byID[r.Collection] = r
	}
	resp.Collections = make([]types.CollectionStatus, 0, len(st.Collections))
	for _, src := range m.sched.Sources() {
		r := byID[src.ID()]
		cs := types.CollectionStatus{
			Collection: src.ID(),
			OK:         r.OK,
			At:         r.At,
			State:      string(src.State()),
			Count:      src.Count(),
		}
		if r.Err != nil {
			cs.Error = r.Err.Error()
		}
		resp.Collections = append(resp.Collections, cs)
	}
	return resp
}

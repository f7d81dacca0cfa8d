// Package httpapi provides HTTP handlers and data transfer objects for the sqlpoll status API.
package httpapi

import (
	"time"

	"github.com/dsjohal14/sqlpoll/internal/streamlite"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status      string `json:"status"`
	SourceCount int    `json:"source_count"`
	OpenCount   int    `json:"open_count"`
}

// CycleReport represents the outcome of one poll cycle
type CycleReport struct {
	CycleID    string    `json:"cycle_id"`
	Query      string    `json:"query,omitempty"`
	Cursor     int64     `json:"cursor"`
	NextCursor int64     `json:"next_cursor"`
	Rows       int       `json:"rows"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
}

// SourceStatus represents the state of one polled source
type SourceStatus struct {
	ID        string       `json:"id"`
	Table     string       `json:"table,omitempty"`
	Custom    bool         `json:"custom_query"`
	Phase     string       `json:"phase"`
	Cursor    int64        `json:"cursor"`
	Open      bool         `json:"open"`
	IntervalS float64      `json:"interval_seconds"`
	StartedAt *time.Time   `json:"started_at,omitempty"`
	Success   uint64       `json:"success_cycles"`
	Empty     uint64       `json:"empty_cycles"`
	Failed    uint64       `json:"failed_cycles"`
	Last      *CycleReport `json:"last_cycle,omitempty"`
}

// SourcesResponse lists every source
type SourcesResponse struct {
	Sources []SourceStatus `json:"sources"`
	Count   int            `json:"count"`
}

// RunResponse represents a manually triggered cycle
type RunResponse struct {
	Source string      `json:"source"`
	Report CycleReport `json:"report"`
}

// ErrorResponse represents API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func toCycleReport(r streamlite.Report) CycleReport {
	out := CycleReport{
		CycleID:    r.CycleID,
		Query:      r.Query,
		Cursor:     r.Cursor,
		NextCursor: r.NextCursor,
		Rows:       r.Rows,
		Outcome:    r.Outcome,
		StartedAt:  r.StartedAt,
		DurationMS: r.Duration.Milliseconds(),
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return out
}

func toSourceStatus(c *streamlite.Incremental) SourceStatus {
	st := c.Status()
	src := c.Source()

	out := SourceStatus{
		ID:        st.SourceID,
		Table:     src.Table,
		Custom:    src.IsCustomQuery(),
		Phase:     st.Phase.String(),
		Cursor:    st.Cursor,
		Open:      st.Open,
		IntervalS: src.Interval().Seconds(),
		Success:   st.Counters.Success,
		Empty:     st.Counters.Empty,
		Failed:    st.Counters.Failed,
	}
	if !st.StartedAt.IsZero() {
		started := st.StartedAt
		out.StartedAt = &started
	}
	if st.Last != nil {
		last := toCycleReport(*st.Last)
		out.Last = &last
	}
	return out
}

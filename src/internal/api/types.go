package api

// DataResponse wraps successful responses with a "data" field.
type DataResponse struct {
	Data interface{} `json:"data"`
}

// OutletInfo is one selectable outlet.
type OutletInfo struct {
	Name  string `json:"name"`
	Value uint32 `json:"value"`
}

// GroupInfo is one outlet group, in display order.
type GroupInfo struct {
	Index   int          `json:"index"`
	Title   string       `json:"title"`
	Mask    uint32       `json:"mask"`
	Default string       `json:"default"`
	Outlets []OutletInfo `json:"outlets"`
}

// DurationInfo is one allowed duration. Hours 0 never expires.
type DurationInfo struct {
	Hours int    `json:"hours"`
	Label string `json:"label"`
}

// OutletsResponse returns the outlet groups and allowed durations.
type OutletsResponse struct {
	Groups    []GroupInfo    `json:"groups"`
	Durations []DurationInfo `json:"durations"`
}

// GroupStatusInfo is the outlet selected in one group.
type GroupStatusInfo struct {
	Index  int    `json:"index"`
	Title  string `json:"title"`
	Outlet string `json:"outlet"`
	Value  uint32 `json:"value"`
	// Known is false when the group's bits match none of its outlets.
	Known bool `json:"known"`
}

// StatusResponse returns the caller's current selection.
type StatusResponse struct {
	Addr     string `json:"addr"`
	Hostname string `json:"hostname"`
	Found    bool   `json:"found"`
	Mark     uint32 `json:"mark"`
	Outlets  string `json:"outlets"`
	// ExpiresSeconds is 0 for permanent entries and when nothing is set.
	ExpiresSeconds int64             `json:"expires_seconds"`
	Remaining      string            `json:"remaining,omitempty"`
	Groups         []GroupStatusInfo `json:"groups"`
}

// ApplyOutletRequest selects one outlet of a group.
type ApplyOutletRequest struct {
	Outlet string `json:"outlet"`
	Hours  *int   `json:"hours"`
}

// SelectionRequest selects one outlet per group, in group order.
type SelectionRequest struct {
	Outlets []string `json:"outlets"`
	Hours   *int     `json:"hours"`
}

// ApplyResponse describes a completed write.
type ApplyResponse struct {
	Addr       string `json:"addr"`
	OldMark    uint32 `json:"old_mark"`
	NewMark    uint32 `json:"new_mark"`
	TTLSeconds int64  `json:"ttl_seconds"`
	Permanent  bool   `json:"permanent"`
	Message    string `json:"message"`
}

// HealthCheckResponse returns health check results.
type HealthCheckResponse struct {
	Healthy bool                   `json:"healthy"`
	Checks  map[string]CheckResult `json:"checks"`
}

// CheckResult represents a single health check result.
type CheckResult struct {
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

// ListenerStatus is the state of one front-end listener.
type ListenerStatus struct {
	Name      string `json:"name"`
	Addr      string `json:"addr"`
	Serving   bool   `json:"serving"`
	Restarts  int    `json:"restarts"`
	LastError string `json:"last_error,omitempty"`
}

// ListenerReporter lists the front-end listeners of the running service.
type ListenerReporter interface {
	Listeners() []ListenerStatus
}

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wlt-go/wlt/src/internal/errors"
	"github.com/wlt-go/wlt/src/internal/log"
	"github.com/wlt-go/wlt/src/internal/outlet"
	"github.com/wlt-go/wlt/src/internal/service"
)

// LabelsProvider returns the labels currently in effect. They change on reload.
type LabelsProvider interface {
	Labels() *outlet.Labels
}

// HostnameResolver looks up a display name for an address.
type HostnameResolver interface {
	Hostname(ctx context.Context, addr netip.Addr) string
}

// Handler manages all API endpoints and dependencies.
type Handler struct {
	svc               *service.OutletService
	labels            LabelsProvider
	resolver          HostnameResolver
	trustProxyHeaders bool
	corsOrigins       []string
	listeners         ListenerReporter
}

type HandlerOption func(*Handler)

// WithCORSOrigins lets pages from origins call the JSON API.
func WithCORSOrigins(origins []string) HandlerOption {
	return func(h *Handler) {
		h.corsOrigins = origins
	}
}

// WithListeners adds the state of the front-end listeners to /health.
func WithListeners(l ListenerReporter) HandlerOption {
	return func(h *Handler) {
		h.listeners = l
	}
}

// NewHandler creates a new API handler.
func NewHandler(svc *service.OutletService, labels LabelsProvider, resolver HostnameResolver, trustProxyHeaders bool, opts ...HandlerOption) *Handler {
	h := &Handler{
		svc:               svc,
		labels:            labels,
		resolver:          resolver,
		trustProxyHeaders: trustProxyHeaders,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// caller returns the source address of the request, writing an error when there is none.
func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (netip.Addr, bool) {
	addr, ok := clientAddr(r, h.trustProxyHeaders)
	if !ok {
		WriteInvalidRequest(w, "Cannot determine client address")
	}
	return addr, ok
}

func (h *Handler) hostname(ctx context.Context, addr netip.Addr) string {
	if h.resolver == nil {
		return addr.String()
	}
	return h.resolver.Hostname(ctx, addr)
}

// resolveSelection maps one outlet name per group to outlet values.
func resolveSelection(c *outlet.Catalog, names []string) ([]uint32, error) {
	groups := c.Groups()
	if len(names) != len(groups) {
		return nil, errors.NewValidationError(fmt.Sprintf("expected %d outlets, got %d", len(groups), len(names)), nil)
	}
	values := make([]uint32, len(groups))
	for i, g := range groups {
		o, ok := g.OutletByName(names[i])
		if !ok {
			return nil, errors.NewValidationError(fmt.Sprintf(outlet.MsgInvalidOutlet, g.Title), nil)
		}
		values[i] = o.Value
	}
	return values, nil
}

func validateHours(c *outlet.Catalog, hours *int) (int, error) {
	if hours == nil || !c.DurationAllowed(*hours) {
		return 0, errors.NewValidationError(outlet.MsgInvalidDuration, nil)
	}
	return *hours, nil
}

func (h *Handler) applyResponse(c *outlet.Catalog, res service.Result) ApplyResponse {
	return ApplyResponse{
		Addr:       res.Addr.String(),
		OldMark:    res.OldMark,
		NewMark:    res.NewMark,
		TTLSeconds: int64(res.TTL / time.Second),
		Permanent:  res.Permanent(),
		Message:    h.labels.Labels().Opened(c, res.NewMark, res.TTL),
	}
}

// GetOutlets returns the outlet groups and allowed durations.
// GET /api/v1/outlets
func (h *Handler) GetOutlets(w http.ResponseWriter, r *http.Request) {
	c := h.svc.Catalog()
	labels := h.labels.Labels()

	response := OutletsResponse{
		Groups:    make([]GroupInfo, 0, c.Len()),
		Durations: durationInfos(labels, c),
	}
	for i, g := range c.Groups() {
		info := GroupInfo{
			Index:   i,
			Title:   g.Title,
			Mask:    g.Mask,
			Default: g.Default().Name,
			Outlets: make([]OutletInfo, 0, len(g.Outlets)),
		}
		for _, o := range g.Outlets {
			info.Outlets = append(info.Outlets, OutletInfo{Name: o.Name, Value: o.Value})
		}
		response.Groups = append(response.Groups, info)
	}

	writeJSONData(w, response)
}

func durationInfos(labels *outlet.Labels, c *outlet.Catalog) []DurationInfo {
	durations := c.Durations()
	infos := make([]DurationInfo, 0, len(durations))
	for _, hours := range durations {
		infos = append(infos, DurationInfo{Hours: hours, Label: labels.Duration(hours)})
	}
	return infos
}

// GetStatus returns the caller's current selection.
// GET /api/v1/status
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.caller(w, r)
	if !ok {
		return
	}

	st, err := h.svc.Status(r.Context(), addr)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	writeJSONData(w, h.statusResponse(r.Context(), st))
}

func (h *Handler) statusResponse(ctx context.Context, st service.Status) StatusResponse {
	labels := h.labels.Labels()
	response := StatusResponse{
		Addr:     st.Addr.String(),
		Hostname: h.hostname(ctx, st.Addr),
		Found:    st.Found,
		Mark:     st.Mark,
		Outlets:  labels.Outlets(h.svc.Catalog(), st.Mark, st.Found),
		Groups:   make([]GroupStatusInfo, 0, len(st.Groups)),
	}
	if st.Found {
		response.ExpiresSeconds = int64(st.Expires / time.Second)
		response.Remaining = labels.Remaining(st.Expires)
	}
	for i, g := range st.Groups {
		response.Groups = append(response.Groups, GroupStatusInfo{
			Index:  i,
			Title:  g.Title,
			Outlet: g.Outlet.Name,
			Value:  g.Outlet.Value,
			Known:  g.Known,
		})
	}
	return response
}

// ApplyOutlet selects one outlet of a group for the caller.
// PUT /api/v1/outlets/{group}
func (h *Handler) ApplyOutlet(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req ApplyOutletRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteInvalidRequest(w, "Invalid JSON: "+err.Error())
		return
	}

	c := h.svc.Catalog()
	ref := chi.URLParam(r, "group")
	index, group, found := c.LookupGroup(ref)
	if !found {
		WriteServiceError(w, errors.NewValidationError(fmt.Sprintf("unknown outlet group %q", ref), nil))
		return
	}
	o, found := group.OutletByName(req.Outlet)
	if !found {
		WriteServiceError(w, errors.NewValidationError(fmt.Sprintf(outlet.MsgInvalidOutlet, group.Title), nil))
		return
	}
	hours, err := validateHours(c, req.Hours)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	res, err := h.svc.Apply(r.Context(), addr, index, o.Value, hours)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	writeJSONData(w, h.applyResponse(c, res))
}

// ApplySelection selects one outlet per group for the caller.
// POST /api/v1/selection
func (h *Handler) ApplySelection(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req SelectionRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteInvalidRequest(w, "Invalid JSON: "+err.Error())
		return
	}

	c := h.svc.Catalog()
	values, err := resolveSelection(c, req.Outlets)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	hours, err := validateHours(c, req.Hours)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	res, err := h.svc.ApplySelections(r.Context(), addr, values, hours)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	writeJSONData(w, h.applyResponse(c, res))
}

// ResetSelection removes the caller's entry.
// DELETE /api/v1/selection
func (h *Handler) ResetSelection(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.caller(w, r)
	if !ok {
		return
	}

	if err := h.svc.Reset(r.Context(), addr); err != nil {
		WriteServiceError(w, err)
		return
	}

	writeNoContent(w)
}

// Helper functions

// writeJSON writes a JSON response wrapped in a DataResponse.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(DataResponse{Data: data}); err != nil {
		log.Warnf("Failed to write response: %v", err)
	}
}

// writeJSONData writes a JSON response with 200 OK status.
func writeJSONData(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, data)
}

// writeNoContent writes a 204 No Content response.
func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// decodeJSON decodes JSON from request body.
func decodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

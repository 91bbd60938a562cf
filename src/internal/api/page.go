package api

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"

	"github.com/wlt-go/wlt/src/internal/errors"
	"github.com/wlt-go/wlt/src/internal/log"
	"github.com/wlt-go/wlt/src/internal/outlet"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

const flashCookie = "wlt_flash"

type pageOption struct {
	Name     string
	Selected bool
}

type pageGroup struct {
	Index   int
	Title   string
	Options []pageOption
}

type pageData struct {
	Addr      string
	Hostname  string
	Outlets   string
	Remaining string
	Groups    []pageGroup
	Durations []DurationInfo
	Flash     string
}

// Page renders the selection page for the caller.
// GET /
func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	addr, ok := clientAddr(r, h.trustProxyHeaders)
	if !ok {
		http.Error(w, "Cannot determine client address", http.StatusBadRequest)
		return
	}

	data := pageData{
		Addr:     addr.String(),
		Hostname: h.hostname(r.Context(), addr),
		Flash:    takeFlash(w, r),
	}

	c := h.svc.Catalog()
	labels := h.labels.Labels()
	data.Durations = durationInfos(labels, c)

	st, err := h.svc.Status(r.Context(), addr)
	if err != nil {
		log.Warnf("Failed to read status of %s: %v", addr, err)
		data.Outlets = labels.Unset()
		if data.Flash == "" {
			data.Flash = err.Error()
		}
	} else {
		data.Outlets = labels.Outlets(c, st.Mark, st.Found)
		if st.Found {
			data.Remaining = labels.Remaining(st.Expires)
		}
	}

	for i, g := range c.Groups() {
		current := g.Default().Name
		if err == nil && i < len(st.Groups) && st.Groups[i].Known {
			current = st.Groups[i].Outlet.Name
		}
		pg := pageGroup{Index: i, Title: g.Title}
		for _, o := range g.Outlets {
			pg.Options = append(pg.Options, pageOption{Name: o.Name, Selected: o.Name == current})
		}
		data.Groups = append(data.Groups, pg)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, data); err != nil {
		log.Warnf("Failed to render page: %v", err)
	}
}

// Open applies the submitted form.
// POST /open
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	addr, ok := clientAddr(r, h.trustProxyHeaders)
	if !ok {
		http.Error(w, "Cannot determine client address", http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		redirectWithFlash(w, r, "Invalid form: "+err.Error())
		return
	}

	c := h.svc.Catalog()
	names := make([]string, c.Len())
	for i := range names {
		names[i] = r.PostFormValue(fmt.Sprintf("group_%d", i))
	}
	values, err := resolveSelection(c, names)
	if err != nil {
		redirectWithFlash(w, r, messageOf(err))
		return
	}
	hours, convErr := strconv.Atoi(r.PostFormValue("hours"))
	if convErr != nil || !c.DurationAllowed(hours) {
		redirectWithFlash(w, r, outlet.MsgInvalidDuration)
		return
	}

	res, err := h.svc.ApplySelections(r.Context(), addr, values, hours)
	if err != nil {
		redirectWithFlash(w, r, outlet.MsgApplyFailed)
		return
	}
	redirectWithFlash(w, r, h.labels.Labels().Opened(c, res.NewMark, res.TTL))
}

// Close resets the caller's entry.
// POST /close
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	addr, ok := clientAddr(r, h.trustProxyHeaders)
	if !ok {
		http.Error(w, "Cannot determine client address", http.StatusBadRequest)
		return
	}

	if err := h.svc.Reset(r.Context(), addr); err != nil {
		redirectWithFlash(w, r, outlet.MsgResetFailed)
		return
	}
	redirectWithFlash(w, r, outlet.MsgReset)
}

// messageOf returns the bare message of a domain error.
func messageOf(err error) string {
	var e *errors.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

func redirectWithFlash(w http.ResponseWriter, r *http.Request, message string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    url.QueryEscape(message),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// takeFlash returns the pending flash message and clears it.
func takeFlash(w http.ResponseWriter, r *http.Request) string {
	cookie, err := r.Cookie(flashCookie)
	if err != nil {
		return ""
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Path: "/", MaxAge: -1})
	message, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return ""
	}
	return message
}

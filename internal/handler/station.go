package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"eventcheckin/internal/attendee"
	"eventcheckin/internal/cache"
	"eventcheckin/internal/checkin"
	"eventcheckin/internal/remote"
	"eventcheckin/internal/timefmt"
)

// Station serves the operator surface of a check-in station.
type Station struct {
	resolver *checkin.Resolver
	roster   *checkin.Roster
	store    *cache.Store
	query    *cache.Debouncer
	now      func() time.Time
}

// NewStation builds the operator handlers. Guest list routes are only
// registered when roster is not nil.
func NewStation(resolver *checkin.Resolver, roster *checkin.Roster, store *cache.Store, searchDelay time.Duration) *Station {
	return &Station{resolver: resolver, roster: roster, store: store, query: store.QueryDebouncer(searchDelay), now: time.Now}
}

// Close discards a pending search.
func (h *Station) Close() { h.query.Stop() }

func (h *Station) RegisterRoutes(r gin.IRouter) {
	r.POST("/scan", h.scan)
	r.POST("/attendees/:id/checkin", h.manual)
	r.PUT("/query", h.setQuery)
	r.GET("/attendees", h.attendees)
	r.GET("/last-scanned", h.lastScanned)
	r.GET("/stats", h.stats)
	r.POST("/scanner/start", h.startScanner)
	r.POST("/scanner/stop", h.stopScanner)

	if h.roster != nil {
		r.POST("/attendees", h.register)
		r.PATCH("/attendees/:id", h.edit)
		r.DELETE("/attendees/:id", h.remove)
	}
}

type modeRequest struct {
	Mode string `json:"mode"`
}

func (m modeRequest) parse() (checkin.Mode, error) {
	if m.Mode == "" {
		return "", nil
	}
	return checkin.ParseMode(m.Mode)
}

func (h *Station) scan(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
		modeRequest
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	mode, err := req.parse()
	if err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.resolver.ResolveScan(c.Request.Context(), req.Code, mode)
	respond(c, res, err)
}

func (h *Station) manual(c *gin.Context) {
	var req modeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	mode, err := req.parse()
	if err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.resolver.ManualCheckIn(c.Request.Context(), c.Param("id"), mode)
	respond(c, res, err)
}

// respond writes a check-in result with a status that separates rule
// rejections from operational failures.
func respond(c *gin.Context, res checkin.Result, err error) {
	status := scanStatus(err)
	if res.Outcome == "" {
		c.JSON(status, gin.H{"code": http.StatusText(status), "message": err.Error()})
		return
	}
	c.JSON(status, res)
}

func scanStatus(err error) int {
	var (
		rule      *attendee.RuleError
		remoteErr *checkin.RemoteError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &rule):
		return http.StatusConflict
	case errors.Is(err, checkin.ErrDuplicateScan):
		return http.StatusTooManyRequests
	case errors.Is(err, checkin.ErrUnknownBarcode), errors.Is(err, attendee.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, checkin.ErrScannerStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, attendee.ErrInvalid):
		return http.StatusBadRequest
	case remote.IsStatus(err, http.StatusConflict):
		return http.StatusConflict
	case errors.As(err, &remoteErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Station) setQuery(c *gin.Context) {
	var req struct {
		Q string `json:"q"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.query.Set(req.Q)
	c.JSON(http.StatusAccepted, gin.H{"q": req.Q})
}

func (h *Station) attendees(c *gin.Context) {
	snap := h.store.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"q":         snap.Query,
		"pending":   h.query.Pending(),
		"total":     len(snap.Attendees),
		"attendees": snap.Filtered,
	})
}

// attendeeView adds the operator-facing renderings to a record.
type attendeeView struct {
	attendee.Attendee
	Label          attendee.Label `json:"label"`
	TimeInDisplay  string         `json:"time_in_display"`
	TimeOutDisplay string         `json:"time_out_display"`
	Session        string         `json:"session"`
	TotalDisplay   string         `json:"total_display"`
}

func (h *Station) view(a attendee.Attendee) attendeeView {
	v := attendeeView{
		Attendee:       a,
		Label:          a.CurrentStatus.Label(),
		TimeInDisplay:  "-",
		TimeOutDisplay: "-",
		Session:        timefmt.FormatSeconds(a.SessionSeconds(h.now())),
		TotalDisplay:   a.TotalTimeSpent.Human(),
	}
	if a.TimeIn != nil {
		v.TimeInDisplay = timefmt.FormatClock(*a.TimeIn)
	}
	if a.TimeOut != nil {
		v.TimeOutDisplay = timefmt.FormatClock(*a.TimeOut)
	}
	return v
}

func (h *Station) lastScanned(c *gin.Context) {
	a, ok := h.store.LastScanned()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "message": "nothing scanned yet"})
		return
	}
	c.JSON(http.StatusOK, h.view(a))
}

func (h *Station) stats(c *gin.Context) {
	c.JSON(http.StatusOK, attendee.Summarize(h.store.All(), h.now()))
}

func (h *Station) startScanner(c *gin.Context) {
	var req struct {
		Source string `json:"source"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	if req.Source == "" {
		req.Source = "default"
	}
	if err := h.resolver.Session().Start(c.Request.Context(), req.Source); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "SCANNER_UNAVAILABLE", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": true, "source": req.Source})
}

func (h *Station) stopScanner(c *gin.Context) {
	h.resolver.Session().Stop()
	c.JSON(http.StatusOK, gin.H{"active": false})
}

func (h *Station) register(c *gin.Context) {
	var req attendee.Registration
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	a, err := h.roster.Register(c.Request.Context(), req)
	if err != nil {
		rosterError(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.view(a))
}

func (h *Station) edit(c *gin.Context) {
	var p attendee.Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, err)
		return
	}
	a, err := h.roster.Edit(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		rosterError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(a))
}

func (h *Station) remove(c *gin.Context) {
	if err := h.roster.Remove(c.Request.Context(), c.Param("id")); err != nil {
		rosterError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func rosterError(c *gin.Context, err error) {
	status := scanStatus(err)
	c.JSON(status, gin.H{"code": http.StatusText(status), "message": err.Error()})
}

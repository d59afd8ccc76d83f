package handler

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"eventcheckin/internal/attendance"
	"eventcheckin/internal/attendee"
	"eventcheckin/internal/auth"
	"eventcheckin/internal/metrics"
	"eventcheckin/internal/ticket"
)

// API serves the attendance service over HTTP.
type API struct {
	svc     *attendance.Service
	iss     auth.Issuer
	tickets ticket.Renderer
}

func NewAPI(svc *attendance.Service, iss auth.Issuer, tickets ticket.Renderer) *API {
	return &API{svc: svc, iss: iss, tickets: tickets}
}

// RegisterRoutes mounts station registration and the token-guarded /v1
// routes.
func (h *API) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/stations/register", h.registerStation)
	r.POST("/v1/stations/refresh", h.refreshStation)

	v1 := r.Group("/v1", auth.StationAuth(h.iss))
	v1.GET("/attendees", h.list)
	v1.POST("/attendees", h.create)
	v1.POST("/attendees/delete", h.deleteMany)
	v1.GET("/attendees/barcode/:code", h.getByBarcode)
	v1.GET("/attendees/:id", h.get)
	v1.PATCH("/attendees/:id", h.update)
	v1.DELETE("/attendees/:id", h.delete)
	v1.GET("/attendees/:id/ticket", h.ticket)
	v1.POST("/attendees/:id/time-in", h.transition(attendee.ActionTimeIn, h.svc.TimeIn))
	v1.POST("/attendees/:id/time-out", h.transition(attendee.ActionTimeOut, h.svc.TimeOut))
	v1.POST("/attendees/:id/toggle", h.transition("toggle", h.svc.Toggle))
	v1.GET("/stats", h.stats)
}

func fail(c *gin.Context, err error) {
	status, body := attendance.Describe(err)
	if status >= http.StatusInternalServerError {
		log.Printf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, attendance.ErrInvalid(err.Error()))
}

func (h *API) registerStation(c *gin.Context) {
	var req struct {
		StationID string `json:"station_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	tokens, err := h.svc.RegisterStation(c.Request.Context(), h.iss, req.StationID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, tokens)
}

func (h *API) refreshStation(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	tokens, err := h.svc.RefreshStation(c.Request.Context(), h.iss, req.RefreshToken)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tokens)
}

func (h *API) list(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context(), c.Query("q"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attendees": list})
}

func (h *API) create(c *gin.Context) {
	var req attendee.Registration
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	a, err := h.svc.Register(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	metrics.Registrations.Inc()
	c.JSON(http.StatusCreated, a)
}

func (h *API) get(c *gin.Context) {
	a, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *API) getByBarcode(c *gin.Context) {
	a, err := h.svc.GetByBarcode(c.Request.Context(), c.Param("code"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *API) update(c *gin.Context) {
	var p attendee.Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, err)
		return
	}
	a, err := h.svc.Update(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *API) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *API) deleteMany(c *gin.Context) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.svc.DeleteMany(c.Request.Context(), req.IDs)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": res.Deleted, "failed": res.Failed, "success_count": len(res.Deleted), "failure_count": len(res.Failed)})
}

func (h *API) ticket(c *gin.Context) {
	a, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	img, err := h.tickets.Render(a)
	if err != nil {
		fail(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", img)
}

func (h *API) transition(label attendee.Action, fn func(context.Context, string) (attendee.Attendee, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, err := fn(c.Request.Context(), c.Param("id"))
		if err != nil {
			result := "error"
			var rule *attendee.RuleError
			if errors.As(err, &rule) {
				result = string(rule.Violation)
			}
			metrics.Transitions.WithLabelValues(string(label), result).Inc()
			fail(c, err)
			return
		}
		metrics.Transitions.WithLabelValues(string(label), "ok").Inc()
		log.Printf("attendee %s %s by %s", a.ID, label, auth.StationID(c))
		c.JSON(http.StatusOK, a)
	}
}

func (h *API) stats(c *gin.Context) {
	s, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/leozw/inbound-guardian/internal/core"
)

type CreateDomainRequest struct {
	Domain string `json:"domain" binding:"required"`
}

type ToggleCatchAllRequest struct {
	Enabled    *bool  `json:"enabled" binding:"required"`
	EndpointID string `json:"endpoint_id"`
	WebhookID  string `json:"webhook_id"`
}

func (h *Handler) ListDomains(c *gin.Context) {
	respond(c, h, http.StatusOK, h.service.ListDomains(c.Request.Context(), ownerID(c)))
}

func (h *Handler) CreateDomain(c *gin.Context) {
	var req CreateDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	respond(c, h, http.StatusCreated, h.service.AddDomain(c.Request.Context(), ownerID(c), req.Domain))
}

func (h *Handler) GetDomain(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	respond(c, h, http.StatusOK, h.service.GetDomain(c.Request.Context(), ownerID(c), id))
}

func (h *Handler) CheckDomain(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	respond(c, h, http.StatusOK, h.service.Check(c.Request.Context(), ownerID(c), id))
}

func (h *Handler) DeleteDomain(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	respond(c, h, http.StatusOK, h.service.DeleteDomain(c.Request.Context(), ownerID(c), id))
}

func (h *Handler) ToggleCatchAll(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req ToggleCatchAllRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	var target *core.TargetRef
	if req.EndpointID != "" || req.WebhookID != "" {
		target = &core.TargetRef{EndpointID: req.EndpointID, WebhookID: req.WebhookID}
	}

	respond(c, h, http.StatusOK, h.service.ToggleCatchAll(c.Request.Context(), ownerID(c), id, *req.Enabled, target))
}

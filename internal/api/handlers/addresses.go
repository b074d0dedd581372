package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/leozw/inbound-guardian/internal/core"
)

type CreateAddressRequest struct {
	Address    string `json:"address" binding:"required"`
	EndpointID string `json:"endpoint_id"`
	WebhookID  string `json:"webhook_id"`
}

// UpdateAddressRequest changes the target when either id field is present.
// Sending both ids empty with clear_target resets the address to store only.
type UpdateAddressRequest struct {
	EndpointID  *string `json:"endpoint_id"`
	WebhookID   *string `json:"webhook_id"`
	ClearTarget bool    `json:"clear_target"`
	Active      *bool   `json:"active"`
}

func (r UpdateAddressRequest) target() *core.TargetRef {
	if r.ClearTarget {
		return &core.TargetRef{}
	}
	if r.EndpointID == nil && r.WebhookID == nil {
		return nil
	}
	var t core.TargetRef
	if r.EndpointID != nil {
		t.EndpointID = *r.EndpointID
	}
	if r.WebhookID != nil {
		t.WebhookID = *r.WebhookID
	}
	return &t
}

func (h *Handler) CreateAddress(c *gin.Context) {
	domainID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req CreateAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	target := core.TargetRef{EndpointID: req.EndpointID, WebhookID: req.WebhookID}
	respond(c, h, http.StatusCreated,
		h.service.AddEmailAddress(c.Request.Context(), ownerID(c), domainID, req.Address, target))
}

func (h *Handler) UpdateAddress(c *gin.Context) {
	addressID, ok := pathID(c, "addressId")
	if !ok {
		return
	}

	var req UpdateAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	respond(c, h, http.StatusOK,
		h.service.UpdateEmailRouting(c.Request.Context(), ownerID(c), addressID, req.target(), req.Active))
}

func (h *Handler) DeleteAddress(c *gin.Context) {
	addressID, ok := pathID(c, "addressId")
	if !ok {
		return
	}
	respond(c, h, http.StatusOK, h.service.DeleteEmailAddress(c.Request.Context(), ownerID(c), addressID))
}

func (h *Handler) ResolveRecipient(c *gin.Context) {
	recipient := c.Query("recipient")
	if recipient == "" {
		badRequest(c, "recipient is required")
		return
	}
	respond(c, h, http.StatusOK, h.service.ResolveRecipient(c.Request.Context(), ownerID(c), recipient))
}

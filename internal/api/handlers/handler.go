package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leozw/inbound-guardian/internal/api/middleware"
	"github.com/leozw/inbound-guardian/internal/core"
	"github.com/leozw/inbound-guardian/internal/verification"
)

// ReadinessCheck reports whether a dependency can serve requests.
type ReadinessCheck func(ctx context.Context) error

type Handler struct {
	service   *verification.Service
	readiness map[string]ReadinessCheck
	logger    *zap.Logger
}

func NewHandler(service *verification.Service, readiness map[string]ReadinessCheck, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service:   service,
		readiness: readiness,
		logger:    logger,
	}
}

func statusFor(kind core.ErrorKind) int {
	switch kind {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindConflict:
		return http.StatusConflict
	case core.KindExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respond writes a service result, choosing the status from the error kind.
func respond[T any](c *gin.Context, h *Handler, okStatus int, result core.Result[T]) {
	if result.Success {
		c.JSON(okStatus, result)
		return
	}

	status := statusFor(result.Error.Kind)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("kind", string(result.Error.Kind)),
			zap.Error(result.Error),
		)
	}
	c.JSON(status, result)
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, core.Fail[any](core.ValidationError("%s", message)))
}

func ownerID(c *gin.Context) string {
	return c.GetString(middleware.OwnerKey)
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

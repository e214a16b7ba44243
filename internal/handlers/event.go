package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PratikDhanave/event-analytics-sdk/internal/auth"
	"github.com/PratikDhanave/event-analytics-sdk/internal/models"
	"github.com/PratikDhanave/event-analytics-sdk/internal/store"
)

// RegisterEventRoutes registers the ingestion endpoint the SDK posts to.
//
// POST /events
// - Requires X-API-Key (tenant context)
// - Body is one SDK event: {id, type, name, ts, attempts}
// - Idempotent on (tenant, id): SDK retries after a lost response are
//   acknowledged without a second row
func RegisterEventRoutes(r gin.IRoutes, st store.Sink, logger *zap.Logger) {
	r.POST("/events", func(c *gin.Context) {
		tenantID := auth.TenantID(c)
		if tenantID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var e models.Event
		if err := c.ShouldBindJSON(&e); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
			return
		}

		if e.ID == uuid.Nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id required"})
			return
		}
		if e.Type == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "type required"})
			return
		}
		if e.TS <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ts must be epoch seconds"})
			return
		}
		if e.Attempts < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "attempts must be >= 0"})
			return
		}

		inserted, err := st.InsertEvent(c.Request.Context(), tenantID, e)
		if err != nil {
			logger.Error("insert event", zap.String("tenant", tenantID), zap.Stringer("event_id", e.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db insert failed"})
			return
		}

		// 201 for new events, 200 for duplicates (idempotent success).
		status := http.StatusCreated
		if !inserted {
			status = http.StatusOK
			logger.Debug("duplicate delivery", zap.Stringer("event_id", e.ID), zap.Int("attempts", e.Attempts))
		}

		c.JSON(status, models.EventIngestResponse{
			EventID:   e.ID.String(),
			Duplicate: !inserted,
		})
	})
}

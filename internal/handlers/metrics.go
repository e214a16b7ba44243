package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PratikDhanave/event-analytics-sdk/internal/auth"
	"github.com/PratikDhanave/event-analytics-sdk/internal/models"
	"github.com/PratikDhanave/event-analytics-sdk/internal/store"
)

// RegisterMetricRoutes registers the serving-path endpoint.
//
// GET /metrics?type=...&name=...&from=...&to=...
// - Requires X-API-Key (tenant context)
// - name is optional; without it every event of type is counted
// - Returns count for the window [from,to)
func RegisterMetricRoutes(r gin.IRoutes, st store.Sink) {
	r.GET("/metrics", func(c *gin.Context) {
		tenantID := auth.TenantID(c)
		if tenantID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		eventType := c.Query("type")
		name := c.Query("name")
		fromStr := c.Query("from")
		toStr := c.Query("to")

		if eventType == "" || fromStr == "" || toStr == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "type, from, to are required"})
			return
		}

		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return
		}
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return
		}

		from = from.UTC()
		to = to.UTC()

		if !from.Before(to) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be < to"})
			return
		}

		count, err := st.CountEvents(c.Request.Context(), tenantID, eventType, name, from, to)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db query failed"})
			return
		}

		c.JSON(http.StatusOK, models.CountResponse{
			Type:  eventType,
			Name:  name,
			Count: count,
		})
	})
}

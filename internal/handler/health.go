package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"devicefarm-server/internal/database"
	"devicefarm-server/internal/database/migrations"
)

// Version is set at build time with -ldflags "-X ...handler.Version=...".
var Version = "dev"

type HealthHandler struct {
	DB *database.DB
}

// Check reports liveness plus the applied schema version. A database that
// does not answer within two seconds makes the check fail.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	schema, err := migrations.Version(ctx, h.DB.DB)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "database unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "version": Version, "schema": schema})
}

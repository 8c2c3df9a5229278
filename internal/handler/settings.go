package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"devicefarm-server/internal/hub"
	"devicefarm-server/internal/settings"
)

type SettingsHandler struct {
	Settings *settings.Store
	Hub      *hub.Hub
}

func (h *SettingsHandler) Get(c *gin.Context) {
	ok(c, h.Settings.Load())
}

// Update saves the given keys, leaves the rest, and re-exports the result to
// the process environment.
func (h *SettingsHandler) Update(c *gin.Context) {
	var body settings.Patch
	if !bindJSON(c, &body) {
		return
	}
	saved, err := h.Settings.Save(body)
	if err != nil {
		log.Printf("settings: save: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save settings"})
		return
	}
	if err := settings.ApplyToEnvironment(saved); err != nil {
		log.Printf("settings: apply to environment: %v", err)
	}
	h.Hub.Publish(hub.TopicSettings, saved)
	ok(c, saved)
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"devicefarm-server/internal/auth"
)

type AuthHandler struct {
	TokenConfig auth.TokenConfig
}

type tokenBody struct {
	Secret  string `json:"secret"`
	Subject string `json:"subject"`
}

// Token trades the shared secret for a bearer token. Agents use their own
// address as subject; dashboards default to "operator".
func (h *AuthHandler) Token(c *gin.Context) {
	if !h.TokenConfig.Enabled() {
		c.JSON(http.StatusNotFound, gin.H{"error": "Authentication is not enabled"})
		return
	}

	var body tokenBody
	if !bindJSON(c, &body) {
		return
	}
	if err := auth.CheckSecret(body.Secret, h.TokenConfig); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid secret"})
		return
	}

	subject := body.Subject
	if subject == "" {
		subject = "operator"
	}
	token, err := auth.CreateToken(subject, h.TokenConfig)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Token creation failed"})
		return
	}

	ok(c, gin.H{"token": token, "expires_in": int(h.TokenConfig.Expiry.Seconds())})
}

package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"devicefarm-server/internal/middleware"
	"devicefarm-server/internal/store"
)

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"data": data})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// storeError maps a store failure onto the response. Validation problems are
// the caller's fault; anything unrecognized is ours.
func storeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrInvalid), errors.Is(err, store.ErrNoChanges):
		badRequest(c, err.Error())
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		subject, _ := middleware.SubjectFromContext(c)
		log.Printf("handler: %s %s [%s] subject=%q: %v", c.Request.Method, c.FullPath(), middleware.RequestIDFromContext(c), subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// bindJSON decodes the request body into v, answering 400 on failure.
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return false
	}
	return true
}

func requiredQuery(c *gin.Context, name string) (string, bool) {
	v := c.Query(name)
	if v == "" {
		badRequest(c, "Missing "+name+" query parameter")
		return "", false
	}
	return v, true
}

func optionalQuery(c *gin.Context, name string) *string {
	if v := c.Query(name); v != "" {
		return &v
	}
	return nil
}

func queryID(c *gin.Context) (int64, bool) {
	raw, present := requiredQuery(c, "id")
	if !present {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "Invalid id query parameter")
		return 0, false
	}
	return id, true
}

// optionalInt parses an integer query parameter. Absent yields nil; a
// malformed value answers 400.
func optionalInt(c *gin.Context, name string) (*int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, "Invalid "+name+" query parameter")
		return nil, false
	}
	return &v, true
}

func optionalInt64(c *gin.Context, name string) (*int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		badRequest(c, "Invalid "+name+" query parameter")
		return nil, false
	}
	return &v, true
}

func created(c *gin.Context, id int64) {
	ok(c, gin.H{"id": id})
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"devicefarm-server/internal/model"
	"devicefarm-server/internal/store"
)

type GroupHandler struct {
	Store *store.Store
}

// List returns every group, or just one when an id is given.
func (h *GroupHandler) List(c *gin.Context) {
	if c.Query("id") != "" {
		id, present := queryID(c)
		if !present {
			return
		}
		g, err := h.Store.GetGroup(c.Request.Context(), id)
		if err != nil {
			storeError(c, err)
			return
		}
		ok(c, g)
		return
	}
	groups, err := h.Store.ListGroups(c.Request.Context())
	if err != nil {
		storeError(c, err)
		return
	}
	ok(c, groups)
}

func (h *GroupHandler) Save(c *gin.Context) {
	var body model.Group
	if !bindJSON(c, &body) {
		return
	}
	id, err := h.Store.SaveGroup(c.Request.Context(), body)
	if err != nil {
		storeError(c, err)
		return
	}
	created(c, id)
}

func (h *GroupHandler) Update(c *gin.Context) {
	var body model.Group
	if !bindJSON(c, &body) {
		return
	}
	if err := h.Store.UpdateGroup(c.Request.Context(), body); err != nil {
		storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *GroupHandler) Delete(c *gin.Context) {
	id, present := queryID(c)
	if !present {
		return
	}
	if err := h.Store.DeleteGroup(c.Request.Context(), id); err != nil {
		storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

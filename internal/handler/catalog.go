package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"devicefarm-server/internal/model"
	"devicefarm-server/internal/store"
)

// DialogWatcherHandler serves the popup rules agents apply on devices.
type DialogWatcherHandler struct {
	Store *store.Store
}

func (h *DialogWatcherHandler) List(c *gin.Context) {
	watchers, err := h.Store.ListDialogWatchers(c.Request.Context())
	if err != nil {
		storeError(c, err)
		return
	}
	ok(c, watchers)
}

func (h *DialogWatcherHandler) Save(c *gin.Context) {
	var body model.DialogWatcher
	if !bindJSON(c, &body) {
		return
	}
	id, err := h.Store.SaveDialogWatcher(c.Request.Context(), body)
	if err != nil {
		storeError(c, err)
		return
	}
	created(c, id)
}

func (h *DialogWatcherHandler) Update(c *gin.Context) {
	var body model.DialogWatcher
	if !bindJSON(c, &body) {
		return
	}
	if err := h.Store.UpdateDialogWatcher(c.Request.Context(), body); err != nil {
		storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DialogWatcherHandler) Delete(c *gin.Context) {
	id, present := queryID(c)
	if !present {
		return
	}
	if err := h.Store.DeleteDialogWatcher(c.Request.Context(), id); err != nil {
		storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type MusicHandler struct {
	Store *store.Store
}

func (h *MusicHandler) List(c *gin.Context) {
	music, err := h.Store.ListMusic(c.Request.Context())
	if err != nil {
		storeError(c, err)
		return
	}
	ok(c, music)
}

func (h *MusicHandler) Random(c *gin.Context) {
	m, err := h.Store.RandomMusic(c.Request.Context())
	if err != nil {
		storeError(c, err)
		return
	}
	ok(c, m)
}

func (h *MusicHandler) Save(c *gin.Context) {
	var body model.Music
	if !bindJSON(c, &body) {
		return
	}
	id, err := h.Store.SaveMusic(c.Request.Context(), body)
	if err != nil {
		storeError(c, err)
		return
	}
	created(c, id)
}

func (h *MusicHandler) Update(c *gin.Context) {
	var body model.Music
	if !bindJSON(c, &body) {
		return
	}
	if err := h.Store.UpdateMusic(c.Request.Context(), body); err != nil {
		storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *MusicHandler) Delete(c *gin.Context) {
	id, present := queryID(c)
	if !present {
		return
	}
	if err := h.Store.DeleteMusic(c.Request.Context(), id); err != nil {
		storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

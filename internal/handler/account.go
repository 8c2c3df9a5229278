package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"devicefarm-server/internal/model"
	"devicefarm-server/internal/store"
)

type AccountHandler struct {
	Store *store.Store
}

func (h *AccountHandler) List(c *gin.Context) {
	accounts, err := h.Store.ListAccounts(c.Request.Context())
	if err != nil {
		storeError(c, err)
		return
	}
	ok(c, accounts)
}

func (h *AccountHandler) Save(c *gin.Context) {
	var body model.Account
	if !bindJSON(c, &body) {
		return
	}
	id, err := h.Store.SaveAccount(c.Request.Context(), body)
	if err != nil {
		storeError(c, err)
		return
	}
	created(c, id)
}

func (h *AccountHandler) Update(c *gin.Context) {
	var body model.Account
	if !bindJSON(c, &body) {
		return
	}
	if err := h.Store.UpdateAccount(c.Request.Context(), body); err != nil {
		storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AccountHandler) Delete(c *gin.Context) {
	id, present := queryID(c)
	if !present {
		return
	}
	if err := h.Store.DeleteAccount(c.Request.Context(), id); err != nil {
		storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AccountHandler) ByDevice(c *gin.Context) {
	device, present := requiredQuery(c, "device")
	if !present {
		return
	}
	accounts, err := h.Store.ListAccountsByDevice(c.Request.Context(), device)
	if err != nil {
		storeError(c, err)
		return
	}
	ok(c, accounts)
}

// AutoTrain lists the accounts an agent should train on its own, for agents
// that schedule training locally instead of polling train jobs.
func (h *AccountHandler) AutoTrain(c *gin.Context) {
	agentIP, present := requiredQuery(c, "agent_ip")
	if !present {
		return
	}
	accounts, err := h.Store.ListAutoTrainAccounts(c.Request.Context(), agentIP)
	if err != nil {
		storeError(c, err)
		return
	}
	ok(c, accounts)
}

package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"devicefarm-server/internal/agent"
	"devicefarm-server/internal/hub"
	"devicefarm-server/internal/model"
	"devicefarm-server/internal/store"
)

type DeviceHandler struct {
	Store *store.Store
	Agent *agent.Client
	Hub   *hub.Hub
}

// List returns online devices, optionally only those behind one agent.
func (h *DeviceHandler) List(c *gin.Context) {
	devices, err := h.Store.ListOnlineDevices(c.Request.Context(), nil, optionalQuery(c, "agent_ip"))
	if err != nil {
		storeError(c, err)
		return
	}
	ok(c, devices)
}

func (h *DeviceHandler) All(c *gin.Context) {
	devices, err := h.Store.ListDevices(c.Request.Context())
	if err != nil {
		storeError(c, err)
		return
	}
	ok(c, devices)
}

// Save is the agent heartbeat.
func (h *DeviceHandler) Save(c *gin.Context) {
	var body model.Device
	if !bindJSON(c, &body) {
		return
	}
	if err := h.Store.SaveDevice(c.Request.Context(), body); err != nil {
		storeError(c, err)
		return
	}
	h.Hub.Publish(hub.TopicDevice, gin.H{"action": "saved", "serial": body.Serial})
	c.Status(http.StatusNoContent)
}

func (h *DeviceHandler) Init(c *gin.Context) {
	serial, present := requiredQuery(c, "serial")
	if !present {
		return
	}
	raw, present := requiredQuery(c, "init")
	if !present {
		return
	}
	init, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, "Invalid init query parameter")
		return
	}
	if err := h.Store.UpdateDeviceInit(c.Request.Context(), serial, init); err != nil {
		storeError(c, err)
		return
	}
	h.Hub.Publish(hub.TopicDevice, gin.H{"action": "init", "serial": serial, "init": init})
	c.Status(http.StatusNoContent)
}

type deviceOnlineBody struct {
	Serial string `json:"serial"`
	Online *int   `json:"online"`
}

func (h *DeviceHandler) Online(c *gin.Context) {
	var body deviceOnlineBody
	if !bindJSON(c, &body) {
		return
	}
	if body.Serial == "" || body.Online == nil {
		badRequest(c, "serial and online are required")
		return
	}
	online := *body.Online != 0
	if err := h.Store.UpdateDeviceOnline(c.Request.Context(), body.Serial, online); err != nil {
		storeError(c, err)
		return
	}
	h.Hub.Publish(hub.TopicDevice, gin.H{"action": "online", "serial": body.Serial, "online": online})
	c.Status(http.StatusNoContent)
}

func (h *DeviceHandler) Delete(c *gin.Context) {
	id, present := queryID(c)
	if !present {
		return
	}
	if err := h.Store.DeleteDevice(c.Request.Context(), id); err != nil {
		storeError(c, err)
		return
	}
	h.Hub.Publish(hub.TopicDevice, gin.H{"action": "deleted", "id": id})
	c.Status(http.StatusNoContent)
}

// TaskStatus asks the agents of the device's online rows, in order, and
// relays the first answer. When none answers the reply is {"data":"error"}.
func (h *DeviceHandler) TaskStatus(c *gin.Context) {
	serial, present := requiredQuery(c, "serial")
	if !present {
		return
	}
	devices, err := h.Store.ListOnlineDevices(c.Request.Context(), &serial, nil)
	if err != nil {
		storeError(c, err)
		return
	}
	out, err := agent.FirstSuccess(c.Request.Context(), "task_status", devices, h.Agent.TaskStatus())
	if err != nil {
		ok(c, "error")
		return
	}
	c.JSON(http.StatusOK, agent.Response{Data: out.Data})
}

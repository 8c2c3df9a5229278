package handler

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"devicefarm-server/internal/agent"
	"devicefarm-server/internal/store"
	"devicefarm-server/internal/upload"
)

// CommandHandler forwards operator commands to the agents of the targeted
// online devices, one device at a time.
type CommandHandler struct {
	Store   *store.Store
	Agent   *agent.Client
	Uploads *upload.Dir
	// BaseURL is how agents reach this server. Empty means the outbound
	// interface address on Port.
	BaseURL string
	Port    int
}

func (h *CommandHandler) baseURL() string {
	if h.BaseURL != "" {
		return strings.TrimRight(h.BaseURL, "/")
	}
	return fmt.Sprintf("http://%s", net.JoinHostPort(outboundIP(), fmt.Sprint(h.Port)))
}

// outboundIP is the local address used to reach other hosts, which is the
// one agents on the LAN can reach us on.
func outboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}

func (h *CommandHandler) fanOut(c *gin.Context, op string, serial *string, call agent.Call) {
	devices, err := h.Store.ListOnlineDevices(c.Request.Context(), serial, nil)
	if err != nil {
		storeError(c, err)
		return
	}
	outcomes := agent.FanOut(c.Request.Context(), op, devices, call)
	failed := 0
	for _, o := range outcomes {
		if !o.OK {
			failed++
		}
	}
	log.Printf("command: %s sent to %d devices, %d failed", op, len(outcomes), failed)
	ok(c, outcomes)
}

// Install stores the uploaded apk and has every targeted device download it
// from this server.
func (h *CommandHandler) Install(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "Missing file")
		return
	}
	f, err := fh.Open()
	if err != nil {
		badRequest(c, "Unreadable upload")
		return
	}
	name, err := h.Uploads.SaveAPK(f, fh.Filename)
	_ = f.Close()
	if err != nil {
		if errors.Is(err, upload.ErrBadName) {
			badRequest(c, "Invalid file name")
			return
		}
		log.Printf("command: save apk %s: %v", fh.Filename, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store upload"})
		return
	}

	apkURL := h.baseURL() + "/apk/" + url.PathEscape(name)
	var serial *string
	if v := c.PostForm("serial"); v != "" {
		serial = &v
	}
	h.fanOut(c, "install", serial, h.Agent.Install(apkURL))
}

type shellBody struct {
	Serial *string `json:"serial"`
	Cmd    string  `json:"cmd"`
}

func (h *CommandHandler) Shell(c *gin.Context) {
	var body shellBody
	if !bindJSON(c, &body) {
		return
	}
	if body.Cmd == "" {
		badRequest(c, "cmd is required")
		return
	}
	h.fanOut(c, "shell", body.Serial, h.Agent.Shell(body.Cmd))
}

func (h *CommandHandler) Script(c *gin.Context) {
	script, present := requiredQuery(c, "script")
	if !present {
		return
	}
	h.fanOut(c, "script", optionalQuery(c, "serial"), h.Agent.Script(script, c.Query("args")))
}

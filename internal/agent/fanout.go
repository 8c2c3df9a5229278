package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/url"

	"devicefarm-server/internal/model"
)

// ErrNoResponse is returned by FirstSuccess when no device answered.
var ErrNoResponse = errors.New("no device responded")

// Outcome is the result of one device's call within a fan-out.
type Outcome struct {
	Serial  string          `json:"serial"`
	AgentIP string          `json:"agent_ip"`
	OK      bool            `json:"ok"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Call performs one agent request on behalf of a device.
type Call func(ctx context.Context, d model.Device) (json.RawMessage, error)

// FanOut runs call for each device in order and collects every outcome. A
// failing device is logged and recorded; it never stops the loop. Only a
// cancelled ctx ends it early, and the remaining devices are then reported
// with the context error.
func FanOut(ctx context.Context, op string, devices []model.Device, call Call) []Outcome {
	outcomes := make([]Outcome, 0, len(devices))
	for _, d := range devices {
		o := Outcome{Serial: d.Serial, AgentIP: d.AgentIP}
		var data json.RawMessage
		err := ctx.Err()
		if err == nil {
			data, err = call(ctx, d)
		}
		if err != nil {
			log.Printf("agent: %s -> %s error: %v", d.Serial, op, err)
			o.Error = err.Error()
		} else {
			o.OK = true
			o.Data = data
		}
		outcomes = append(outcomes, o)
	}
	return outcomes
}

// FirstSuccess tries devices in order and returns the first successful
// outcome. Failures before it are logged only.
func FirstSuccess(ctx context.Context, op string, devices []model.Device, call Call) (Outcome, error) {
	for _, d := range devices {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		data, err := call(ctx, d)
		if err != nil {
			log.Printf("agent: %s -> %s error: %v", d.Serial, op, err)
			continue
		}
		return Outcome{Serial: d.Serial, AgentIP: d.AgentIP, OK: true, Data: data}, nil
	}
	return Outcome{}, ErrNoResponse
}

// Install asks the device's agent to install the apk at apkURL.
func (c *Client) Install(apkURL string) Call {
	return func(ctx context.Context, d model.Device) (json.RawMessage, error) {
		return c.Get(ctx, d.AgentIP, PathInstall, url.Values{"serial": {d.Serial}, "url": {apkURL}})
	}
}

func (c *Client) Shell(cmd string) Call {
	return func(ctx context.Context, d model.Device) (json.RawMessage, error) {
		return c.Get(ctx, d.AgentIP, PathShell, url.Values{"serial": {d.Serial}, "cmd": {cmd}})
	}
}

func (c *Client) Script(filename, args string) Call {
	return func(ctx context.Context, d model.Device) (json.RawMessage, error) {
		return c.Get(ctx, d.AgentIP, PathScript, url.Values{"serial": {d.Serial}, "filename": {filename}, "args": {args}})
	}
}

func (c *Client) TaskStatus() Call {
	return func(ctx context.Context, d model.Device) (json.RawMessage, error) {
		return c.Get(ctx, d.AgentIP, PathTaskStatus, url.Values{"serial": {d.Serial}})
	}
}

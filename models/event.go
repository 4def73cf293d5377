package models

import "time"

// UpdateEvent is the tagged message published on every state store update.
// Field names and shapes are the wire contract with the rendering front-end.
type UpdateEvent struct {
	Collection string   `json:"collection"`
	Envelope   Envelope `json:"envelope"`
	Sequence   uint64   `json:"sequence"`
	ParsedBy   string   `json:"parsed_by"`
	Template   string   `json:"template,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// ConnectionState describes the SSH session lifecycle for consumers.
type ConnectionState string

const (
	ConnConnected    ConnectionState = "connected"
	ConnReconnecting ConnectionState = "reconnecting"
	ConnDisconnected ConnectionState = "disconnected"
)

// ConnectionEvent is emitted when the engine's session state changes.
type ConnectionEvent struct {
	State  ConnectionState `json:"state"`
	Detail string          `json:"detail,omitempty"`
	At     time.Time       `json:"at"`
}

// DeviceTarget identifies the device a session is bound to. Host and vendor
// are fixed for the session lifetime; changing vendor requires restart.
type DeviceTarget struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Vendor      string `json:"vendor"`
	DisplayName string `json:"display_name,omitempty"`
}

// DeviceInfo is the static identity detected at connect time.
type DeviceInfo struct {
	Hostname string `json:"hostname,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
	Vendor   string `json:"vendor"`
}

// Sample is one ring-buffer entry for a numeric time series. The timestamp
// comes from the engine clock, never the device clock.
type Sample struct {
	At    time.Time `json:"at"`
	Value float64   `json:"value"`
}

package types

import "encoding/json"

// DispatchRequest is the payload of POST /dispatch.
type DispatchRequest struct {
	// Required prompt text.
	// example: Create a calculator app with a GUI
	Prompt string `json:"prompt" example:"Create a calculator app with a GUI"`
	// Short task description used by knowledge and template strategies.
	// example: Python GUI calculator
	TaskDescription string `json:"task_description,omitempty" example:"Python GUI calculator"`
	// Dispatch mode: "race" (default) or "pooled".
	// example: race
	Mode string `json:"mode,omitempty" example:"race"`
	// Optional model override for pooled dispatches.
	// example: llama3.2:3b
	Model string `json:"model,omitempty" example:"llama3.2:3b"`
	// If true, stream progress events as NDJSON followed by the result.
	// example: false
	Stream bool `json:"stream,omitempty" example:"false"`
}

// DispatchResponse is the structured result of one dispatch.
type DispatchResponse struct {
	// example: 3f1c2b0e-9a51-4f7e-8c61-2a3c1b7e9d10
	ID string `json:"id" example:"3f1c2b0e-9a51-4f7e-8c61-2a3c1b7e9d10"`
	// example: race
	Mode string `json:"mode" example:"race"`
	// example: true
	Success bool `json:"success" example:"true"`
	// Strategy kind (race) or slot name (pooled) that produced the response.
	// example: ultra_fast
	Winner string `json:"winner,omitempty" example:"ultra_fast"`
	Response string `json:"response,omitempty"`
	// Wall time in milliseconds.
	// example: 12
	ElapsedMS int64 `json:"elapsed_ms" example:"12"`
	// Attempts finished when the dispatch returned.
	// example: 1
	Completed int `json:"completed_ais" example:"1"`
	// Attempts launched.
	// example: 4
	Total int `json:"total_ais" example:"4"`
	// Backend port used by pooled dispatches.
	// example: 11434
	Port int `json:"port,omitempty" example:"11434"`
	// example: llama3.2:3b
	Model string `json:"model,omitempty" example:"llama3.2:3b"`
	// Failure kind when success is false.
	// example: capacity_exhausted
	ErrorKind string `json:"error_kind,omitempty" example:"capacity_exhausted"`
	Error     string `json:"error,omitempty"`
	// Pool snapshot attached to capacity failures.
	Pool *PoolStatus `json:"pool,omitempty"`
}

// ProgressEvent is one NDJSON line of a streamed dispatch. On the wire it is
// a flat object: step, progress_percent and ts_ms, with the event's extra
// fields inlined beside them. Extras never override those three keys.
type ProgressEvent struct {
	// example: strategy_done
	Step string `json:"step" example:"strategy_done"`
	// example: 40
	Progress float64 `json:"progress_percent" example:"40"`
	// example: 1700000000123
	TimeUnixMS int64          `json:"ts_ms" example:"1700000000123"`
	Fields     map[string]any `json:"-"`
}

var progressKeys = [...]string{"step", "progress_percent", "ts_ms"}

// MarshalJSON writes the flat wire form.
func (e ProgressEvent) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(e.Fields)+len(progressKeys))
	for k, v := range e.Fields {
		m[k] = v
	}
	m["step"] = e.Step
	m["progress_percent"] = e.Progress
	m["ts_ms"] = e.TimeUnixMS
	return json.Marshal(m)
}

// UnmarshalJSON collects every non-reserved key into Fields.
func (e *ProgressEvent) UnmarshalJSON(b []byte) error {
	type plain ProgressEvent
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	for _, k := range progressKeys {
		delete(m, k)
	}
	if len(m) > 0 {
		p.Fields = m
	}
	*e = ProgressEvent(p)
	return nil
}

// StreamDone terminates a streamed dispatch.
type StreamDone struct {
	Done   bool             `json:"done"`
	Result DispatchResponse `json:"result"`
}

// SlotStatus describes one backend slot.
type SlotStatus struct {
	// example: backend_0
	Name string `json:"name" example:"backend_0"`
	// example: 127.0.0.1:11434
	Addr string `json:"addr" example:"127.0.0.1:11434"`
	// example: 11434
	Port int `json:"port" example:"11434"`
	// example: false
	Busy bool `json:"busy" example:"false"`
	// Zero when never used.
	// example: 1700000000
	LastUsedUnix int64 `json:"last_used_unix" example:"1700000000"`
}

// PoolStatus is a point-in-time pool snapshot.
type PoolStatus struct {
	// example: 3
	Total int `json:"total" example:"3"`
	// example: 1
	Busy int `json:"busy" example:"1"`
	// example: 2
	Free  int          `json:"free" example:"2"`
	Slots []SlotStatus `json:"slots"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Pool PoolStatus `json:"pool"`
	// Strategy kinds raced in race mode, in priority order.
	Strategies []string `json:"strategies"`
	// example: llama3.2:3b
	Model string `json:"model" example:"llama3.2:3b"`
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}

// PortStatus describes one port of the managed range.
type PortStatus struct {
	// example: 11435
	Port int `json:"port" example:"11435"`
	// example: true
	Available bool `json:"available" example:"true"`
	// example: false
	ProcessRunning bool `json:"process_running" example:"false"`
	// example: 0
	PID int `json:"pid,omitempty" example:"0"`
}

// PortsResponse is returned by GET /ports.
type PortsResponse struct {
	// example: 11434
	BasePort int `json:"base_port" example:"11434"`
	// example: 5
	MaxPorts int `json:"max_ports" example:"5"`
	// example: 1
	ActiveProcesses int          `json:"active_processes" example:"1"`
	Ports           []PortStatus `json:"ports"`
}

// ResolveRequest is the optional body of POST /ports/resolve.
type ResolveRequest struct {
	// 0 uses the configured default.
	// example: 3
	MaxRetries int `json:"max_retries,omitempty" example:"3"`
}

// ResolveResponse reports the port obtained by POST /ports/resolve.
type ResolveResponse struct {
	// example: 11436
	Port int `json:"port" example:"11436"`
	// True when a backend process was launched for the port.
	// example: true
	Spawned bool `json:"spawned" example:"true"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
	// Failure kind, when the error came from a dispatch.
	// example: capacity_exhausted
	Kind string `json:"kind,omitempty" example:"capacity_exhausted"`
}

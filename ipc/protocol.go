// Package ipc implements the NDJSON request/response protocol spoken between
// the adapter and the daemon over a project-scoped Unix domain socket.
//
// One JSON object per line, no batching:
//
//	Request:  {"id":"<uuid>","method":"ask_blocking_question","params":{...}}\n
//	Response: {"id":"<uuid>","result":{...}}\n
//	       or {"id":"<uuid>","error":{"message":"...","code":"..."}}\n
//
// Every request id appears in exactly one response, or never; on disconnect
// the client explicitly fails all pending requests instead of letting them
// time out.
package ipc

import (
	"encoding/json"
	"fmt"
	"time"
)

// IPC method names.
const (
	MethodRegisterSession     = "register_session"
	MethodUnregisterSession   = "unregister_session"
	MethodUpdateSessionStatus = "update_session_status"
	MethodListSessions        = "list_sessions"
	MethodPing                = "ping"
	MethodAsk                 = "ask_blocking_question"
	MethodCheck               = "check_question_answers"
	MethodMark                = "mark_question_answered"
)

// Error codes carried in response envelopes.
const (
	CodeParseError     = "PARSE_ERROR"
	CodeMethodNotFound = "METHOD_NOT_FOUND"
	CodeHandlerError   = "HANDLER_ERROR"
	CodeValidation     = "VALIDATION_ERROR"
)

// Socket timing constants.
const (
	// DefaultRequestTimeout applies to methods without a specific policy.
	DefaultRequestTimeout = 30 * time.Second
	// WriteTimeout bounds socket writes so a wedged peer can't block forever.
	WriteTimeout = 10 * time.Second
	// ReadTimeout is the per-iteration read deadline on server connections;
	// on expiry the handler re-checks for shutdown and keeps reading.
	ReadTimeout = 10 * time.Second
)

// Request is one IPC call.
type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response answers exactly one Request, by id.
type Response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RespError      `json:"error,omitempty"`
}

// RespError is the structured error half of a response envelope.
type RespError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// RemoteError is the client-side form of a daemon-reported error.
type RemoteError struct {
	Message string
	Code    string
}

// ErrorCode returns the code reported by the daemon.
func (e *RemoteError) ErrorCode() string { return e.Code }

func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}

// MethodTimeout computes the IPC timeout for a method from its raw params.
//
// The blocking-ask timeout wraps the business-level timeout_minutes with a
// one-minute buffer so an IPC timeout can never mask a legitimate business
// timeout; the long-poll check gets its wait_seconds plus a small buffer;
// everything else uses DefaultRequestTimeout.
func MethodTimeout(method string, params json.RawMessage) time.Duration {
	switch method {
	case MethodAsk:
		var p struct {
			TimeoutMinutes *float64 `json:"timeout_minutes"`
		}
		timeoutMinutes := 30.0
		if err := json.Unmarshal(params, &p); err == nil && p.TimeoutMinutes != nil {
			timeoutMinutes = *p.TimeoutMinutes
		}
		return time.Duration((timeoutMinutes*60 + 60) * float64(time.Second))
	case MethodCheck:
		var p struct {
			WaitSeconds *float64 `json:"wait_seconds"`
		}
		if err := json.Unmarshal(params, &p); err == nil && p.WaitSeconds != nil {
			return time.Duration((*p.WaitSeconds + 10) * float64(time.Second))
		}
	}
	return DefaultRequestTimeout
}

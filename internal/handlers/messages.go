package handlers

import (
	"encoding/json"
	"net/http"
)

const (
	messageTypeText = "text"
	messageTypeRich = "rich_content"
	maxMessageRunes = 10000
	maxReasonRunes  = 500
)

// SendMessageRequest represents the request body for sending a message.
type SendMessageRequest struct {
	CustomerID   string          `json:"customer_id"`
	Message      json.RawMessage `json:"message"`
	MessageType  string          `json:"message_type"`
	CustomerName string          `json:"customer_name,omitempty"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
}

// SendMessageResponse represents the response for a sent message.
type SendMessageResponse struct {
	MessageSent bool   `json:"message_sent"`
	CustomerID  string `json:"customer_id"`
	MessageType string `json:"message_type"`
	MessageID   string `json:"message_id,omitempty"`
	Timestamp   string `json:"timestamp"`
}

// SendMessage handles POST /api/send-message.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.MessageType == "" {
		req.MessageType = messageTypeText
	}

	var errs fieldErrors
	errs.length("customer_id", req.CustomerID, 1, 100)
	errs.oneOf("message_type", req.MessageType, messageTypeText, messageTypeRich)
	errs.optionalMax("customer_name", req.CustomerName, 100)

	var text string
	var rich any
	switch {
	case len(req.Message) == 0 || string(req.Message) == "null":
		errs.add("message", "%q is required", "message")
	case req.MessageType == messageTypeRich:
		if err := json.Unmarshal(req.Message, &rich); err != nil {
			errs.add("message", "%q must be valid JSON", "message")
		}
	default:
		if err := json.Unmarshal(req.Message, &text); err != nil {
			errs.add("message", "%q must be a string", "message")
		} else {
			errs.length("message", text, 1, maxMessageRunes)
		}
	}
	if len(errs) > 0 {
		h.Fail(w, http.StatusBadRequest, "Validation failed", map[string]any{"errors": errs})
		return
	}

	resp := SendMessageResponse{
		MessageSent: true,
		CustomerID:  req.CustomerID,
		MessageType: req.MessageType,
	}
	if req.MessageType == messageTypeRich {
		if err := h.svc.SendRich(r.Context(), req.CustomerID, rich, req.Metadata); err != nil {
			h.sendError(w, err)
			return
		}
	} else {
		id, err := h.svc.SendText(r.Context(), req.CustomerID, text, sanitizeName(req.CustomerName))
		if err != nil {
			h.sendError(w, err)
			return
		}
		resp.MessageID = id
	}
	resp.Timestamp = h.now().UTC().Format(timeFormat)
	h.OK(w, resp)
}

// CustomerRequest is the body of requests that only name a customer.
type CustomerRequest struct {
	CustomerID string `json:"customer_id"`
}

// Typing handles POST /api/typing.
func (h *Handler) Typing(w http.ResponseWriter, r *http.Request) {
	var req CustomerRequest
	if !h.decode(w, r, &req) {
		return
	}
	var errs fieldErrors
	errs.length("customer_id", req.CustomerID, 1, 100)
	if len(errs) > 0 {
		h.Fail(w, http.StatusBadRequest, "Validation failed", map[string]any{"errors": errs})
		return
	}

	if err := h.svc.SendTyping(r.Context(), req.CustomerID); err != nil {
		h.sendError(w, err)
		return
	}
	h.OK(w, map[string]any{"typing_sent": true, "customer_id": req.CustomerID})
}

// WaitTimeRequest represents the request body for a wait time update.
type WaitTimeRequest struct {
	CustomerID string `json:"customer_id"`
	WaitTime   *int64 `json:"wait_time"`
}

// WaitTime handles POST /api/wait-time.
func (h *Handler) WaitTime(w http.ResponseWriter, r *http.Request) {
	var req WaitTimeRequest
	if !h.decode(w, r, &req) {
		return
	}
	var errs fieldErrors
	errs.length("customer_id", req.CustomerID, 1, 100)
	switch {
	case req.WaitTime == nil:
		errs.add("wait_time", "%q is required", "wait_time")
	case *req.WaitTime < 0:
		errs.add("wait_time", "%q must be greater than or equal to 0", "wait_time")
	}
	if len(errs) > 0 {
		h.Fail(w, http.StatusBadRequest, "Validation failed", map[string]any{"errors": errs})
		return
	}

	if err := h.svc.SendWaitTime(r.Context(), req.CustomerID, *req.WaitTime); err != nil {
		h.sendError(w, err)
		return
	}
	h.OK(w, map[string]any{"wait_time_sent": true, "customer_id": req.CustomerID, "wait_time": *req.WaitTime})
}

// EndSessionRequest represents the request body for ending a conversation.
type EndSessionRequest struct {
	CustomerID string `json:"customer_id"`
	Reason     string `json:"reason,omitempty"`
}

// EndSession handles POST /api/end-session.
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	var req EndSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	var errs fieldErrors
	errs.length("customer_id", req.CustomerID, 1, 100)
	errs.optionalMax("reason", req.Reason, maxReasonRunes)
	if len(errs) > 0 {
		h.Fail(w, http.StatusBadRequest, "Validation failed", map[string]any{"errors": errs})
		return
	}

	session, err := h.svc.EndSession(req.CustomerID, req.Reason)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.OK(w, map[string]any{"session_ended": true, "session": session})
}


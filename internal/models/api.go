// Package models defines API request and response structures.
package models

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates a successful operation.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates a failed operation.
	APIStatusError APIStatus = "error"
)

// APIResponse is the JSON envelope returned by every HTTP endpoint.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and
// optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}

// ChatRequest is the inbound message payload for /whatsapp-chat.
type ChatRequest struct {
	UserID         string `json:"user_id,omitempty"`
	UserName       string `json:"user_name" validate:"required"`
	PhoneNumber    string `json:"phone_number" validate:"required,min=6"`
	Message        string `json:"message" validate:"required"`
	SendToWhatsApp bool   `json:"send_to_whatsapp"`
}

// ChatResponse carries the generated reply plus observability fields: which
// agent handled the message and which tools actually executed.
type ChatResponse struct {
	Response      string   `json:"response"`
	Messages      []string `json:"messages"`
	AgentUsed     string   `json:"agent_used"`
	ToolsExecuted []string `json:"tools_executed"`
	WhatsAppSent  bool     `json:"whatsapp_sent"`
	MessagesSent  int      `json:"messages_sent"`
}

// HealthCheck reports the reachability of one dependency.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Service   string                 `json:"service"`
	Timestamp int64                  `json:"timestamp"`
	Checks    map[string]HealthCheck `json:"checks"`
}

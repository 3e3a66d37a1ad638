package server

import (
	"encoding/json"
	"time"

	"github.com/feltworks/holdem/internal/events"
	"github.com/feltworks/holdem/internal/table"
)

// MessageType identifies a WebSocket message
type MessageType string

const (
	// client -> server
	MessageTypeAuth       MessageType = "auth"
	MessageTypeListTables MessageType = "list_tables"
	MessageTypeJoinTable  MessageType = "join_table"
	MessageTypeLeaveTable MessageType = "leave_table"
	MessageTypeAct        MessageType = "act"
	MessageTypeAddChips   MessageType = "add_chips"
	MessageTypeSitIn      MessageType = "sit_in"
	MessageTypeGetState   MessageType = "get_state"
	MessageTypeGetEvents  MessageType = "get_events"

	// server -> client
	MessageTypeAuthResponse MessageType = "auth_response"
	MessageTypeTableList    MessageType = "table_list"
	MessageTypeOK           MessageType = "ok"
	MessageTypeError        MessageType = "error"
	MessageTypeState        MessageType = "state"
	MessageTypeEvents       MessageType = "events"
	MessageTypeEvent        MessageType = "event" // server-pushed, no RequestID
)

// Message is the WebSocket envelope. RequestID, when set by the client, is
// echoed on the response so callers can correlate replies.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage creates a message with the current timestamp
func NewMessage(messageType MessageType, data any) (*Message, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return &Message{
		Type:      messageType,
		Data:      raw,
		Timestamp: time.Now(),
	}, nil
}

// client -> server payloads

type AuthData struct {
	AgentID string `json:"agentId"`
	Token   string `json:"token,omitempty"`
}

type JoinTableData struct {
	TableID string `json:"tableId"`
	Seat    int    `json:"seat"`
	BuyIn   int    `json:"buyIn"`
}

type LeaveTableData struct {
	TableID string `json:"tableId"`
}

type ActData struct {
	TableID string `json:"tableId"`
	Action  string `json:"action"`
	Amount  int    `json:"amount,omitempty"`
}

type AddChipsData struct {
	TableID string `json:"tableId"`
	Amount  int    `json:"amount"`
}

type SitInData struct {
	TableID string `json:"tableId"`
}

type GetStateData struct {
	TableID string `json:"tableId"`
}

type GetEventsData struct {
	TableID string `json:"tableId"`
	Since   uint64 `json:"since"`
}

// server -> client payloads

type AuthResponseData struct {
	Success bool   `json:"success"`
	AgentID string `json:"agentId,omitempty"`
	Balance int    `json:"balance"`
	Error   string `json:"error,omitempty"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type TableInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Seated   int    `json:"seated"`
	MaxSeats int    `json:"maxSeats"`
	Stakes   string `json:"stakes"`
}

type TableListData struct {
	Tables []TableInfo `json:"tables"`
}

type StateData struct {
	Table table.View `json:"table"`
}

type EventsData struct {
	TableID string         `json:"tableId"`
	Events  []events.Event `json:"events"`
}

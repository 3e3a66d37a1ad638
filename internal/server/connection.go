package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/feltworks/holdem/internal/events"
)

// ErrConnectionClosed is returned when sending on a closed connection
var ErrConnectionClosed = errors.New("connection closed")

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings with this period; must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 64 * 1024
)

// Connection wraps one WebSocket client. Messages are responded to in
// order; writes go through a buffered channel drained by the write pump.
type Connection struct {
	conn    *websocket.Conn
	send    chan *Message
	agentID string
	tableID string
	logger  *log.Logger
	service *GameService
	ctx     context.Context
	cancel  context.CancelFunc

	mu        sync.RWMutex
	closeOnce sync.Once
	onClose   func(*Connection)
	unwatch   func()
}

// NewConnection wraps an upgraded WebSocket
func NewConnection(conn *websocket.Conn, logger *log.Logger, service *GameService, onClose func(*Connection)) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		conn:    conn,
		send:    make(chan *Message, 64),
		logger:  logger.WithPrefix("conn"),
		service: service,
		ctx:     ctx,
		cancel:  cancel,
		onClose: onClose,
	}
}

// Start begins the read and write pumps
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close tears the connection down once
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.stopWatching()
		c.cancel()
		err = c.conn.Close()
		if c.onClose != nil {
			c.onClose(c)
		}
	})
	return err
}

// Send queues a message for the client. A full buffer drops the connection
// rather than blocking the table.
func (c *Connection) Send(msg *Message) error {
	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		c.logger.Warn("send buffer full, dropping connection", "agent_id", c.AgentID())
		_ = c.Close()
		return ErrConnectionClosed
	}
}

// AgentID returns the authenticated agent, or empty
func (c *Connection) AgentID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.agentID
}

func (c *Connection) setAgentID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agentID = id
}

// TableID returns the table this connection last joined
func (c *Connection) TableID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tableID
}

func (c *Connection) setTableID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tableID = id
}

// watchTable streams the table's event log to the client as "event"
// messages until the connection leaves the table or closes.
func (c *Connection) watchTable(tableID string) {
	c.stopWatching()

	ch := make(chan events.Event, 32)
	if err := c.service.Subscribe(tableID, ch); err != nil {
		return
	}
	ctx, cancel := context.WithCancel(c.ctx)

	c.mu.Lock()
	c.unwatch = func() {
		cancel()
		c.service.Unsubscribe(tableID, ch)
	}
	c.mu.Unlock()

	go func() {
		for {
			select {
			case ev := <-ch:
				_ = c.Send(mustMessage(MessageTypeEvent, ev))
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (c *Connection) stopWatching() {
	c.mu.Lock()
	unwatch := c.unwatch
	c.unwatch = nil
	c.mu.Unlock()
	if unwatch != nil {
		unwatch()
	}
}

func (c *Connection) readPump() {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("unexpected close", "error", err)
			}
			return
		}
		c.handle(&msg)
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// handle dispatches one client message and sends the response
func (c *Connection) handle(msg *Message) {
	resp := c.dispatch(msg)
	if resp == nil {
		return
	}
	resp.RequestID = msg.RequestID
	_ = c.Send(resp)
}

func (c *Connection) dispatch(msg *Message) *Message {
	ctx := c.ctx

	if msg.Type == MessageTypeAuth {
		return c.handleAuth(ctx, msg)
	}
	if c.AgentID() == "" {
		return errorMessage("unauthenticated", "authenticate first")
	}

	switch msg.Type {
	case MessageTypeListTables:
		tables, err := c.service.ListTables(ctx)
		if err != nil {
			return errorMessage(errorCode(err), err.Error())
		}
		return mustMessage(MessageTypeTableList, TableListData{Tables: tables})

	case MessageTypeJoinTable:
		var data JoinTableData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return errorMessage("bad_request", err.Error())
		}
		if err := c.service.JoinTable(ctx, c.AgentID(), data.TableID, data.Seat, data.BuyIn); err != nil {
			return errorMessage(errorCode(err), err.Error())
		}
		c.setTableID(data.TableID)
		c.watchTable(data.TableID)
		return mustMessage(MessageTypeOK, nil)

	case MessageTypeLeaveTable:
		var data LeaveTableData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return errorMessage("bad_request", err.Error())
		}
		if err := c.service.LeaveTable(ctx, c.AgentID(), data.TableID); err != nil {
			return errorMessage(errorCode(err), err.Error())
		}
		c.setTableID("")
		c.stopWatching()
		return mustMessage(MessageTypeOK, nil)

	case MessageTypeAct:
		var data ActData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return errorMessage("bad_request", err.Error())
		}
		if err := c.service.Act(ctx, c.AgentID(), data.TableID, data.Action, data.Amount); err != nil {
			return errorMessage(errorCode(err), err.Error())
		}
		return mustMessage(MessageTypeOK, nil)

	case MessageTypeAddChips:
		var data AddChipsData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return errorMessage("bad_request", err.Error())
		}
		if err := c.service.AddChips(ctx, c.AgentID(), data.TableID, data.Amount); err != nil {
			return errorMessage(errorCode(err), err.Error())
		}
		return mustMessage(MessageTypeOK, nil)

	case MessageTypeSitIn:
		var data SitInData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return errorMessage("bad_request", err.Error())
		}
		if err := c.service.SitIn(ctx, c.AgentID(), data.TableID); err != nil {
			return errorMessage(errorCode(err), err.Error())
		}
		return mustMessage(MessageTypeOK, nil)

	case MessageTypeGetState:
		var data GetStateData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return errorMessage("bad_request", err.Error())
		}
		view, err := c.service.State(ctx, c.AgentID(), data.TableID)
		if err != nil {
			return errorMessage(errorCode(err), err.Error())
		}
		return mustMessage(MessageTypeState, StateData{Table: view})

	case MessageTypeGetEvents:
		var data GetEventsData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return errorMessage("bad_request", err.Error())
		}
		evs, err := c.service.Events(ctx, data.TableID, data.Since)
		if err != nil {
			return errorMessage(errorCode(err), err.Error())
		}
		return mustMessage(MessageTypeEvents, evs)

	default:
		return errorMessage("bad_request", "unknown message type "+string(msg.Type))
	}
}

func (c *Connection) handleAuth(ctx context.Context, msg *Message) *Message {
	var data AuthData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		return errorMessage("bad_request", err.Error())
	}
	if data.AgentID == "" {
		return mustMessage(MessageTypeAuthResponse, AuthResponseData{
			Success: false, Error: "agentId is required",
		})
	}
	c.setAgentID(data.AgentID)
	balance, err := c.service.Balance(ctx, data.AgentID)
	if err != nil {
		return errorMessage(errorCode(err), err.Error())
	}
	c.logger.Info("agent authenticated", "agent_id", data.AgentID)
	return mustMessage(MessageTypeAuthResponse, AuthResponseData{
		Success: true, AgentID: data.AgentID, Balance: balance,
	})
}

func errorMessage(code, text string) *Message {
	return mustMessage(MessageTypeError, ErrorData{Code: code, Message: text})
}

// mustMessage builds a message from a payload the server controls
func mustMessage(typ MessageType, data any) *Message {
	msg, err := NewMessage(typ, data)
	if err != nil {
		panic("marshal server message: " + err.Error())
	}
	return msg
}

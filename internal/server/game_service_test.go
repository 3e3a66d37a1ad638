package server

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feltworks/holdem/internal/events"
	"github.com/feltworks/holdem/internal/table"
	"github.com/feltworks/holdem/internal/wallet"
)

func testService(t *testing.T) (*GameService, *table.Table) {
	t.Helper()
	logger := log.New(io.Discard)
	ledger := wallet.NewMemoryLedger()
	for _, agent := range []string{"alice", "bob"} {
		ledger.Deposit(agent, 1000)
	}
	registry := table.NewRegistry(ledger, nil, nil, logger)
	t.Cleanup(func() { _ = registry.Shutdown(context.Background()) })

	tbl, err := registry.Create(table.Config{
		ID: "t1", Name: "test", SmallBlind: 5, BigBlind: 10,
		MinBuyIn: 100, MaxBuyIn: 500,
	})
	require.NoError(t, err)
	return NewGameService(registry, ledger, logger), tbl
}

func TestGameServiceJoinActLeave(t *testing.T) {
	ctx := context.Background()
	svc, tbl := testService(t)

	require.NoError(t, svc.JoinTable(ctx, "alice", "t1", 1, 200))
	require.NoError(t, svc.JoinTable(ctx, "bob", "t1", 2, 200))
	require.NoError(t, tbl.StartHand(ctx))

	require.NoError(t, svc.Act(ctx, "alice", "t1", "call", 0))
	require.NoError(t, svc.Act(ctx, "bob", "t1", "check", 0))

	view, err := svc.State(ctx, "alice", "t1")
	require.NoError(t, err)
	require.NotNil(t, view.Hand)
	assert.Equal(t, "flop", view.Hand.Phase)

	err = svc.Act(ctx, "alice", "t1", "launch_missiles", 0)
	require.Error(t, err)
	assert.Equal(t, "invalid_action", errorCode(err))
}

func TestGameServiceUnknownTable(t *testing.T) {
	ctx := context.Background()
	svc, _ := testService(t)

	err := svc.JoinTable(ctx, "alice", "nope", 1, 200)
	assert.Equal(t, "unknown_table", errorCode(err))

	_, err = svc.Events(ctx, "nope", 0)
	require.Error(t, err)
}

func TestGameServiceListTables(t *testing.T) {
	ctx := context.Background()
	svc, _ := testService(t)

	require.NoError(t, svc.JoinTable(ctx, "alice", "t1", 1, 200))

	infos, err := svc.ListTables(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "t1", infos[0].ID)
	assert.Equal(t, 1, infos[0].Seated)
	assert.Equal(t, "5/10", infos[0].Stakes)
}

func TestGameServiceEvents(t *testing.T) {
	ctx := context.Background()
	svc, _ := testService(t)

	require.NoError(t, svc.JoinTable(ctx, "alice", "t1", 1, 200))

	data, err := svc.Events(ctx, "t1", 0)
	require.NoError(t, err)
	require.NotEmpty(t, data.Events)
	assert.Equal(t, events.TypePlayerJoin, data.Events[0].Type)

	// windowed reads resume after the given sequence number
	tail, err := svc.Events(ctx, "t1", data.Events[len(data.Events)-1].Seq)
	require.NoError(t, err)
	assert.Empty(t, tail.Events)
}

// dispatch is exercised without a live socket; it never touches the
// underlying connection.
func testConn(svc *GameService) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		send:    make(chan *Message, 16),
		logger:  log.New(io.Discard),
		service: svc,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func request(t *testing.T, typ MessageType, data any) *Message {
	t.Helper()
	msg, err := NewMessage(typ, data)
	require.NoError(t, err)
	return msg
}

func TestDispatchRequiresAuth(t *testing.T) {
	svc, _ := testService(t)
	conn := testConn(svc)

	resp := conn.dispatch(request(t, MessageTypeListTables, nil))
	require.NotNil(t, resp)
	require.Equal(t, MessageTypeError, resp.Type)

	var ed ErrorData
	require.NoError(t, json.Unmarshal(resp.Data, &ed))
	assert.Equal(t, "unauthenticated", ed.Code)
}

func TestDispatchAuthThenJoin(t *testing.T) {
	svc, _ := testService(t)
	conn := testConn(svc)

	resp := conn.dispatch(request(t, MessageTypeAuth, AuthData{AgentID: "alice"}))
	require.Equal(t, MessageTypeAuthResponse, resp.Type)

	var auth AuthResponseData
	require.NoError(t, json.Unmarshal(resp.Data, &auth))
	assert.True(t, auth.Success)
	assert.Equal(t, 1000, auth.Balance)

	resp = conn.dispatch(request(t, MessageTypeJoinTable, JoinTableData{TableID: "t1", Seat: 1, BuyIn: 200}))
	require.Equal(t, MessageTypeOK, resp.Type)
	assert.Equal(t, "t1", conn.TableID())

	// insufficient buy-in surfaces as a structured error
	resp = conn.dispatch(request(t, MessageTypeJoinTable, JoinTableData{TableID: "t1", Seat: 2, BuyIn: 200}))
	require.Equal(t, MessageTypeError, resp.Type)
	var ed ErrorData
	require.NoError(t, json.Unmarshal(resp.Data, &ed))
	assert.Equal(t, "already_seated", ed.Code)
}

func TestDispatchJoinStreamsTableEvents(t *testing.T) {
	ctx := context.Background()
	svc, _ := testService(t)

	conn := testConn(svc)
	t.Cleanup(conn.stopWatching)
	conn.dispatch(request(t, MessageTypeAuth, AuthData{AgentID: "alice"}))
	resp := conn.dispatch(request(t, MessageTypeJoinTable, JoinTableData{TableID: "t1", Seat: 1, BuyIn: 200}))
	require.Equal(t, MessageTypeOK, resp.Type)

	// Another agent's join must be pushed to the subscribed connection
	require.NoError(t, svc.JoinTable(ctx, "bob", "t1", 2, 200))

	require.Eventually(t, func() bool {
		select {
		case msg := <-conn.send:
			if msg.Type != MessageTypeEvent {
				return false
			}
			var ev events.Event
			require.NoError(t, json.Unmarshal(msg.Data, &ev))
			return ev.Type == events.TypePlayerJoin && ev.AgentID == "bob"
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	// Leaving stops the stream
	resp = conn.dispatch(request(t, MessageTypeLeaveTable, LeaveTableData{TableID: "t1"}))
	require.Equal(t, MessageTypeOK, resp.Type)
	assert.Nil(t, conn.unwatch)
}

func TestDispatchStateRedactsOpponents(t *testing.T) {
	ctx := context.Background()
	svc, tbl := testService(t)

	require.NoError(t, svc.JoinTable(ctx, "alice", "t1", 1, 200))
	require.NoError(t, svc.JoinTable(ctx, "bob", "t1", 2, 200))
	require.NoError(t, tbl.StartHand(ctx))

	conn := testConn(svc)
	conn.dispatch(request(t, MessageTypeAuth, AuthData{AgentID: "alice"}))

	resp := conn.dispatch(request(t, MessageTypeGetState, GetStateData{TableID: "t1"}))
	require.Equal(t, MessageTypeState, resp.Type)

	var state StateData
	require.NoError(t, json.Unmarshal(resp.Data, &state))
	require.NotNil(t, state.Table.Hand)
	for _, s := range state.Table.Hand.Seats {
		if s.AgentID == "alice" {
			assert.Len(t, s.HoleCards, 2)
		} else {
			assert.Empty(t, s.HoleCards)
		}
	}
}

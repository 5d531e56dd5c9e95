package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stemsi/lms-backend/internal/model"
	"github.com/stemsi/lms-backend/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalBridge(t *testing.T) {
	b := NewSignalBridge()
	assert.False(t, b.Deliver(session.Signal{Type: session.SignalCopy}))

	var got []session.Signal
	require.NoError(t, b.Subscribe(func(s session.Signal) bool {
		got = append(got, s)
		return s.Type == session.SignalCopy
	}))
	assert.ErrorIs(t, b.Subscribe(func(session.Signal) bool { return false }), ErrAlreadySubscribed)

	assert.True(t, b.Deliver(session.Signal{Type: session.SignalCopy}))
	assert.False(t, b.Deliver(session.Signal{Type: session.SignalVisibility, Hidden: true}))

	b.Unsubscribe()
	b.Unsubscribe()
	assert.False(t, b.Deliver(session.Signal{Type: session.SignalCopy}))
	assert.Len(t, got, 2)
}

func TestRequestPayload_Decode(t *testing.T) {
	var p RequestPayload
	require.NoError(t, json.Unmarshal([]byte(`{"action":"answer","q_id":"abc","ans":"true"}`), &p))
	assert.Equal(t, ActionAnswer, p.Action)
	require.NotNil(t, p.Answer)
	v, ok := p.Answer.Bool()
	assert.True(t, ok)
	assert.True(t, v)

	p = RequestPayload{}
	require.NoError(t, json.Unmarshal([]byte(`{"action":"signal","signal":{"type":"visibility","hidden":true}}`), &p))
	require.NotNil(t, p.Signal)
	assert.Equal(t, session.SignalVisibility, p.Signal.Type)
	assert.True(t, p.Signal.Hidden)
}

func TestConn_RoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewConn(raw)
		defer conn.Close()

		var req RequestPayload
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		if req.Action == ActionPing {
			_ = conn.WriteTyped(PongResponse{Event: EventPong})
		}
		_ = conn.WriteTyped(NewTickResponse(45))
		_ = conn.WriteError("boom")
		_ = conn.CloseNormal("done")
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.WriteJSON(RequestPayload{Action: ActionPing}))

	var pong PongResponse
	require.NoError(t, client.ReadJSON(&pong))
	assert.Equal(t, EventPong, pong.Event)

	var tick TickResponse
	require.NoError(t, client.ReadJSON(&tick))
	assert.Equal(t, 45, tick.RemainingSeconds)
	assert.Equal(t, "00:45", tick.RemainingLabel)
	assert.True(t, tick.LowTime)

	var e ErrorResponse
	require.NoError(t, client.ReadJSON(&e))
	assert.Equal(t, EventError, e.Event)
	assert.Equal(t, "boom", e.Error)

	_, _, err = client.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestNewGradedResponse(t *testing.T) {
	r := NewGradedResponse(&model.AttemptResult{Score: 80, Completed: true, Feedback: "Good"}, true)
	assert.Equal(t, EventGraded, r.Event)
	assert.Equal(t, 80, r.Score)
	assert.True(t, r.AutoSubmitted)
	assert.Equal(t, "completed", r.Status)
}

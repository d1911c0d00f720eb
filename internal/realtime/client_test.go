package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/aura-interview/attention/internal/models"
)

func nextReply(t *testing.T, c *Client) WSMessage {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	default:
		t.Fatal("no reply queued")
		return WSMessage{}
	}
}

func TestClientHandle(t *testing.T) {
	tr := &fakeTracker{owner: uuid.New()}
	c := newClient(Deps{Tracker: tr}, uuid.New(), tr.owner, models.RoleCandidate, true)

	c.handle(WSMessage{Event: "start"})
	if msg := nextReply(t, c); msg.Event != ReplyStarted || string(msg.Data) != `{"started":false}` {
		t.Errorf("start uncalibrated: %s %s", msg.Event, msg.Data)
	}

	c.handle(WSMessage{Event: "calibration_point", Data: json.RawMessage(`{"point":0}`)})
	if len(c.send) != 0 {
		t.Errorf("calibration success queued a reply")
	}
	c.handle(WSMessage{Event: "calibration_point", Data: json.RawMessage(`{"point":5}`)})
	if msg := nextReply(t, c); msg.Event != "error" {
		t.Errorf("out of order calibration: %s", msg.Event)
	}

	c.handle(WSMessage{Event: "gaze", Data: json.RawMessage(`[{"x":1,"y":2,"timestamp":3},{"x":4,"y":5,"timestamp":6}]`)})
	c.handle(WSMessage{Event: "gaze", Data: json.RawMessage(`{"x":1,"y":2,"timestamp":9}`)})
	if tr.count() != 3 {
		t.Errorf("ingested %d samples, want 3", tr.count())
	}

	c.handle(WSMessage{Event: "stop"})
	msg := nextReply(t, c)
	if msg.Event != ReplyStopped || !strings.Contains(string(msg.Data), `"attention_percentage":75`) {
		t.Errorf("stop: %s %s", msg.Event, msg.Data)
	}

	c.handle(WSMessage{Event: "webrtc_offer", Data: json.RawMessage(`{"sdp":"x"}`)})
	if msg := nextReply(t, c); msg.Event != "error" {
		t.Errorf("offer without peers: %s", msg.Event)
	}
	c.handle(WSMessage{Event: "dance"})
	if msg := nextReply(t, c); msg.Event != "error" {
		t.Errorf("unknown event: %s", msg.Event)
	}
}

func TestClientObserverIsReadOnly(t *testing.T) {
	tr := &fakeTracker{owner: uuid.New(), calibrated: true}
	c := newClient(Deps{Tracker: tr}, uuid.New(), uuid.New(), models.RoleInterviewer, false)
	c.handle(WSMessage{Event: "gaze", Data: json.RawMessage(`{"x":1,"y":2,"timestamp":3}`)})
	if msg := nextReply(t, c); msg.Event != "error" {
		t.Errorf("observer gaze: %s", msg.Event)
	}
	if tr.count() != 0 {
		t.Error("observer samples reached the tracker")
	}
}

func TestClientRateLimit(t *testing.T) {
	tr := &fakeTracker{owner: uuid.New()}
	c := newClient(Deps{Tracker: tr, MaxSampleRateHz: 2}, uuid.New(), tr.owner, models.RoleCandidate, true)
	c.handle(WSMessage{Event: "gaze", Data: json.RawMessage(`[{"timestamp":1},{"timestamp":2},{"timestamp":3},{"timestamp":4}]`)})
	if tr.count() != 2 {
		t.Errorf("ingested %d samples, want burst of 2", tr.count())
	}
}

func TestServeWs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	owner, observer := uuid.New(), uuid.New()
	tr := &fakeTracker{owner: owner, calibrated: true}
	hub := NewHub(nil, nil, nil, nil)
	r := gin.New()
	r.GET("/ws", ServeWs(Deps{
		Hub:     hub,
		Tracker: tr,
		Validator: fakeValidator{
			"owner":    claims(owner, models.RoleCandidate),
			"stranger": claims(uuid.New(), models.RoleCandidate),
			"observer": claims(observer, models.RoleInterviewer),
		},
	}))
	srv := httptest.NewServer(r)
	defer srv.Close()
	session := uuid.NewString()

	tests := []struct {
		query string
		want  int
	}{
		{"?token=owner", http.StatusBadRequest},
		{"?session_id=nope&token=owner", http.StatusBadRequest},
		{"?session_id=" + session + "&token=bad", http.StatusUnauthorized},
		{"?session_id=" + session + "&token=stranger", http.StatusForbidden},
	}
	for _, tt := range tests {
		resp, err := http.Get(srv.URL + "/ws" + tt.query)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Errorf("GET %s: %d, want %d", tt.query, resp.StatusCode, tt.want)
		}
	}

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?session_id=" + session
	obs, _, err := websocket.DefaultDialer.Dial(wsURL+"&token=observer", nil)
	if err != nil {
		t.Fatalf("observer dial: %v", err)
	}
	defer obs.Close()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"&token=owner", nil)
	if err != nil {
		t.Fatalf("owner dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(WSMessage{Event: "start"}); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reply WSMessage
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if reply.Event != ReplyStarted || string(reply.Data) != `{"started":true}` {
		t.Errorf("reply = %s %s", reply.Event, reply.Data)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.ViewerCount(uuid.MustParse(session)) != 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	hub.BroadcastToSession(uuid.MustParse(session), "focus_changed", map[string]string{"to": "distracted"})
	_ = obs.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := obs.ReadJSON(&reply); err != nil || reply.Event != "focus_changed" {
		t.Errorf("observer read = %+v, %v", reply, err)
	}
}

package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aura-interview/attention/internal/auth"
	"github.com/aura-interview/attention/internal/focus"
	"github.com/aura-interview/attention/internal/metrics"
	"github.com/aura-interview/attention/internal/models"
	"github.com/aura-interview/attention/internal/sessions"
)

const opTimeout = 5 * time.Second

// Replies sent only to the connection that asked. Observers learn the same facts
// from the tracking_started and summary broadcasts.
const (
	ReplyStarted = "started"
	ReplyStopped = "stopped"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

var errReadOnly = errors.New("observer connections are read-only")

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Tracker is the session operations a candidate connection drives.
type Tracker interface {
	Owner(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
	Calibrate(ctx context.Context, id uuid.UUID, point int) (focus.CalibrationProgress, error)
	Start(ctx context.Context, id uuid.UUID) (bool, error)
	Ingest(ctx context.Context, id uuid.UUID, samples []focus.Sample) (sessions.IngestResult, error)
	Stop(ctx context.Context, id uuid.UUID) (focus.Summary, error)
}

// TokenValidator validates the token passed in the query string.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// Deps are the collaborators of the WebSocket endpoint.
type Deps struct {
	Hub       *Hub
	Tracker   Tracker
	Validator TokenValidator
	Peers     *PeerManager // nil disables the WebRTC data channel
	// MaxSampleRateHz caps gaze samples per connection; 0 disables the cap.
	MaxSampleRateHz float64
	Logger          *zap.Logger
	Metrics         *metrics.Metrics
}

// Client represents a single WebSocket connection watching or driving a session.
type Client struct {
	ID        string
	SessionID uuid.UUID
	UserID    uuid.UUID
	Role      models.Role
	// Owner is set for the candidate the session belongs to. Only the owner may
	// send control and gaze events.
	Owner   bool
	hub     *Hub
	tracker Tracker
	peers   *PeerManager
	limiter *rate.Limiter
	conn    *websocket.Conn
	send    chan WSMessage
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// ServeWs handles the WebSocket upgrade and runs the client loop.
// Query: session_id, token.
func ServeWs(d Deps) gin.HandlerFunc {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		sessionIDStr := c.Query("session_id")
		token := c.Query("token")
		if sessionIDStr == "" || token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session_id and token required"})
			return
		}
		sessionID, err := uuid.Parse(sessionIDStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session_id"})
			return
		}
		claims, err := d.Validator.Validate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		owner, err := d.Tracker.Owner(c.Request.Context(), sessionID)
		if err != nil {
			if errors.Is(err, sessions.ErrSessionNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
				return
			}
			logger.Error("websocket session lookup", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		isOwner := claims.UserID == owner
		if !isOwner && !claims.Role.IsObserver() {
			c.JSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := newClient(d, sessionID, claims.UserID, claims.Role, isOwner)
		client.conn = conn
		client.logger = logger.With(zap.String("client_id", client.ID), zap.String("session_id", sessionID.String()))
		d.Hub.Register(client)
		go client.writePump()
		client.readPump()
	}
}

func newClient(d Deps, sessionID, userID uuid.UUID, role models.Role, owner bool) *Client {
	c := &Client{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		UserID:    userID,
		Role:      role,
		Owner:     owner,
		hub:       d.Hub,
		tracker:   d.Tracker,
		peers:     d.Peers,
		send:      make(chan WSMessage, 256),
		logger:    zap.NewNop(),
		metrics:   d.Metrics,
	}
	if d.MaxSampleRateHz > 0 {
		burst := int(d.MaxSampleRateHz)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(d.MaxSampleRateHz), burst)
	}
	return c
}

func (c *Client) readPump() {
	defer func() {
		if c.peers != nil {
			c.peers.Close(c.ID)
		}
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		c.handle(msg)
	}
}

// handle dispatches one inbound event. Failures are reported to this client as
// an "error" event; the connection stays open.
func (c *Client) handle(msg WSMessage) {
	if !c.Owner {
		c.fail(msg.Event, errReadOnly)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	switch msg.Event {
	case "calibration_point":
		var payload struct {
			Point *int `json:"point"`
		}
		if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.Point == nil {
			c.fail(msg.Event, errors.New("point required"))
			return
		}
		if _, err := c.tracker.Calibrate(ctx, c.SessionID, *payload.Point); err != nil {
			c.fail(msg.Event, err)
		}
	case "start":
		started, err := c.tracker.Start(ctx, c.SessionID)
		if err != nil {
			c.fail(msg.Event, err)
			return
		}
		c.reply(ReplyStarted, map[string]bool{"started": started})
	case "gaze":
		c.ingest(ctx, msg.Data)
	case "stop":
		sum, err := c.tracker.Stop(ctx, c.SessionID)
		if err != nil {
			c.fail(msg.Event, err)
			return
		}
		c.reply(ReplyStopped, sum)
	case "webrtc_offer":
		if c.peers == nil {
			c.fail(msg.Event, errors.New("webrtc disabled"))
			return
		}
		var payload struct {
			SDP string `json:"sdp"`
		}
		if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.SDP == "" {
			c.fail(msg.Event, errors.New("sdp required"))
			return
		}
		sdp := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: payload.SDP}
		if err := c.peers.HandleOffer(c.ID, sdp, c.reply, c.ingestAsync); err != nil {
			c.fail(msg.Event, err)
		}
	case "webrtc_ice":
		if c.peers == nil {
			return
		}
		var payload struct {
			Candidate webrtc.ICECandidateInit `json:"candidate"`
		}
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			c.fail(msg.Event, err)
			return
		}
		if err := c.peers.AddICECandidate(c.ID, payload.Candidate); err != nil {
			c.fail(msg.Event, err)
		}
	default:
		c.fail(msg.Event, errors.New("unknown event"))
	}
}

// ingestAsync is the data channel entry point.
func (c *Client) ingestAsync(raw []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	c.ingest(ctx, raw)
}

func (c *Client) ingest(ctx context.Context, raw []byte) {
	samples, err := focus.DecodeSamples(raw)
	if err != nil {
		c.fail("gaze", err)
		return
	}
	samples = c.allow(samples)
	if len(samples) == 0 {
		return
	}
	if _, err := c.tracker.Ingest(ctx, c.SessionID, samples); err != nil {
		c.fail("gaze", err)
	}
}

// allow filters samples through the per-connection rate limiter.
func (c *Client) allow(samples []focus.Sample) []focus.Sample {
	if c.limiter == nil {
		return samples
	}
	kept := samples[:0]
	for _, s := range samples {
		if c.limiter.Allow() {
			kept = append(kept, s)
			continue
		}
		c.metrics.Dropped(metrics.DropRateLimited)
	}
	return kept
}

func (c *Client) reply(event string, payload interface{}) {
	msg, err := newMessage(event, payload)
	if err != nil {
		c.logger.Warn("encode reply", zap.String("event", event), zap.Error(err))
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) fail(event string, err error) {
	c.logger.Debug("websocket event failed", zap.String("event", event), zap.Error(err))
	c.reply("error", map[string]string{"event": event, "message": err.Error()})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

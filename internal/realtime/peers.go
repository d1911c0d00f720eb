package realtime

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// GazeChannelLabel is the data channel a candidate opens to stream gaze samples.
const GazeChannelLabel = "gaze"

// ErrNoPeer is returned for ICE candidates from a client without a peer connection.
var ErrNoPeer = errors.New("realtime: no peer connection")

// PeerManager terminates one WebRTC peer connection per candidate client. Only the
// "gaze" data channel is used; media tracks are not negotiated.
type PeerManager struct {
	peers map[string]*webrtc.PeerConnection
	mu    sync.Mutex
	log   *zap.Logger
	cfg   webrtc.Configuration
}

// NewPeerManager creates a manager with the given ICE (STUN/TURN) configuration.
func NewPeerManager(log *zap.Logger, iceServers []webrtc.ICEServer) *PeerManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &PeerManager{
		peers: make(map[string]*webrtc.PeerConnection),
		log:   log,
		cfg:   webrtc.Configuration{ICEServers: iceServers},
	}
}

// HandleOffer answers a client's SDP offer. Every message on the client's gaze data
// channel is passed to onGaze from a pion goroutine. An existing peer for the client
// is replaced.
func (p *PeerManager) HandleOffer(clientID string, sdp webrtc.SessionDescription, sendToClient func(event string, payload interface{}), onGaze func([]byte)) error {
	p.Close(clientID)

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))
	pc, err := api.NewPeerConnection(p.cfg)
	if err != nil {
		return err
	}
	log := p.log.With(zap.String("client_id", clientID))

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		b, _ := json.Marshal(c.ToJSON())
		sendToClient("webrtc_ice", map[string]interface{}{"candidate": json.RawMessage(b)})
	})
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != GazeChannelLabel {
			log.Debug("ignoring data channel", zap.String("label", dc.Label()))
			return
		}
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			onGaze(msg.Data)
		})
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Debug("peer connection state", zap.String("state", s.String()))
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			go p.remove(clientID, pc)
		}
	})

	if err := pc.SetRemoteDescription(sdp); err != nil {
		_ = pc.Close()
		return err
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		_ = pc.Close()
		return err
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		_ = pc.Close()
		return err
	}

	p.mu.Lock()
	p.peers[clientID] = pc
	p.mu.Unlock()

	sendToClient("webrtc_answer", map[string]interface{}{
		"type": answer.Type.String(),
		"sdp":  answer.SDP,
	})
	return nil
}

// AddICECandidate adds a trickled remote candidate.
func (p *PeerManager) AddICECandidate(clientID string, candidate webrtc.ICECandidateInit) error {
	p.mu.Lock()
	pc, ok := p.peers[clientID]
	p.mu.Unlock()
	if !ok {
		return ErrNoPeer
	}
	return pc.AddICECandidate(candidate)
}

// Close closes the client's peer connection. Call when the client leaves.
func (p *PeerManager) Close(clientID string) {
	p.mu.Lock()
	pc, ok := p.peers[clientID]
	delete(p.peers, clientID)
	p.mu.Unlock()
	if ok {
		_ = pc.Close()
	}
}

// Len returns the number of open peer connections.
func (p *PeerManager) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.peers)
}

func (p *PeerManager) remove(clientID string, pc *webrtc.PeerConnection) {
	p.mu.Lock()
	if cur, ok := p.peers[clientID]; ok && cur == pc {
		delete(p.peers, clientID)
	}
	p.mu.Unlock()
	_ = pc.Close()
}

var defaultICE = []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}

// ParseICEServers turns configured URLs into ICE servers, falling back to a public STUN server.
func ParseICEServers(urls []string) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		out = append(out, webrtc.ICEServer{URLs: []string{u}})
	}
	if len(out) == 0 {
		return defaultICE
	}
	return out
}

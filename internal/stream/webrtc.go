package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"gopkg.in/hraban/opus.v2"

	"github.com/satindergrewal/segue/internal/audio"
	"github.com/satindergrewal/segue/internal/logger"
)

// WebRTCHandler answers SDP offers and streams the preview mix as Opus.
// Latency is low enough to judge a cross-fade against the checkpoint
// markers in the editor.
type WebRTCHandler struct {
	monitor *Monitor
	bitrate int

	mu    sync.Mutex
	peers map[*webrtc.PeerConnection]struct{}
}

func NewWebRTCHandler(m *Monitor, bitrate int) *WebRTCHandler {
	return &WebRTCHandler{monitor: m, bitrate: bitrate, peers: make(map[*webrtc.PeerConnection]struct{})}
}

func (h *WebRTCHandler) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *WebRTCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		http.Error(w, "invalid SDP offer", http.StatusBadRequest)
		return
	}

	answer, err := h.negotiate(offer)
	if err != nil {
		logger.Warn("webrtc negotiation failed", logger.Err(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(answer)
}

// negotiate sets up a send-only peer with one Opus track and starts
// streaming to it once ICE gathering is complete.
func (h *WebRTCHandler) negotiate(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: audio.SampleRate, Channels: audio.Channels},
		"audio",
		"segue-preview",
	)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("create audio track: %w", err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		pc.Close()
		return nil, fmt.Errorf("add track: %w", err)
	}
	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		return nil, fmt.Errorf("set remote description: %w", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("create answer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return nil, fmt.Errorf("set local description: %w", err)
	}
	<-gathered

	h.mu.Lock()
	h.peers[pc] = struct{}{}
	h.mu.Unlock()
	logger.Info("webrtc monitor connected", logger.Int("peers", h.PeerCount()))

	tap := h.monitor.Attach()
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			h.monitor.Detach(tap)
			h.mu.Lock()
			_, known := h.peers[pc]
			delete(h.peers, pc)
			h.mu.Unlock()
			if known {
				pc.Close()
				logger.Info("webrtc monitor disconnected", logger.Int("peers", h.PeerCount()))
			}
		}
	})
	go h.send(tap, track)

	return pc.LocalDescription(), nil
}

func (h *WebRTCHandler) send(tap *Tap, track *webrtc.TrackLocalStaticSample) {
	defer h.monitor.Detach(tap)

	enc, err := opus.NewEncoder(audio.SampleRate, audio.Channels, opus.AppAudio)
	if err != nil {
		logger.Error("webrtc monitor: opus encoder", logger.Err(err))
		return
	}
	if err := enc.SetBitrate(h.bitrate); err != nil {
		logger.Warn("webrtc monitor: bitrate rejected", logger.Int("bitrate", h.bitrate), logger.Err(err))
	}

	packet := make([]byte, 4000)
	for {
		select {
		case <-tap.Done():
			return
		case frame := <-tap.C:
			n, err := enc.Encode(frame, packet)
			if err != nil {
				logger.Warn("webrtc monitor: opus encode", logger.Err(err))
				continue
			}
			if err := track.WriteSample(media.Sample{Data: packet[:n], Duration: audio.FrameDuration}); err != nil {
				return
			}
		}
	}
}

// Close hangs up every peer.
func (h *WebRTCHandler) Close() {
	h.mu.Lock()
	peers := h.peers
	h.peers = make(map[*webrtc.PeerConnection]struct{})
	h.mu.Unlock()
	for pc := range peers {
		pc.Close()
	}
}

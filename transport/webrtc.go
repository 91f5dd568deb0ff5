// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
)

var (
	_ Listener = (*WebRTCTransport)(nil)
	_ Dialer   = (*WebRTCTransport)(nil)
)

// DefaultSignalingPollInterval is how often the transport polls the
// signaler for offers and answers when WebRTCConfig leaves it unset.
const DefaultSignalingPollInterval = 500 * time.Millisecond

// iceGatherTimeout bounds candidate gathering before the SDP is
// published.
const iceGatherTimeout = 15 * time.Second

// answerTimeout bounds the wait for a peer's SDP answer.
const answerTimeout = 30 * time.Second

// channelOpenTimeout bounds the wait for a new data channel to open.
const channelOpenTimeout = 10 * time.Second

// initChannelLabel is the trigger channel that forces a data channel
// section into the offer. Neither side uses it.
const initChannelLabel = "init"

// WebRTCConfig configures a WebRTCTransport.
type WebRTCConfig struct {
	// Signaler exchanges SDP with peers. Required.
	Signaler Signaler

	// Name identifies this node in signaling. Peers dial this value.
	Name string

	// ICE lists STUN and TURN servers.
	ICE ICEConfig

	// PollInterval defaults to DefaultSignalingPollInterval.
	PollInterval time.Duration

	Logger *slog.Logger
}

// WebRTCTransport carries sessions over WebRTC data channels. It is
// both the Listener and the Dialer because both directions share the
// same pool of PeerConnections.
type WebRTCTransport struct {
	signaler     Signaler
	name         string
	pollInterval time.Duration
	logger       *slog.Logger

	configMu  sync.RWMutex
	iceConfig ICEConfig

	mu      sync.Mutex
	peers   map[string]*peerState
	answers map[string]chan string // offers awaiting an answer, by target

	inboundConnections chan net.Conn

	// ctx is cancelled by Close and scopes the signaling poller.
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	pollDone  chan struct{}

	channelCounter atomic.Uint64
}

// peerState is the PeerConnection to one remote node. Guarded by
// WebRTCTransport.mu.
type peerState struct {
	connection  *webrtc.PeerConnection
	name        string
	established chan struct{} // closed when ICE reaches Connected
}

// NewWebRTCTransport creates the transport and starts polling for
// signaling messages. Close stops the poller and every PeerConnection.
func NewWebRTCTransport(config WebRTCConfig) (*WebRTCTransport, error) {
	if config.Signaler == nil {
		return nil, fmt.Errorf("webrtc transport: signaler is required")
	}
	if config.Name == "" {
		return nil, fmt.Errorf("webrtc transport: name is required")
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultSignalingPollInterval
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	wt := &WebRTCTransport{
		signaler:           config.Signaler,
		name:               config.Name,
		pollInterval:       config.PollInterval,
		logger:             config.Logger.With("transport", "webrtc", "name", config.Name),
		iceConfig:          config.ICE,
		peers:              make(map[string]*peerState),
		answers:            make(map[string]chan string),
		inboundConnections: make(chan net.Conn, 64),
		ctx:                ctx,
		cancel:             cancel,
		pollDone:           make(chan struct{}),
	}
	go wt.signalingPoller()
	return wt, nil
}

// Accept returns the next data channel opened by a peer.
func (wt *WebRTCTransport) Accept(ctx context.Context) (net.Conn, error) {
	select {
	case conn := <-wt.inboundConnections:
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-wt.ctx.Done():
		return nil, net.ErrClosed
	}
}

// Address returns the signaling name.
func (wt *WebRTCTransport) Address() string {
	return wt.name
}

// Close stops the poller and closes every PeerConnection.
func (wt *WebRTCTransport) Close() error {
	wt.closeOnce.Do(func() {
		wt.cancel()
		<-wt.pollDone

		wt.mu.Lock()
		peers := wt.peers
		wt.peers = make(map[string]*peerState)
		wt.mu.Unlock()

		for _, peer := range peers {
			peer.connection.Close()
		}
		for {
			select {
			case conn := <-wt.inboundConnections:
				conn.Close()
			default:
				return
			}
		}
	})
	return nil
}

// UpdateICEConfig replaces the ICE servers used for new
// PeerConnections. Existing connections keep their configuration.
func (wt *WebRTCTransport) UpdateICEConfig(config ICEConfig) {
	wt.configMu.Lock()
	defer wt.configMu.Unlock()
	wt.iceConfig = config
}

// DialContext opens a new data channel to the node named address,
// establishing a PeerConnection first if none is live.
func (wt *WebRTCTransport) DialContext(ctx context.Context, address string) (net.Conn, error) {
	if wt.ctx.Err() != nil {
		return nil, net.ErrClosed
	}
	if address == wt.name {
		return nil, fmt.Errorf("webrtc transport: cannot dial self")
	}

	peer, err := wt.getOrCreatePeer(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("establishing peer connection to %s: %w", address, err)
	}

	select {
	case <-peer.established:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-wt.ctx.Done():
		return nil, net.ErrClosed
	}
	return wt.openDataChannel(ctx, peer)
}

// getOrCreatePeer returns the live peerState for name, or registers a
// new one and signals it. Concurrent callers for the same peer share
// one attempt.
func (wt *WebRTCTransport) getOrCreatePeer(ctx context.Context, name string) (*peerState, error) {
	wt.mu.Lock()
	if peer, ok := wt.peers[name]; ok {
		if isLive(peer.connection) {
			wt.mu.Unlock()
			return peer, nil
		}
		delete(wt.peers, name)
		// Close runs the state handler, which takes wt.mu.
		go peer.connection.Close()
	}

	connection, err := wt.newPeerConnection()
	if err != nil {
		wt.mu.Unlock()
		return nil, fmt.Errorf("creating PeerConnection: %w", err)
	}
	peer := &peerState{
		connection:  connection,
		name:        name,
		established: make(chan struct{}),
	}
	wt.peers[name] = peer
	wt.mu.Unlock()

	if err := wt.establishOutbound(ctx, peer); err != nil {
		wt.removePeer(peer)
		connection.Close()
		return nil, err
	}
	return peer, nil
}

func (wt *WebRTCTransport) removePeer(peer *peerState) {
	wt.mu.Lock()
	defer wt.mu.Unlock()
	if current, ok := wt.peers[peer.name]; ok && current == peer {
		delete(wt.peers, peer.name)
	}
}

func isLive(connection *webrtc.PeerConnection) bool {
	state := connection.ICEConnectionState()
	return state != webrtc.ICEConnectionStateFailed && state != webrtc.ICEConnectionStateClosed
}

// establishOutbound publishes an offer for peer and applies the answer.
// peer.established is closed later by the ICE state handler.
func (wt *WebRTCTransport) establishOutbound(ctx context.Context, peer *peerState) error {
	connection := peer.connection
	wt.watchPeer(peer)

	if _, err := connection.CreateDataChannel(initChannelLabel, nil); err != nil {
		return fmt.Errorf("creating init data channel: %w", err)
	}
	offer, err := connection.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("creating SDP offer: %w", err)
	}
	sdp, err := wt.gather(ctx, connection, offer)
	if err != nil {
		return err
	}

	answerChannel := make(chan string, 1)
	wt.mu.Lock()
	wt.answers[peer.name] = answerChannel
	wt.mu.Unlock()
	defer func() {
		wt.mu.Lock()
		if wt.answers[peer.name] == answerChannel {
			delete(wt.answers, peer.name)
		}
		wt.mu.Unlock()
	}()

	if err := wt.signaler.PublishOffer(ctx, wt.name, peer.name, sdp); err != nil {
		return fmt.Errorf("publishing SDP offer: %w", err)
	}
	wt.logger.Debug("offer published", "peer", peer.name)

	timeout := time.NewTimer(answerTimeout)
	defer timeout.Stop()
	var answerSDP string
	select {
	case answerSDP = <-answerChannel:
	case <-timeout.C:
		return fmt.Errorf("no SDP answer from %s within %s", peer.name, answerTimeout)
	case <-ctx.Done():
		return ctx.Err()
	case <-wt.ctx.Done():
		return net.ErrClosed
	}

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answerSDP}
	if err := connection.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("setting remote description: %w", err)
	}
	wt.logger.Debug("outbound connection signaled", "peer", peer.name)
	return nil
}

// gather sets description as the local description and waits for all
// ICE candidates, returning the complete SDP.
func (wt *WebRTCTransport) gather(ctx context.Context, connection *webrtc.PeerConnection, description webrtc.SessionDescription) (string, error) {
	gatherComplete := webrtc.GatheringCompletePromise(connection)
	if err := connection.SetLocalDescription(description); err != nil {
		return "", fmt.Errorf("setting local description: %w", err)
	}
	timeout := time.NewTimer(iceGatherTimeout)
	defer timeout.Stop()
	select {
	case <-gatherComplete:
		return connection.LocalDescription().SDP, nil
	case <-timeout.C:
		return "", fmt.Errorf("ICE gathering timed out after %s", iceGatherTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (wt *WebRTCTransport) signalingPoller() {
	defer close(wt.pollDone)
	ticker := time.NewTicker(wt.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wt.ctx.Done():
			return
		case <-ticker.C:
			wt.processAnswers()
			wt.processOffers()
		}
	}
}

func (wt *WebRTCTransport) processAnswers() {
	answers, err := wt.signaler.PollAnswers(wt.ctx, wt.name)
	if err != nil {
		if wt.ctx.Err() == nil {
			wt.logger.Warn("polling for SDP answers failed", "error", err)
		}
		return
	}
	for _, answer := range answers {
		wt.mu.Lock()
		waiter, ok := wt.answers[answer.Peer]
		wt.mu.Unlock()
		if !ok {
			wt.logger.Debug("dropping answer with no pending offer", "peer", answer.Peer)
			continue
		}
		select {
		case waiter <- answer.SDP:
		default:
		}
	}
}

func (wt *WebRTCTransport) processOffers() {
	offers, err := wt.signaler.PollOffers(wt.ctx, wt.name)
	if err != nil {
		if wt.ctx.Err() == nil {
			wt.logger.Warn("polling for SDP offers failed", "error", err)
		}
		return
	}

	for _, offer := range offers {
		wt.mu.Lock()
		existing, hasExisting := wt.peers[offer.Peer]
		if hasExisting {
			// Both sides dialed at once: the lower name keeps its offer.
			if isLive(existing.connection) && offer.Peer > wt.name {
				wt.mu.Unlock()
				continue
			}
			delete(wt.peers, offer.Peer)
		}
		wt.mu.Unlock()
		if hasExisting {
			existing.connection.Close()
		}

		if err := wt.answerOffer(offer); err != nil && wt.ctx.Err() == nil {
			wt.logger.Error("answering offer failed", "peer", offer.Peer, "error", err)
		}
	}
}

func (wt *WebRTCTransport) answerOffer(offer SignalMessage) error {
	connection, err := wt.newPeerConnection()
	if err != nil {
		return fmt.Errorf("creating PeerConnection: %w", err)
	}
	peer := &peerState{
		connection:  connection,
		name:        offer.Peer,
		established: make(chan struct{}),
	}
	wt.watchPeer(peer)

	remoteOffer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}
	if err := connection.SetRemoteDescription(remoteOffer); err != nil {
		connection.Close()
		return fmt.Errorf("setting remote description: %w", err)
	}
	answer, err := connection.CreateAnswer(nil)
	if err != nil {
		connection.Close()
		return fmt.Errorf("creating SDP answer: %w", err)
	}
	sdp, err := wt.gather(wt.ctx, connection, answer)
	if err != nil {
		connection.Close()
		return err
	}

	wt.mu.Lock()
	wt.peers[offer.Peer] = peer
	wt.mu.Unlock()

	if err := wt.signaler.PublishAnswer(wt.ctx, offer.Peer, wt.name, sdp); err != nil {
		wt.removePeer(peer)
		connection.Close()
		return fmt.Errorf("publishing SDP answer: %w", err)
	}
	wt.logger.Debug("offer answered", "peer", offer.Peer)
	return nil
}

// watchPeer installs the data channel and ICE state handlers.
func (wt *WebRTCTransport) watchPeer(peer *peerState) {
	peer.connection.OnDataChannel(func(channel *webrtc.DataChannel) {
		wt.handleInboundDataChannel(channel, peer.name)
	})
	peer.connection.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		wt.handleICEStateChange(peer, state)
	})
}

func (wt *WebRTCTransport) handleInboundDataChannel(channel *webrtc.DataChannel, peerName string) {
	if channel.Label() == initChannelLabel {
		channel.OnOpen(func() { channel.Close() })
		return
	}
	channel.OnOpen(func() {
		raw, err := channel.Detach()
		if err != nil {
			wt.logger.Error("detaching inbound data channel failed",
				"peer", peerName,
				"label", channel.Label(),
				"error", err,
			)
			return
		}
		conn := NewDataChannelConn(raw, wt.name+"/"+channel.Label(), peerName+"/"+channel.Label())
		select {
		case wt.inboundConnections <- conn:
		case <-wt.ctx.Done():
			conn.Close()
		}
	})
}

func (wt *WebRTCTransport) handleICEStateChange(peer *peerState, state webrtc.ICEConnectionState) {
	wt.logger.Debug("ICE state change", "peer", peer.name, "state", state.String())

	switch state {
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		wt.mu.Lock()
		select {
		case <-peer.established:
		default:
			close(peer.established)
		}
		wt.mu.Unlock()
	case webrtc.ICEConnectionStateFailed:
		// getOrCreatePeer replaces failed connections on the next dial.
		wt.logger.Warn("WebRTC connection failed", "peer", peer.name)
	case webrtc.ICEConnectionStateClosed:
		wt.removePeer(peer)
	}
}

// openDataChannel opens a new ordered, reliable channel on peer.
func (wt *WebRTCTransport) openDataChannel(ctx context.Context, peer *peerState) (net.Conn, error) {
	label := fmt.Sprintf("session-%d", wt.channelCounter.Add(1))

	ordered := true
	channel, err := peer.connection.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, fmt.Errorf("creating data channel %s: %w", label, err)
	}

	opened := make(chan struct{})
	channel.OnOpen(func() { close(opened) })

	timeout := time.NewTimer(channelOpenTimeout)
	defer timeout.Stop()
	select {
	case <-opened:
	case <-timeout.C:
		channel.Close()
		return nil, fmt.Errorf("data channel %s did not open within %s", label, channelOpenTimeout)
	case <-ctx.Done():
		channel.Close()
		return nil, ctx.Err()
	case <-wt.ctx.Done():
		channel.Close()
		return nil, net.ErrClosed
	}

	raw, err := channel.Detach()
	if err != nil {
		channel.Close()
		return nil, fmt.Errorf("detaching data channel %s: %w", label, err)
	}
	return NewDataChannelConn(raw, wt.name+"/"+label, peer.name+"/"+label), nil
}

func (wt *WebRTCTransport) newPeerConnection() (*webrtc.PeerConnection, error) {
	wt.configMu.RLock()
	config := webrtc.Configuration{ICEServers: wt.iceConfig.Servers}
	wt.configMu.RUnlock()

	// Detached channels give stream access; loopback candidates let two
	// nodes on one host connect.
	settingEngine := webrtc.SettingEngine{}
	settingEngine.DetachDataChannels()
	settingEngine.SetIncludeLoopbackCandidate(true)

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	return api.NewPeerConnection(config)
}

package webrtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	pion "github.com/pion/webrtc/v3"
	"github.com/rs/zerolog"
)

var (
	// ErrClosed is returned by Answer once the publisher is closed
	ErrClosed = errors.New("webrtc: publisher closed")
	// ErrUnknownSession is returned when removing a session that does not exist
	ErrUnknownSession = errors.New("webrtc: unknown session")
)

// Publisher attaches a Track to every negotiated peer connection
type Publisher struct {
	track  *Track
	config pion.Configuration
	log    zerolog.Logger

	mu     sync.Mutex
	peers  map[string]*pion.PeerConnection
	closed bool
}

// NewPublisher creates a publisher for track
func NewPublisher(track *Track, config pion.Configuration, log zerolog.Logger) *Publisher {
	return &Publisher{
		track:  track,
		config: config,
		log:    log.With().Str("component", "webrtc_publisher").Logger(),
		peers:  make(map[string]*pion.PeerConnection),
	}
}

// Answer negotiates a send-only peer connection for an SDP offer. It waits
// for ICE gathering so the returned answer carries every candidate, and
// returns the session id together with the answer SDP.
func (p *Publisher) Answer(ctx context.Context, offer string) (string, string, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return "", "", ErrClosed
	}

	pc, err := pion.NewPeerConnection(p.config)
	if err != nil {
		return "", "", fmt.Errorf("failed to create peer connection: %w", err)
	}

	id, err := p.negotiate(ctx, pc, offer)
	if err != nil {
		if cerr := pc.Close(); cerr != nil {
			p.log.Debug().Err(cerr).Msg("Failed to close peer connection")
		}
		return "", "", err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = pc.Close()
		return "", "", ErrClosed
	}
	p.peers[id] = pc
	count := len(p.peers)
	p.mu.Unlock()

	p.log.Info().Str("session", id).Int("peers", count).Msg("Peer session started")
	return id, pc.LocalDescription().SDP, nil
}

func (p *Publisher) negotiate(ctx context.Context, pc *pion.PeerConnection, offer string) (string, error) {
	sender, err := pc.AddTrack(p.track.Local())
	if err != nil {
		return "", fmt.Errorf("failed to add track: %w", err)
	}

	id := uuid.NewString()

	// Drain RTCP so interceptors keep running
	go func() {
		for {
			if _, _, err := sender.ReadRTCP(); err != nil {
				return
			}
		}
	}()

	pc.OnConnectionStateChange(func(s pion.PeerConnectionState) {
		p.log.Debug().Str("session", id).Stringer("state", s).Msg("Peer connection state")
		switch s {
		case pion.PeerConnectionStateFailed, pion.PeerConnectionStateDisconnected, pion.PeerConnectionStateClosed:
			if err := p.Remove(id); err != nil && !errors.Is(err, ErrUnknownSession) {
				p.log.Debug().Err(err).Str("session", id).Msg("Failed to remove peer")
			}
		}
	})

	if err := pc.SetRemoteDescription(pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: offer}); err != nil {
		return "", fmt.Errorf("failed to set remote description: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create answer: %w", err)
	}

	gatherComplete := pion.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return id, nil
}

// Remove closes and forgets one session
func (p *Publisher) Remove(id string) error {
	p.mu.Lock()
	pc, ok := p.peers[id]
	delete(p.peers, id)
	count := len(p.peers)
	p.mu.Unlock()

	if !ok {
		return ErrUnknownSession
	}

	p.log.Info().Str("session", id).Int("peers", count).Msg("Peer session ended")
	return pc.Close()
}

// Peers is the number of live sessions
func (p *Publisher) Peers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.peers)
}

// Close ends every session and rejects new offers
func (p *Publisher) Close() error {
	p.mu.Lock()
	p.closed = true
	peers := p.peers
	p.peers = make(map[string]*pion.PeerConnection)
	p.mu.Unlock()

	var errs []error
	for id, pc := range peers {
		if err := pc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

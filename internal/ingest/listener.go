// Package ingest receives detection frames from the external
// detector/tracker collaborator over UDP. Each datagram carries one JSON
// frame message: the frame index, the tracked detections, and any
// violations the specialist model reported directly.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/curbsight/curbsight/internal/monitoring"
	"github.com/curbsight/curbsight/internal/traffic"
)

// maxDatagramSize bounds a single frame message on the wire.
const maxDatagramSize = 65507

// FrameMessage is the wire format of one detection frame.
type FrameMessage struct {
	FrameIndex int                 `json:"frame_index"`
	Detections []traffic.Detection `json:"detections"`
	// Events are violations reported directly by the upstream model
	// (TURNING, U_TURN, WRONG_WAY) with the sentinel track id.
	Events []traffic.Violation `json:"events,omitempty"`
}

// ListenerConfig configures the UDP frame listener.
type ListenerConfig struct {
	// Address is the UDP listen address, e.g. ":9911".
	Address string
	// RcvBuf is the socket receive buffer size; zero keeps the OS default.
	RcvBuf int
	// QueueSize bounds the frame queue between the socket reader and the
	// pipeline. Defaults to 64; the oldest frame is dropped on overflow.
	QueueSize int
	// LogInterval is the statistics log cadence. Defaults to one minute.
	LogInterval time.Duration
	// OnEvent receives detector-reported violations as they arrive.
	OnEvent func(traffic.Violation)
}

// Listener reads frame messages from UDP and queues them for the pipeline.
type Listener struct {
	cfg    ListenerConfig
	frames chan FrameMessage

	packets    atomic.Int64
	dropped    atomic.Int64
	parseFails atomic.Int64
}

// NewListener creates a listener from cfg.
func NewListener(cfg ListenerConfig) *Listener {
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 64
	}
	if cfg.LogInterval == 0 {
		cfg.LogInterval = time.Minute
	}
	return &Listener{
		cfg:    cfg,
		frames: make(chan FrameMessage, cfg.QueueSize),
	}
}

// Frames exposes the queued frame messages, oldest first.
func (l *Listener) Frames() <-chan FrameMessage { return l.frames }

// Start listens until ctx is cancelled. It blocks; run it on its own
// goroutine.
func (l *Listener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	defer conn.Close()

	if l.cfg.RcvBuf > 0 {
		if err := conn.SetReadBuffer(l.cfg.RcvBuf); err != nil {
			monitoring.Logf("ingest: failed to set receive buffer to %d: %v", l.cfg.RcvBuf, err)
		}
	}
	monitoring.Logf("ingest: listening on %s", conn.LocalAddr())

	go l.logStats(ctx)

	buffer := make([]byte, maxDatagramSize)
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("ingest: listener stopping")
			return ctx.Err()
		default:
		}

		// Short read deadline so context cancellation is noticed.
		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, sender, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			monitoring.Logf("ingest: read error: %v", err)
			continue
		}

		l.packets.Add(1)
		msg, err := parseDatagram(buffer[:n])
		if err != nil {
			l.parseFails.Add(1)
			monitoring.Logf("ingest: bad datagram from %v: %v", sender, err)
			continue
		}
		l.dispatch(msg)
	}
}

// dispatch queues the frame, evicting the oldest queued frame when the
// pipeline has fallen behind, and forwards detector events.
func (l *Listener) dispatch(msg FrameMessage) {
	if l.cfg.OnEvent != nil {
		for _, v := range msg.Events {
			l.cfg.OnEvent(v)
		}
	}

	for {
		select {
		case l.frames <- msg:
			return
		default:
		}
		select {
		case <-l.frames:
			l.dropped.Add(1)
		default:
		}
	}
}

func parseDatagram(data []byte) (FrameMessage, error) {
	var msg FrameMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return FrameMessage{}, fmt.Errorf("parse frame message: %w", err)
	}
	if msg.FrameIndex < 0 {
		return FrameMessage{}, fmt.Errorf("negative frame index %d", msg.FrameIndex)
	}
	return msg, nil
}

func (l *Listener) logStats(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.LogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			monitoring.Logf("ingest: %d packets, %d dropped, %d parse failures",
				l.packets.Load(), l.dropped.Load(), l.parseFails.Load())
		}
	}
}

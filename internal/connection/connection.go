// Package connection implements the Connection Manager (SPEC_FULL.md §4.5):
// it owns the websocket lifecycle for one room's host and clients, bridges
// the ASR worker's output into the reconciler, and fans the reconciler's
// broadcast channel out to every connected websocket.
//
// Grounded on original_source/src/connection_manager.py (host/client dual
// role, generator-bridging goroutines) and internal/handler/room_hub.go /
// audio.go for the gofiber/contrib/websocket read/write idiom
// (ReadMessage/WriteMessage, Locals, explicit close codes).
package connection

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"eum-captions/internal/asr"
	"eum-captions/internal/reconciler"
	"eum-captions/internal/transcriptmodel"
	"eum-captions/internal/translation"
)

// ErrHostAlreadyConnected is returned by ListenToHost when a host is
// already attached to this room.
var ErrHostAlreadyConnected = errors.New("connection: host already connected")

// controlMessage is a JSON control frame sent by the host; restartSignal is
// the one recognized signal.
type controlMessage struct {
	Signal string `json:"signal"`
}

const restartSignal = "restart_backend_engine"

type readyToStop struct {
	Type string `json:"type"`
}

// Manager is constructed once at room activation and persists across
// engine restarts so client websockets never have to reconnect.
type Manager struct {
	log *zap.SugaredLogger

	mu      sync.Mutex
	host    *websocket.Conn
	hostID  uuid.UUID
	hasHost bool
	clients map[*websocket.Conn]string // conn -> targetLang

	recon       *reconciler.Reconciler
	asrWorker   *asr.Worker
	transWorker *translation.Worker
	onRestart   func() error

	bridgeCancel context.CancelFunc
}

// NewManager constructs an empty Manager; call Wire once the room's
// backends exist.
func NewManager(logger *zap.SugaredLogger) *Manager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Manager{
		log:     logger,
		clients: make(map[*websocket.Conn]string),
	}
}

// Wire (re)plugs the reconciler/ASR worker/translation worker trio,
// starting a fresh broadcast bridge goroutine and cancelling any previous
// one. Called at Room activation and again on every engine restart.
func (m *Manager) Wire(ctx context.Context, recon *reconciler.Reconciler, asrWorker *asr.Worker, transWorker *translation.Worker, onRestart func() error) {
	m.mu.Lock()
	if m.bridgeCancel != nil {
		m.bridgeCancel()
	}
	bridgeCtx, cancel := context.WithCancel(ctx)
	m.recon = recon
	m.asrWorker = asrWorker
	m.transWorker = transWorker
	m.onRestart = onRestart
	m.bridgeCancel = cancel
	m.mu.Unlock()

	go m.runHypothesisBridge(bridgeCtx, asrWorker, recon)
	go m.runBroadcastBridge(bridgeCtx, recon)
}

// runHypothesisBridge forwards every ASR hypothesis into the reconciler.
func (m *Manager) runHypothesisBridge(ctx context.Context, worker *asr.Worker, recon *reconciler.Reconciler) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Errorw("hypothesis bridge panic recovered", "panic", r)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case hyp, ok := <-worker.Hypotheses():
			if !ok {
				return
			}
			recon.SubmitHypothesis(hyp)
		}
	}
}

// runBroadcastBridge sends every reconciler broadcast to the host and every
// client, dropping any connection whose send fails.
func (m *Manager) runBroadcastBridge(ctx context.Context, recon *reconciler.Reconciler) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Errorw("broadcast bridge panic recovered", "panic", r)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-recon.Broadcast():
			if !ok {
				m.sendReadyToStopToAll()
				return
			}
			m.broadcastToAll(chunk)
		}
	}
}

func (m *Manager) broadcastToAll(chunk transcriptmodel.BroadcastChunk) {
	payload, err := json.Marshal(chunk)
	if err != nil {
		m.log.Errorw("failed to marshal broadcast chunk", "error", err)
		return
	}

	m.mu.Lock()
	host := m.host
	clients := make([]*websocket.Conn, 0, len(m.clients))
	for c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.Unlock()

	if host != nil {
		if err := host.WriteMessage(websocket.TextMessage, payload); err != nil {
			m.log.Debugw("host send failed", "error", err)
			m.removeHost(host)
		}
	}
	for _, c := range clients {
		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			m.log.Debugw("client send failed", "error", err)
			m.removeClient(c)
		}
	}
}

func (m *Manager) sendReadyToStopToAll() {
	payload, _ := json.Marshal(readyToStop{Type: "ready_to_stop"})
	m.mu.Lock()
	clients := make([]*websocket.Conn, 0, len(m.clients))
	for c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.Unlock()
	for _, c := range clients {
		_ = c.WriteMessage(websocket.TextMessage, payload)
	}
}

// ListenToHost attaches ws as this room's host, serving until it
// disconnects or the room shuts down. Returns ErrHostAlreadyConnected (the
// caller closes with 1003) if a host is already attached.
func (m *Manager) ListenToHost(ws *websocket.Conn, targetLang string) error {
	m.mu.Lock()
	if m.hasHost {
		m.mu.Unlock()
		return ErrHostAlreadyConnected
	}
	m.host = ws
	m.hasHost = true
	m.hostID = uuid.New()
	hostID := m.hostID
	recon := m.recon
	transWorker := m.transWorker
	m.mu.Unlock()

	if transWorker != nil {
		transWorker.Subscribe(targetLang)
		defer transWorker.Unsubscribe(targetLang)
	}

	m.sendHostID(ws, hostID)
	m.sendLastChunk(ws, recon)

	defer m.removeHost(ws)
	return m.readLoop(ws, true)
}

// ConnectClient attaches ws as a viewer subscribed to targetLang, serving
// until it disconnects.
func (m *Manager) ConnectClient(ws *websocket.Conn, targetLang string) error {
	m.mu.Lock()
	m.clients[ws] = targetLang
	recon := m.recon
	transWorker := m.transWorker
	m.mu.Unlock()

	if transWorker != nil {
		transWorker.Subscribe(targetLang)
		defer transWorker.Unsubscribe(targetLang)
	}

	m.sendLastChunk(ws, recon)

	defer m.removeClient(ws)
	return m.readLoop(ws, false)
}

func (m *Manager) sendHostID(ws *websocket.Conn, hostID uuid.UUID) {
	payload, _ := json.Marshal(map[string]string{"host_id": hostID.String()})
	_ = ws.WriteMessage(websocket.TextMessage, payload)
}

func (m *Manager) sendLastChunk(ws *websocket.Conn, recon *reconciler.Reconciler) {
	if recon == nil {
		return
	}
	chunk := recon.LastChunk()
	if chunk == nil {
		return
	}
	payload, err := json.Marshal(*chunk)
	if err != nil {
		return
	}
	_ = ws.WriteMessage(websocket.TextMessage, payload)
}

// readLoop dispatches incoming frames: binary audio goes to the ASR
// worker, text frames are parsed as control messages. isHost gates the
// restart signal to host connections only.
func (m *Manager) readLoop(ws *websocket.Conn, isHost bool) error {
	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}

		switch msgType {
		case websocket.BinaryMessage:
			if !isHost {
				continue
			}
			m.mu.Lock()
			worker := m.asrWorker
			m.mu.Unlock()
			if worker != nil {
				if sendErr := worker.SendAudio(data); sendErr != nil {
					m.log.Warnw("failed to forward audio to asr worker", "error", sendErr)
				}
			}
		case websocket.TextMessage:
			if !isHost {
				continue
			}
			var ctrl controlMessage
			if err := json.Unmarshal(data, &ctrl); err != nil {
				continue
			}
			if ctrl.Signal == restartSignal {
				m.mu.Lock()
				onRestart := m.onRestart
				m.mu.Unlock()
				if onRestart != nil {
					if err := onRestart(); err != nil {
						m.log.Warnw("engine restart failed", "error", err)
					}
				}
			}
		}
	}
}

func (m *Manager) removeHost(ws *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.host == ws {
		m.host = nil
		m.hasHost = false
	}
}

func (m *Manager) removeClient(ws *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.clients, ws)
}

// HostID returns the current host connection's id, if any.
func (m *Manager) HostID() (uuid.UUID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hostID, m.hasHost
}

// Shutdown cancels the bridge goroutines. Websockets themselves are closed
// by their owning readLoop's caller.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bridgeCancel != nil {
		m.bridgeCancel()
		m.bridgeCancel = nil
	}
}

// Package room implements Room (SPEC_FULL.md §4.4): the activatable unit
// that composes the Sentence Reconciler, Translation Worker, ASR Worker,
// and Connection Manager for one conference room, plus its lifecycle
// (activate/deactivate/restart/defer-deactivation).
//
// Grounded on original_source/src/room.py, generalized to the
// Activate(hostKey, sourceLang, targetLang, saveTranscript, publicTranscript)
// signature SPEC_FULL §4.4 names, and to the goroutine-group-per-room
// isolation described in §9 in place of the original's OS-process boundary.
package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"eum-captions/internal/asr"
	"eum-captions/internal/awsclient"
	"eum-captions/internal/connection"
	"eum-captions/internal/mt"
	"eum-captions/internal/reconciler"
	"eum-captions/internal/transcript"
	"eum-captions/internal/translation"
)

// ErrAWSPoolClosed is returned by Activate once the process is shutting
// down and the shared AWS client pool has been closed.
var ErrAWSPoolClosed = errors.New("room: aws client pool is closed")

// Metadata is a room's immutable identity, sourced from the conference
// schedule (plus the synthetic dev room).
type Metadata struct {
	ID          string
	Title       string
	Track       string
	Location    string
	Presenter   string
	Description string
	DoNotRecord bool
}

// Deps are the collaborators and configuration every room activation needs.
type Deps struct {
	ASRCollaborator   *asr.Collaborator
	Translator        *mt.Collaborator
	Pool              *awsclient.WorkerPool
	AWSPool           *awsclient.Pool
	TranscriptStore   *transcript.Store
	SampleRate        int32
	CompareDepth      int
	LastN             int
	DeactivationDelay time.Duration
	TranslationConfig translation.Config
	Log               *zap.SugaredLogger
}

// Room is one conference room's activatable unit. Metadata is immutable;
// the rest of the fields describe runtime state, live only while active.
type Room struct {
	Metadata
	deps Deps

	mu         sync.Mutex
	active     bool
	sourceLang string
	targetLang string
	hostKey    string
	saveTx     bool
	publicTx   bool

	recon       *reconciler.Reconciler
	transWorker *translation.Worker
	asrWorker   *asr.Worker
	connMgr     *connection.Manager

	roomCancel context.CancelFunc

	deferCancel context.CancelFunc
}

// New constructs an inactive Room.
func New(meta Metadata, deps Deps) *Room {
	if deps.Log == nil {
		deps.Log = zap.NewNop().Sugar()
	}
	return &Room{Metadata: meta, deps: deps}
}

// IsActive reports whether the room currently has a reconciler installed.
func (r *Room) IsActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// SourceLang returns the room's current source language, valid only while active.
func (r *Room) SourceLang() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sourceLang
}

// ConnectionManager returns the room's connection manager, constructing it
// on first use so it can be wired before the room is ever activated.
func (r *Room) ConnectionManager() *connection.Manager {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.connMgr == nil {
		r.connMgr = connection.NewManager(r.deps.Log)
	}
	return r.connMgr
}

// Activate constructs a fresh reconciler/translation worker/ASR worker and
// wires them into the room's connection manager, reusing it across restarts
// so open websockets survive (§4.4).
func (r *Room) Activate(ctx context.Context, hostKey, sourceLang, targetLang string, saveTranscript, publicTranscript bool) error {
	if r.deps.AWSPool != nil && r.deps.AWSPool.IsClosed() {
		return ErrAWSPoolClosed
	}

	r.mu.Lock()
	if r.deferCancel != nil {
		r.deferCancel()
		r.deferCancel = nil
	}
	r.hostKey = hostKey
	r.sourceLang = sourceLang
	r.targetLang = targetLang
	r.saveTx = saveTranscript
	r.publicTx = publicTranscript
	connMgr := r.ensureConnMgrLocked()
	r.mu.Unlock()

	if !publicTranscript && r.deps.TranscriptStore != nil {
		if err := r.deps.TranscriptStore.WriteAccessConf(r.ID, hostKey); err != nil {
			r.deps.Log.Warnw("failed to write transcript access.conf", "room_id", r.ID, "error", err)
		}
	}

	recon := reconciler.New(reconciler.Options{
		SourceLang:   sourceLang,
		CompareDepth: r.deps.CompareDepth,
		LastN:        r.deps.LastN,
		Logger:       r.deps.Log,
		Persist:      saveTranscript,
		SnapshotPath: r.snapshotPathFunc(),
	})

	asrWorker := asr.NewWorker(r.deps.ASRCollaborator, r.ID, sourceLang, r.deps.SampleRate, r.deps.Log)
	roomCtx, cancel := context.WithCancel(ctx)
	if err := asrWorker.Start(roomCtx); err != nil {
		cancel()
		return fmt.Errorf("start asr worker: %w", err)
	}

	transCfg := r.deps.TranslationConfig
	if transCfg.PollInterval <= 0 || transCfg.BatchPerLang <= 0 {
		transCfg = translation.DefaultConfig()
	}
	transWorker := translation.New(recon, r.deps.Translator, transCfg, r.deps.Pool, r.deps.Log)
	transWorker.Subscribe(targetLang)
	go transWorker.Run(roomCtx)

	r.mu.Lock()
	r.recon = recon
	r.asrWorker = asrWorker
	r.transWorker = transWorker
	r.roomCancel = cancel
	r.active = true
	r.mu.Unlock()

	if r.deps.AWSPool != nil {
		r.deps.AWSPool.Acquire()
	}

	connMgr.Wire(roomCtx, recon, asrWorker, transWorker, func() error {
		return r.RestartEngine(r.SourceLang())
	})

	r.deps.Log.Infow("room activated", "room_id", r.ID, "source_lang", sourceLang, "target_lang", targetLang)
	return nil
}

func (r *Room) ensureConnMgrLocked() *connection.Manager {
	if r.connMgr == nil {
		r.connMgr = connection.NewManager(r.deps.Log)
	}
	return r.connMgr
}

func (r *Room) snapshotPathFunc() func(time.Time) string {
	return func(sessionStart time.Time) string {
		if r.deps.TranscriptStore == nil {
			return ""
		}
		path, err := r.deps.TranscriptStore.SnapshotPath(r.ID, sessionStart)
		if err != nil {
			r.deps.Log.Warnw("failed to resolve snapshot path", "room_id", r.ID, "error", err)
			return ""
		}
		r.deps.TranscriptStore.RegisterSession(r.ID, sessionStart, path)
		return path
	}
}

// Deactivate tears down the reconciler, translation worker, and ASR
// worker, marking the room inactive. The connection manager's websockets
// are left untouched by this call; callers close them separately if
// needed.
func (r *Room) Deactivate() {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	connMgr := r.connMgr
	asrWorker := r.asrWorker
	cancel := r.roomCancel
	r.active = false
	r.mu.Unlock()

	if connMgr != nil {
		connMgr.Shutdown()
	}
	if asrWorker != nil {
		asrWorker.Stop()
	}
	if cancel != nil {
		cancel()
	}
	if r.deps.AWSPool != nil {
		r.deps.AWSPool.Release()
	}
	r.deps.Log.Infow("room deactivated", "room_id", r.ID)
}

// RestartEngine tears down and re-activates the room's ASR/translation
// backends while preserving the connection manager (and therefore any open
// websockets), per §4.4.
func (r *Room) RestartEngine(sourceLang string) error {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return fmt.Errorf("room %q is not active", r.ID)
	}
	hostKey, targetLang, saveTx, publicTx := r.hostKey, r.targetLang, r.saveTx, r.publicTx
	r.mu.Unlock()

	r.Deactivate()
	return r.Activate(context.Background(), hostKey, sourceLang, targetLang, saveTx, publicTx)
}

// DeferDeactivation schedules onDeactivate+Deactivate to run after delay
// unless cancelled first by a subsequent Activate (host reconnect).
func (r *Room) DeferDeactivation(onDeactivate func(), delay time.Duration) {
	r.mu.Lock()
	if r.deferCancel != nil {
		r.deferCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.deferCancel = cancel
	r.mu.Unlock()

	go func() {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.mu.Lock()
			r.deferCancel = nil
			r.mu.Unlock()
			if onDeactivate != nil {
				onDeactivate()
			}
			r.Deactivate()
			r.deps.Log.Infow("room deactivated after idle timeout", "room_id", r.ID, "delay", delay)
		}
	}()
}

// CancelDeferredDeactivation cancels a pending deferred-deactivation task,
// if any.
func (r *Room) CancelDeferredDeactivation() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deferCancel != nil {
		r.deferCancel()
		r.deferCancel = nil
	}
}

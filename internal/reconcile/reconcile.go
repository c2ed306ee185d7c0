// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package reconcile drives one streaming model request per turn and folds
// the streamed fragments into the conversation store.
//
// A turn runs in its own goroutine and reports progress on an ordered event
// channel. Apply is the pure fold from an event to the next mapping; Run is
// a synchronous driver for callers without an event loop.
package reconcile

import (
	"context"
	"iter"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/store"
)

// =============================================================================
// CLIENT BOUNDARY
// =============================================================================

// Request is what a model client receives for one turn.
type Request struct {
	Turns             []model.Turn
	SystemInstruction string
}

// Client opens a streaming generation. The returned sequence is lazy and
// single use. An error return means the stream never opened; an error
// yielded by the sequence means it broke midway.
type Client interface {
	Stream(ctx context.Context, req Request) (iter.Seq2[string, error], error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) (iter.Seq2[string, error], error)

// Stream calls f.
func (f ClientFunc) Stream(ctx context.Context, req Request) (iter.Seq2[string, error], error) {
	return f(ctx, req)
}

// Turn is one pending generation: the history to send, ending with the new
// user message, and where the reply goes.
type Turn struct {
	ConversationID    string
	History           []model.Message
	SystemInstruction string
}

// Request converts the turn to a client request.
func (t Turn) Request() Request {
	return Request{
		Turns:             model.TurnsOf(t.History),
		SystemInstruction: t.SystemInstruction,
	}
}

// =============================================================================
// RECONCILER
// =============================================================================

// DefaultBuffer is the event channel capacity.
const DefaultBuffer = 64

// Reconciler starts turns against a Client.
type Reconciler struct {
	client Client
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Reconciler. A nil logger is replaced by a no-op logger.
func New(client Client, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// Start runs the turn in a new goroutine. Events arrive in order: Started,
// zero or more Fragments, then exactly one Completed or Failed. A stream
// that fails to open emits only Failed. The channel is closed afterwards.
//
// Cancelling ctx stops delivery; a receiver must still drain or abandon the
// channel.
func (r *Reconciler) Start(ctx context.Context, turn Turn) <-chan Event {
	events := make(chan Event, DefaultBuffer)
	go r.run(ctx, turn, events)
	return events
}

func (r *Reconciler) run(ctx context.Context, turn Turn, events chan<- Event) {
	defer close(events)

	id := turn.ConversationID
	log := r.logger.With(zap.String("conversation", id))
	started := r.now()

	emit := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	seq, err := r.client.Stream(ctx, turn.Request())
	if err != nil {
		log.Warn("stream open failed", zap.Error(err))
		emit(Failed{ConversationID: id, Err: err, At: r.now()})
		return
	}

	placeholder := model.NewPlaceholder(r.now())
	if !emit(Started{ConversationID: id, MessageID: placeholder.ID, At: placeholder.CreatedAt}) {
		release(seq)
		return
	}

	fragments := 0
	for text, err := range seq {
		if err != nil {
			log.Warn("stream failed",
				zap.Error(err),
				zap.Int("fragments", fragments),
				zap.Duration("elapsed", r.now().Sub(started)),
			)
			emit(Failed{ConversationID: id, Err: err, At: r.now()})
			return
		}
		fragments++
		if !emit(Fragment{ConversationID: id, MessageID: placeholder.ID, Text: text}) {
			return
		}
	}

	log.Debug("stream complete",
		zap.Int("fragments", fragments),
		zap.Duration("elapsed", r.now().Sub(started)),
	)
	emit(Completed{ConversationID: id})
}

// release starts and immediately stops seq so that a client holding an open
// response inside the iterator gets to close it.
func release(seq iter.Seq2[string, error]) {
	for range seq {
		break
	}
}

// =============================================================================
// FOLD
// =============================================================================

// Outcome is the session-level effect of one event.
type Outcome struct {
	// Loading reports whether the typing indicator should still show.
	Loading bool
	// Err is the banner text, empty when there is none.
	Err string
	// Done is set on the terminal event.
	Done bool
}

// Apply folds ev into convs. It never mutates convs.
func Apply(convs store.Conversations, ev Event) (store.Conversations, Outcome) {
	switch e := ev.(type) {
	case Started:
		ph := model.NewPlaceholder(e.At)
		ph.ID = e.MessageID
		return convs.Append(e.ConversationID, ph), Outcome{}
	case Fragment:
		return convs.AppendFragment(e.ConversationID, e.MessageID, e.Text), Outcome{}
	case Completed:
		return convs, Outcome{Done: true}
	case Failed:
		msg := "An unknown error occurred."
		if e.Err != nil && e.Err.Error() != "" {
			msg = e.Err.Error()
		}
		return convs.Append(e.ConversationID, model.NewApology(e.At)), Outcome{
			Err:  "Error: " + msg,
			Done: true,
		}
	default:
		return convs, Outcome{Loading: true}
	}
}

// =============================================================================
// SYNCHRONOUS DRIVER
// =============================================================================

// Run executes turn to completion against st. It takes the conversation's
// in-flight guard, commits every event, and calls onEvent (if non-nil)
// after each commit. The guard is always released.
func (r *Reconciler) Run(ctx context.Context, st *store.Store, turn Turn, onEvent func(Event, Outcome)) (Outcome, error) {
	if err := st.BeginTurn(turn.ConversationID); err != nil {
		return Outcome{}, err
	}
	defer st.EndTurn(turn.ConversationID)

	last := Outcome{Loading: true}
	for ev := range r.Start(ctx, turn) {
		var out Outcome
		st.Update(func(c store.Conversations) store.Conversations {
			var next store.Conversations
			next, out = Apply(c, ev)
			return next
		})
		last = out
		if onEvent != nil {
			onEvent(ev, out)
		}
	}
	if !last.Done {
		// Channel closed early: the context was cancelled.
		return Outcome{Done: true}, ctx.Err()
	}
	return last, nil
}

package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TurnState names the phases of composing and sending one message.
type TurnState int

const (
	StateIdle TurnState = iota
	StateComposing
	StatePendingConfirmation
	StateClassifying
)

func (s TurnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateComposing:
		return "composing"
	case StatePendingConfirmation:
		return "pending_confirmation"
	case StateClassifying:
		return "classifying"
	}
	return "unknown"
}

var (
	ErrNothingToSend = errors.New("turn: no message composed")
	// ErrBusy guards against double-submit while a classification is in
	// flight.
	ErrBusy           = errors.New("turn: classification in progress")
	ErrAlreadyPending = errors.New("turn: confirmation countdown already running")
	ErrNothingPending = errors.New("turn: no confirmation countdown running")
)

// SubmitFunc delivers a composed message: classify it and append it wherever
// the match keeps its state.
type SubmitFunc func(ctx context.Context, text string) error

// TurnControllerConfig tunes the send-confirmation delay. CountdownSeconds 0
// sends immediately on Send, which is the synchronized-multiplayer path; the
// delay is a cool-down safety feature of the single-device mode only.
type TurnControllerConfig struct {
	CountdownSeconds int
	// TickInterval is one countdown step, default one second. Tests
	// shorten it.
	TickInterval time.Duration
}

// TurnController is the per-client send state machine:
//
//	Idle -> Composing -> PendingConfirmation(n) -> Classifying -> Idle
//
// Cancel during the countdown returns to Composing with the input preserved
// and fully stops the timer; no late tick can fire the send afterwards.
type TurnController struct {
	mu        sync.Mutex
	cfg       TurnControllerConfig
	state     TurnState
	input     string
	remaining int
	stopTick  chan struct{}
	submit    SubmitFunc
	onChange  func(state TurnState, remaining int)
	log       zerolog.Logger
}

func NewTurnController(cfg TurnControllerConfig, submit SubmitFunc, log zerolog.Logger) *TurnController {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	return &TurnController{cfg: cfg, state: StateIdle, submit: submit, log: log}
}

// OnChange registers an observer called after every state or countdown
// change. Must be set before the controller is driven.
func (c *TurnController) OnChange(fn func(state TurnState, remaining int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// State returns the current state and, during a countdown, seconds remaining.
func (c *TurnController) State() (TurnState, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.remaining
}

// Input returns the composed text.
func (c *TurnController) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// SetInput updates the composed text. Rejected during the countdown and
// while classifying; empty text returns the controller to Idle.
func (c *TurnController) SetInput(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StatePendingConfirmation:
		return ErrAlreadyPending
	case StateClassifying:
		return ErrBusy
	}
	c.input = text
	if text == "" {
		c.state = StateIdle
	} else {
		c.state = StateComposing
	}
	c.notifyLocked()
	return nil
}

// Send starts the send-confirmation countdown, or classifies immediately
// when the countdown is configured to zero.
func (c *TurnController) Send(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateClassifying:
		return ErrBusy
	case StatePendingConfirmation:
		return ErrAlreadyPending
	}
	if c.input == "" {
		return ErrNothingToSend
	}
	if c.cfg.CountdownSeconds <= 0 {
		c.beginClassifyLocked(ctx)
		return nil
	}
	c.state = StatePendingConfirmation
	c.remaining = c.cfg.CountdownSeconds
	stop := make(chan struct{})
	c.stopTick = stop
	c.notifyLocked()
	go c.runCountdown(ctx, stop)
	return nil
}

// SendNow short-circuits a running countdown straight to classification.
func (c *TurnController) SendNow(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePendingConfirmation {
		return ErrNothingPending
	}
	c.stopTickLocked()
	c.beginClassifyLocked(ctx)
	return nil
}

// Cancel aborts a running countdown and returns to Composing with the input
// preserved. No message is sent and no classification call is issued.
func (c *TurnController) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePendingConfirmation {
		return ErrNothingPending
	}
	c.stopTickLocked()
	c.state = StateComposing
	c.remaining = 0
	c.notifyLocked()
	return nil
}

func (c *TurnController) runCountdown(ctx context.Context, stop chan struct{}) {
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			// A tick that raced a cancel or send-now is stale.
			if c.state != StatePendingConfirmation || c.stopTick != stop {
				c.mu.Unlock()
				return
			}
			c.remaining--
			if c.remaining <= 0 {
				c.stopTick = nil
				c.beginClassifyLocked(ctx)
				c.mu.Unlock()
				return
			}
			c.notifyLocked()
			c.mu.Unlock()
		}
	}
}

func (c *TurnController) beginClassifyLocked(ctx context.Context) {
	c.state = StateClassifying
	c.remaining = 0
	text := c.input
	c.notifyLocked()
	go func() {
		err := c.submit(ctx, text)
		c.mu.Lock()
		c.state = StateIdle
		c.input = ""
		c.notifyLocked()
		c.mu.Unlock()
		if err != nil {
			c.log.Warn().Err(err).Msg("message submit failed")
		}
	}()
}

func (c *TurnController) stopTickLocked() {
	if c.stopTick != nil {
		close(c.stopTick)
		c.stopTick = nil
	}
}

func (c *TurnController) notifyLocked() {
	if c.onChange != nil {
		c.onChange(c.state, c.remaining)
	}
}

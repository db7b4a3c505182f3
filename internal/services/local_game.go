package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chattitude/chattitude/internal/models"
	"github.com/chattitude/chattitude/internal/scoring"
)

var ErrGameNotFound = errors.New("local: game not found")

// LocalGame is a single-device two-player match. Its session value is
// private to this process and never written to the shared store; both
// players share one screen and the turn flag flips locally.
type LocalGame struct {
	mu      sync.Mutex
	session *models.Session
	oracle  Classifier
	rules   scoring.Rules
	now     func() time.Time
	log     zerolog.Logger
}

func NewLocalGame(topic, playerOne, playerTwo string, oracle Classifier, rules scoring.Rules, log zerolog.Logger) (*LocalGame, error) {
	topic = strings.TrimSpace(topic)
	playerOne = strings.TrimSpace(playerOne)
	playerTwo = strings.TrimSpace(playerTwo)
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	if playerOne == "" || playerTwo == "" {
		return nil, ErrEmptyName
	}
	sess := models.NewSession(uuid.NewString(), topic, playerOne, "", time.Now())
	sess.ParticipantTwoName = playerTwo
	return &LocalGame{
		session: sess,
		oracle:  oracle,
		rules:   rules,
		now:     time.Now,
		log:     log,
	}, nil
}

// SendMessage classifies and appends one message for whichever player owns
// the turn, then flips the turn flag. The classification call runs outside
// the lock; the session is only touched before and after it.
func (g *LocalGame) SendMessage(ctx context.Context, text string) (*models.Session, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	g.mu.Lock()
	slot := g.session.TurnOwner
	name := g.session.NameForSlot(slot)
	recent := RecentContext(g.session.Transcript)
	g.mu.Unlock()

	verdict := g.oracle.Classify(ctx, text, recent)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.session.QualityScore, g.session.Stats = g.rules.Apply(g.session.QualityScore, g.session.Stats, slot, verdict)
	g.session.Transcript = append(g.session.Transcript, models.Turn{
		AuthorSlot: slot,
		AuthorName: name,
		Text:       text,
		SentAt:     g.now().Format("15:04"),
		Verdict:    verdict,
		Detailed:   g.rules.Detailed(verdict),
	})
	g.session.TurnOwner = models.OtherSlot(slot)
	g.session.Version++
	return g.session.Clone(), nil
}

// Snapshot returns a copy of the private session.
func (g *LocalGame) Snapshot() *models.Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session.Clone()
}

// localMatch pairs a private game with the turn controller that drives it.
type localMatch struct {
	game *LocalGame
	ctrl *TurnController
}

// LocalService registers single-device matches and exposes the turn
// controller's actions on them. This is the host of the send-confirmation
// countdown; the synchronized multiplayer path sends immediately instead.
type LocalService struct {
	mu      sync.Mutex
	matches map[string]*localMatch
	oracle  Classifier
	rules   scoring.Rules
	ctrlCfg TurnControllerConfig
	log     zerolog.Logger
}

func NewLocalService(oracle Classifier, rules scoring.Rules, ctrlCfg TurnControllerConfig, log zerolog.Logger) *LocalService {
	return &LocalService{
		matches: make(map[string]*localMatch),
		oracle:  oracle,
		rules:   rules,
		ctrlCfg: ctrlCfg,
		log:     log,
	}
}

// LocalState is one match's full client-facing view.
type LocalState struct {
	GameID    string          `json:"gameId"`
	Session   *models.Session `json:"session"`
	State     string          `json:"state"`
	Remaining int             `json:"remaining"`
	Input     string          `json:"input"`
}

// Create starts a new match and returns its id and initial state.
func (l *LocalService) Create(topic, playerOne, playerTwo string) (LocalState, error) {
	game, err := NewLocalGame(topic, playerOne, playerTwo, l.oracle, l.rules, l.log)
	if err != nil {
		return LocalState{}, err
	}
	ctrl := NewTurnController(l.ctrlCfg, func(ctx context.Context, text string) error {
		_, err := game.SendMessage(ctx, text)
		return err
	}, l.log)

	id := uuid.NewString()
	l.mu.Lock()
	l.matches[id] = &localMatch{game: game, ctrl: ctrl}
	l.mu.Unlock()
	l.log.Info().Str("game", id).Str("topic", topic).Msg("local game created")
	return l.state(id, game, ctrl), nil
}

func (l *LocalService) match(id string) (*localMatch, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.matches[id]
	if !ok {
		return nil, ErrGameNotFound
	}
	return m, nil
}

func (l *LocalService) SetInput(id, text string) (LocalState, error) {
	m, err := l.match(id)
	if err != nil {
		return LocalState{}, err
	}
	if err := m.ctrl.SetInput(text); err != nil {
		return LocalState{}, err
	}
	return l.state(id, m.game, m.ctrl), nil
}

// Send starts the confirmation countdown. The countdown and the classify
// call outlive whatever request triggered them, so the controller gets a
// fresh context rather than the caller's; cancellation happens through
// Cancel, not through a request context.
func (l *LocalService) Send(id string) (LocalState, error) {
	m, err := l.match(id)
	if err != nil {
		return LocalState{}, err
	}
	if err := m.ctrl.Send(context.Background()); err != nil {
		return LocalState{}, err
	}
	return l.state(id, m.game, m.ctrl), nil
}

func (l *LocalService) SendNow(id string) (LocalState, error) {
	m, err := l.match(id)
	if err != nil {
		return LocalState{}, err
	}
	if err := m.ctrl.SendNow(context.Background()); err != nil {
		return LocalState{}, err
	}
	return l.state(id, m.game, m.ctrl), nil
}

func (l *LocalService) Cancel(id string) (LocalState, error) {
	m, err := l.match(id)
	if err != nil {
		return LocalState{}, err
	}
	if err := m.ctrl.Cancel(); err != nil {
		return LocalState{}, err
	}
	return l.state(id, m.game, m.ctrl), nil
}

func (l *LocalService) Get(id string) (LocalState, error) {
	m, err := l.match(id)
	if err != nil {
		return LocalState{}, err
	}
	return l.state(id, m.game, m.ctrl), nil
}

// End removes a match. "End conversation" is local-only; nothing shared is
// touched because nothing shared exists for a local game.
func (l *LocalService) End(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.matches[id]; !ok {
		return ErrGameNotFound
	}
	delete(l.matches, id)
	return nil
}

func (l *LocalService) state(id string, game *LocalGame, ctrl *TurnController) LocalState {
	st, remaining := ctrl.State()
	return LocalState{
		GameID:    id,
		Session:   game.Snapshot(),
		State:     st.String(),
		Remaining: remaining,
		Input:     ctrl.Input(),
	}
}

package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chattitude/chattitude/internal/models"
	"github.com/chattitude/chattitude/internal/scoring"
	"github.com/chattitude/chattitude/internal/store"
)

var (
	ErrEmptyTopic    = errors.New("session: topic must not be empty")
	ErrEmptyName     = errors.New("session: participant name must not be empty")
	ErrEmptyMessage  = errors.New("session: message must not be empty")
	ErrAlreadyJoined = errors.New("session: participant two already joined")
	ErrBadToken      = errors.New("session: unknown participant token")
	// ErrNotYourTurn rejects an out-of-turn append. Turn ownership is
	// enforced here, not merely advised by a disabled button.
	ErrNotYourTurn = errors.New("session: not this participant's turn")
)

// SessionService is the synchronizer: it owns session creation, joining,
// transactional turn appends, and snapshot subscriptions over the shared
// store. Every snapshot it hands out is redacted.
type SessionService struct {
	store store.SessionStore
	rules scoring.Rules
	now   func() time.Time
	log   zerolog.Logger
}

func NewSessionService(st store.SessionStore, rules scoring.Rules, log zerolog.Logger) *SessionService {
	return &SessionService{store: st, rules: rules, now: time.Now, log: log}
}

// Create allocates a fresh session and returns its redacted snapshot plus
// the slot-one participant token.
func (s *SessionService) Create(ctx context.Context, topic, participantOneName string) (*models.Session, string, error) {
	topic = strings.TrimSpace(topic)
	participantOneName = strings.TrimSpace(participantOneName)
	if topic == "" {
		return nil, "", ErrEmptyTopic
	}
	if participantOneName == "" {
		return nil, "", ErrEmptyName
	}

	token := uuid.NewString()
	sess := models.NewSession(uuid.NewString(), topic, participantOneName, token, s.now())
	if err := s.store.Create(ctx, sess); err != nil {
		return nil, "", err
	}
	s.log.Info().Str("session", sess.ID).Str("participant", participantOneName).Msg("session created")
	return sess.Redacted(), token, nil
}

// Join takes the slot-two seat. The session must exist and the seat must be
// free.
func (s *SessionService) Join(ctx context.Context, id, participantTwoName string) (*models.Session, string, error) {
	participantTwoName = strings.TrimSpace(participantTwoName)
	if participantTwoName == "" {
		return nil, "", ErrEmptyName
	}

	token := uuid.NewString()
	updated, err := s.store.Update(ctx, id, func(cur *models.Session) error {
		if cur.Joined() {
			return ErrAlreadyJoined
		}
		cur.ParticipantTwoName = participantTwoName
		cur.ParticipantTwoToken = token
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	s.log.Info().Str("session", id).Str("participant", participantTwoName).Msg("participant joined")
	return updated.Redacted(), token, nil
}

// PrepareTurn runs the cheap checks for an append before the caller spends a
// classification call: the text must be non-empty, the token must resolve to
// a slot, and it must be that slot's turn. On success it returns the
// recent-context window for the classifier. AppendTurn re-checks everything
// inside the transaction; this is the pre-flight, not the authority.
func (s *SessionService) PrepareTurn(ctx context.Context, id, token, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyMessage
	}
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	slot, ok := sess.SlotForToken(token)
	if !ok {
		return "", ErrBadToken
	}
	if sess.TurnOwner != slot {
		return "", ErrNotYourTurn
	}
	return RecentContext(sess.Transcript), nil
}

// AppendTurn folds one classified message into the session: it resolves the
// author from the token, enforces turn ownership, applies the score engine,
// appends the turn, and flips the turn owner - all inside one atomic store
// update, so racing appends cannot lose each other's turns.
func (s *SessionService) AppendTurn(ctx context.Context, id, token, text string, verdict models.Verdict) (*models.Session, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	verdict = models.NormalizeVerdict(verdict)
	sentAt := s.now().Format("15:04")

	updated, err := s.store.Update(ctx, id, func(cur *models.Session) error {
		slot, ok := cur.SlotForToken(token)
		if !ok {
			return ErrBadToken
		}
		if cur.TurnOwner != slot {
			return ErrNotYourTurn
		}
		cur.QualityScore, cur.Stats = s.rules.Apply(cur.QualityScore, cur.Stats, slot, verdict)
		cur.Transcript = append(cur.Transcript, models.Turn{
			AuthorSlot: slot,
			AuthorName: cur.NameForSlot(slot),
			Text:       text,
			SentAt:     sentAt,
			Verdict:    verdict,
			Detailed:   s.rules.Detailed(verdict),
		})
		cur.TurnOwner = models.OtherSlot(slot)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug().
		Str("session", id).
		Int("turns", len(updated.Transcript)).
		Int("score", updated.QualityScore).
		Str("category", verdict.Category).
		Msg("turn appended")
	return updated.Redacted(), nil
}

// Get reads a redacted point-in-time snapshot.
func (s *SessionService) Get(ctx context.Context, id string) (*models.Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return sess.Redacted(), nil
}

// Subscribe mirrors every store change into the returned channel as redacted
// full snapshots, starting with the current value.
func (s *SessionService) Subscribe(ctx context.Context, id string) (<-chan *models.Session, error) {
	raw, err := s.store.Subscribe(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make(chan *models.Session, 1)
	go func() {
		defer close(out)
		for snap := range raw {
			select {
			case out <- snap.Redacted():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

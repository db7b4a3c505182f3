package services

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chattitude/chattitude/internal/models"
	"github.com/chattitude/chattitude/internal/scoring"
)

func TestLocalGame_FlipsTurnAndScores(t *testing.T) {
	oracle := &scriptedClassifier{verdicts: map[string]models.Verdict{
		"cheap shot": {Technique: "Personal Attack", Category: models.CategoryDestructive, Confidence: 80},
	}}
	game, err := NewLocalGame("topic", "Emma", "Alex", oracle, scoring.DefaultRules(), zerolog.New(zerolog.Nop()))
	require.NoError(t, err)

	snap, err := game.SendMessage(context.Background(), "cheap shot")
	require.NoError(t, err)
	assert.Equal(t, models.SlotTwo, snap.TurnOwner)
	assert.Equal(t, 90, snap.QualityScore)
	assert.Equal(t, 1, snap.Stats.PlayerOne.Destructive)
	require.Len(t, snap.Transcript, 1)
	assert.Equal(t, "Emma", snap.Transcript[0].AuthorName)

	// Next message belongs to whoever owns the turn now: Alex.
	snap, err = game.SendMessage(context.Background(), "fair point")
	require.NoError(t, err)
	assert.Equal(t, models.SlotOne, snap.TurnOwner)
	assert.Equal(t, "Alex", snap.Transcript[1].AuthorName)
}

func TestLocalGame_Validation(t *testing.T) {
	oracle := &scriptedClassifier{}
	log := zerolog.New(zerolog.Nop())

	_, err := NewLocalGame("", "Emma", "Alex", oracle, scoring.DefaultRules(), log)
	assert.ErrorIs(t, err, ErrEmptyTopic)
	_, err = NewLocalGame("topic", "Emma", " ", oracle, scoring.DefaultRules(), log)
	assert.ErrorIs(t, err, ErrEmptyName)

	game, err := NewLocalGame("topic", "Emma", "Alex", oracle, scoring.DefaultRules(), log)
	require.NoError(t, err)
	_, err = game.SendMessage(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func newTestLocalService(countdown int) *LocalService {
	return NewLocalService(&scriptedClassifier{}, scoring.DefaultRules(), TurnControllerConfig{
		CountdownSeconds: countdown,
		TickInterval:     time.Millisecond,
	}, zerolog.New(zerolog.Nop()))
}

func TestLocalService_Lifecycle(t *testing.T) {
	svc := newTestLocalService(0)

	state, err := svc.Create("topic", "Emma", "Alex")
	require.NoError(t, err)
	assert.Equal(t, "idle", state.State)
	assert.Equal(t, models.SlotOne, state.Session.TurnOwner)

	state, err = svc.SetInput(state.GameID, "hello there")
	require.NoError(t, err)
	assert.Equal(t, "composing", state.State)

	state, err = svc.Send(state.GameID)
	require.NoError(t, err)

	// Zero countdown classifies immediately; wait for the append.
	require.Eventually(t, func() bool {
		s, err := svc.Get(state.GameID)
		return err == nil && len(s.Session.Transcript) == 1
	}, time.Second, time.Millisecond)

	final, err := svc.Get(state.GameID)
	require.NoError(t, err)
	assert.Equal(t, models.SlotTwo, final.Session.TurnOwner)
	assert.Equal(t, "idle", final.State)

	require.NoError(t, svc.End(state.GameID))
	_, err = svc.Get(state.GameID)
	assert.ErrorIs(t, err, ErrGameNotFound)
}

func TestLocalService_CancelDuringCountdown(t *testing.T) {
	svc := newTestLocalService(600)

	state, err := svc.Create("topic", "Emma", "Alex")
	require.NoError(t, err)
	_, err = svc.SetInput(state.GameID, "second thoughts")
	require.NoError(t, err)
	pending, err := svc.Send(state.GameID)
	require.NoError(t, err)
	assert.Equal(t, "pending_confirmation", pending.State)

	cancelled, err := svc.Cancel(state.GameID)
	require.NoError(t, err)
	assert.Equal(t, "composing", cancelled.State)
	assert.Equal(t, "second thoughts", cancelled.Input)
	assert.Empty(t, cancelled.Session.Transcript)
}

// The countdown and the classify call run on their own context; the message
// still lands after the triggering call has long returned.
func TestLocalService_CountdownCompletesAfterSendReturns(t *testing.T) {
	svc := newTestLocalService(3)

	state, err := svc.Create("topic", "Emma", "Alex")
	require.NoError(t, err)
	_, err = svc.SetInput(state.GameID, "patience")
	require.NoError(t, err)
	_, err = svc.Send(state.GameID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, err := svc.Get(state.GameID)
		return err == nil && len(s.Session.Transcript) == 1
	}, time.Second, time.Millisecond)

	final, err := svc.Get(state.GameID)
	require.NoError(t, err)
	assert.Equal(t, "idle", final.State)
	assert.Equal(t, "patience", final.Session.Transcript[0].Text)
}

func TestLocalService_UnknownGame(t *testing.T) {
	svc := newTestLocalService(0)
	_, err := svc.Get("missing")
	assert.ErrorIs(t, err, ErrGameNotFound)
	_, err = svc.Send("missing")
	assert.ErrorIs(t, err, ErrGameNotFound)
}

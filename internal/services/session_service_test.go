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
	"github.com/chattitude/chattitude/internal/store"
)

func newTestSessionService() *SessionService {
	return NewSessionService(store.NewMemoryStore(), scoring.DefaultRules(), zerolog.New(zerolog.Nop()))
}

func verdict(category string, confidence int) models.Verdict {
	return models.Verdict{Technique: "x", Category: category, Confidence: confidence}
}

func TestCreate_InitialSnapshot(t *testing.T) {
	ctx := context.Background()
	svc := newTestSessionService()

	sess, token, err := svc.Create(ctx, "cats are better than dogs", "Emma")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, models.SlotOne, sess.TurnOwner)
	assert.Equal(t, 100, sess.QualityScore)
	assert.Empty(t, sess.Transcript)
	// Snapshots are redacted.
	assert.Empty(t, sess.ParticipantOneToken)
}

func TestCreate_Validation(t *testing.T) {
	ctx := context.Background()
	svc := newTestSessionService()

	_, _, err := svc.Create(ctx, "  ", "Emma")
	assert.ErrorIs(t, err, ErrEmptyTopic)
	_, _, err = svc.Create(ctx, "topic", "")
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestJoin(t *testing.T) {
	ctx := context.Background()
	svc := newTestSessionService()
	sess, _, err := svc.Create(ctx, "topic", "Emma")
	require.NoError(t, err)

	joined, token2, err := svc.Join(ctx, sess.ID, "Alex")
	require.NoError(t, err)
	require.NotEmpty(t, token2)
	assert.Equal(t, "Alex", joined.ParticipantTwoName)
	assert.True(t, joined.Joined())

	// The seat is taken now.
	_, _, err = svc.Join(ctx, sess.ID, "Casey")
	assert.ErrorIs(t, err, ErrAlreadyJoined)
}

func TestJoin_UnknownSessionFailsExplicitly(t *testing.T) {
	svc := newTestSessionService()
	_, _, err := svc.Join(context.Background(), "no-such-session", "Alex")
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestAppendTurn_EnforcesIdentityAndOwnership(t *testing.T) {
	ctx := context.Background()
	svc := newTestSessionService()
	sess, token1, err := svc.Create(ctx, "topic", "Emma")
	require.NoError(t, err)
	_, token2, err := svc.Join(ctx, sess.ID, "Alex")
	require.NoError(t, err)

	_, err = svc.AppendTurn(ctx, sess.ID, "forged-token", "hi", models.NeutralVerdict())
	assert.ErrorIs(t, err, ErrBadToken)

	// Slot two cannot move first.
	_, err = svc.AppendTurn(ctx, sess.ID, token2, "me first", models.NeutralVerdict())
	assert.ErrorIs(t, err, ErrNotYourTurn)

	_, err = svc.AppendTurn(ctx, sess.ID, token1, "", models.NeutralVerdict())
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

// The pre-flight rejects bad appends before any classification is paid for,
// and hands back the context window when the append would be allowed.
func TestPrepareTurn(t *testing.T) {
	ctx := context.Background()
	svc := newTestSessionService()
	sess, token1, err := svc.Create(ctx, "topic", "Emma")
	require.NoError(t, err)
	_, token2, err := svc.Join(ctx, sess.ID, "Alex")
	require.NoError(t, err)

	_, err = svc.PrepareTurn(ctx, sess.ID, token1, "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	_, err = svc.PrepareTurn(ctx, sess.ID, "forged-token", "hi")
	assert.ErrorIs(t, err, ErrBadToken)
	_, err = svc.PrepareTurn(ctx, sess.ID, token2, "me first")
	assert.ErrorIs(t, err, ErrNotYourTurn)
	_, err = svc.PrepareTurn(ctx, "missing", token1, "hi")
	assert.ErrorIs(t, err, store.ErrSessionNotFound)

	recent, err := svc.PrepareTurn(ctx, sess.ID, token1, "hi")
	require.NoError(t, err)
	assert.Equal(t, "This is the first message.", recent)

	_, err = svc.AppendTurn(ctx, sess.ID, token1, "hi", models.NeutralVerdict())
	require.NoError(t, err)
	recent, err = svc.PrepareTurn(ctx, sess.ID, token2, "reply")
	require.NoError(t, err)
	assert.Equal(t, "Emma: hi", recent)
}

// turnOwner strictly alternates: starting at 1, after turn n it equals
// 1 + (n mod 2).
func TestAppendTurn_Alternation(t *testing.T) {
	ctx := context.Background()
	svc := newTestSessionService()
	sess, token1, err := svc.Create(ctx, "topic", "Emma")
	require.NoError(t, err)
	_, token2, err := svc.Join(ctx, sess.ID, "Alex")
	require.NoError(t, err)

	tokens := map[int]string{models.SlotOne: token1, models.SlotTwo: token2}
	for n := 1; n <= 6; n++ {
		owner := 1 + (n-1)%2
		snap, err := svc.AppendTurn(ctx, sess.ID, tokens[owner], "turn", models.NeutralVerdict())
		require.NoError(t, err)
		assert.Equal(t, 1+n%2, snap.TurnOwner, "after turn %d", n)
		assert.Len(t, snap.Transcript, n)
	}
}

func TestAppendTurn_ScoringScenario(t *testing.T) {
	ctx := context.Background()
	svc := newTestSessionService()
	sess, token1, err := svc.Create(ctx, "topic", "Emma")
	require.NoError(t, err)
	_, token2, err := svc.Join(ctx, sess.ID, "Alex")
	require.NoError(t, err)

	snap, err := svc.AppendTurn(ctx, sess.ID, token1, "you would say that", verdict(models.CategoryDestructive, 80))
	require.NoError(t, err)
	assert.Equal(t, 90, snap.QualityScore)
	assert.Equal(t, 1, snap.Stats.PlayerOne.Destructive)
	assert.True(t, snap.Transcript[0].Detailed)

	snap, err = svc.AppendTurn(ctx, sess.ID, token2, "you have a point there", verdict(models.CategoryConstructive, 90))
	require.NoError(t, err)
	assert.Equal(t, 100, snap.QualityScore)
	assert.Equal(t, 1, snap.Stats.PlayerTwo.Constructive)

	snap, err = svc.AppendTurn(ctx, sess.ID, token1, "hmm", verdict(models.CategoryDestructive, 50))
	require.NoError(t, err)
	assert.Equal(t, 100, snap.QualityScore)
	assert.Equal(t, 1, snap.Stats.PlayerOne.Destructive)
	// Below the display threshold: no technique detail alongside the turn.
	assert.False(t, snap.Transcript[2].Detailed)
}

func TestAppendTurn_TranscriptAppendOnly(t *testing.T) {
	ctx := context.Background()
	svc := newTestSessionService()
	sess, token1, err := svc.Create(ctx, "topic", "Emma")
	require.NoError(t, err)
	_, token2, err := svc.Join(ctx, sess.ID, "Alex")
	require.NoError(t, err)

	first, err := svc.AppendTurn(ctx, sess.ID, token1, "first", models.NeutralVerdict())
	require.NoError(t, err)
	second, err := svc.AppendTurn(ctx, sess.ID, token2, "second", models.NeutralVerdict())
	require.NoError(t, err)

	require.Len(t, second.Transcript, 2)
	assert.Equal(t, first.Transcript[0], second.Transcript[0])
	assert.Equal(t, "second", second.Transcript[1].Text)
	assert.Equal(t, models.SlotTwo, second.Transcript[1].AuthorSlot)
	assert.Equal(t, "Alex", second.Transcript[1].AuthorName)
}

func TestSubscribe_RedactedSnapshots(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := newTestSessionService()
	sess, token1, err := svc.Create(ctx, "topic", "Emma")
	require.NoError(t, err)

	ch, err := svc.Subscribe(ctx, sess.ID)
	require.NoError(t, err)

	first := <-ch
	assert.Empty(t, first.ParticipantOneToken)
	assert.Equal(t, sess.ID, first.ID)

	_, err = svc.AppendTurn(ctx, sess.ID, token1, "hello", models.NeutralVerdict())
	require.NoError(t, err)

	select {
	case snap := <-ch:
		require.Len(t, snap.Transcript, 1)
		assert.Empty(t, snap.ParticipantOneToken)
		assert.Empty(t, snap.ParticipantTwoToken)
	case <-time.After(time.Second):
		t.Fatal("no change snapshot delivered")
	}
}

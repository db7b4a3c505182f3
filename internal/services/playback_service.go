package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/chattitude/chattitude/internal/models"
	"github.com/chattitude/chattitude/internal/scoring"
)

// ScriptedLine is one pre-authored message of a demo debate.
type ScriptedLine struct {
	Slot int    `json:"slot"`
	Name string `json:"name"`
	Text string `json:"text"`
}

// PlaybackConfig paces the demo. ThinkingDelay runs before each
// classification, MessageDelay after each appended turn.
type PlaybackConfig struct {
	ThinkingDelay time.Duration
	MessageDelay  time.Duration
}

// Frame is delivered to the observer after each scripted turn.
type Frame struct {
	Index        int          `json:"index"`
	Turn         models.Turn  `json:"turn"`
	QualityScore int          `json:"qualityScore"`
	Stats        models.Stats `json:"stats"`
}

// PlaybackService drives a fixed script through the same classification and
// scoring pipeline as a live match, against a transcript private to the run.
// It never touches the session synchronizer. Each Run starts fresh, so
// re-running after completion or cancellation replays the same sequence.
type PlaybackService struct {
	oracle Classifier
	rules  scoring.Rules
	cfg    PlaybackConfig
	now    func() time.Time
	log    zerolog.Logger
}

func NewPlaybackService(oracle Classifier, rules scoring.Rules, cfg PlaybackConfig, log zerolog.Logger) *PlaybackService {
	return &PlaybackService{oracle: oracle, rules: rules, cfg: cfg, now: time.Now, log: log}
}

// Run plays the script to the end or until ctx is cancelled; every wait
// selects on ctx, so a view change aborts a pending step with no residual
// side effect. onTurn is called once per appended turn.
func (p *PlaybackService) Run(ctx context.Context, script []ScriptedLine, onTurn func(Frame)) error {
	score := p.rules.MaxScore
	var stats models.Stats
	var transcript []models.Turn

	for i, line := range script {
		if err := sleepCtx(ctx, p.cfg.ThinkingDelay); err != nil {
			return err
		}
		verdict := p.oracle.Classify(ctx, line.Text, RecentContext(transcript))
		score, stats = p.rules.Apply(score, stats, line.Slot, verdict)
		turn := models.Turn{
			AuthorSlot: line.Slot,
			AuthorName: line.Name,
			Text:       line.Text,
			SentAt:     p.now().Format("15:04"),
			Verdict:    verdict,
			Detailed:   p.rules.Detailed(verdict),
		}
		transcript = append(transcript, turn)
		if onTurn != nil {
			onTurn(Frame{Index: i, Turn: turn, QualityScore: score, Stats: stats})
		}
		if err := sleepCtx(ctx, p.cfg.MessageDelay); err != nil {
			return err
		}
	}
	p.log.Debug().Int("turns", len(script)).Int("score", score).Msg("playback finished")
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// DemoScript is the built-in demonstration debate.
func DemoScript() []ScriptedLine {
	return []ScriptedLine{
		{Slot: models.SlotOne, Name: "Emma", Text: "Remote work should stay the default for knowledge workers. Output went up, commutes went away."},
		{Slot: models.SlotTwo, Name: "Alex", Text: "So you're saying offices should just be abolished entirely?"},
		{Slot: models.SlotOne, Name: "Emma", Text: "No, I'm not saying abolish offices. I'm saying the default should be remote, with offices for the work that needs them."},
		{Slot: models.SlotTwo, Name: "Alex", Text: "You have a point that commuting is a real cost. My worry is mentoring: juniors learn a lot by overhearing seniors."},
		{Slot: models.SlotOne, Name: "Emma", Text: "That's fair. Mentoring does need deliberate structure remotely, like pairing sessions and open office hours."},
		{Slot: models.SlotTwo, Name: "Alex", Text: "Typical that someone who already has a home office would argue this."},
		{Slot: models.SlotOne, Name: "Emma", Text: "Can you say more about what outcomes you'd want to see before trusting remote as the default?"},
	}
}

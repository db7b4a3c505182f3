package models

import "time"

// Participant slots are fixed for the lifetime of a session.
const (
	SlotOne = 1
	SlotTwo = 2
)

// Session is the shared record of one two-party conversation. Both
// participants' processes mutate it through the session store; Version backs
// the store's optimistic concurrency check and increments on every write.
type Session struct {
	ID                  string    `json:"sessionId"`
	Topic               string    `json:"topic"`
	ParticipantOneName  string    `json:"participantOneName"`
	ParticipantTwoName  string    `json:"participantTwoName,omitempty"`
	ParticipantOneToken string    `json:"participantOneToken,omitempty"`
	ParticipantTwoToken string    `json:"participantTwoToken,omitempty"`
	TurnOwner           int       `json:"turnOwner"`
	QualityScore        int       `json:"qualityScore"`
	Transcript          []Turn    `json:"transcript"`
	Stats               Stats     `json:"stats"`
	Version             int64     `json:"version"`
	CreatedAt           time.Time `json:"createdAt"`
}

// Stats counts classified turns per participant slot.
type Stats struct {
	PlayerOne PlayerStats `json:"player1"`
	PlayerTwo PlayerStats `json:"player2"`
}

type PlayerStats struct {
	Constructive int `json:"constructive"`
	Destructive  int `json:"destructive"`
}

// ForSlot returns the counters for a slot. Unknown slots read as zero.
func (s Stats) ForSlot(slot int) PlayerStats {
	switch slot {
	case SlotOne:
		return s.PlayerOne
	case SlotTwo:
		return s.PlayerTwo
	}
	return PlayerStats{}
}

// WithSlot returns a copy of the stats with one slot's counters replaced.
func (s Stats) WithSlot(slot int, ps PlayerStats) Stats {
	switch slot {
	case SlotOne:
		s.PlayerOne = ps
	case SlotTwo:
		s.PlayerTwo = ps
	}
	return s
}

// NewSession builds the initial session value for a creator in slot one.
func NewSession(id, topic, participantOneName, participantOneToken string, now time.Time) *Session {
	return &Session{
		ID:                  id,
		Topic:               topic,
		ParticipantOneName:  participantOneName,
		ParticipantOneToken: participantOneToken,
		TurnOwner:           SlotOne,
		QualityScore:        100,
		Transcript:          []Turn{},
		CreatedAt:           now,
	}
}

// SlotForToken resolves a participant credential to its slot. Identity is
// decided by the token issued at create/join time, never by name comparison.
func (s *Session) SlotForToken(token string) (int, bool) {
	if token == "" {
		return 0, false
	}
	switch token {
	case s.ParticipantOneToken:
		return SlotOne, true
	case s.ParticipantTwoToken:
		return SlotTwo, true
	}
	return 0, false
}

func (s *Session) NameForSlot(slot int) string {
	if slot == SlotTwo {
		return s.ParticipantTwoName
	}
	return s.ParticipantOneName
}

// Joined reports whether participant two has taken their slot.
func (s *Session) Joined() bool {
	return s.ParticipantTwoName != ""
}

// OtherSlot returns the opposing slot.
func OtherSlot(slot int) int {
	if slot == SlotOne {
		return SlotTwo
	}
	return SlotOne
}

// Clone deep-copies the session, including the transcript.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Transcript = make([]Turn, len(s.Transcript))
	copy(cp.Transcript, s.Transcript)
	return &cp
}

// Redacted returns a copy safe to hand to any client: the participant tokens
// are secrets shared only with their owner and never leave the server in a
// snapshot.
func (s *Session) Redacted() *Session {
	cp := s.Clone()
	cp.ParticipantOneToken = ""
	cp.ParticipantTwoToken = ""
	return cp
}

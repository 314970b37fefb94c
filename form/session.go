package form

import (
	"sync"

	"github.com/ebops/deploybot/submission"
)

// step is the input the conversation is waiting for.
type step int

const (
	stepSelectProject step = iota + 1
	stepSelectEnvironment
	stepInputBranch
	stepSelectService
	stepInputHash
	stepInputContent
	stepInputAddress
	stepConfirm
)

// session is one user's form in progress in one chat.
type session struct {
	step        step
	addressOnly bool
	form        submission.Form
}

// missingFields reports which required answers are still empty, in the order
// they are reported to the user.
func (s *session) missingFields() []string {
	type field struct{ name, value string }
	fields := []field{
		{"apply_time", s.form.ApplyTime},
		{"project", s.form.Project},
		{"environment", s.form.Environment},
		{"hash", s.form.Hash},
		{"branch", s.form.Branch},
		{"content", s.form.Content},
	}
	if s.addressOnly {
		fields = []field{
			{"apply_time", s.form.ApplyTime},
			{"project", s.form.Project},
			{"environment", s.form.Environment},
			{"branch", s.form.Branch},
		}
	}

	var missing []string
	for _, f := range fields {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

type sessionKey struct {
	chatID int64
	userID int64
}

// sessions holds in-progress forms keyed by (chat, user). Conversation state
// never outlives the process; durable state starts at the workflow row.
type sessions struct {
	mu   sync.Mutex
	byID map[sessionKey]*session
}

func newSessions() *sessions {
	return &sessions{byID: make(map[sessionKey]*session)}
}

func (s *sessions) get(chatID, userID int64) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[sessionKey{chatID, userID}]
}

func (s *sessions) put(chatID, userID int64, sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[sessionKey{chatID, userID}] = sess
}

// take removes and returns the session, nil when none was active.
func (s *sessions) take(chatID, userID int64) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sessionKey{chatID, userID}
	sess := s.byID[key]
	delete(s.byID, key)
	return sess
}

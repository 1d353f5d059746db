package net

// SessionStore tracks live sessions. World loop only.
type SessionStore struct {
	sessions map[uint64]*Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[uint64]*Session)}
}

func (s *SessionStore) Add(sess *Session) {
	s.sessions[sess.ID] = sess
}

func (s *SessionStore) Remove(id uint64) {
	delete(s.sessions, id)
}

func (s *SessionStore) Get(id uint64) *Session {
	return s.sessions[id]
}

// Raw exposes the session map for iteration. Callers must not retain it.
func (s *SessionStore) Raw() map[uint64]*Session {
	return s.sessions
}

func (s *SessionStore) Len() int {
	return len(s.sessions)
}

// FlushAll pushes every session's buffered output to its writer.
func (s *SessionStore) FlushAll() {
	for _, sess := range s.sessions {
		sess.FlushOutput()
	}
}

// CloseAll closes every session.
func (s *SessionStore) CloseAll() {
	for _, sess := range s.sessions {
		sess.Close()
	}
}

package usecase

import (
	"sync"

	"signscribe/internal/domain"
)

// Environment is the shared context handed to components at construction:
// who is signed in and whether the detection service answered its last probe.
type Environment struct {
	User   domain.User
	Server *ServerStatus
}

// ServerStatus tracks the advisory availability of the detection service.
type ServerStatus struct {
	mu    sync.RWMutex
	state domain.ServerState
	info  *domain.ServerModelInfo
}

func NewServerStatus() *ServerStatus {
	return &ServerStatus{state: domain.ServerChecking}
}

func (s *ServerStatus) State() domain.ServerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *ServerStatus) ModelInfo() *domain.ServerModelInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.info == nil {
		return nil
	}
	info := *s.info
	return &info
}

func (s *ServerStatus) set(state domain.ServerState, info *domain.ServerModelInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.info = info
}

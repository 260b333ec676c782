package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SessionExpirer removes sessions that have been idle too long
type SessionExpirer interface {
	ExpireSessions(ctx context.Context) (int, error)
}

// SessionCleanupService handles background tasks for session management
type SessionCleanupService struct {
	expirer  SessionExpirer
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewSessionCleanupService creates a new session cleanup service running every interval
func NewSessionCleanupService(expirer SessionExpirer, interval time.Duration, logger *zap.Logger) *SessionCleanupService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &SessionCleanupService{
		expirer:  expirer,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the background cleanup process
func (s *SessionCleanupService) Start() {
	go s.cleanupLoop()
	s.logger.Info("Session cleanup service started", zap.Duration("interval", s.interval))
}

// Stop gracefully stops the cleanup service and waits for the loop to exit
func (s *SessionCleanupService) Stop() {
	close(s.stopChan)
	<-s.doneChan
	s.logger.Info("Session cleanup service stopped")
}

// cleanupLoop runs the cleanup process periodically
func (s *SessionCleanupService) cleanupLoop() {
	defer close(s.doneChan)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

// runCleanup performs the actual cleanup of expired sessions
func (s *SessionCleanupService) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	expired, err := s.expirer.ExpireSessions(ctx)
	if err != nil {
		s.logger.Error("Failed to expire sessions", zap.Error(err))
		return
	}

	if expired > 0 {
		s.logger.Info("Session cleanup completed", zap.Int("expired", expired))
	}
}

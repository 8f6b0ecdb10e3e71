package dashboard

import (
	"sync"
	"time"

	"github.com/campusport/achievement-api/internal/models"
	"github.com/campusport/achievement-api/pkg/config"
)

var (
	sessionMu sync.RWMutex
	session   *models.JWTClaims
)

// BeginSession records the authenticated actor whose dashboards are being
// reconciled. One actor is active per process; a login replaces the previous
// session.
func BeginSession(claims *models.JWTClaims) {
	sessionMu.Lock()
	session = claims
	sessionMu.Unlock()
}

// CurrentSession returns the active actor, or nil when logged out.
func CurrentSession() *models.JWTClaims {
	sessionMu.RLock()
	defer sessionMu.RUnlock()
	return session
}

// EndSession clears the active actor. Running reconcilers must be stopped by
// the caller before their fetch credentials become invalid.
func EndSession() {
	sessionMu.Lock()
	session = nil
	sessionMu.Unlock()
}

// IntervalFor picks the polling cadence for a role. Reviewer queues move
// faster than a student's own claim list, so they poll more often.
func IntervalFor(role models.UserRole, cfg config.PollConfig) time.Duration {
	if role.Reviewer() {
		return cfg.ReviewerInterval
	}
	return cfg.StudentInterval
}

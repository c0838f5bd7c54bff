package portfolio

import "time"

// SetNow replaces the service clock.
func (s *Service) SetNow(now func() time.Time) {
	s.now = now
}

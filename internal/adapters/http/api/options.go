package api

import "golang.org/x/time/rate"

const (
	defaultMaxLeaderboardLimit = 100
	defaultSubmitRate          = 200
	defaultSubmitBurst         = 400
)

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithMaxLeaderboardLimit caps the limit accepted by GET /leaderboard.
func WithMaxLeaderboardLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxLeaderboardLimit = n
		}
	}
}

// WithSubmitRateLimit sets the token bucket guarding POST /evaluations.
// A non-positive perSecond disables limiting.
func WithSubmitRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		if perSecond <= 0 {
			s.submitLimit = rate.Inf
			return
		}
		s.submitLimit = rate.Limit(perSecond)
		if burst > 0 {
			s.submitBurst = burst
		}
	}
}

package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates total failure.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	postgres  Pinger
	redis     Pinger
	embedding EmbeddingChecker
}

// New creates a Service. redis and embedding can be nil.
func New(postgres, redis Pinger, embedding EmbeddingChecker) *Service {
	return &Service{postgres: postgres, redis: redis, embedding: embedding}
}

// Check runs health checks against all configured components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)
	failures := 0

	if err := s.postgres.Ping(ctx); err != nil {
		checks["postgres"] = CheckError
		failures++
	} else {
		checks["postgres"] = CheckOK
	}

	if s.redis != nil {
		if err := s.redis.Ping(ctx); err != nil {
			checks["redis"] = CheckError
			failures++
		} else {
			checks["redis"] = CheckOK
		}
	}

	if s.embedding != nil {
		if err := s.embedding.HealthCheck(ctx); err != nil {
			checks["embedding"] = CheckError
			failures++
		} else {
			checks["embedding"] = CheckOK
		}
	}

	status := Healthy
	switch {
	case failures == len(checks):
		if failures > 0 {
			status = Unhealthy
		}
	case failures > 0:
		status = Degraded
	}

	return Report{Status: status, Checks: checks}
}

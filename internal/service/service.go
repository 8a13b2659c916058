// Package service is the single request entry point: route the query, run
// the selected action and render the outcome as text.
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kamusis/opsroute/internal/audit"
	"github.com/kamusis/opsroute/internal/entity"
	"github.com/kamusis/opsroute/internal/executor"
	"github.com/kamusis/opsroute/internal/router"
)

// Matcher selects an action for a query.
type Matcher interface {
	Match(ctx context.Context, query string) (router.Match, error)
}

// Runner executes an action.
type Runner interface {
	Run(ctx context.Context, actionID, query string) executor.Outcome
}

// Result is the full trace of one handled request.
type Result struct {
	Match   router.Match
	Outcome executor.Outcome
	Text    string
	Server  string
	Issue   string
}

type Service struct {
	router   Matcher
	runner   Runner
	recorder *audit.Recorder
	log      *zap.Logger
}

// New wires the service. recorder may be nil.
func New(m Matcher, r Runner, recorder *audit.Recorder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{router: m, runner: r, recorder: recorder, log: logger.Named("service")}
}

// Handle turns a query into a human-readable result. The only error is a
// configuration error from the router; action failures come back as text.
func (s *Service) Handle(ctx context.Context, query string) (string, error) {
	res, err := s.HandleDetailed(ctx, query)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// HandleDetailed is Handle with the match and outcome exposed.
func (s *Service) HandleDetailed(ctx context.Context, query string) (Result, error) {
	var res Result
	res.Server, _ = entity.ServerName(query)
	res.Issue, _ = entity.IssueType(query)

	m, err := s.router.Match(ctx, query)
	if err != nil {
		s.log.Error("routing failed", zap.Error(err))
		return res, fmt.Errorf("route query: %w", err)
	}
	res.Match = m

	res.Outcome = s.runner.Run(ctx, m.ActionID, query)
	res.Text = Render(res.Outcome)

	s.log.Info("handled query",
		zap.String("action", m.ActionID),
		zap.String("phrase", m.Phrase),
		zap.Float64("distance", m.Distance),
		zap.Stringer("status", res.Outcome.Status),
		zap.String("server", res.Server),
		zap.String("issue", res.Issue))

	s.recorder.Record(audit.Record{
		QueryHash:  audit.HashQuery(query),
		ActionID:   m.ActionID,
		Phrase:     m.Phrase,
		Distance:   m.Distance,
		Status:     res.Outcome.Status.String(),
		ExitCode:   res.Outcome.ExitCode,
		DurationMS: res.Outcome.Duration.Milliseconds(),
		Server:     res.Server,
		Issue:      res.Issue,
		Error:      res.Outcome.RawError,
	})
	return res, nil
}

// Render maps an outcome to the text shown to the caller. It never includes
// the query.
func Render(o executor.Outcome) string {
	switch o.Status {
	case executor.Success:
		if o.Output == "" {
			return "action completed with no output"
		}
		return o.Output
	case executor.NoMatch:
		return "no relevant action found for this request"
	case executor.NotFound:
		return fmt.Sprintf("action missing: %s is not available", o.ActionID)
	case executor.Timeout:
		return fmt.Sprintf("action failed: %s timed out: %s", o.ActionID, o.RawError)
	default:
		return fmt.Sprintf("action failed: %s: %s", o.ActionID, o.RawError)
	}
}

// Package mcp exposes the scheduling engine as MCP tools for agents.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/mcp-go"
	"github.com/google/uuid"

	"github.com/felixgeelhaar/meridian/internal/app"
	availabilityApp "github.com/felixgeelhaar/meridian/internal/availability/application"
	policyQueries "github.com/felixgeelhaar/meridian/internal/policy/application/queries"
	policy "github.com/felixgeelhaar/meridian/internal/policy/domain"
	schedulingCommands "github.com/felixgeelhaar/meridian/internal/scheduling/application/commands"
	schedulingQueries "github.com/felixgeelhaar/meridian/internal/scheduling/application/queries"
	"github.com/felixgeelhaar/meridian/internal/scheduling/application/services"
	"github.com/felixgeelhaar/meridian/internal/scheduling/domain"
	"github.com/felixgeelhaar/meridian/internal/shared/apperr"
)

// ToolDependencies provides handlers and the acting user for MCP tools.
type ToolDependencies struct {
	Container *app.Container
	// UserID is the user every tool call acts for.
	UserID string
}

type availabilityInput struct {
	Start       string `json:"start" jsonschema:"required"`
	End         string `json:"end" jsonschema:"required"`
	Mode        string `json:"mode,omitempty"`
	Granularity int    `json:"granularity,omitempty"`
	AccountID   string `json:"account_id,omitempty"`
}

type resolveInput struct {
	From string `json:"from_account_id" jsonschema:"required"`
	To   string `json:"to_account_id" jsonschema:"required"`
}

type proposeInput struct {
	Title                 string                 `json:"title,omitempty"`
	OrganizerAccountID    string                 `json:"organizer_account_id,omitempty"`
	DurationMinutes       int                    `json:"duration_minutes" jsonschema:"required"`
	WindowStart           string                 `json:"window_start" jsonschema:"required"`
	WindowEnd             string                 `json:"window_end" jsonschema:"required"`
	ParticipantAccountIDs []string               `json:"participant_account_ids" jsonschema:"required"`
	Constraints           domain.SoftConstraints `json:"constraints,omitempty"`
}

type sessionInput struct {
	SessionID string `json:"session_id" jsonschema:"required"`
}

type commitInput struct {
	SessionID   string `json:"session_id" jsonschema:"required"`
	CandidateID string `json:"candidate_id" jsonschema:"required"`
}

// Tools implements the tool handlers.
type Tools struct {
	c      *app.Container
	userID string
}

// NewTools validates deps and creates Tools.
func NewTools(deps ToolDependencies) (*Tools, error) {
	if deps.Container == nil {
		return nil, errors.New("container is required")
	}
	if deps.UserID == "" {
		return nil, errors.New("user id is required")
	}
	return &Tools{c: deps.Container, userID: deps.UserID}, nil
}

// RegisterTools registers the scheduling tools on srv.
func RegisterTools(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return errors.New("server is required")
	}
	t, err := NewTools(deps)
	if err != nil {
		return err
	}

	srv.Tool("availability.get").
		Description("Effective availability of the user's accounts over a window of at most 7 days").
		Handler(t.Availability)

	srv.Tool("policy.resolve").
		Description("Detail level one owned account grants another, and whether it is the default").
		Handler(t.Resolve)

	srv.Tool("scheduling.propose").
		Description("Open a scheduling session and generate ranked candidate slots").
		Handler(t.Propose)

	srv.Tool("scheduling.candidates").
		Description("Ranked candidates of a session, best first").
		Handler(t.Candidates)

	srv.Tool("scheduling.commit").
		Description("Book a candidate after re-checking every participant's calendar").
		Handler(t.Commit)

	srv.Tool("scheduling.cancel").
		Description("Cancel a session that has not been held").
		Handler(t.Cancel)

	return nil
}

// Availability handles availability.get.
func (t *Tools) Availability(ctx context.Context, in availabilityInput) (*availabilityApp.AvailabilityResult, error) {
	start, err := parseTime("start", in.Start)
	if err != nil {
		return nil, err
	}
	end, err := parseTime("end", in.End)
	if err != nil {
		return nil, err
	}
	granularity := in.Granularity
	if granularity == 0 {
		granularity = 30
	}
	res, err := t.c.GetAvailabilityHandler.Handle(ctx, availabilityApp.GetAvailabilityQuery{
		UserID:             t.userID,
		AccountID:          in.AccountID,
		Start:              start,
		End:                end,
		GranularityMinutes: granularity,
		Mode:               in.Mode,
	})
	return res, toolError(err)
}

// Resolve handles policy.resolve.
func (t *Tools) Resolve(ctx context.Context, in resolveInput) (*policyQueries.ResolveResult, error) {
	res, err := t.c.ResolveHandler.Handle(ctx, policyQueries.ResolveQuery{
		UserID:   t.userID,
		MatrixID: policy.MatrixIDFor(t.userID),
		From:     in.From,
		To:       in.To,
	})
	return res, toolError(err)
}

// Propose handles scheduling.propose.
func (t *Tools) Propose(ctx context.Context, in proposeInput) (*services.SessionView, error) {
	start, err := parseTime("window_start", in.WindowStart)
	if err != nil {
		return nil, err
	}
	end, err := parseTime("window_end", in.WindowEnd)
	if err != nil {
		return nil, err
	}
	view, err := t.c.ProposeHandler.Handle(ctx, schedulingCommands.ProposeCommand{
		UserID:                t.userID,
		OrganizerAccountID:    in.OrganizerAccountID,
		Title:                 in.Title,
		DurationMinutes:       in.DurationMinutes,
		WindowStart:           start,
		WindowEnd:             end,
		ParticipantAccountIDs: in.ParticipantAccountIDs,
		Constraints:           in.Constraints,
	})
	return view, toolError(err)
}

// Candidates handles scheduling.candidates.
func (t *Tools) Candidates(ctx context.Context, in sessionInput) (*schedulingQueries.CandidatesResult, error) {
	id, err := parseUUID("session_id", in.SessionID)
	if err != nil {
		return nil, err
	}
	res, err := t.c.SessionQueries.Candidates(ctx, schedulingQueries.CandidatesQuery{UserID: t.userID, SessionID: id})
	return res, toolError(err)
}

// Commit handles scheduling.commit.
func (t *Tools) Commit(ctx context.Context, in commitInput) (*services.SessionView, error) {
	sessionID, err := parseUUID("session_id", in.SessionID)
	if err != nil {
		return nil, err
	}
	candidateID, err := parseUUID("candidate_id", in.CandidateID)
	if err != nil {
		return nil, err
	}
	view, err := t.c.CommitHandler.Handle(ctx, schedulingCommands.CommitCommand{
		UserID:      t.userID,
		SessionID:   sessionID,
		CandidateID: candidateID,
	})
	return view, toolError(err)
}

// Cancel handles scheduling.cancel.
func (t *Tools) Cancel(ctx context.Context, in sessionInput) (*services.SessionView, error) {
	id, err := parseUUID("session_id", in.SessionID)
	if err != nil {
		return nil, err
	}
	view, err := t.c.CancelHandler.Handle(ctx, schedulingCommands.CancelCommand{UserID: t.userID, SessionID: id})
	return view, toolError(err)
}

func parseTime(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, apperr.Validation(field, "is required")
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, apperr.Validation(field, "must be an RFC 3339 timestamp")
	}
	return parsed, nil
}

func parseUUID(field, value string) (uuid.UUID, error) {
	if value == "" {
		return uuid.Nil, apperr.Validation(field, "is required")
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, apperr.Validation(field, "must be a UUID")
	}
	return id, nil
}

// toolError keeps domain errors readable and hides internal causes.
func toolError(err error) error {
	if err == nil {
		return nil
	}
	if apperr.IsDomain(err) {
		return fmt.Errorf("%s: %s", apperr.KindOf(err), apperr.Message(err))
	}
	return errors.New(apperr.Message(err))
}

package mcp

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/felixgeelhaar/mcp-go"

	policyQueries "github.com/felixgeelhaar/meridian/internal/policy/application/queries"
	schedulingQueries "github.com/felixgeelhaar/meridian/internal/scheduling/application/queries"
)

// RegisterResources exposes the user's policy matrix and sessions.
func RegisterResources(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return errors.New("server is required")
	}
	t, err := NewTools(deps)
	if err != nil {
		return err
	}

	srv.Resource("meridian://policies").
		Name("Policy Matrix").
		Description("Detail levels between the user's accounts").
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, _ map[string]string) (*mcp.ResourceContent, error) {
			view, err := t.c.GetMatrixHandler.Handle(ctx, policyQueries.GetMatrixQuery{UserID: t.userID})
			if err != nil {
				return nil, toolError(err)
			}
			return jsonResource(uri, view)
		})

	srv.Resource("meridian://sessions").
		Name("Scheduling Sessions").
		Description("The user's scheduling sessions").
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, _ map[string]string) (*mcp.ResourceContent, error) {
			views, err := t.c.SessionQueries.List(ctx, schedulingQueries.ListSessionsQuery{UserID: t.userID})
			if err != nil {
				return nil, toolError(err)
			}
			return jsonResource(uri, views)
		})

	return nil
}

func jsonResource(uri string, v any) (*mcp.ResourceContent, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return &mcp.ResourceContent{
		URI:      uri,
		MimeType: "application/json",
		Text:     string(data),
	}, nil
}

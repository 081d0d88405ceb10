package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/middleware"
)

// ServeConfig configures the MCP HTTP listener.
type ServeConfig struct {
	Addr      string
	AuthToken string
	Version   string
}

// NewServer builds an MCP server with every tool and resource registered.
func NewServer(deps ToolDependencies, version string) (*mcp.Server, error) {
	srv := mcp.NewServer(mcp.ServerInfo{
		Name:    "meridian-mcp",
		Version: version,
		Capabilities: mcp.Capabilities{
			Tools:     true,
			Resources: true,
		},
	})
	if err := RegisterTools(srv, deps); err != nil {
		return nil, err
	}
	if err := RegisterResources(srv, deps); err != nil {
		return nil, err
	}
	return srv, nil
}

// Serve runs the MCP server until ctx is cancelled.
func Serve(ctx context.Context, cfg ServeConfig, deps ToolDependencies, logger *slog.Logger) error {
	if cfg.Addr == "" {
		return errors.New("mcp address is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	srv, err := NewServer(deps, cfg.Version)
	if err != nil {
		return err
	}

	adapter := mcpLogger{logger: logger}
	stack := middleware.DefaultStack(adapter)
	if cfg.AuthToken != "" {
		authenticator := middleware.BearerTokenAuthenticator(middleware.StaticTokens(map[string]*middleware.Identity{
			cfg.AuthToken: {ID: "mcp", Name: "mcp"},
		}))
		stack = append([]middleware.Middleware{middleware.Auth(authenticator, middleware.WithAuthLogger(adapter))}, stack...)
	} else {
		logger.Warn("MCP auth token not set; requests will be unauthenticated")
	}

	logger.Info("mcp server listening", "addr", cfg.Addr, "user_id", deps.UserID)
	return mcp.ServeHTTPWithMiddleware(ctx, srv, cfg.Addr, nil, mcp.WithMiddleware(stack...))
}

type mcpLogger struct {
	logger *slog.Logger
}

func (l mcpLogger) Info(msg string, fields ...middleware.Field) {
	l.logger.Info(msg, fieldsToArgs(fields)...)
}

func (l mcpLogger) Error(msg string, fields ...middleware.Field) {
	l.logger.Error(msg, fieldsToArgs(fields)...)
}

func (l mcpLogger) Debug(msg string, fields ...middleware.Field) {
	l.logger.Debug(msg, fieldsToArgs(fields)...)
}

func (l mcpLogger) Warn(msg string, fields ...middleware.Field) {
	l.logger.Warn(msg, fieldsToArgs(fields)...)
}

func fieldsToArgs(fields []middleware.Field) []any {
	args := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		args = append(args, field.Key, field.Value)
	}
	return args
}

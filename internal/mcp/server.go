package mcp

import (
	"log/slog"
	"time"

	"github.com/agentcoord/coordbus/internal/config"
	"github.com/agentcoord/coordbus/internal/metrics"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ServerConfig bundles what NewServer needs: the domain services to
// dispatch against, the tool profile to expose, and logging/metrics.
type ServerConfig struct {
	Services    Services
	Tools       config.ToolsConfig
	CallTimeout time.Duration
	Recorder    *metrics.Recorder
	Logger      *slog.Logger
}

// NewServer creates and configures an MCP server: doc resources, traffic
// logging middleware, and every tool selected by cfg.Tools.Profile.
func NewServer(cfg ServerConfig) *sdkmcp.Server {
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "coordbus",
		Version: "0.1.0",
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       cfg.Logger,
	})

	registerDocResources(server)

	server.AddReceivingMiddleware(sessionMiddleware())
	server.AddReceivingMiddleware(trafficLoggingMiddleware(cfg.Logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(cfg.Logger, "outbound"))

	handler := NewHandler(cfg.Services, cfg.Recorder, cfg.CallTimeout, cfg.Logger)
	RegisterTools(server, handler, cfg.Tools)

	return server
}

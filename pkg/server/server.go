// Package server exposes the capture engine as MCP tools over JSON-RPC.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/devstroop/console-mcp/internal/buildinfo"
	"github.com/devstroop/console-mcp/pkg/capture"
	"github.com/devstroop/console-mcp/pkg/config"
	"github.com/devstroop/console-mcp/pkg/providers"
	"github.com/devstroop/console-mcp/pkg/transport/rpc"
)

// ProtocolVersion is the MCP revision this server speaks.
const ProtocolVersion = "2024-11-05"

// Name identifies the server in the initialize handshake.
const Name = "console-mcp"

// Server routes MCP requests to the tool handlers.
type Server struct {
	rpc      *rpc.Server
	engine   *capture.Engine
	registry *providers.Registry
	cfg      *config.Config
	tools    map[string]tool
	logger   *slog.Logger
}

// New creates a server and registers its handlers.
func New(cfg *config.Config, registry *providers.Registry, engine *capture.Engine, logger *slog.Logger) *Server {
	s := &Server{
		rpc:      rpc.NewServer(logger),
		engine:   engine,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	}
	s.tools = s.toolSet()
	s.registerHandlers()
	return s
}

// ServeStdio serves one MCP session over r and w until r closes.
func (s *Server) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	s.logger.Info("serving on stdio", "version", buildinfo.Version)
	return s.rpc.Serve(ctx, r, w)
}

// Listen serves MCP sessions on a unix socket until ctx is cancelled.
func (s *Server) Listen(ctx context.Context, socketPath string) error {
	return s.rpc.Listen(ctx, socketPath)
}

// Shutdown closes the socket listener and its connections.
func (s *Server) Shutdown() {
	s.rpc.Shutdown()
}

func (s *Server) registerHandlers() {
	s.rpc.Handle(rpc.MethodInitialize, s.handleInitialize)
	s.rpc.Handle(rpc.MethodInitialized, s.handleInitialized)
	s.rpc.Handle(rpc.MethodPing, s.handlePing)
	s.rpc.Handle(rpc.MethodToolsList, s.handleToolsList)
	s.rpc.Handle(rpc.MethodToolsCall, s.handleToolsCall)
}

// InitializeResult is the response to initialize.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      ServerInfo     `json:"serverInfo"`
}

// ServerInfo names this implementation.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func (s *Server) handleInitialize(_ context.Context, req rpc.Request) (any, error) {
	var params struct {
		ProtocolVersion string `json:"protocolVersion"`
		ClientInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"clientInfo"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, rpc.Errorf(rpc.CodeInvalidParams, "invalid initialize params: %v", err)
		}
	}
	s.logger.Info("client initialized", "client", params.ClientInfo.Name, "client_version", params.ClientInfo.Version, "protocol", params.ProtocolVersion)
	return InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: map[string]any{
			"tools":   map[string]any{},
			"logging": map[string]any{},
		},
		ServerInfo: ServerInfo{Name: Name, Version: buildinfo.Version},
	}, nil
}

func (s *Server) handleInitialized(_ context.Context, _ rpc.Request) (any, error) {
	return nil, nil
}

func (s *Server) handlePing(_ context.Context, _ rpc.Request) (any, error) {
	return struct{}{}, nil
}

// Tool describes one tool in tools/list.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"inputSchema"`
}

func (s *Server) handleToolsList(_ context.Context, _ rpc.Request) (any, error) {
	return map[string]any{"tools": s.Tools()}, nil
}

// CallToolParams is the tools/call payload.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Meta      *struct {
		ProgressToken any `json:"progressToken,omitempty"`
	} `json:"_meta,omitempty"`
}

// TextContent is a text block in a tool result.
type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallToolResult is the tools/call response.
type CallToolResult struct {
	Content []TextContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

func textResult(text string) CallToolResult {
	return CallToolResult{Content: []TextContent{{Type: "text", Text: text}}}
}

func errorResult(text string) CallToolResult {
	return CallToolResult{Content: []TextContent{{Type: "text", Text: text}}, IsError: true}
}

func (s *Server) handleToolsCall(ctx context.Context, req rpc.Request) (any, error) {
	var params CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, rpc.Errorf(rpc.CodeInvalidParams, "invalid tools/call params: %v", err)
	}
	if _, ok := s.tools[params.Name]; !ok {
		return nil, rpc.Errorf(rpc.CodeInvalidParams, "unknown tool: %s", params.Name)
	}

	var progress any
	if params.Meta != nil {
		progress = params.Meta.ProgressToken
	}
	return s.Call(ctx, params.Name, params.Arguments, progress), nil
}

// Call runs a tool directly. Tool failures, including invalid patterns and
// producers that cannot start, come back as an error result rather than an
// error. When progressToken is non-nil, live tools report each line as a
// progress notification on the calling connection; a client too slow to
// keep up misses lines rather than delaying the result.
func (s *Server) Call(ctx context.Context, name string, args json.RawMessage, progressToken any) CallToolResult {
	t, ok := s.tools[name]
	if !ok {
		return errorResult(fmt.Sprintf("unknown tool: %s", name))
	}

	var a Args
	if len(args) > 0 && string(args) != "null" {
		if err := json.Unmarshal(args, &a); err != nil {
			return errorResult(fmt.Sprintf("invalid arguments: %v", err))
		}
	}

	logger := s.logger.With("tool", name)
	logger.Debug("tool call", "source", a.Source)

	cc := callContext{logger: logger}
	if progressToken != nil {
		ps := newProgressSender(rpc.NotifierFrom(ctx), progressToken)
		cc.progress = ps.offer
		defer func() {
			if dropped := ps.close(); dropped > 0 {
				logger.Debug("progress lines dropped", "dropped", dropped)
			}
		}()
	}

	text, err := t.run(ctx, a, cc)
	if err != nil {
		logger.Warn("tool failed", "err", err)
		return errorResult(describeError(err))
	}
	return textResult(text)
}

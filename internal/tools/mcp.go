package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	appLog "icalmcp/internal/log"
)

// ServerName is the implementation name announced to MCP clients.
const ServerName = "icalmcp"

// NewMCPServer registers every tool and resource of s on an MCP server. Tool
// results are plain text, including failures.
func NewMCPServer(s *Service, version string) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version}, nil)
	for _, t := range toolList {
		srv.AddTool(&mcp.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		}, s.toolHandler(t.Name))
	}
	for _, r := range resourceList {
		srv.AddResource(&mcp.Resource{
			URI:         r.URI,
			Name:        r.Name,
			Description: r.Description,
			MIMEType:    "text/plain",
		}, s.readResource)
	}
	return srv
}

func (s *Service) toolHandler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text := s.Call(ctx, name, req.Params.Arguments)
		return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}, nil
	}
}

func (s *Service) readResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	text, found := s.ReadResource(ctx, uri)
	if !found {
		return nil, mcp.ResourceNotFoundError(uri)
	}
	return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{
		{URI: uri, MIMEType: "text/plain", Text: text},
	}}, nil
}

// ServeStdio speaks MCP on stdin and stdout until the client disconnects or
// ctx is done.
func ServeStdio(ctx context.Context, s *Service, version string) error {
	appLog.Info("serving MCP on stdio", "version", version)
	err := NewMCPServer(s, version).Run(ctx, &mcp.StdioTransport{})
	appLog.Info("stdio closed")
	return err
}

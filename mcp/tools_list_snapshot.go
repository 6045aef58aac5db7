package mcp

import (
	"context"
	"encoding/json"
	"io"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"pkt.systems/cratermcp/client"
	"pkt.systems/cratermcp/internal/version"
	"pkt.systems/cratermcp/session"
	"pkt.systems/pslog"
)

// ToolsListResponse mirrors a canonical JSON-RPC tools/list result payload.
type ToolsListResponse struct {
	ID      int                 `json:"id"`
	JSONRPC string              `json:"jsonrpc"`
	Result  ToolsListResultBody `json:"result"`
}

// ToolsListResultBody is the JSON-RPC "result" object for tools/list.
type ToolsListResultBody struct {
	Tools      []*mcpsdk.Tool `json:"tools"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

// BuildToolsListResponse builds a canonical tools/list payload in-process.
//
// No listener is started and Crater is never contacted; only the tool
// registry is materialized.
func BuildToolsListResponse(ctx context.Context) (ToolsListResponse, error) {
	logger := pslog.NewStructured(context.Background(), io.Discard).With("app", "cratermcp")
	sess, err := session.New(session.Config{BaseURL: "http://localhost"}, session.WithLogger(logger))
	if err != nil {
		return ToolsListResponse{}, err
	}
	cli, err := client.New("", sess, client.WithLogger(logger))
	if err != nil {
		return ToolsListResponse{}, err
	}
	mcpSrv := newMCPServer(NewDispatcher(NewRegistry(cli), logger))

	mcpClient := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    "cratermcp-tools-list",
		Version: version.Current(),
	}, nil)

	t1, t2 := mcpsdk.NewInMemoryTransports()
	ss, err := mcpSrv.Connect(ctx, t1, nil)
	if err != nil {
		return ToolsListResponse{}, err
	}
	defer ss.Close()

	cs, err := mcpClient.Connect(ctx, t2, nil)
	if err != nil {
		return ToolsListResponse{}, err
	}
	defer cs.Close()

	list, err := cs.ListTools(ctx, &mcpsdk.ListToolsParams{})
	if err != nil {
		return ToolsListResponse{}, err
	}

	return ToolsListResponse{
		ID:      1,
		JSONRPC: "2.0",
		Result: ToolsListResultBody{
			Tools:      list.Tools,
			NextCursor: list.NextCursor,
		},
	}, nil
}

// BuildToolsListResponseJSON returns pretty-printed tools/list JSON payload.
func BuildToolsListResponseJSON(ctx context.Context) ([]byte, error) {
	resp, err := BuildToolsListResponse(ctx)
	if err != nil {
		return nil, err
	}
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

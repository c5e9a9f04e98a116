package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// statsResourceURI is the supplemented resource mirroring get_stats, for
// clients that prefer to read state rather than call a tool for it.
const statsResourceURI = "chunkhound://stats"

// registerStatsResource registers the chunkhound://stats resource.
func (s *Server) registerStatsResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "stats",
			URI:         statsResourceURI,
			Description: "Indexed file/chunk/embedding counts and active-embedder compatibility, same payload as get_stats.",
			MIMEType:    "application/json",
		},
		s.handleStatsResource,
	)
}

// handleStatsResource serves chunkhound://stats by delegating to the same
// path get_stats uses.
func (s *Server) handleStatsResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	if req.Params.URI != statsResourceURI {
		return nil, NewResourceNotFoundError(req.Params.URI)
	}

	output, err := s.buildStats(ctx)
	if err != nil {
		return nil, MapError(err)
	}

	encoded, err := json.Marshal(output)
	if err != nil {
		return nil, err
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      statsResourceURI,
				MIMEType: "application/json",
				Text:     string(encoded),
			},
		},
	}, nil
}

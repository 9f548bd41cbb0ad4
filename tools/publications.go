package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/athapong/litgraph/pkg/publications"
	"github.com/athapong/litgraph/pkg/scholar"
	"github.com/athapong/litgraph/util"
)

// RegisterPublicationTools exposes read access to the publication table.
func RegisterPublicationTools(s *server.MCPServer, store *publications.Store) {
	lookupTool := mcp.NewTool("publication_lookup",
		mcp.WithDescription("Look up a committed publication by DOI. Returns its row id, partition, provenance and metadata."),
		mcp.WithString("doi", mcp.Required(), mcp.Description("DOI of the publication, with or without a resolver prefix")),
	)
	s.AddTool(lookupTool, util.ErrorGuard(publicationLookupHandler(store)))

	partitionTool := mcp.NewTool("publication_partition",
		mcp.WithDescription("List the publications committed in one partition, ordered by row id."),
		mcp.WithNumber("partition", mcp.Required(), mcp.Description("Partition number, starting at 0")),
	)
	s.AddTool(partitionTool, util.ErrorGuard(publicationPartitionHandler(store)))

	stateTool := mcp.NewTool("publication_state",
		mcp.WithDescription("Report the resumable state of the publication table."),
	)
	s.AddTool(stateTool, util.ErrorGuard(util.AdaptLegacyHandler(func(map[string]interface{}) (*mcp.CallToolResult, error) {
		st := store.State()
		return mcp.NewToolResultText(fmt.Sprintf("table_exists: %t\nlast_partition: %d\nmax_row_id: %d\nknown: %d\n",
			st.TableExists, st.LastPartition, st.MaxRowID, st.KnownCount)), nil
	})))
}

func publicationLookupHandler(store *publications.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		doi, ok := request.GetArguments()["doi"].(string)
		if !ok || strings.TrimSpace(doi) == "" {
			return mcp.NewToolResultError("doi must be a non-empty string"), nil
		}
		doi = scholar.NormalizeDOI(doi)

		rec, err := store.QueryByID(ctx, doi)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to query publication: %v", err)), nil
		}
		if rec == nil {
			return mcp.NewToolResultText(fmt.Sprintf("No publication with DOI %s", doi)), nil
		}
		return mcp.NewToolResultText(formatRecord(rec, true)), nil
	}
}

func publicationPartitionHandler(store *publications.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		part, ok := request.GetArguments()["partition"].(float64)
		if !ok || part < 0 {
			return mcp.NewToolResultError("partition must be a non-negative number"), nil
		}

		recs, err := store.QueryByPartition(ctx, int(part))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to query partition: %v", err)), nil
		}
		if len(recs) == 0 {
			return mcp.NewToolResultText(fmt.Sprintf("Partition %d is empty or missing", int(part))), nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Partition %d: %d publications\n\n", int(part), len(recs))
		for i := range recs {
			b.WriteString(formatRecord(&recs[i], false))
			b.WriteString("\n")
		}
		return mcp.NewToolResultText(b.String()), nil
	}
}

func formatRecord(rec *publications.Record, withAbstract bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %s (partition %d, %s)\n", rec.ID, rec.DOI, rec.Part, rec.Source)
	fmt.Fprintf(&b, "  %s", rec.Title)
	if rec.Year != "" {
		fmt.Fprintf(&b, " (%s)", rec.Year)
	}
	b.WriteString("\n")
	if rec.Authors != "" {
		fmt.Fprintf(&b, "  %s\n", rec.Authors)
	}
	if withAbstract && rec.Abstract != "" {
		fmt.Fprintf(&b, "\n%s\n", rec.Abstract)
	}
	return b.String()
}

package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/athapong/litgraph/pkg/graph"
	"github.com/athapong/litgraph/util"
)

var (
	countedLabels = []string{
		graph.LabelPublication, graph.LabelSentence, graph.LabelLexicalForm, graph.LabelNamedEntity, graph.LabelTrait,
		graph.LabelFact, graph.LabelPolarity, graph.LabelModality, graph.LabelAttribution,
	}
	countedTypes = []string{
		graph.RelPartOfSentence, graph.RelAppearsIn, graph.RelAppearsInLowercase,
		graph.RelHasLexicalForm, graph.RelCooccursWith, graph.RelSynonymWith,
		graph.RelHasFact, graph.RelFactAppearsIn, graph.RelOpenRelatedWith,
		graph.RelHasPolarity, graph.RelHasModality, graph.RelHasAttribution,
	}
)

// RegisterGraphTools exposes read-only inspection of the knowledge graph.
func RegisterGraphTools(s *server.MCPServer, u *graph.Upserter) {
	countsTool := mcp.NewTool("graph_counts",
		mcp.WithDescription("Count nodes per label and relationships per type in the knowledge graph."),
	)
	s.AddTool(countsTool, util.ErrorGuard(graphCountsHandler(u)))

	nodeTool := mcp.NewTool("graph_node",
		mcp.WithDescription("Fetch one node by label and uid and show its labels and properties."),
		mcp.WithString("label", mcp.Required(), mcp.Description("Primary label, e.g. PUBLICATION, SENTENCE, LEXICAL_FORM")),
		mcp.WithString("uid", mcp.Required(), mcp.Description("Unique id of the node within the label")),
	)
	s.AddTool(nodeTool, util.ErrorGuard(graphNodeHandler(u)))
}

func graphCountsHandler(u *graph.Upserter) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var b strings.Builder
		b.WriteString("Nodes:\n")
		for _, l := range countedLabels {
			fmt.Fprintf(&b, "- %s: %d\n", l, u.CountByLabel(ctx, l))
		}
		b.WriteString("\nRelationships:\n")
		for _, t := range countedTypes {
			fmt.Fprintf(&b, "- %s: %d\n", t, u.CountByType(ctx, t))
		}
		return mcp.NewToolResultText(b.String()), nil
	}
}

func graphNodeHandler(u *graph.Upserter) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		label, _ := args["label"].(string)
		uid, _ := args["uid"].(string)
		if !graph.ValidName(label) {
			return mcp.NewToolResultError(fmt.Sprintf("invalid label %q", label)), nil
		}
		if uid == "" {
			return mcp.NewToolResultError("uid must be a non-empty string"), nil
		}

		n := u.FindNode(ctx, label, uid)
		if n == nil {
			return mcp.NewToolResultText(fmt.Sprintf("No %s node with uid %s", label, uid)), nil
		}

		keys := make([]string, 0, len(n.Props))
		for k := range n.Props {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var b strings.Builder
		fmt.Fprintf(&b, "%s %s\nlabels: %s\n", n.Label, n.UID, strings.Join(n.Labels, ", "))
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %v\n", k, n.Props[k])
		}
		return mcp.NewToolResultText(b.String()), nil
	}
}

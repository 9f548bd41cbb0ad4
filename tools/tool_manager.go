package tools

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/athapong/litgraph/util"
)

// Groups lists every tool group the server can register, keyed by its ENABLE_TOOLS name.
var Groups = []struct {
	Name string
	Desc string
}{
	{"publications", "Publication table lookup: publication_lookup, publication_partition, publication_state"},
	{"graph", "Knowledge graph inspection: graph_counts, graph_node"},
}

// EnabledTools reports whether group is enabled by ENABLE_TOOLS. An empty variable enables everything.
func EnabledTools(group string) bool {
	enabled := os.Getenv("ENABLE_TOOLS")
	return enabled == "" || slices.Contains(strings.Split(enabled, ","), group)
}

func RegisterToolManagerTool(s *server.MCPServer) {
	tool := mcp.NewTool("tool_manager",
		mcp.WithDescription("List the tool groups of this server and whether each one is enabled"),
	)
	s.AddTool(tool, util.ErrorGuard(util.AdaptLegacyHandler(toolManagerHandler)))
}

func toolManagerHandler(map[string]interface{}) (*mcp.CallToolResult, error) {
	var b strings.Builder
	b.WriteString("Tool groups:\n")
	for _, g := range Groups {
		status := "disabled"
		if EnabledTools(g.Name) {
			status = "enabled"
		}
		fmt.Fprintf(&b, "- %s (%s) [%s]\n", g.Name, g.Desc, status)
	}
	if os.Getenv("ENABLE_TOOLS") == "" {
		b.WriteString("\nAll groups are enabled (ENABLE_TOOLS is empty)\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

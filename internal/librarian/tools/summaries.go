// Package tools defines the function tools the answer model may call.
package tools

import (
	"context"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/smart-librarian/server/internal/catalog"
)

// SummariesToolName is the only tool offered to the answer model.
const SummariesToolName = "get_summaries_by_titles"

// SummariesInput is the tool argument shape.
type SummariesInput struct {
	Titles []string `json:"titles"`
}

// NewSummariesTool returns the lookup tool over the extended catalog. Every
// requested title gets an entry in the result map; unresolvable titles map to
// the NOT_FOUND sentinel rather than failing the call.
func NewSummariesTool(store *catalog.Store) tool.InvokableTool {
	return utils.NewTool(
		SummariesToolInfo(),
		func(ctx context.Context, in *SummariesInput) (map[string]string, error) {
			out := make(map[string]string, len(in.Titles))
			for _, title := range in.Titles {
				out[title] = store.Resolve(title)
			}
			return out, nil
		},
	)
}

// SummariesToolInfo describes the tool to the model.
func SummariesToolInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: SummariesToolName,
		Desc: "Return a JSON map {title: full_extended_summary} for all requested titles.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"titles": {
				Type:     "array",
				ElemInfo: &schema.ParameterInfo{Type: "string"},
				Desc:     "Exact book titles, exactly as in candidates (case-sensitive).",
				Required: true,
			},
		}),
	}
}

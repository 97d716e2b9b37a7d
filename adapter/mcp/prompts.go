package mcp

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/mcp-go"
)

// RegisterPrompts registers the staff prompts.
func RegisterPrompts(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return fmt.Errorf("server is required")
	}

	srv.Prompt("fill_openings").
		Description("Match waitlist requests against the openings of a service and draft outreach").
		Handler(func(ctx context.Context, args map[string]string) (*mcp.PromptResult, error) {
			service := args["service"]
			if service == "" {
				service = "<service slug>"
			}
			return &mcp.PromptResult{
				Description: "Fill openings from the waitlist",
				Messages: []mcp.PromptMessage{
					{
						Role: string(mcp.RoleUser),
						Content: mcp.TextContent{
							Type: "text",
							Text: fmt.Sprintf(`Help me fill open sessions for the service %q.

1. Read the service with the service.get tool.
2. List bookable start times for the next 7 days with slots.available.
3. List the waitlist with waitlist.list.

Pair each waitlist request with the earliest opening inside its preferred
window (any opening when it has none), oldest request first, and use each
opening once. For every pair draft a short, warm message offering the time
in the client's time zone. Do not include anything from intake forms.`, service),
						},
					},
				},
			}, nil
		})

	srv.Prompt("weekly_availability").
		Description("Review next week's availability for gaps, overlaps with the calendar and blocked windows").
		Handler(func(ctx context.Context, args map[string]string) (*mcp.PromptResult, error) {
			return &mcp.PromptResult{
				Description: "Weekly availability review",
				Messages: []mcp.PromptMessage{
					{
						Role: string(mcp.RoleUser),
						Content: mcp.TextContent{
							Type: "text",
							Text: `Review my availability for the coming week using the
therapia://availability/week resource and the therapia://services resource.

- Summarize bookable hours per day.
- Point out windows imported from the external calendar (source
  external_calendar) and windows I blocked by hand.
- Flag days with no availability at all.
- Suggest windows to block or open with availability.set_status, but ask
  before changing anything.`,
						},
					},
				},
			}, nil
		})

	return nil
}

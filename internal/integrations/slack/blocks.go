package slackbot

import (
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"ingrealloc/internal/report"
)

// resultBlocks renders one section per item: a header, the department table
// as a code block, then context lines for drift and quarterly usage.
func resultBlocks(result AllocationResult) []slack.Block {
	var blocks []slack.Block
	for i, item := range result.Items {
		if i > 0 {
			blocks = append(blocks, slack.NewDividerBlock())
		}
		blocks = append(blocks,
			slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, report.Title(item), false, false)),
			slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType,
				fmt.Sprintf("Requested: *%s*\n```%s```", report.Requested(item), itemTable(item)), false, false), nil, nil),
		)
		if drift := item.Drift(); drift != 0 {
			blocks = append(blocks, slack.NewContextBlock("",
				slack.NewTextBlockObject(slack.MarkdownType,
					fmt.Sprintf("Rounding drift: %+g (allocated %d)", drift, item.AllocatedTotal()), false, false)))
		}
		if len(item.Quarters) > 0 {
			blocks = append(blocks, slack.NewContextBlock("",
				slack.NewTextBlockObject(slack.MarkdownType,
					"Usage by quarter: "+report.Quarters(item.Quarters), false, false)))
		}
	}
	if len(result.Unmatched) > 0 {
		blocks = append(blocks, slack.NewContextBlock("",
			slack.NewTextBlockObject(slack.MarkdownType,
				"No history: "+strings.Join(result.Unmatched, ", "), false, false)))
	}
	return blocks
}

func itemTable(item ItemAllocation) string {
	width := len("Department")
	for _, d := range item.Departments {
		if len(d.Department) > width {
			width = len(d.Department)
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-*s  %14s  %9s\n", width, "Department", "Proportion (%)", "Allocated")
	for _, d := range item.Departments {
		fmt.Fprintf(&b, "%-*s  %14s  %9d\n", width, d.Department, report.Percent(d.Percentage), d.Allocated)
	}
	return strings.TrimRight(b.String(), "\n")
}

// fallbackText is the notification text for clients that cannot show blocks.
func fallbackText(result AllocationResult) string {
	names := make([]string, 0, len(result.Items))
	for _, item := range result.Items {
		names = append(names, item.Identifier)
	}
	return "Allocation for " + strings.Join(names, ", ")
}

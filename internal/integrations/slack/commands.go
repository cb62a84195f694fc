package slackbot

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"ingrealloc/internal/allocation"
	"ingrealloc/internal/refresh"
)

// maxListedItems caps /alloc-items output to stay under Slack's message limit.
const maxListedItems = 100

func (b *Bot) handleAllocate(ctx context.Context, cmd slack.SlashCommand) {
	text := strings.TrimSpace(cmd.Text)
	if text == "" {
		b.openItemsModal(ctx, cmd)
		return
	}

	lines, err := allocation.ParseRequest(text)
	if err != nil {
		b.postEphemeral(cmd, fmt.Sprintf("Could not read request: %v\nUsage: `%s flour=50, sugar=20`", err, cmdAllocate))
		return
	}
	b.runAllocation(ctx, cmd.ChannelID, cmd.UserID, lines)
}

// runAllocation validates, allocates and posts the result to the user.
func (b *Bot) runAllocation(ctx context.Context, channelID, userID string, lines []RequestLine) {
	lines = allocation.NewRequest(lines)
	if err := allocation.Validate(lines, b.cfg.MaxItems); err != nil {
		b.postEphemeralTo(channelID, userID, allocation.UserMessage(err))
		return
	}

	result, err := b.session.Allocate(ctx, lines)
	if err != nil {
		b.logger.Error("Allocation failed", zap.Error(err))
		b.postEphemeralTo(channelID, userID, fmt.Sprintf("Could not load usage data: %v", err))
		return
	}
	b.logger.Info("Allocation computed",
		zap.String("user", userID),
		zap.Int("items", len(result.Items)),
		zap.Int("unmatched", len(result.Unmatched)),
		zap.String("version", result.DataVersion))

	if result.Empty() {
		b.postEphemeralTo(channelID, userID, allocation.NoMatchMessage)
		return
	}

	_, err = b.api.PostEphemeralContext(ctx, channelID, userID,
		slack.MsgOptionText(fallbackText(result), false),
		slack.MsgOptionBlocks(resultBlocks(result)...))
	if err != nil {
		b.logger.Error("Error posting allocation", zap.Error(err))
	}
}

func (b *Bot) handleItems(ctx context.Context, cmd slack.SlashCommand) {
	items, err := b.session.Items(ctx, cmd.Text)
	if err != nil {
		b.postEphemeral(cmd, fmt.Sprintf("Could not load usage data: %v", err))
		return
	}
	if len(items) == 0 {
		b.postEphemeral(cmd, "No items found.")
		return
	}

	shown := items
	if len(shown) > maxListedItems {
		shown = shown[:maxListedItems]
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "*Items (%d)*\n", len(items))
	for _, name := range shown {
		fmt.Fprintf(&sb, "• %s\n", name)
	}
	if len(items) > len(shown) {
		fmt.Fprintf(&sb, "_...and %d more. Narrow with `%s <filter>`._", len(items)-len(shown), cmdItems)
	}
	b.postEphemeral(cmd, sb.String())
}

func (b *Bot) handleRefresh(ctx context.Context, cmd slack.SlashCommand) {
	b.postEphemeral(cmd, "Refreshing usage data...")
	res := refresh.Run(ctx, b.session)
	if res.Err != nil {
		b.logger.Warn("Manual refresh failed", zap.Error(res.Err), zap.Bool("stale", res.Stale))
	} else {
		b.logger.Info("Manual refresh complete",
			zap.String("version", res.Version),
			zap.Int("records", res.Kept),
			zap.Duration("took", res.Took))
	}
	b.postEphemeral(cmd, refresh.FormatSummary(res))
}

func (b *Bot) handleHelp(cmd slack.SlashCommand) {
	lines := []string{
		"*Ingredient allocation commands*",
		fmt.Sprintf("`%s` - open the allocation form (pick up to %d items, then enter quantities)", cmdAllocate, b.cfg.MaxItems),
		fmt.Sprintf("`%s flour=50, sugar=20` - allocate without the form", cmdAllocate),
		fmt.Sprintf("`%s [filter]` - list items with usage history", cmdItems),
		fmt.Sprintf("`%s` - reload usage data from the source", cmdRefresh),
		fmt.Sprintf("`%s` - show this help", cmdHelp),
	}
	if err := b.session.LastError(); err != nil {
		lines = append(lines, "", fmt.Sprintf("_Last refresh failed: %v_", err))
	}
	b.postEphemeral(cmd, strings.Join(lines, "\n"))
}

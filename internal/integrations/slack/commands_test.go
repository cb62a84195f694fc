package slackbot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingrealloc/internal/allocation"
)

func TestAllocateInlinePostsBlocks(t *testing.T) {
	bot, mock := newTestBot(t)

	bot.handleSlashCommand(context.Background(), slashCommand(cmdAllocate, "flour=50"))

	posts := mock.messages()
	require.Len(t, posts, 1)
	assert.Equal(t, "chat.postEphemeral", posts[0].Method)
	assert.Equal(t, "C1", posts[0].Channel)
	assert.Equal(t, "U1", posts[0].User)
	assert.Equal(t, "Allocation for flour", posts[0].Text)
	assert.Contains(t, posts[0].Blocks, "Kitchen")
	assert.Contains(t, posts[0].Blocks, "70.00")
	assert.Contains(t, posts[0].Blocks, "Requested: *50 KG*")
	assert.Contains(t, posts[0].Blocks, "Usage by quarter: 2024Q1 100")
}

func TestAllocateInlineValidation(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "zero quantity", text: "flour=0", want: "Please select valid item(s) and enter a quantity."},
		{name: "negative", text: "flour=-2", want: "Quantities cannot be negative."},
		{name: "no history", text: "saffron=3", want: allocation.NoMatchMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bot, mock := newTestBot(t)
			bot.handleSlashCommand(context.Background(), slashCommand(cmdAllocate, tt.text))
			posts := mock.messages()
			require.Len(t, posts, 1)
			assert.Equal(t, tt.want, posts[0].Text)
		})
	}
}

func TestAllocateInlineParseError(t *testing.T) {
	bot, mock := newTestBot(t)

	bot.handleSlashCommand(context.Background(), slashCommand(cmdAllocate, "flour=lots"))

	posts := mock.messages()
	require.Len(t, posts, 1)
	assert.Contains(t, posts[0].Text, "Could not read request")
	assert.Contains(t, posts[0].Text, "/allocate flour=50, sugar=20")
}

func TestAllocateWithoutTextOpensModal(t *testing.T) {
	bot, mock := newTestBot(t)

	bot.handleSlashCommand(context.Background(), slashCommand(cmdAllocate, "  "))

	assert.Equal(t, 1, mock.openedViews())
	assert.Empty(t, mock.messages())
}

func TestItemsCommandFilters(t *testing.T) {
	bot, mock := newTestBot(t)

	bot.handleSlashCommand(context.Background(), slashCommand(cmdItems, "sugar"))

	posts := mock.messages()
	require.Len(t, posts, 1)
	assert.Contains(t, posts[0].Text, "*Items (2)*")
	assert.Contains(t, posts[0].Text, "• Sugar")
	assert.Contains(t, posts[0].Text, "• Brown Sugar")
	assert.NotContains(t, posts[0].Text, "Flour")
}

func TestItemsCommandNoMatch(t *testing.T) {
	bot, mock := newTestBot(t)

	bot.handleSlashCommand(context.Background(), slashCommand(cmdItems, "caviar"))

	posts := mock.messages()
	require.Len(t, posts, 1)
	assert.Equal(t, "No items found.", posts[0].Text)
}

func TestRefreshCommandReportsSummary(t *testing.T) {
	bot, mock := newTestBot(t)

	bot.handleSlashCommand(context.Background(), slashCommand(cmdRefresh, ""))

	posts := mock.messages()
	require.Len(t, posts, 2)
	assert.Equal(t, "Refreshing usage data...", posts[0].Text)
	assert.Contains(t, posts[1].Text, "Loaded 4 records from static")
}

func TestHelpListsCommands(t *testing.T) {
	bot, mock := newTestBot(t)

	bot.handleSlashCommand(context.Background(), slashCommand(cmdHelp, ""))

	posts := mock.messages()
	require.Len(t, posts, 1)
	for _, cmd := range []string{cmdAllocate, cmdItems, cmdRefresh, cmdHelp} {
		assert.Contains(t, posts[0].Text, cmd)
	}
	assert.Contains(t, posts[0].Text, "up to 10 items")
}

func TestPostToReportChannel(t *testing.T) {
	bot, mock := newTestBot(t)

	bot.PostToReportChannel(context.Background(), "Scheduled refresh: ok")

	posts := mock.messages()
	require.Len(t, posts, 1)
	assert.Equal(t, "chat.postMessage", posts[0].Method)
	assert.Equal(t, "CREPORT", posts[0].Channel)

	bot.cfg.ReportChannelID = ""
	bot.PostToReportChannel(context.Background(), "ignored")
	assert.Len(t, mock.messages(), 1)
}

package slackbot

import (
	"context"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
	"go.uber.org/zap"

	"ingrealloc/internal/session"
)

const (
	cmdAllocate = "/allocate"
	cmdItems    = "/alloc-items"
	cmdRefresh  = "/alloc-refresh"
	cmdHelp     = "/alloc-help"
)

// Slack drops an interaction that is not acked within three seconds.
const defaultSuggestionTimeout = 2 * time.Second

type Bot struct {
	api     *slack.Client
	cfg     Config
	session *session.Session
	logger  *zap.Logger

	suggestionTimeout time.Duration
}

func New(cfg Config, api *slack.Client, sess *session.Session, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{
		api:               api,
		cfg:               cfg,
		session:           sess,
		logger:            logger.Named("slack"),
		suggestionTimeout: defaultSuggestionTimeout,
	}
}

// Run connects via Socket Mode and serves until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	client := socketmode.New(b.api)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-client.Events:
				if !ok {
					return
				}
				b.dispatch(ctx, client, evt)
			}
		}
	}()

	b.logger.Info("Slack bot connecting via Socket Mode")
	return client.RunContext(ctx)
}

func (b *Bot) dispatch(ctx context.Context, client *socketmode.Client, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnected:
		b.logger.Info("Slack bot connected")
	case socketmode.EventTypeSlashCommand:
		client.Ack(*evt.Request)
		cmd, ok := evt.Data.(slack.SlashCommand)
		if !ok {
			return
		}
		b.logger.Info("Slash command received",
			zap.String("command", cmd.Command),
			zap.String("user", cmd.UserID),
			zap.String("channel", cmd.ChannelID))
		go b.handleSlashCommand(ctx, cmd)
	case socketmode.EventTypeInteractive:
		callback, ok := evt.Data.(slack.InteractionCallback)
		if !ok {
			client.Ack(*evt.Request)
			return
		}
		go b.handleInteraction(ctx, client, *evt.Request, callback)
	}
}

// handleInteraction acks one interaction. Suggestions and view submissions
// answer through the ack payload, so they are built before acking.
func (b *Bot) handleInteraction(ctx context.Context, client *socketmode.Client, req socketmode.Request, callback slack.InteractionCallback) {
	switch callback.Type {
	case slack.InteractionTypeBlockSuggestion:
		client.Ack(req, b.itemSuggestions(ctx, callback.Value))
	case slack.InteractionTypeViewSubmission:
		if resp := b.handleViewSubmission(ctx, callback); resp != nil {
			client.Ack(req, resp)
		} else {
			client.Ack(req)
		}
	default:
		client.Ack(req)
	}
}

func (b *Bot) handleSlashCommand(ctx context.Context, cmd slack.SlashCommand) {
	switch cmd.Command {
	case cmdAllocate:
		b.handleAllocate(ctx, cmd)
	case cmdItems:
		b.handleItems(ctx, cmd)
	case cmdRefresh:
		b.handleRefresh(ctx, cmd)
	case cmdHelp:
		b.handleHelp(cmd)
	}
}

func (b *Bot) postEphemeral(cmd slack.SlashCommand, text string) {
	b.postEphemeralTo(cmd.ChannelID, cmd.UserID, text)
}

func (b *Bot) postEphemeralTo(channelID, userID, text string) {
	_, err := b.api.PostEphemeral(channelID, userID, slack.MsgOptionText(text, false))
	if err != nil {
		b.logger.Error("Error posting ephemeral", zap.Error(err))
	}
}

// PostToReportChannel posts text to the configured report channel, if any.
func (b *Bot) PostToReportChannel(ctx context.Context, text string) {
	if b.cfg.ReportChannelID == "" {
		return
	}
	if _, _, err := b.api.PostMessageContext(ctx, b.cfg.ReportChannelID, slack.MsgOptionText(text, false)); err != nil {
		b.logger.Error("Error posting to report channel", zap.String("channel", b.cfg.ReportChannelID), zap.Error(err))
	}
}

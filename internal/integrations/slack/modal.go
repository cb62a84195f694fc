package slackbot

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"ingrealloc/internal/allocation"
)

const (
	callbackSelectItems = "alloc_select_items"
	callbackQuantities  = "alloc_quantities"

	itemsBlockID    = "items_block"
	itemsActionID   = "items_select"
	qtyBlockPrefix  = "qty_"
	firstQtyBlockID = qtyBlockPrefix + "0"
	qtyActionID     = "qty"

	modalTitle = "Allocate ingredients"

	// Slack limits for external select options.
	maxSuggestions    = 100
	maxOptionTextLen  = 75
	maxOptionValueLen = 150
)

// modalMetadata travels between the two modal steps in PrivateMetadata.
type modalMetadata struct {
	ChannelID string   `json:"channel_id"`
	Items     []string `json:"items,omitempty"`
}

func encodeMetadata(m modalMetadata) string {
	b, _ := json.Marshal(m)
	return string(b)
}

func decodeMetadata(s string) (modalMetadata, error) {
	var m modalMetadata
	if s == "" {
		return m, nil
	}
	err := json.Unmarshal([]byte(s), &m)
	return m, err
}

func plain(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.PlainTextType, text, false, false)
}

func (b *Bot) openItemsModal(ctx context.Context, cmd slack.SlashCommand) {
	view := buildItemsView(cmd.ChannelID, b.cfg.MaxItems)
	if _, err := b.api.OpenViewContext(ctx, cmd.TriggerID, view); err != nil {
		b.logger.Error("Error opening allocation modal", zap.Error(err))
		b.postEphemeral(cmd, fmt.Sprintf("Could not open the allocation form: %v", err))
	}
}

// buildItemsView is step one: pick up to maxItems items from an external
// select backed by the usage table.
func buildItemsView(channelID string, maxItems int) slack.ModalViewRequest {
	if maxItems <= 0 {
		maxItems = allocation.DefaultMaxItems
	}
	selectEl := slack.NewOptionsMultiSelectBlockElement(slack.MultiOptTypeExternal, plain("Search items"), itemsActionID).
		WithMaxSelectedItems(maxItems).
		WithMinQueryLength(0)

	blocks := []slack.Block{
		slack.NewInputBlock(itemsBlockID,
			plain("Items"),
			plain(fmt.Sprintf("Select up to %d items.", maxItems)),
			selectEl),
	}
	return slack.ModalViewRequest{
		Type:            slack.VTModal,
		CallbackID:      callbackSelectItems,
		Title:           plain(modalTitle),
		Submit:          plain("Next"),
		Close:           plain("Cancel"),
		PrivateMetadata: encodeMetadata(modalMetadata{ChannelID: channelID}),
		Blocks:          slack.Blocks{BlockSet: blocks},
	}
}

// buildQuantitiesView is step two: one number input per selected item.
func buildQuantitiesView(channelID string, items []string) slack.ModalViewRequest {
	blocks := make([]slack.Block, 0, len(items))
	for i, item := range items {
		input := slack.NewNumberInputBlockElement(plain("0"), qtyActionID, true).
			WithMinValue("0").
			WithInitialValue("0")
		blocks = append(blocks,
			slack.NewInputBlock(qtyBlockPrefix+strconv.Itoa(i), plain(truncate(item, 2000)), nil, input).WithOptional(true))
	}
	return slack.ModalViewRequest{
		Type:            slack.VTModal,
		CallbackID:      callbackQuantities,
		Title:           plain(modalTitle),
		Submit:          plain("Allocate"),
		Close:           plain("Cancel"),
		PrivateMetadata: encodeMetadata(modalMetadata{ChannelID: channelID, Items: items}),
		Blocks:          slack.Blocks{BlockSet: blocks},
	}
}

// itemSuggestions answers the external select with item names containing
// query. A load that outlasts suggestionTimeout yields no options; it keeps
// running with ctx so a later keystroke finds the table ready.
func (b *Bot) itemSuggestions(ctx context.Context, query string) slack.OptionsResponse {
	empty := slack.OptionsResponse{Options: []*slack.OptionBlockObject{}}

	type lookup struct {
		items []string
		err   error
	}
	done := make(chan lookup, 1)
	go func() {
		items, err := b.session.Items(ctx, query)
		done <- lookup{items: items, err: err}
	}()

	timer := time.NewTimer(b.suggestionTimeout)
	defer timer.Stop()
	select {
	case res := <-done:
		if res.err != nil {
			b.logger.Warn("Item suggestions unavailable", zap.Error(res.err))
			return empty
		}
		return slack.OptionsResponse{Options: itemOptions(res.items)}
	case <-timer.C:
		b.logger.Warn("Item suggestions timed out", zap.String("query", query), zap.Duration("timeout", b.suggestionTimeout))
		return empty
	case <-ctx.Done():
		return empty
	}
}

func itemOptions(items []string) []*slack.OptionBlockObject {
	opts := make([]*slack.OptionBlockObject, 0, min(len(items), maxSuggestions))
	for _, item := range items {
		if len(opts) == maxSuggestions {
			break
		}
		opts = append(opts, slack.NewOptionBlockObject(optionValue(item), plain(truncate(item, maxOptionTextLen)), nil))
	}
	return opts
}

// optionValue fits an item name into Slack's option value limit. Long names
// are cut on a rune boundary and marked with an ellipsis; resolveOptionValues
// maps them back.
func optionValue(item string) string {
	if len(item) <= maxOptionValueLen {
		return item
	}
	const ellipsis = "…"
	cut := maxOptionValueLen - len(ellipsis)
	for cut > 0 && !utf8.RuneStart(item[cut]) {
		cut--
	}
	return item[:cut] + ellipsis
}

// resolveOptionValues replaces shortened option values with the full item
// names they were cut from. Values with no match are kept as they are.
func resolveOptionValues(values, names []string) []string {
	long := make(map[string]string)
	for _, name := range names {
		if len(name) > maxOptionValueLen {
			if _, dup := long[optionValue(name)]; !dup {
				long[optionValue(name)] = name
			}
		}
	}
	out := make([]string, len(values))
	for i, v := range values {
		if full, ok := long[v]; ok {
			v = full
		}
		out[i] = v
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// handleViewSubmission returns the payload to ack the submission with, or nil
// for a plain ack.
func (b *Bot) handleViewSubmission(ctx context.Context, cb slack.InteractionCallback) *slack.ViewSubmissionResponse {
	meta, err := decodeMetadata(cb.View.PrivateMetadata)
	if err != nil {
		b.logger.Warn("Bad modal metadata", zap.String("callback", cb.View.CallbackID), zap.Error(err))
		return nil
	}

	switch cb.View.CallbackID {
	case callbackSelectItems:
		items, err := selectedItems(cb.View.State, b.cfg.MaxItems)
		if err != nil {
			return slack.NewErrorsViewSubmissionResponse(map[string]string{itemsBlockID: allocation.UserMessage(err)})
		}
		items = resolveOptionValues(items, b.session.Current().ItemNames())
		view := buildQuantitiesView(meta.ChannelID, items)
		return slack.NewUpdateViewSubmissionResponse(&view)

	case callbackQuantities:
		lines, err := quantityLines(cb.View.State, meta.Items)
		if err == nil {
			lines = allocation.NewRequest(lines)
			err = allocation.Validate(lines, b.cfg.MaxItems)
		}
		if err != nil {
			return slack.NewErrorsViewSubmissionResponse(map[string]string{firstQtyBlockID: allocation.UserMessage(err)})
		}
		channelID := meta.ChannelID
		if channelID == "" {
			channelID = cb.User.ID
		}
		go b.runAllocation(context.WithoutCancel(ctx), channelID, cb.User.ID, lines)
		return slack.NewClearViewSubmissionResponse()
	}
	return nil
}

func selectedItems(state *slack.ViewState, maxItems int) ([]string, error) {
	if maxItems <= 0 {
		maxItems = allocation.DefaultMaxItems
	}
	if state == nil {
		return nil, allocation.ErrEmptyRequest
	}
	action, ok := state.Values[itemsBlockID][itemsActionID]
	if !ok || len(action.SelectedOptions) == 0 {
		return nil, allocation.ErrEmptyRequest
	}
	items := make([]string, 0, len(action.SelectedOptions))
	for _, opt := range action.SelectedOptions {
		if v := strings.TrimSpace(opt.Value); v != "" {
			items = append(items, v)
		}
	}
	if len(items) == 0 {
		return nil, allocation.ErrEmptyRequest
	}
	if len(items) > maxItems {
		return nil, fmt.Errorf("%w: %d selected, limit is %d", allocation.ErrTooManyItems, len(items), maxItems)
	}
	return items, nil
}

// quantityLines pairs the step-one items with the step-two inputs. Blank
// inputs count as zero.
func quantityLines(state *slack.ViewState, items []string) ([]RequestLine, error) {
	lines := make([]RequestLine, 0, len(items))
	for i, item := range items {
		line := RequestLine{Identifier: item}
		if state != nil {
			raw := strings.TrimSpace(state.Values[qtyBlockPrefix+strconv.Itoa(i)][qtyActionID].Value)
			if raw != "" {
				v, err := strconv.ParseFloat(raw, 64)
				if err != nil {
					return nil, fmt.Errorf("invalid quantity for %s: %q", item, raw)
				}
				line.Quantity = v
			}
		}
		lines = append(lines, line)
	}
	return lines, nil
}

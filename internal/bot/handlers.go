package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"statusbot/internal/activity"
	"statusbot/internal/model"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to Status Bot!

Schedule Twitter status updates. Each update is checked for duplicate content before it goes out.

Quick start:
1. /account <username> - add a Twitter account
2. /new <username> | <name> | <message> | <when> - schedule a status
3. /check <id> - see whether it can be published

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Campaigns:
/campaigns - show all campaigns
/campaign <name> [| <interval>] - add a campaign, e.g. Spring | +10 days
/interval <campaign_id> <interval|none> - set the repeat interval

Accounts:
/accounts - show all accounts
/account <username> [name] - add an account

Status updates:
/new <username> | <name> | <message> [| <when>] [| <campaign_id>] - schedule
/list - show all status updates
/info <id> - details
/edit <id> | <message> [| <when>] - change an unpublished status
/check <id> - dry-run the publish checks
/publish <id> - publish now
/view <id> - show a published status
/remove <id> - delete

<when> is now, +2 hours or 2006-01-02 15:04 (UTC). Without <when> the status goes out on the next scheduler run.`)
}

func (b *Bot) handleCampaigns(ctx context.Context, chatID int64) {
	campaigns, err := b.store.ListCampaigns(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatCampaignList(campaigns))
}

func (b *Bot) handleCampaign(ctx context.Context, chatID int64, args string) {
	name, interval, err := ParseCampaignArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	c := &model.Campaign{ChatID: chatID, Name: name, Interval: interval}
	if err := b.store.CreateCampaign(ctx, c); err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to save campaign: %v", err))
		return
	}

	text := fmt.Sprintf("Campaign added!\n#%d %s (%s)", c.ID, c.Name, intervalLabel(c.Interval))
	if v := b.evaluator.CheckCampaign(c); !v.OK {
		text += "\n\nWarning: " + v.Message
	}
	b.reply(chatID, text)
}

func (b *Bot) handleInterval(ctx context.Context, chatID int64, args string) {
	id, interval, err := ParseIntervalArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	c, err := b.store.GetCampaign(ctx, id)
	if err != nil || c.ChatID != chatID {
		b.reply(chatID, fmt.Sprintf("Campaign #%d not found.", id))
		return
	}

	c.Interval = interval
	if err := b.store.UpdateCampaign(ctx, c); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	text := fmt.Sprintf("Campaign #%d now repeats %s.", id, intervalLabel(interval))
	if interval == "" {
		text = fmt.Sprintf("Campaign #%d no longer repeats.", id)
	}
	if v := b.evaluator.CheckCampaign(c); !v.OK {
		text += "\n\nWarning: " + v.Message
	}
	b.reply(chatID, text)
}

func (b *Bot) handleAccounts(ctx context.Context, chatID int64) {
	locations, err := b.store.ListLocations(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatLocationList(locations))
}

func (b *Bot) handleAccount(ctx context.Context, chatID int64, args string) {
	username, name, err := ParseAccountArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	existing, err := b.store.FindLocationByUsername(ctx, chatID, username)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	if existing != nil {
		b.reply(chatID, fmt.Sprintf("Account @%s already exists.", existing.Username))
		return
	}

	l := &model.Location{ChatID: chatID, Username: username, Name: name}
	if err := b.store.CreateLocation(ctx, l); err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to save account: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Account @%s added.", l.Username))
}

func (b *Bot) handleNew(ctx context.Context, chatID int64, args string) {
	in, err := ParseNewArgs(args, b.clock.Now())
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	in.ChatID = chatID

	created, err := b.handler.Create(ctx, in)
	if err != nil && (created == nil || created.Status == nil) {
		b.reply(chatID, describeError("Failed to create status update", err))
		return
	}

	a := created.Status.Operation.Activity
	text := fmt.Sprintf("Status update #%d \"%s\" scheduled for %s.", a.ID, a.Name, a.StartDate.UTC().Format(dateLayout))
	switch {
	case err != nil:
		text += "\n\n" + describeError("Publishing failed", err)
	case created.Publish != nil:
		text = FormatPublishResult(a.Name, created.Publish)
	}
	b.replyWithKeyboard(chatID, text, activityKeyboard(a.ID))
}

func (b *Bot) handleList(ctx context.Context, chatID int64) {
	activities, err := b.store.ListActivities(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatActivityList(activities))
}

func (b *Bot) handleInfo(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /info <id>")
		return
	}
	if _, ok := b.ownedActivity(ctx, chatID, id); !ok {
		return
	}

	st, err := b.handler.GetContent(ctx, id)
	if err != nil || st == nil {
		b.reply(chatID, fmt.Sprintf("Status update #%d has no content.", id))
		return
	}
	if st.IsPublished() {
		b.reply(chatID, FormatActivityInfo(st))
		return
	}
	b.replyWithKeyboard(chatID, FormatActivityInfo(st), activityKeyboard(id))
}

func (b *Bot) handleEdit(ctx context.Context, chatID int64, args string) {
	id, in, err := ParseEditArgs(args, b.clock.Now())
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	if _, ok := b.ownedActivity(ctx, chatID, id); !ok {
		return
	}

	edited, err := b.handler.Edit(ctx, id, in)
	switch {
	case errors.Is(err, activity.ErrPublished):
		b.reply(chatID, fmt.Sprintf("Status update #%d has already been published and cannot be changed.", id))
		return
	case err != nil && (edited == nil || edited.Status == nil):
		b.reply(chatID, describeError("Failed to edit status update", err))
		return
	case err != nil:
		b.reply(chatID, describeError("Status update saved, publishing failed", err))
		return
	}

	if edited.Publish != nil {
		b.reply(chatID, FormatPublishResult(edited.Status.Operation.Activity.Name, edited.Publish))
		return
	}
	a := edited.Status.Operation.Activity
	b.reply(chatID, fmt.Sprintf("Status update #%d updated, scheduled for %s.", id, a.StartDate.UTC().Format(dateLayout)))
}

func (b *Bot) handleCheck(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /check <id>")
		return
	}
	if _, ok := b.ownedActivity(ctx, chatID, id); !ok {
		return
	}

	verdict, err := b.handler.Check(ctx, id)
	if err != nil {
		b.reply(chatID, describeError("Check failed", err))
		return
	}
	b.reply(chatID, FormatVerdict(id, verdict))
}

func (b *Bot) handlePublish(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /publish <id>")
		return
	}
	a, ok := b.ownedActivity(ctx, chatID, id)
	if !ok {
		return
	}

	res, err := b.handler.Publish(ctx, id)
	if err != nil {
		b.reply(chatID, describeError("Publishing failed", err))
		return
	}
	b.reply(chatID, FormatPublishResult(a.Name, res))
}

func (b *Bot) handleView(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /view <id>")
		return
	}
	if _, ok := b.ownedActivity(ctx, chatID, id); !ok {
		return
	}

	view, err := b.handler.Read(ctx, id)
	if errors.Is(err, activity.ErrNotPublished) {
		b.reply(chatID, fmt.Sprintf("Status update #%d has not been published yet.", id))
		return
	}
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatView(view))
}

func (b *Bot) handleRemove(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /remove <id>")
		return
	}
	a, ok := b.ownedActivity(ctx, chatID, id)
	if !ok {
		return
	}

	if err := b.handler.Remove(ctx, id); err != nil {
		b.reply(chatID, fmt.Sprintf("Error deleting status update: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Status update #%d \"%s\" deleted.", id, a.Name))
}

// ownedActivity loads an activity of the chat and replies when it is missing.
func (b *Bot) ownedActivity(ctx context.Context, chatID, id int64) (*model.Activity, bool) {
	a, err := b.store.GetActivity(ctx, id)
	if err != nil || a.ChatID != chatID {
		b.reply(chatID, fmt.Sprintf("Status update #%d not found.", id))
		return nil, false
	}
	return a, true
}

func describeError(prefix string, err error) string {
	var verr *activity.ValidationError
	switch {
	case errors.As(err, &verr):
		return fmt.Sprintf("%s: invalid %s.", prefix, strings.Join(verr.Fields, ", "))
	default:
		return fmt.Sprintf("%s: %v", prefix, err)
	}
}

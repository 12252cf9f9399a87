package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	cmdCheck   = "check"
	cmdPublish = "publish"
)

func activityKeyboard(id int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Check", fmt.Sprintf("%s:%d", cmdCheck, id)),
			tgbotapi.NewInlineKeyboardButtonData("Publish now", fmt.Sprintf("%s:%d", cmdPublish, id)),
			tgbotapi.NewInlineKeyboardButtonData("Delete", fmt.Sprintf("delete_confirm:%d", id)),
		),
	)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	data := cb.Data
	chatID := cb.Message.Chat.ID

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	parts := strings.SplitN(data, ":", 2)
	if len(parts) != 2 {
		return
	}

	action := parts[0]
	idStr := parts[1]
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return
	}

	b.log.Info("callback",
		"action", action,
		"id", id,
		"chat_id", chatID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	switch action {
	case cmdCheck:
		b.handleCheck(ctx, chatID, idStr)
	case cmdPublish:
		b.handlePublish(ctx, chatID, idStr)
	case "delete_confirm":
		a, ok := b.ownedActivity(ctx, chatID, id)
		if !ok {
			return
		}
		b.replyWithKeyboard(chatID,
			fmt.Sprintf("Delete #%d \"%s\"? This cannot be undone.", id, a.Name),
			tgbotapi.NewInlineKeyboardMarkup(
				tgbotapi.NewInlineKeyboardRow(
					tgbotapi.NewInlineKeyboardButtonData("Yes, delete", fmt.Sprintf("delete:%d", id)),
					tgbotapi.NewInlineKeyboardButtonData("Cancel", "noop:0"),
				),
			),
		)
	case "delete":
		b.handleRemove(ctx, chatID, idStr)
	}
}

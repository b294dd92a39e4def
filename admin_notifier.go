package main

import (
	"fmt"
	"log"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// AdminNotifier pushes batch summaries to the operator's Telegram chat.
// With no token or chat id configured every method is a no-op, so the
// rest of the code calls it unconditionally.
type AdminNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewAdminNotifier(telegramAPIKey string, adminChatID int64) *AdminNotifier {
	if telegramAPIKey == "" || adminChatID == 0 {
		log.Println("Admin notifications disabled: no telegram credentials")
		return &AdminNotifier{}
	}
	bot, err := tgbotapi.NewBotAPI(telegramAPIKey)
	if err != nil {
		log.Printf("Admin notifications disabled: telegram init failed: %v", err)
		return &AdminNotifier{}
	}
	return &AdminNotifier{bot: bot, chatID: adminChatID}
}

func (n *AdminNotifier) Enabled() bool {
	return n != nil && n.bot != nil
}

func (n *AdminNotifier) NotifyBatch(summary *BatchSummary) {
	if !n.Enabled() || summary == nil {
		return
	}
	status := "✅"
	if summary.Failed > 0 {
		status = "⚠️"
	}
	text := fmt.Sprintf("%s Daily %s batch: %d/%d projects ok\nStored: %d  Skipped: %d  Failed: %d\nRU consumed: %d\nDuration: %s",
		status, summary.Variant, summary.Succeeded, summary.Projects,
		summary.KeywordsStored, summary.KeywordsSkipped, summary.KeywordsFailed,
		summary.RUsConsumed, summary.Duration.Round(time.Second))
	n.send(text)
}

func (n *AdminNotifier) NotifyError(context string, err error) {
	if !n.Enabled() || err == nil {
		return
	}
	n.send(fmt.Sprintf("🚨 %s: %v", context, err))
}

func (n *AdminNotifier) send(text string) {
	message := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(message); err != nil {
		log.Printf("Telegram notification failed: %v", err)
	}
}

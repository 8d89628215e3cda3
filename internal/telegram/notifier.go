package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/finvex/autotrader/internal/config"
)

type Notifier struct {
	bot     *tgbotapi.BotAPI
	chatID  int64
	enabled bool
	log     zerolog.Logger
}

func NewNotifier(cfg *config.Config, log zerolog.Logger) *Notifier {
	log = log.With().Str("component", "telegram").Logger()

	if !cfg.Telegram.Enabled {
		return &Notifier{enabled: false, log: log}
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		log.Error().Err(err).Msg("failed to create telegram bot")
		return &Notifier{enabled: false, log: log}
	}

	log.Info().Str("username", bot.Self.UserName).Msg("telegram bot connected")

	return &Notifier{
		bot:     bot,
		chatID:  cfg.Telegram.ChatID,
		enabled: true,
		log:     log,
	}
}

func (n *Notifier) NotifyOrderCreated(userID uint, symbol string, quantity int64, price, total float64) {
	msg := fmt.Sprintf("🟢 *BUY order created* %s\nUser: %d\nQty: %d @ %.2f\nReserved: %.2f",
		symbol, userID, quantity, price, total)
	n.send(msg)
}

func (n *Notifier) NotifyOrderExecuted(userID uint, symbol string, quantity int64, total float64) {
	msg := fmt.Sprintf("💰 *Order executed* %s\nUser: %d\nQty: %d\nSettled: %.2f",
		symbol, userID, quantity, total)
	n.send(msg)
}

func (n *Notifier) NotifyOrderFailed(userID uint, symbol, reason string) {
	msg := fmt.Sprintf("🔴 *Order failed* %s\nUser: %d\n%s", symbol, userID, reason)
	n.send(msg)
}

func (n *Notifier) NotifyRunSummary(created, skipped, failed int) {
	msg := fmt.Sprintf("📊 *Auto trading run*\nCreated: %d\nSkipped: %d\nFailed: %d",
		created, skipped, failed)
	n.send(msg)
}

func (n *Notifier) NotifyError(context string, err error) {
	msg := fmt.Sprintf("⚠️ *Error* [%s]\n%v", context, err)
	n.send(msg)
}

func (n *Notifier) NotifyStatus(message string) {
	n.send(message)
}

func (n *Notifier) send(text string) {
	if !n.enabled {
		return
	}

	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := n.bot.Send(msg); err != nil {
		n.log.Error().Err(err).Msg("send telegram message")
	}
}

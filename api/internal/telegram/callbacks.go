package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"xray-bot/api/internal/vision"
)

func (r *Router) handleCallback(cb tgbotapi.CallbackQuery) {
	_, _ = r.Bot.Request(tgbotapi.NewCallback(cb.ID, "")) // ack
	if cb.Message == nil {
		return
	}

	mode, err := vision.ParseMode(cb.Data)
	if err != nil {
		r.Log.Warn("unknown callback", zap.String("data", cb.Data))
		return
	}
	cid := cb.Message.Chat.ID
	r.Sessions.SetMode(sessionID(cb.From, cid), mode)

	text := fmt.Sprintf("You selected: %s. Upload an image to analyse.", modeLabel(mode))
	r.sendMsg(tgbotapi.NewEditMessageText(cid, cb.Message.MessageID, text))
}

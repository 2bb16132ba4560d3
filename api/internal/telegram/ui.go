package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"xray-bot/api/internal/vision"
)

const (
	textGreeting   = "Hello! Choose what you want to analyse:"
	textChooseMode = "Please choose an analysis type first with /start."
	textNotImage   = "Please send an image: a photo or an image file."
	textHelp       = "Send /start to choose an analysis type, then upload an X-ray image."
	textCaption    = "Analysis complete. See the result."
	textRestart    = "Press the button below to start again."
)

// Callback data кнопок выбора режима; vision.ParseMode понимает оба значения.
const (
	cbPneumonia = "pneumonia"
	cbFracture  = "fracture"
)

func makeModeKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(modeLabel(vision.Classification), cbPneumonia),
		tgbotapi.NewInlineKeyboardButtonData(modeLabel(vision.Detection), cbFracture),
	))
}

func makeRestartKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton("/start")))
	kb.ResizeKeyboard = true
	return kb
}

func modeLabel(m vision.Mode) string {
	if m == vision.Detection {
		return "Fracture"
	}
	return "Chest X-ray"
}

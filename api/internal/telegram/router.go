package telegram

import (
	"context"
	"io"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"xray-bot/api/internal/pipeline"
	"xray-bot/api/internal/report"
	"xray-bot/api/internal/session"
)

// Bot: та часть *tgbotapi.BotAPI, которой пользуется роутер.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Analyzer interface {
	Handle(ctx context.Context, req pipeline.Request, deliver pipeline.DeliverFunc) error
}

// Downloader отдаёт тело файла по прямой ссылке Telegram.
type Downloader func(ctx context.Context, url string) (io.ReadCloser, error)

type Router struct {
	Bot      Bot
	Sessions *session.Store
	Pipeline Analyzer
	Download Downloader
	Log      *zap.Logger

	// FailureMessage уходит пользователю, если снимок не удалось скачать или сохранить.
	FailureMessage string

	wg sync.WaitGroup
}

func NewRouter(bot Bot, sessions *session.Store, p Analyzer, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		Bot:            bot,
		Sessions:       sessions,
		Pipeline:       p,
		Download:       httpDownload,
		Log:            log,
		FailureMessage: report.DefaultFailure,
	}
}

// HandleUpdate never blocks on analysis: uploads run in their own goroutines.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.CallbackQuery != nil {
		r.handleCallback(*upd.CallbackQuery)
		return
	}
	if upd.Message == nil {
		return
	}
	msg := upd.Message

	if msg.IsCommand() {
		r.handleCommand(*msg)
		return
	}
	if len(msg.Photo) > 0 || msg.Document != nil {
		r.acceptImage(ctx, *msg)
		return
	}
	if strings.TrimSpace(msg.Text) != "" {
		r.send(msg.Chat.ID, textHelp)
	}
}

// Wait blocks until every started analysis has finished.
func (r *Router) Wait() { r.wg.Wait() }

func (r *Router) handleCommand(msg tgbotapi.Message) {
	cid := msg.Chat.ID
	switch msg.Command() {
	case "start":
		out := tgbotapi.NewMessage(cid, textGreeting)
		out.ReplyToMessageID = msg.MessageID
		out.ReplyMarkup = makeModeKeyboard()
		r.sendMsg(out)
	case "health":
		r.send(cid, "OK")
	default:
		r.send(cid, textHelp)
	}
}

func (r *Router) send(chatID int64, text string) {
	r.sendMsg(tgbotapi.NewMessage(chatID, text))
}

func (r *Router) reply(msg tgbotapi.Message, text string) {
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ReplyToMessageID = msg.MessageID
	r.sendMsg(out)
}

func (r *Router) sendMsg(c tgbotapi.Chattable) {
	if _, err := r.Bot.Send(c); err != nil {
		r.Log.Warn("telegram send failed", zap.Error(err))
	}
}

// sessionID is the user, not the chat, so the chosen mode follows the person.
func sessionID(u *tgbotapi.User, chatID int64) int64 {
	if u != nil {
		return u.ID
	}
	return chatID
}

package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"xray-bot/api/internal/pipeline"
	"xray-bot/api/internal/vision"
)

func (r *Router) acceptImage(ctx context.Context, msg tgbotapi.Message) {
	fileID, ok := imageFileID(msg)
	if !ok {
		r.reply(msg, textNotImage)
		return
	}
	sid := sessionID(msg.From, msg.Chat.ID)
	mode, ok := r.Sessions.Mode(sid)
	if !ok {
		r.reply(msg, textChooseMode)
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		unlock := r.Sessions.Lock(sid)
		defer unlock()
		r.analyse(ctx, msg, sid, fileID, mode)
	}()
}

func (r *Router) analyse(ctx context.Context, msg tgbotapi.Message, sid int64, fileID string, mode vision.Mode) {
	log := r.Log.With(zap.Int64("session", sid), zap.Int64("chat_id", msg.Chat.ID))

	url, err := r.Bot.GetFileDirectURL(fileID)
	if err != nil {
		log.Error("get file failed", zap.Error(err))
		r.reply(msg, r.FailureMessage)
		return
	}
	body, err := r.Download(ctx, url)
	if err != nil {
		log.Error("download failed", zap.Error(err))
		r.reply(msg, r.FailureMessage)
		return
	}
	defer body.Close()

	req := pipeline.Request{SessionID: strconv.FormatInt(sid, 10), Mode: mode, Upload: body}
	if err := r.Pipeline.Handle(ctx, req, r.deliverTo(msg)); err != nil {
		log.Error("analysis failed", zap.Error(err))
		r.reply(msg, r.FailureMessage)
	}
}

// deliverTo шлёт текст, затем размеченный снимок и клавиатуру перезапуска.
// Файл читается внутри Send, до того как pipeline его удалит.
func (r *Router) deliverTo(msg tgbotapi.Message) pipeline.DeliverFunc {
	cid := msg.Chat.ID
	return func(_ context.Context, out pipeline.Outcome) error {
		text := tgbotapi.NewMessage(cid, out.Text)
		text.ReplyToMessageID = msg.MessageID
		if _, err := r.Bot.Send(text); err != nil {
			return fmt.Errorf("send report: %w", err)
		}
		if out.Failed {
			return nil
		}
		if out.AnnotatedPath != "" {
			photo := tgbotapi.NewPhoto(cid, tgbotapi.FilePath(out.AnnotatedPath))
			photo.Caption = textCaption
			if _, err := r.Bot.Send(photo); err != nil {
				return fmt.Errorf("send photo: %w", err)
			}
		}
		restart := tgbotapi.NewMessage(cid, textRestart)
		restart.ReplyMarkup = makeRestartKeyboard()
		if _, err := r.Bot.Send(restart); err != nil {
			return fmt.Errorf("send keyboard: %w", err)
		}
		return nil
	}
}

// imageFileID берёт самое крупное фото или документ с image/* MIME.
func imageFileID(msg tgbotapi.Message) (string, bool) {
	if n := len(msg.Photo); n > 0 {
		return msg.Photo[n-1].FileID, true
	}
	if d := msg.Document; d != nil && strings.HasPrefix(strings.ToLower(d.MimeType), "image/") {
		return d.FileID, true
	}
	return "", false
}

func httpDownload(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}
	return resp.Body, nil
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}

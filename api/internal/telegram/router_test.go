package telegram

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"xray-bot/api/internal/artifact"
	"xray-bot/api/internal/pipeline"
	"xray-bot/api/internal/session"
	"xray-bot/api/internal/vision"
)

type MockBot struct {
	mock.Mock
}

func (m *MockBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return tgbotapi.Message{}, args.Error(0)
}

func (m *MockBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	args := m.Called(c)
	return &tgbotapi.APIResponse{Ok: true}, args.Error(0)
}

func (m *MockBot) GetFileDirectURL(fileID string) (string, error) {
	args := m.Called(fileID)
	return args.String(0), args.Error(1)
}

// sent returns every Chattable passed to Send, in order.
func (m *MockBot) sent() []tgbotapi.Chattable {
	var out []tgbotapi.Chattable
	for _, c := range m.Calls {
		if c.Method == "Send" {
			out = append(out, c.Arguments.Get(0).(tgbotapi.Chattable))
		}
	}
	return out
}

type MockAnalyzer struct {
	mock.Mock
}

func (m *MockAnalyzer) Handle(ctx context.Context, req pipeline.Request, deliver pipeline.DeliverFunc) error {
	return m.Called(ctx, req, deliver).Error(0)
}

const (
	userID = int64(100)
	chatID = int64(555)
)

func newRouter(bot *MockBot, an *MockAnalyzer) *Router {
	r := NewRouter(bot, session.NewStore(), an, nil)
	r.Download = func(context.Context, string) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("jpeg-bytes")), nil
	}
	return r
}

func command(text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID},
		Chat:      &tgbotapi.Chat{ID: chatID},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(strings.Fields(text)[0])}},
	}}
}

func photo() tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 2,
		From:      &tgbotapi.User{ID: userID},
		Chat:      &tgbotapi.Chat{ID: chatID},
		Photo: []tgbotapi.PhotoSize{
			{FileID: "small", Width: 90},
			{FileID: "large", Width: 1280},
		},
	}}
}

func TestRouter_Start(t *testing.T) {
	bot := new(MockBot)
	bot.On("Send", mock.Anything).Return(nil)
	r := newRouter(bot, new(MockAnalyzer))

	r.HandleUpdate(context.Background(), command("/start"))

	sent := bot.sent()
	require.Len(t, sent, 1)
	msg := sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, textGreeting, msg.Text)
	kb := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.Len(t, kb.InlineKeyboard[0], 2)
	assert.Equal(t, "Chest X-ray", kb.InlineKeyboard[0][0].Text)
	assert.Equal(t, cbPneumonia, *kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "Fracture", kb.InlineKeyboard[0][1].Text)
	assert.Equal(t, cbFracture, *kb.InlineKeyboard[0][1].CallbackData)
}

func TestRouter_Health(t *testing.T) {
	bot := new(MockBot)
	bot.On("Send", mock.Anything).Return(nil)
	r := newRouter(bot, new(MockAnalyzer))

	r.HandleUpdate(context.Background(), command("/health"))

	require.Len(t, bot.sent(), 1)
	assert.Equal(t, "OK", bot.sent()[0].(tgbotapi.MessageConfig).Text)
}

func TestRouter_CallbackSelectsMode(t *testing.T) {
	bot := new(MockBot)
	bot.On("Request", mock.Anything).Return(nil)
	bot.On("Send", mock.Anything).Return(nil)
	r := newRouter(bot, new(MockAnalyzer))

	r.HandleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb1",
		From:    &tgbotapi.User{ID: userID},
		Data:    cbFracture,
		Message: &tgbotapi.Message{MessageID: 9, Chat: &tgbotapi.Chat{ID: chatID}},
	}})

	mode, ok := r.Sessions.Mode(userID)
	require.True(t, ok)
	assert.Equal(t, vision.Detection, mode)

	bot.AssertCalled(t, "Request", mock.Anything)
	edit := bot.sent()[0].(tgbotapi.EditMessageTextConfig)
	assert.Equal(t, 9, edit.MessageID)
	assert.Equal(t, "You selected: Fracture. Upload an image to analyse.", edit.Text)
}

func TestRouter_PhotoWithoutMode(t *testing.T) {
	bot := new(MockBot)
	bot.On("Send", mock.Anything).Return(nil)
	an := new(MockAnalyzer)
	r := newRouter(bot, an)

	r.HandleUpdate(context.Background(), photo())
	r.Wait()

	assert.Equal(t, textChooseMode, bot.sent()[0].(tgbotapi.MessageConfig).Text)
	an.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything, mock.Anything)
}

func TestRouter_PhotoDeliversReport(t *testing.T) {
	bot := new(MockBot)
	bot.On("Send", mock.Anything).Return(nil)
	bot.On("GetFileDirectURL", "large").Return("https://files/large.jpg", nil)

	an := new(MockAnalyzer)
	an.On("Handle", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		req := args.Get(1).(pipeline.Request)
		assert.Equal(t, "100", req.SessionID)
		assert.Equal(t, vision.Classification, req.Mode)
		b, err := io.ReadAll(req.Upload)
		assert.NoError(t, err)
		assert.Equal(t, "jpeg-bytes", string(b))

		deliver := args.Get(2).(pipeline.DeliverFunc)
		err = deliver(context.Background(), pipeline.Outcome{Text: "Pneumonia (97.00%)", AnnotatedPath: "/tmp/100_annotated.jpg"})
		assert.NoError(t, err)
	}).Return(nil)

	r := newRouter(bot, an)
	r.Sessions.SetMode(userID, vision.Classification)

	r.HandleUpdate(context.Background(), photo())
	r.Wait()

	sent := bot.sent()
	require.Len(t, sent, 3)
	assert.Equal(t, "Pneumonia (97.00%)", sent[0].(tgbotapi.MessageConfig).Text)
	ph := sent[1].(tgbotapi.PhotoConfig)
	assert.Equal(t, textCaption, ph.Caption)
	assert.Equal(t, tgbotapi.FilePath("/tmp/100_annotated.jpg"), ph.File)
	restart := sent[2].(tgbotapi.MessageConfig)
	kb := restart.ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	assert.Equal(t, "/start", kb.Keyboard[0][0].Text)
	an.AssertExpectations(t)
}

func TestRouter_NothingFoundSkipsPhoto(t *testing.T) {
	bot := new(MockBot)
	bot.On("Send", mock.Anything).Return(nil)
	bot.On("GetFileDirectURL", "large").Return("u", nil)
	an := new(MockAnalyzer)
	an.On("Handle", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		_ = args.Get(2).(pipeline.DeliverFunc)(context.Background(), pipeline.Outcome{Text: "No fractures/lesions found.", NothingFound: true})
	}).Return(nil)
	r := newRouter(bot, an)
	r.Sessions.SetMode(userID, vision.Detection)

	r.HandleUpdate(context.Background(), photo())
	r.Wait()

	sent := bot.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "No fractures/lesions found.", sent[0].(tgbotapi.MessageConfig).Text)
	assert.Equal(t, textRestart, sent[1].(tgbotapi.MessageConfig).Text)
}

func TestRouter_FailedOutcomeOnlyText(t *testing.T) {
	bot := new(MockBot)
	bot.On("Send", mock.Anything).Return(nil)
	bot.On("GetFileDirectURL", "large").Return("u", nil)
	an := new(MockAnalyzer)
	an.On("Handle", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		_ = args.Get(2).(pipeline.DeliverFunc)(context.Background(), pipeline.Outcome{Text: "An error occurred", Failed: true})
	}).Return(nil)
	r := newRouter(bot, an)
	r.Sessions.SetMode(userID, vision.Detection)

	r.HandleUpdate(context.Background(), photo())
	r.Wait()

	require.Len(t, bot.sent(), 1)
}

func TestRouter_SaveErrorRepliesFailure(t *testing.T) {
	bot := new(MockBot)
	bot.On("Send", mock.Anything).Return(nil)
	bot.On("GetFileDirectURL", "large").Return("u", nil)
	an := new(MockAnalyzer)
	an.On("Handle", mock.Anything, mock.Anything, mock.Anything).Return(artifact.ErrSave)
	r := newRouter(bot, an)
	r.Sessions.SetMode(userID, vision.Detection)

	r.HandleUpdate(context.Background(), photo())
	r.Wait()

	require.Len(t, bot.sent(), 1)
	assert.Equal(t, r.FailureMessage, bot.sent()[0].(tgbotapi.MessageConfig).Text)
}

func TestRouter_DownloadErrorRepliesFailure(t *testing.T) {
	bot := new(MockBot)
	bot.On("Send", mock.Anything).Return(nil)
	bot.On("GetFileDirectURL", "large").Return("u", nil)
	an := new(MockAnalyzer)
	r := newRouter(bot, an)
	r.Download = func(context.Context, string) (io.ReadCloser, error) { return nil, errors.New("timeout") }
	r.Sessions.SetMode(userID, vision.Detection)

	r.HandleUpdate(context.Background(), photo())
	r.Wait()

	assert.Equal(t, r.FailureMessage, bot.sent()[0].(tgbotapi.MessageConfig).Text)
	an.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything, mock.Anything)
}

func TestRouter_Documents(t *testing.T) {
	tests := []struct {
		name     string
		mime     string
		analysed bool
	}{
		{name: "image document", mime: "image/png", analysed: true},
		{name: "pdf document", mime: "application/pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bot := new(MockBot)
			bot.On("Send", mock.Anything).Return(nil)
			bot.On("GetFileDirectURL", "doc").Return("u", nil)
			an := new(MockAnalyzer)
			an.On("Handle", mock.Anything, mock.Anything, mock.Anything).Return(nil)
			r := newRouter(bot, an)
			r.Sessions.SetMode(userID, vision.Classification)

			r.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
				MessageID: 3,
				From:      &tgbotapi.User{ID: userID},
				Chat:      &tgbotapi.Chat{ID: chatID},
				Document:  &tgbotapi.Document{FileID: "doc", MimeType: tt.mime},
			}})
			r.Wait()

			if tt.analysed {
				an.AssertNumberOfCalls(t, "Handle", 1)
			} else {
				an.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything, mock.Anything)
				assert.Equal(t, textNotImage, bot.sent()[0].(tgbotapi.MessageConfig).Text)
			}
		})
	}
}

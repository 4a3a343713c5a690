package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	common "github.com/example/messenger/internal/adapters/common"
	"github.com/example/messenger/internal/models"
)

// TelegramBaseURL is the Bot API root.
const TelegramBaseURL = "https://api.telegram.org"

var (
	botTokenFormat = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)
	telegramTag    = regexp.MustCompile(`</?([a-zA-Z0-9]+)[^>]*>`)
	hrTag          = regexp.MustCompile(`<hr\s*/?>`)
	headingOpen    = regexp.MustCompile(`<h[1-6]>`)
	headingClose   = regexp.MustCompile(`</h[1-6]>`)

	telegramMarkup = strings.NewReplacer(
		"<strong>", "<b>", "</strong>", "</b>",
		"<em>", "<i>", "</em>", "</i>",
		"<strike>", "<s>", "</strike>", "</s>",
		"<del>", "<s>", "</del>", "</s>",
		"<p>", "", "</p>", "\n\n",
	)
	markdownSpecials = strings.NewReplacer(
		`*`, `\*`, `_`, `\_`, `[`, `\[`, `]`, `\]`, `(`, `\(`, `)`, `\)`,
		`~`, `\~`, "`", "\\`", `>`, `\>`, `#`, `\#`, `+`, `\+`, `-`, `\-`,
		`=`, `\=`, `|`, `\|`, `{`, `\{`, `}`, `\}`, `.`, `\.`, `!`, `\!`,
	)
	telegramKept = map[string]bool{"b": true, "i": true, "u": true, "s": true, "a": true, "code": true, "pre": true}

	telegramPolicyOnce sync.Once
	telegramPolicy     *bluemonday.Policy
)

func telegramSanitizer() *bluemonday.Policy {
	telegramPolicyOnce.Do(func() {
		p := bluemonday.NewPolicy()
		p.AllowElements("b", "strong", "i", "em", "u", "s", "strike", "del", "code", "pre",
			"p", "br", "hr", "h1", "h2", "h3", "h4", "h5", "h6", "div", "span")
		p.AllowAttrs("href").OnElements("a")
		p.AllowURLSchemes("http", "https", "mailto")
		telegramPolicy = p
	})
	return telegramPolicy
}

// TelegramTransport calls sendMessage on the Bot API.
type TelegramTransport struct {
	httpClient
	logger              zerolog.Logger
	endpoint            string
	parseMode           string
	defaultChatID       string
	disablePreview      bool
	disableNotification bool
}

var _ common.Transport = (*TelegramTransport)(nil)

// NewTelegram requires auth "botToken" in the "<id>:<secret>" form. Options:
// "parse_mode" (HTML), "default_chat_id", "disable_web_page_preview",
// "disable_notification" and "base_url".
func NewTelegram(settings models.Settings, logger zerolog.Logger, opts ...Option) (*TelegramTransport, error) {
	token := settings.AuthValue("botToken")
	if token == "" {
		return nil, common.NewConfiguration("Telegram transport requires a bot token")
	}
	if !botTokenFormat.MatchString(token) {
		return nil, common.NewConfiguration("Invalid Telegram bot token format")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	base := TelegramBaseURL
	if b := settings.Option("base_url"); b != "" {
		base = strings.TrimRight(b, "/")
	}
	parseMode := settings.Option("parse_mode")
	if parseMode == "" {
		parseMode = "HTML"
	}
	preview, _ := strconv.ParseBool(settings.Option("disable_web_page_preview"))
	silent, _ := strconv.ParseBool(settings.Option("disable_notification"))

	return &TelegramTransport{
		httpClient:          newHTTPClient(opts),
		logger:              logger.With().Str("transport", models.TransportTelegram).Logger(),
		endpoint:            base + "/bot" + token + "/sendMessage",
		parseMode:           parseMode,
		defaultChatID:       settings.Option("default_chat_id"),
		disablePreview:      preview,
		disableNotification: silent,
	}, nil
}

// TelegramFactory adapts NewTelegram to common.Factory.
func TelegramFactory(settings models.Settings, logger zerolog.Logger) (common.Transport, error) {
	return NewTelegram(settings, logger)
}

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
	DisableNotification   bool   `json:"disable_notification"`
}

// Send posts one message per chat id.
func (t *TelegramTransport) Send(ctx context.Context, env *models.Envelope) error {
	chats := []string(env.To)
	if len(chats) == 0 {
		chats = []string{""}
	}
	text := t.text(env)
	for _, chat := range chats {
		chatID := strings.TrimSpace(chat)
		if chatID == "" {
			chatID = t.defaultChatID
		}
		if chatID == "" {
			return t.fail(errors.New("no recipient specified and no default chat ID configured"))
		}
		if err := t.post(ctx, telegramMessage{
			ChatID:                chatID,
			Text:                  text,
			ParseMode:             t.parseMode,
			DisableWebPagePreview: t.disablePreview,
			DisableNotification:   t.disableNotification,
		}); err != nil {
			return t.fail(err)
		}
		t.logger.Debug().Str("chat_id", chatID).Msg("telegram message sent")
	}
	return nil
}

func (t *TelegramTransport) text(env *models.Envelope) string {
	var body string
	switch {
	case env.HTML != "":
		body = TelegramHTML(env.HTML)
	case env.Text != "":
		body = env.Text
	}
	if env.Subject == "" {
		return body
	}
	if t.parseMode == "Markdown" {
		return "*" + markdownSpecials.Replace(env.Subject) + "*\n\n" + body
	}
	return "<b>" + html.EscapeString(env.Subject) + "</b>\n\n" + body
}

func (t *TelegramTransport) post(ctx context.Context, msg telegramMessage) error {
	req, err := common.NewJSONRequest(ctx, http.MethodPost, t.endpoint, msg)
	if err != nil {
		return err
	}
	body, err := common.Do(t.doer, req)
	if err != nil {
		return err
	}
	var resp struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
		ErrorCode   int    `json:"error_code"`
	}
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return fmt.Errorf("invalid response from Telegram API: %w", err)
	}
	if !resp.OK {
		if resp.Description != "" {
			return errors.New(resp.Description)
		}
		return fmt.Errorf("telegram API error %d", resp.ErrorCode)
	}
	return nil
}

func (t *TelegramTransport) fail(err error) error {
	return common.NewTransport(models.TransportTelegram, fmt.Sprintf("Telegram send failed: %v", err), err)
}

// TelegramHTML reduces html to the tag subset Telegram's HTML parse mode
// accepts: b, i, u, s, a, code and pre. Headings become bold lines.
func TelegramHTML(markup string) string {
	out := telegramSanitizer().Sanitize(markup)
	out = telegramMarkup.Replace(out)
	out = brTag.ReplaceAllString(out, "\n")
	out = hrTag.ReplaceAllString(out, "\n———\n")
	out = headingOpen.ReplaceAllString(out, "<b>")
	out = headingClose.ReplaceAllString(out, "</b>\n\n")
	out = telegramTag.ReplaceAllStringFunc(out, func(tag string) string {
		name := strings.ToLower(telegramTag.FindStringSubmatch(tag)[1])
		if telegramKept[name] {
			return tag
		}
		return ""
	})
	out = extraNewlines.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

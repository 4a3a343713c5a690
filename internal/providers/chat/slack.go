package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	common "github.com/example/messenger/internal/adapters/common"
	"github.com/example/messenger/internal/models"
	"github.com/example/messenger/internal/util"
)

// SlackBaseURL is the Web API root used in bot-token mode.
const SlackBaseURL = "https://slack.com/api"

var (
	slackChannelID = regexp.MustCompile(`^[CD][A-Z0-9]+$`)
	slackLink      = regexp.MustCompile(`<a\s+href="([^"]+)"[^>]*>([^<]+)</a>`)
	slackKeptLink  = regexp.MustCompile(`^<https?://[^|]+\|[^>]+>$`)
	anyTag         = regexp.MustCompile(`<[^>]+>`)
	brTag          = regexp.MustCompile(`<br\s*/?>`)
	extraNewlines  = regexp.MustCompile(`\n{3,}`)

	slackMarkup = strings.NewReplacer(
		"<b>", "*", "</b>", "*", "<strong>", "*", "</strong>", "*",
		"<i>", "_", "</i>", "_", "<em>", "_", "</em>", "_",
		"<code>", "`", "</code>", "`",
		"<pre>", "```\n", "</pre>", "\n```",
		"<p>", "", "</p>", "\n\n",
	)
	quoteEntities = strings.NewReplacer("&#39;", "'", "&#34;", `"`, "&quot;", `"`)
)

// SlackTransport posts through an incoming webhook or, with a bot token,
// chat.postMessage.
type SlackTransport struct {
	httpClient
	logger         zerolog.Logger
	webhook        string
	token          string
	baseURL        string
	defaultChannel string
}

var _ common.Transport = (*SlackTransport)(nil)

// NewSlack requires auth "webhook" or "token". Options: "default_channel"
// and "base_url".
func NewSlack(settings models.Settings, logger zerolog.Logger, opts ...Option) (*SlackTransport, error) {
	webhook, token := settings.AuthValue("webhook"), settings.AuthValue("token")
	if webhook == "" && token == "" {
		return nil, common.NewConfiguration("Slack transport requires either a bot token or webhook URL")
	}
	if webhook != "" {
		if _, err := util.ValidateHTTPURL(webhook); err != nil {
			return nil, common.NewConfiguration("Invalid Slack webhook URL: %v", err)
		}
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	s := &SlackTransport{
		httpClient:     newHTTPClient(opts),
		logger:         logger.With().Str("transport", models.TransportSlack).Logger(),
		webhook:        webhook,
		token:          token,
		baseURL:        SlackBaseURL,
		defaultChannel: settings.Option("default_channel"),
	}
	if base := settings.Option("base_url"); base != "" {
		s.baseURL = strings.TrimRight(base, "/")
	}
	return s, nil
}

// SlackFactory adapts NewSlack to common.Factory.
func SlackFactory(settings models.Settings, logger zerolog.Logger) (common.Transport, error) {
	return NewSlack(settings, logger)
}

type slackAttachment struct {
	Pretext string `json:"pretext,omitempty"`
	Text    string `json:"text,omitempty"`
	Color   string `json:"color,omitempty"`
}

type slackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Text        string            `json:"text,omitempty"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
	Username    string            `json:"username,omitempty"`
}

// Send posts one message per recipient, or one to the default channel.
func (s *SlackTransport) Send(ctx context.Context, env *models.Envelope) error {
	channels := []string(env.To)
	if len(channels) == 0 {
		channels = []string{""}
	}
	for _, to := range channels {
		msg := s.format(env, to)
		var err error
		if s.webhook != "" {
			err = s.sendWebhook(ctx, msg)
		} else {
			err = s.sendAPI(ctx, msg)
		}
		if err != nil {
			return common.NewTransport(models.TransportSlack, fmt.Sprintf("Slack send failed: %v", err), err)
		}
		s.logger.Debug().Str("channel", msg.Channel).Msg("slack message posted")
	}
	return nil
}

func (s *SlackTransport) format(env *models.Envelope, to string) slackMessage {
	msg := slackMessage{Channel: slackChannel(to)}
	if msg.Channel == "" {
		msg.Channel = s.defaultChannel
	}

	switch {
	case env.HTML != "":
		msg.Text = SlackMarkdown(env.HTML)
	case env.Text != "":
		msg.Text = env.Text
	}

	if env.Subject != "" {
		msg.Attachments = []slackAttachment{{Pretext: env.Subject, Text: msg.Text, Color: "good"}}
		msg.Text = ""
	}
	if env.From != "" && s.webhook != "" {
		msg.Username = env.From
	}
	return msg
}

func (s *SlackTransport) sendWebhook(ctx context.Context, msg slackMessage) error {
	req, err := common.NewJSONRequest(ctx, http.MethodPost, s.webhook, msg)
	if err != nil {
		return err
	}
	body, err := common.Do(s.doer, req)
	if err != nil {
		return err
	}
	if strings.TrimSpace(body) != "ok" {
		return fmt.Errorf("webhook returned: %s", common.TruncateRaw(body, common.DefaultRawBodyLimit))
	}
	return nil
}

func (s *SlackTransport) sendAPI(ctx context.Context, msg slackMessage) error {
	req, err := common.NewJSONRequest(ctx, http.MethodPost, s.baseURL+"/chat.postMessage", msg)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	body, err := common.Do(s.doer, req)
	if err != nil {
		return err
	}

	var resp struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return fmt.Errorf("invalid response from Slack API: %w", err)
	}
	if !resp.OK {
		if resp.Error == "" {
			return errors.New("unknown Slack API error")
		}
		return errors.New(resp.Error)
	}
	return nil
}

// slackChannel accepts "#channel", "@user" and channel ids as given and
// prefixes bare names with "#".
func slackChannel(to string) string {
	to = strings.TrimSpace(to)
	if to == "" {
		return ""
	}
	if strings.HasPrefix(to, "#") || strings.HasPrefix(to, "@") || slackChannelID.MatchString(to) {
		return to
	}
	return "#" + to
}

// SlackMarkdown sanitizes html and converts it to Slack mrkdwn.
func SlackMarkdown(html string) string {
	out := util.SanitizeHTML(html)
	out = slackLink.ReplaceAllString(out, "<$1|$2>")
	out = slackMarkup.Replace(out)
	out = brTag.ReplaceAllString(out, "\n")
	out = anyTag.ReplaceAllStringFunc(out, func(tag string) string {
		if slackKeptLink.MatchString(tag) {
			return tag
		}
		return ""
	})
	out = quoteEntities.Replace(out)
	out = extraNewlines.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

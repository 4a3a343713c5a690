package email

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	common "github.com/example/messenger/internal/adapters/common"
	"github.com/example/messenger/internal/models"
	"github.com/example/messenger/internal/providers/awsutil"
)

// SESAPI is the slice of the SES v2 client the transport uses.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESTransport sends through Amazon SES v2.
type SESTransport struct {
	logger           zerolog.Logger
	client           SESAPI
	configurationSet string
	now              func() time.Time
}

var _ common.Transport = (*SESTransport)(nil)

// NewSES builds the transport. Auth keys: "region" (required),
// "accessKeyId" and "secretAccessKey" (optional, the default AWS credential
// chain is used otherwise). Options: "endpoint" and "configuration_set".
// SDK retries are disabled so the dispatch retry policy stays in charge.
func NewSES(settings models.Settings, logger zerolog.Logger) (*SESTransport, error) {
	cfg, err := awsutil.LoadConfig(context.Background(), settings)
	if err != nil {
		return nil, err
	}

	var optFns []func(*sesv2.Options)
	if endpoint := settings.Option("endpoint"); endpoint != "" {
		optFns = append(optFns, func(o *sesv2.Options) { o.BaseEndpoint = aws.String(endpoint) })
	}

	return NewSESWithClient(sesv2.NewFromConfig(cfg, optFns...), settings, logger), nil
}

// NewSESWithClient wires a prebuilt SES client.
func NewSESWithClient(client SESAPI, settings models.Settings, logger zerolog.Logger) *SESTransport {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &SESTransport{
		logger:           logger.With().Str("transport", models.TransportSES).Logger(),
		client:           client,
		configurationSet: settings.Option("configuration_set"),
		now:              time.Now,
	}
}

// SESFactory adapts NewSES to common.Factory.
func SESFactory(settings models.Settings, logger zerolog.Logger) (common.Transport, error) {
	return NewSES(settings, logger)
}

// Send uses simple content, or a raw MIME message when attachments are present.
func (s *SESTransport) Send(ctx context.Context, env *models.Envelope) error {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(env.From),
		Destination:      &types.Destination{ToAddresses: append([]string(nil), env.To...)},
	}
	if s.configurationSet != "" {
		input.ConfigurationSetName = aws.String(s.configurationSet)
	}

	if len(env.Attachments) > 0 {
		raw, err := buildMIME(env, uuid.NewString()+"@ses", s.now())
		if err != nil {
			return common.NewTransport(models.TransportSES, "AWS SES error: build message", err)
		}
		input.Content = &types.EmailContent{Raw: &types.RawMessage{Data: raw}}
	} else {
		body := &types.Body{}
		if env.HTML != "" {
			body.Html = &types.Content{Data: aws.String(env.HTML), Charset: aws.String("UTF-8")}
		}
		if env.Text != "" {
			body.Text = &types.Content{Data: aws.String(env.Text), Charset: aws.String("UTF-8")}
		}
		input.Content = &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(env.Subject), Charset: aws.String("UTF-8")},
				Body:    body,
			},
		}
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return common.NewTransport(models.TransportSES, fmt.Sprintf("AWS SES error: %v", err), err)
	}

	s.logger.Debug().Str("message_id", aws.ToString(out.MessageId)).Msg("ses message accepted")
	return nil
}

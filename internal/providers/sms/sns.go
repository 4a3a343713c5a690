package sms

import (
	"context"
	"fmt"
	"reflect"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/rs/zerolog"

	common "github.com/example/messenger/internal/adapters/common"
	"github.com/example/messenger/internal/logger"
	"github.com/example/messenger/internal/models"
	"github.com/example/messenger/internal/providers/awsutil"
)

const (
	// DefaultSenderID is published when option "sender_id" is not set.
	DefaultSenderID = "Messenger"
	// DefaultSMSType marks messages as transactional unless option "sms_type" says otherwise.
	DefaultSMSType = "Transactional"
)

// SNSAPI is the subset of the SNS client used by the transport.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSTransport publishes direct-to-phone SMS through Amazon SNS.
type SNSTransport struct {
	logger   zerolog.Logger
	client   SNSAPI
	senderID string
	smsType  string
}

var _ common.Transport = (*SNSTransport)(nil)

// NewSNS builds the SNS client from settings (see awsutil.LoadConfig). Option
// "endpoint" overrides the service endpoint.
func NewSNS(settings models.Settings, log zerolog.Logger) (*SNSTransport, error) {
	cfg, err := awsutil.LoadConfig(context.Background(), settings)
	if err != nil {
		return nil, err
	}
	client := sns.NewFromConfig(cfg, func(o *sns.Options) {
		if endpoint := settings.Option("endpoint"); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return NewSNSWithClient(client, settings, log), nil
}

// NewSNSWithClient wires an existing client, typically a test double.
func NewSNSWithClient(client SNSAPI, settings models.Settings, log zerolog.Logger) *SNSTransport {
	if reflect.ValueOf(log).IsZero() {
		log = zerolog.Nop()
	}
	t := &SNSTransport{
		logger:   log.With().Str("transport", models.TransportSNS).Logger(),
		client:   client,
		senderID: settings.Option("sender_id"),
		smsType:  settings.Option("sms_type"),
	}
	if t.senderID == "" {
		t.senderID = DefaultSenderID
	}
	if t.smsType == "" {
		t.smsType = DefaultSMSType
	}
	return t
}

// SNSFactory adapts NewSNS to common.Factory.
func SNSFactory(settings models.Settings, log zerolog.Logger) (common.Transport, error) {
	return NewSNS(settings, log)
}

// Send publishes one message per recipient. The subject is not used.
func (t *SNSTransport) Send(ctx context.Context, env *models.Envelope) error {
	message := messageBody(env)
	for _, raw := range env.To {
		to, err := destination(models.TransportSNS, raw)
		if err != nil {
			return err
		}
		out, err := t.client.Publish(ctx, &sns.PublishInput{
			Message:     aws.String(message),
			PhoneNumber: aws.String(to),
			MessageAttributes: map[string]types.MessageAttributeValue{
				"AWS.SNS.SMS.SenderID": {DataType: aws.String("String"), StringValue: aws.String(t.senderID)},
				"AWS.SNS.SMS.SMSType":  {DataType: aws.String("String"), StringValue: aws.String(t.smsType)},
			},
		})
		if err != nil {
			return common.NewTransport(models.TransportSNS, fmt.Sprintf("AWS SNS error: %v", err), err)
		}
		t.logger.Debug().Str("message_id", aws.ToString(out.MessageId)).Str("to", logger.RedactPhone(to)).Msg("sns message published")
	}
	return nil
}

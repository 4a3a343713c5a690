package email_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	common "github.com/example/messenger/internal/adapters/common"
	"github.com/example/messenger/internal/models"
	emailprovider "github.com/example/messenger/internal/providers/email"
)

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func TestSESSendSimple(t *testing.T) {
	fake := &fakeSES{}
	tr := emailprovider.NewSESWithClient(fake, models.Settings{Options: map[string]string{"configuration_set": "tracking"}}, zerolog.Nop())

	env := testEnvelope()
	env.Attachments = nil
	require.NoError(t, tr.Send(context.Background(), env))

	require.NotNil(t, fake.input.Content.Simple)
	assert.Equal(t, "Hello", aws.ToString(fake.input.Content.Simple.Subject.Data))
	assert.Equal(t, "<p>Hi</p>", aws.ToString(fake.input.Content.Simple.Body.Html.Data))
	assert.Equal(t, "Hi", aws.ToString(fake.input.Content.Simple.Body.Text.Data))
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, fake.input.Destination.ToAddresses)
	assert.Equal(t, "tracking", aws.ToString(fake.input.ConfigurationSetName))
}

func TestSESSendRawWithAttachments(t *testing.T) {
	fake := &fakeSES{}
	tr := emailprovider.NewSESWithClient(fake, models.Settings{}, zerolog.Nop())

	require.NoError(t, tr.Send(context.Background(), testEnvelope()))

	require.NotNil(t, fake.input.Content.Raw)
	raw := string(fake.input.Content.Raw.Data)
	assert.True(t, strings.Contains(raw, "multipart/mixed"))
	assert.True(t, strings.Contains(raw, "filename=a.txt"))
}

func TestSESErrorIsTransportError(t *testing.T) {
	fake := &fakeSES{err: errors.New("throttled")}
	tr := emailprovider.NewSESWithClient(fake, models.Settings{}, zerolog.Nop())

	err := tr.Send(context.Background(), testEnvelope())
	require.ErrorIs(t, err, common.ErrTransport)
	assert.Contains(t, err.Error(), "AWS SES error: throttled")
}

func TestNewSESRequiresRegion(t *testing.T) {
	_, err := emailprovider.NewSES(models.Settings{}, zerolog.Nop())
	assert.ErrorIs(t, err, common.ErrConfiguration)
}

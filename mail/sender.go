package mail

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// Message is one email to one or more recipients.
type Message struct {
	From    string
	To      []string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SESConfig holds the credentials for Amazon SES.
type SESConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// SESAPI is the part of the SES client SESSender uses.
type SESAPI interface {
	SendEmail(ctx context.Context, in *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESSender sends through Amazon SES.
type SESSender struct {
	client SESAPI
	logger *slog.Logger
}

// NewSESSender builds an SES client from static credentials.
func NewSESSender(cfg SESConfig, logger *slog.Logger) *SESSender {
	awsCfg := aws.Config{
		Region: cfg.Region,
		Credentials: aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	}
	return NewSESSenderWithClient(ses.NewFromConfig(awsCfg), logger)
}

// NewSESSenderWithClient wraps an existing SES client.
func NewSESSenderWithClient(client SESAPI, logger *slog.Logger) *SESSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &SESSender{client: client, logger: logger}
}

func content(s string) *types.Content {
	return &types.Content{Data: aws.String(s), Charset: aws.String("UTF-8")}
}

// Send implements Sender.
func (s *SESSender) Send(ctx context.Context, msg Message) error {
	in := &ses.SendEmailInput{
		Source:      aws.String(msg.From),
		Destination: &types.Destination{ToAddresses: msg.To},
		Message: &types.Message{
			Subject: content(msg.Subject),
			Body:    &types.Body{},
		},
	}
	if msg.HTML != "" {
		in.Message.Body.Html = content(msg.HTML)
	}
	if msg.Text != "" {
		in.Message.Body.Text = content(msg.Text)
	}

	out, err := s.client.SendEmail(ctx, in)
	if err != nil {
		return fmt.Errorf("mail: ses send: %w", err)
	}
	s.logger.Debug("email sent",
		slog.String("message_id", aws.ToString(out.MessageId)),
		slog.Int("recipients", len(msg.To)),
		slog.String("subject", msg.Subject),
	)
	return nil
}

// NopSender logs messages instead of sending them.
type NopSender struct {
	Logger *slog.Logger
}

// Send implements Sender.
func (n NopSender) Send(_ context.Context, msg Message) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("email not sent (noop sender)",
		slog.Any("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}

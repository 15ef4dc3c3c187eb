package receipt

import (
	"context"

	"go.uber.org/zap"
)

// Sender delivers a message to a phone number.
type Sender interface {
	Send(ctx context.Context, phone, text string) error
}

// LinkSender builds the WhatsApp deep link and logs it for the operator's
// client to open. It never contacts WhatsApp itself.
type LinkSender struct {
	BaseURL     string
	CountryCode string
	Log         *zap.Logger
}

func (s LinkSender) Send(ctx context.Context, phone, text string) error {
	link, err := WhatsAppLink(s.BaseURL, s.CountryCode, phone, text)
	if err != nil {
		return err
	}
	s.Log.Info("receipt ready", zap.String("phone", phone), zap.String("link", link))
	return nil
}

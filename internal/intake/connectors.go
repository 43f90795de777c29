package intake

import (
	"context"
	"fmt"
	"strings"

	"archivio/internal"
	"archivio/internal/config"
	gmailconnector "archivio/internal/intake/gmail"
	imapconnector "archivio/internal/intake/imap"
)

type MailConnector interface {
	FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error)
}

func NewConnector(ctx context.Context, cfg config.Config, provider string) (MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmailconnector.NewConnector(ctx, cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported mail provider: %s", provider)
	}
}

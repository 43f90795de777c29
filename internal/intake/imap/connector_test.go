package imap

import (
	"bytes"
	"testing"
	"time"

	"github.com/emersion/go-imap"

	"archivio/internal/config"
)

func TestNewConnectorRequiresCredentials(t *testing.T) {
	if _, err := NewConnector(config.Config{IMAPHost: "mail.studio.it"}); err == nil {
		t.Fatal("expected missing user error")
	}
	c, err := NewConnector(config.Config{IMAPHost: "mail.studio.it", IMAPUser: "paghe", IMAPPassword: "x", IMAPPort: 993, IMAPSecure: true})
	if err != nil {
		t.Fatal(err)
	}
	if c.port != 993 || !c.secure {
		t.Fatalf("connector=%+v", c)
	}
}

func TestToFetched(t *testing.T) {
	section := &imap.BodySectionName{Peek: true}
	msg := imap.NewMessage(7, []imap.FetchItem{section.FetchItem()})
	msg.Uid = 42
	msg.InternalDate = time.Date(2026, 10, 1, 8, 30, 0, 0, time.UTC)
	msg.Envelope = &imap.Envelope{
		Subject:   "Cedolini settembre",
		MessageId: "<abc@cliente.it>",
		From:      []*imap.Address{{PersonalName: "Ufficio Paghe", MailboxName: "paghe", HostName: "cliente.it"}},
	}
	msg.Body[&imap.BodySectionName{}] = bytes.NewBufferString("Subject: Cedolini settembre\r\n\r\nciao")

	fetched, ok, err := toFetched(msg, section)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if fetched.MessageID != "<abc@cliente.it>" || fetched.From != "Ufficio Paghe <paghe@cliente.it>" {
		t.Fatalf("fetched=%+v", fetched)
	}
	if fetched.ReceivedAt != "2026-10-01T08:30:00Z" {
		t.Fatalf("received=%s", fetched.ReceivedAt)
	}

	empty := imap.NewMessage(8, nil)
	empty.Uid = 43
	if _, ok, _ := toFetched(empty, section); ok {
		t.Fatal("message without body must be skipped")
	}
}

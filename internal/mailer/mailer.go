// Package mailer is the Mailer Port (spec section 6): it sends templated
// verification messages keyed by user ID and nonce. HTML/text templating
// itself is explicitly out of scope for the core per spec section 1; the
// stdlib html/template used here is the mechanism, not a domain dependency,
// so it is not part of the third-party DOMAIN STACK.
package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
)

// Template names the three message kinds the directory ever sends (spec
// section 6).
type Template string

const (
	VerifyKey     Template = "verifyKey"
	VerifyRemove  Template = "verifyRemove"
	CheckNewSigs  Template = "checkNewSigs"
)

// Origin carries the scheme/host the verification link is built against, so
// the same core code produces correct links regardless of which hostname a
// request arrived on.
type Origin struct {
	Protocol string
	Host     string
}

// URL renders the {origin}/api/v1/key?op=...&keyId=...&nonce=... link
// spec section 4.4 and section 6 describe.
func (o Origin) URL(op, keyID, nonce string) string {
	return fmt.Sprintf("%s://%s/api/v1/key?op=%s&keyId=%s&nonce=%s", o.Protocol, o.Host, op, keyID, nonce)
}

// Message is one send request.
type Message struct {
	Template         Template
	UserID           string // the "Name <email>" string the message is addressed to
	KeyID            string
	Nonce            string
	Origin           Origin
	PublicKeyArmored string // optional shadow armored body, set on verifyKey messages; SMTPMailer does not include it in the mail
	Data             map[string]interface{}
}

// Port is the Mailer Port contract (spec section 6).
type Port interface {
	Send(msg Message) error
}

var templates = map[Template]*template.Template{
	VerifyKey: template.Must(template.New("verifyKey").Parse(
		"Please confirm your email address by visiting:\n{{.Link}}\n")),
	VerifyRemove: template.Must(template.New("verifyRemove").Parse(
		"Confirm removal of your key from the directory:\n{{.Link}}\n")),
	CheckNewSigs: template.Must(template.New("checkNewSigs").Parse(
		"New certifications are pending your confirmation:\n{{.Link}}\n")),
}

// SMTPMailer sends mail through an SMTP relay.
type SMTPMailer struct {
	Addr string
	From string
	Auth smtp.Auth
}

// Send implements Port.
func (m *SMTPMailer) Send(msg Message) error {
	tpl, ok := templates[msg.Template]
	if !ok {
		return fmt.Errorf("mailer: unknown template %q", msg.Template)
	}
	var op string
	switch msg.Template {
	case VerifyKey:
		op = "verify"
	case VerifyRemove:
		op = "verifyRemove"
	case CheckNewSigs:
		op = "checkSignatures"
	}
	var body bytes.Buffer
	err := tpl.Execute(&body, map[string]interface{}{
		"Link": msg.Origin.URL(op, msg.KeyID, msg.Nonce),
	})
	if err != nil {
		return err
	}
	to := addressOf(msg.UserID)
	if to == "" {
		return fmt.Errorf("mailer: cannot extract address from %q", msg.UserID)
	}
	return smtp.SendMail(m.Addr, m.Auth, m.From, []string{to}, body.Bytes())
}

func addressOf(userID string) string {
	start := -1
	for i, c := range userID {
		if c == '<' {
			start = i + 1
		}
		if c == '>' && start >= 0 {
			return userID[start:i]
		}
	}
	return userID
}

// Package mail delivers rendered catalogs as email attachments over
// authenticated SMTP.
package mail

import (
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"time"

	"github.com/go-gomail/gomail"

	u "outfit2pdf/internal/utils"
)

// AuthenticationError means the relay rejected our credentials. Fatal, never
// retried.
type AuthenticationError struct {
	Cause error
}

func (e *AuthenticationError) Error() string { return "smtp authentication failed: " + e.Cause.Error() }
func (e *AuthenticationError) Unwrap() error { return e.Cause }

// RecipientError means the relay refused the recipient address. Fatal, never
// retried.
type RecipientError struct {
	Recipient string
	Cause     error
}

func (e *RecipientError) Error() string {
	return fmt.Sprintf("recipient %s rejected: %v", e.Recipient, e.Cause)
}
func (e *RecipientError) Unwrap() error { return e.Cause }

// TransientError covers connection resets, timeouts and other transport
// hiccups. The dispatcher retries these exactly once before surfacing them.
type TransientError struct {
	Cause error
}

func (e *TransientError) Error() string { return "transient transport failure: " + e.Cause.Error() }
func (e *TransientError) Unwrap() error { return e.Cause }

// Receipt confirms one successful delivery.
type Receipt struct {
	Recipient string
	SentAt    time.Time
}

// Dispatcher sends one PDF to one recipient per call. Credentials come from
// config at construction, never per request. The dial function is swappable
// so tests can substitute a fake transport.
type Dispatcher struct {
	account string
	dial    func() (gomail.SendCloser, error)
}

// NewDispatcher builds a dispatcher over SMTP with STARTTLS (or implicit TLS
// on port 465, handled by gomail).
func NewDispatcher(cfg u.Config) *Dispatcher {
	d := gomail.NewDialer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Account, cfg.SMTP.AppPassword)
	return &Dispatcher{
		account: cfg.SMTP.Account,
		dial:    func() (gomail.SendCloser, error) { return d.Dial() },
	}
}

// NewDispatcherWithTransport wires a custom transport factory. Used in tests.
func NewDispatcherWithTransport(account string, dial func() (gomail.SendCloser, error)) *Dispatcher {
	return &Dispatcher{account: account, dial: dial}
}

// Deliver sends the PDF as an attachment named outfit.pdf. The transport
// connection is opened for exactly one send and closed on every exit path.
// Transient failures get one immediate retry; authentication and recipient
// failures surface right away.
func (d *Dispatcher) Deliver(pdf []byte, recipient, subject, body string) (*Receipt, error) {
	msg := gomail.NewMessage()
	msg.SetHeader("From", d.account)
	msg.SetHeader("To", recipient)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	msg.Attach("outfit.pdf", gomail.SetCopyFunc(func(w io.Writer) error {
		_, err := w.Write(pdf)
		return err
	}))

	err := d.sendOnce(msg, recipient)
	var transient *TransientError
	if errors.As(err, &transient) {
		u.Warn("Transient SMTP failure, retrying once", "recipient", recipient, "error", transient.Cause)
		err = d.sendOnce(msg, recipient)
	}
	if err != nil {
		return nil, err
	}
	return &Receipt{Recipient: recipient, SentAt: time.Now()}, nil
}

// sendOnce sends on the connection directly instead of through gomail.Send,
// whose wrapping flattens the SMTP reply error that classify needs.
func (d *Dispatcher) sendOnce(msg *gomail.Message, recipient string) error {
	sc, err := d.dial()
	if err != nil {
		return classify(err, recipient)
	}
	defer sc.Close()

	if err := sc.Send(d.account, []string{recipient}, msg); err != nil {
		return classify(err, recipient)
	}
	return nil
}

// classify maps SMTP reply codes onto the failure taxonomy. Anything that is
// not clearly an auth or recipient rejection counts as transient.
func classify(err error, recipient string) error {
	var reply *textproto.Error
	if errors.As(err, &reply) {
		switch reply.Code {
		case 530, 534, 535:
			return &AuthenticationError{Cause: err}
		case 501, 550, 551, 552, 553:
			return &RecipientError{Recipient: recipient, Cause: err}
		}
	}
	return &TransientError{Cause: err}
}

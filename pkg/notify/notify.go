// Package notify sends run status emails. Delivery is best effort; a
// broken mail setup must never fail a pipeline run.
package notify

import (
	"log"

	"github.com/wneessen/go-mail"
)

type Notifier struct {
	host string
	port int
	user string
	pass string
	to   string

	enabled bool
}

func New(host string, port int, user, pass, to string) *Notifier {
	return &Notifier{
		host:    host,
		port:    port,
		user:    user,
		pass:    pass,
		to:      to,
		enabled: host != "" && to != "",
	}
}

// Send delivers one message. htmlBody may be empty for plain-text only.
// Failures are logged and swallowed.
func (n *Notifier) Send(subject, textBody, htmlBody string) {
	if n == nil || !n.enabled {
		return
	}

	msg := mail.NewMsg()
	if err := msg.From(n.user); err != nil {
		log.Printf("Notify: invalid sender %q: %v", n.user, err)
		return
	}
	if err := msg.To(n.to); err != nil {
		log.Printf("Notify: invalid recipient %q: %v", n.to, err)
		return
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, textBody)
	if htmlBody != "" {
		msg.AddAlternativeString(mail.TypeTextHTML, htmlBody)
	}

	client, err := mail.NewClient(n.host,
		mail.WithPort(n.port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(n.user),
		mail.WithPassword(n.pass),
	)
	if err != nil {
		log.Printf("Notify: client setup failed: %v", err)
		return
	}

	if err := client.DialAndSend(msg); err != nil {
		log.Printf("Notify: sending %q failed: %v", subject, err)
		return
	}
	log.Printf("Notify: sent %q to %s", subject, n.to)
}

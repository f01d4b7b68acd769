package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"strings"

	"github.com/oshokin/release-updater/internal/domain/update"
	"github.com/oshokin/release-updater/internal/logger"
)

var (
	errNoRecipient = errors.New("mail recipient and sender must be set")
	errNoServer    = errors.New("smtp server address must be set")
)

// SendFunc has the signature of smtp.SendMail.
type SendFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// MailOptions configure a MailNotifier.
type MailOptions struct {
	// Admin receives the report.
	Admin string
	// Mailer is the sender address.
	Mailer string
	// Addr is the SMTP server as host:port.
	Addr string
	// Username and Password enable PLAIN auth when Username is set.
	Username string
	Password string
}

// MailNotifier sends an HTML report over SMTP.
type MailNotifier struct {
	opts MailOptions
	send SendFunc
}

// NewMailNotifier validates opts and returns a notifier using smtp.SendMail.
func NewMailNotifier(opts MailOptions) (*MailNotifier, error) {
	if opts.Admin == "" || opts.Mailer == "" {
		return nil, errNoRecipient
	}

	if opts.Addr == "" {
		return nil, errNoServer
	}

	return &MailNotifier{opts: opts, send: smtp.SendMail}, nil
}

// WithSender replaces the transport; tests use it to capture messages.
func (m *MailNotifier) WithSender(send SendFunc) *MailNotifier {
	if send != nil {
		m.send = send
	}

	return m
}

// Notify implements Notifier.
func (m *MailNotifier) Notify(ctx context.Context, report update.Report) error {
	msg, err := m.compose(report)
	if err != nil {
		return err
	}

	var auth smtp.Auth

	if m.opts.Username != "" {
		host, _, splitErr := net.SplitHostPort(m.opts.Addr)
		if splitErr != nil {
			host = m.opts.Addr
		}

		auth = smtp.PlainAuth("", m.opts.Username, m.opts.Password, host)
	}

	if err = m.send(m.opts.Addr, auth, m.opts.Mailer, []string{m.opts.Admin}, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", m.opts.Admin, err)
	}

	logger.InfoKV(ctx, "Email sent", "to", m.opts.Admin)

	return nil
}

// Subject returns the subject line used for a repository.
func Subject(repository string) string {
	return "Release Updater Failed: " + repository + " - Action Required"
}

func (m *MailNotifier) compose(report update.Report) ([]byte, error) {
	var body bytes.Buffer
	if err := reportTemplate.Execute(&body, report); err != nil {
		return nil, fmt.Errorf("render mail report: %w", err)
	}

	var msg bytes.Buffer

	headers := [][2]string{
		{"From", "<" + m.opts.Mailer + ">"},
		{"To", "<" + m.opts.Admin + ">"},
		{"Subject", mime.QEncoding.Encode("utf-8", Subject(report.Repository))},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/html; charset=UTF-8"},
	}

	for _, h := range headers {
		msg.WriteString(h[0] + ": " + sanitizeHeader(h[1]) + "\r\n")
	}

	msg.WriteString("\r\n")
	msg.Write(body.Bytes())

	return msg.Bytes(), nil
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(v)
}

//nolint:gochecknoglobals // Parsed once, read-only afterwards.
var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"stamp": func(e update.LogEntry) string { return e.Time.Format("2006-01-02 15:04:05") },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Release Updater Failed: {{ .Repository }} - Action Required</title>
<style>
table { border-collapse: collapse; }
th, td { border: 1px solid black; padding: 5px; }
</style>
</head>
<body>
<p>Dear Admin,</p>
<p>The latest update for the {{ .Repository }} repository has failed. Please take appropriate action to resolve the issue.</p>
<p>Update Info:</p>
<table>
<tr><td>Owner</td><td>{{ .Owner }}</td></tr>
<tr><td>Repository</td><td>{{ .Repository }}</td></tr>
<tr><td>Current Version</td><td>{{ .CurrentVersion }}</td></tr>
<tr><td>Status</td><td>{{ .Status }}</td></tr>
<tr><td>Run</td><td>{{ .RunID }}</td></tr>
<tr><td>Additional Info</td><td>{{ .Info }}</td></tr>
</table>
<p>Update Logs:</p>
<table>
{{- range .Log }}
<tr><td>{{ stamp . }}</td><td>{{ .Message }}</td></tr>
{{- end }}
</table>
</body>
</html>
`))

// Package email delivers subscription notifications over SMTP.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"log"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"github.com/mohammad-safakhou/scout/config"
	"github.com/mohammad-safakhou/scout/internal/result"
)

const previewContentChars = 200

// Sender mails digests of newly discovered results. A sender built from a
// disabled config accepts calls and quietly drops them, so callers do not
// need to branch on configuration.
type Sender struct {
	cfg    config.EmailConfig
	logger *log.Logger
}

func NewSender(cfg config.EmailConfig) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: log.New(log.Writer(), "[EMAIL] ", log.LstdFlags),
	}
}

// Enabled reports whether outbound mail is configured.
func (s *Sender) Enabled() bool { return s.cfg.Enabled }

// SendNewResults mails the recipient a digest of results that earlier checks
// had not seen. results carries at most the preview slice, totalNew the full
// count.
func (s *Sender) SendNewResults(recipient string, keywords, platforms []string, results []result.ScoredResult, totalNew int) error {
	if !s.cfg.Enabled {
		s.logger.Printf("email disabled, dropping notification to %s", recipient)
		return nil
	}
	from, err := mail.ParseAddress(s.cfg.From)
	if err != nil {
		return fmt.Errorf("parsing from address: %w", err)
	}
	msg, err := s.message(from, recipient, keywords, platforms, results, totalNew, time.Now())
	if err != nil {
		return err
	}

	addr := s.cfg.SMTPHost + ":" + s.cfg.SMTPPort
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPHost)
	}
	if err := smtp.SendMail(addr, auth, from.Address, []string{recipient}, msg); err != nil {
		return fmt.Errorf("sending notification to %s: %w", recipient, err)
	}
	s.logger.Printf("sent notification to %s (%d new results)", recipient, totalNew)
	return nil
}

type bodyData struct {
	Keywords  string
	Platforms string
	TotalNew  int
	CheckedAt string
	Results   []resultCard
	Truncated bool
}

type resultCard struct {
	Index    int
	Title    string
	URL      string
	Platform string
	Score    int
	Reason   string
	Preview  string
}

// message renders the full RFC 5322 payload, headers included.
func (s *Sender) message(from *mail.Address, recipient string, keywords, platforms []string, results []result.ScoredResult, totalNew int, now time.Time) ([]byte, error) {
	cards := make([]resultCard, 0, len(results))
	for i, r := range results {
		cards = append(cards, resultCard{
			Index:    i + 1,
			Title:    r.Title,
			URL:      r.URL,
			Platform: r.Platform,
			Score:    r.RelevanceScore,
			Reason:   r.RelevanceReason,
			Preview:  truncate(r.Content, previewContentChars),
		})
	}
	data := bodyData{
		Keywords:  strings.Join(keywords, ", "),
		Platforms: strings.Join(platforms, ", "),
		TotalNew:  totalNew,
		CheckedAt: now.UTC().Format("2006-01-02 15:04:05"),
		Results:   cards,
		Truncated: totalNew > len(results),
	}
	var body bytes.Buffer
	if err := notificationBody.Execute(&body, data); err != nil {
		return nil, fmt.Errorf("rendering notification body: %w", err)
	}

	subject := fmt.Sprintf("%d new results for %s", totalNew, strings.Join(keywords, ", "))
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from.String())
	fmt.Fprintf(&msg, "To: %s\r\n", recipient)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

// notificationBody is the digest layout: a summary box followed by one card
// per result. Styles stay inline so the message survives webmail clients.
var notificationBody = template.Must(template.New("notification").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: -apple-system, 'Segoe UI', Roboto, Helvetica, Arial, sans-serif; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; background-color: #f5f5f5;">
  <div style="background-color: #ffffff; border-radius: 8px; padding: 30px;">
    <div style="text-align: center; padding-bottom: 20px; border-bottom: 2px solid #007bff;">
      <h1 style="color: #007bff; margin: 0; font-size: 24px;">scout found something new</h1>
    </div>
    <div style="background-color: #e7f3ff; padding: 15px; border-left: 4px solid #007bff; margin: 20px 0; border-radius: 4px;">
      <p style="margin: 5px 0; font-size: 14px;"><strong>Keywords:</strong> {{.Keywords}}</p>
      <p style="margin: 5px 0; font-size: 14px;"><strong>Platforms:</strong> {{.Platforms}}</p>
      <p style="margin: 5px 0; font-size: 14px;"><strong>New results:</strong> {{.TotalNew}}</p>
      <p style="margin: 5px 0; font-size: 14px;"><strong>Checked at:</strong> {{.CheckedAt}} UTC</p>
    </div>
{{- range .Results}}
    <div style="background-color: #f8f9fa; padding: 15px; margin-bottom: 15px; border-radius: 4px; border: 1px solid #dee2e6;">
      <h3 style="margin: 0 0 10px 0; color: #007bff; font-size: 16px;">[{{.Index}}] {{.Title}}</h3>
      <p><a href="{{.URL}}" style="color: #007bff; word-break: break-all;">{{.URL}}</a></p>
      <div style="font-size: 13px; color: #666;">
        <span style="background-color: #28a745; color: white; padding: 2px 8px; border-radius: 3px; font-size: 12px; font-weight: bold;">relevance {{.Score}}/10</span>
        <span style="margin-left: 10px;">{{.Platform}}</span>
      </div>
{{- if .Reason}}
      <p style="margin-top: 8px; font-size: 13px;">{{.Reason}}</p>
{{- end}}
{{- if .Preview}}
      <p style="margin-top: 8px; font-size: 13px; color: #666;">{{.Preview}}...</p>
{{- end}}
    </div>
{{- end}}
{{- if .Truncated}}
    <p style="text-align: center; color: #666;">Showing {{len .Results}} of {{.TotalNew}} new results.</p>
{{- end}}
    <div style="text-align: center; margin-top: 30px; padding-top: 20px; border-top: 1px solid #dee2e6; font-size: 12px; color: #666;">
      <p>Sent automatically by your scout subscription.</p>
    </div>
  </div>
</body>
</html>
`))

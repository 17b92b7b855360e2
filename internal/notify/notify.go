// Package notify mails the summary of a finished run.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"gtinlookup/internal/batch"
	"gtinlookup/internal/lookup"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("gtinlookup.notify")

type Config struct {
	Server       string   `json:"server"`
	Port         int      `json:"port"`
	EmailAddress string   `json:"email_address"`
	Password     string   `json:"password"`
	To           []string `json:"to"`
}

// Enabled reports whether enough is configured to send mail.
func (c Config) Enabled() bool {
	return c.Server != "" && c.EmailAddress != "" && len(c.To) > 0
}

// Run describes the run a summary belongs to.
type Run struct {
	ID     string
	Input  string
	Output string
	Err    error
}

func subject(run Run, summary batch.Summary) string {
	status := "finished"
	switch {
	case run.Err != nil:
		status = "failed"
	case summary.Cancelled:
		status = "cancelled"
	}
	return fmt.Sprintf("GTIN lookup %s: %d/%d processed, %d rows", status, summary.Processed(), summary.Total, summary.Written)
}

func body(run Run, summary batch.Summary) string {
	var out strings.Builder
	fmt.Fprintf(&out, "Input:  %s\n", run.Input)
	fmt.Fprintf(&out, "Output: %s\n", run.Output)
	if run.ID != "" {
		fmt.Fprintf(&out, "Run:    %s\n", run.ID)
	}
	if run.Err != nil {
		fmt.Fprintf(&out, "Error:  %v\n", run.Err)
	}
	out.WriteString("\n")

	t := summary.Table()
	// mail clients rarely render box drawing characters in a monospace font
	t.SetStyle(table.StyleDefault)
	out.WriteString(t.Render())
	out.WriteString("\n")

	if summary.Counts[lookup.ClassError] > 0 {
		out.WriteString("\nFailed lookups are listed in the run log and in the history database.\n")
	}
	return out.String()
}

type Notifier struct {
	config Config
}

func NewNotifier(config Config) Notifier {
	return Notifier{config: config}
}

func (n Notifier) Send(ctx context.Context, run Run, summary batch.Summary) error {
	ctx, span := tracer.Start(ctx, "notify:Send")
	defer span.End()

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("GTIN Lookup <%s>", n.config.EmailAddress)
	mail.To = n.config.To
	mail.Subject = subject(run, summary)
	mail.Text = []byte(body(run, summary))

	addr := fmt.Sprintf("%s:%d", n.config.Server, n.config.Port)
	err := mail.Send(addr, smtp.PlainAuth("", n.config.EmailAddress, n.config.Password, n.config.Server))
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return err
	}
	return nil
}

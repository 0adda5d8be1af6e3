package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"slices"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"StaffPulse/internal/domain/models"
	domsvc "StaffPulse/internal/domain/service"
	"StaffPulse/pkg/logger"
)

// ShoutrrrNotifier fans an alert out to every configured shoutrrr URL
// (SMS gateways, email, chat webhooks).
type ShoutrrrNotifier struct {
	urls   []string
	sender *router.ServiceRouter
}

// Option tweaks the underlying router.
type Option func(*router.ServiceRouter)

// WithSenderLogger routes shoutrrr's own logging (and the logger:// service) to l.
func WithSenderLogger(l *log.Logger) Option {
	return func(r *router.ServiceRouter) { r.SetLogger(l) }
}

func NewShoutrrrNotifier(urls []string, timeout time.Duration, opts ...Option) (*ShoutrrrNotifier, error) {
	if len(urls) == 0 {
		return nil, errors.New("at least one alert channel URL is required")
	}
	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, fmt.Errorf("alert channels: %w", redact(err, urls))
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))
	for _, opt := range opts {
		opt(sender)
	}
	return &ShoutrrrNotifier{urls: slices.Clone(urls), sender: sender}, nil
}

// Notify sends to all channels and reports the first failure. It returns when
// ctx is done even if a transport is still blocked.
func (n *ShoutrrrNotifier) Notify(ctx context.Context, severity models.Severity, reason string, recipients []string) error {
	params := stypes.Params{}
	params.SetTitle(fmt.Sprintf("[%s] StaffPulse alert", strings.ToUpper(string(severity))))
	body := reason
	if len(recipients) > 0 {
		body += "\nattention: " + strings.Join(recipients, ", ")
	}

	done := make(chan error, 1)
	go func() {
		var first error
		for _, err := range n.sender.Send(body, &params) {
			if err != nil {
				first = err
				break
			}
		}
		done <- first
	}()

	select {
	case err := <-done:
		if err != nil {
			return redact(err, n.urls)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ domsvc.Notifier = (*ShoutrrrNotifier)(nil)

// LogNotifier writes alerts to the service log; used when no channel is configured.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(l *logger.Logger) *LogNotifier {
	if l == nil {
		l = logger.Nop()
	}
	return &LogNotifier{log: l}
}

func (n *LogNotifier) Notify(_ context.Context, severity models.Severity, reason string, recipients []string) error {
	n.log.Warn("ALERT",
		logger.String("severity", string(severity)),
		logger.String("reason", reason),
		logger.Strings("recipients", recipients),
	)
	return nil
}

var _ domsvc.Notifier = (*LogNotifier)(nil)

// redact strips channel URLs, which carry tokens and passwords, from err.
func redact(err error, urls []string) error {
	msg := err.Error()
	changed := false
	for _, raw := range urls {
		if raw == "" || !strings.Contains(msg, raw) {
			continue
		}
		masked := "***"
		if u, perr := url.Parse(raw); perr == nil && u.Scheme != "" {
			masked = u.Scheme + "://***"
		}
		msg = strings.ReplaceAll(msg, raw, masked)
		changed = true
	}
	if !changed {
		return err
	}
	return errors.New(msg)
}

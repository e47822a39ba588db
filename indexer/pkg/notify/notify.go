// Package notify posts milestone program events to a Slack incoming webhook.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/malbeclabs/biox/indexer/pkg/metrics"
	"github.com/malbeclabs/biox/ledger/pkg/runtime"
	"github.com/malbeclabs/biox/program/pkg/state"
	"github.com/slack-go/slack"
)

type Config struct {
	Logger     *slog.Logger
	WebhookURL string
	// Decimals of the funding mint, used to render token amounts.
	Decimals   uint8
	HTTPClient *http.Client
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.WebhookURL == "" {
		return errors.New("webhook url is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return nil
}

// Notifier is a runtime.EventSink that announces publications, fully funded papers
// and claims. Other events are ignored.
type Notifier struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Notifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Notifier{log: cfg.Logger, cfg: cfg}, nil
}

func (n *Notifier) Name() string { return "slack" }

func (n *Notifier) Publish(ctx context.Context, batch *runtime.EventBatch) error {
	var errs []error
	for _, ev := range batch.Events {
		msg := n.Message(batch, ev)
		if msg == nil {
			continue
		}
		err := slack.PostWebhookCustomHTTPContext(ctx, n.cfg.WebhookURL, n.cfg.HTTPClient, msg)
		if err != nil {
			metrics.NotificationsTotal.WithLabelValues(ev.EventName(), "error").Inc()
			errs = append(errs, fmt.Errorf("failed to post %s: %w", ev.EventName(), err))
			continue
		}
		metrics.NotificationsTotal.WithLabelValues(ev.EventName(), "success").Inc()
		n.log.Debug("notify: posted", "event", ev.EventName(), "signature", batch.Signature)
	}
	return errors.Join(errs...)
}

// Message renders ev, or returns nil when ev is not a milestone.
func (n *Notifier) Message(batch *runtime.EventBatch, ev runtime.Event) *slack.WebhookMessage {
	var header, body string
	switch e := ev.(type) {
	case *state.PaperPublishedEvent:
		header = fmt.Sprintf("Paper #%d published", e.PaperID)
		body = fmt.Sprintf("*Author:* `%s`", e.Author)
	case *state.PaperFundedEvent:
		if !e.GoalReached {
			return nil
		}
		header = fmt.Sprintf("Paper #%d fully funded", e.PaperID)
		body = fmt.Sprintf("*Total raised:* %s\n*Final contribution from:* `%s`",
			FormatAmount(e.TotalFunding, n.cfg.Decimals), e.Funder)
	case *state.FundsClaimedEvent:
		header = fmt.Sprintf("Funds claimed for paper #%d", e.PaperID)
		body = fmt.Sprintf("*Amount:* %s\n*Author:* `%s`", FormatAmount(e.Amount, n.cfg.Decimals), e.Author)
	default:
		return nil
	}

	return &slack.WebhookMessage{
		Text: header,
		Blocks: &slack.Blocks{BlockSet: []slack.Block{
			slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, header, true, false)),
			slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, body, false, false), nil, nil),
			slack.NewContextBlock("",
				slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("slot %d · `%s`", batch.Slot, batch.Signature), false, false),
			),
		}},
	}
}

// FormatAmount renders base units as a decimal token amount with trailing zeros trimmed.
func FormatAmount(amount uint64, decimals uint8) string {
	s := strconv.FormatUint(amount, 10)
	if decimals == 0 {
		return s
	}
	d := int(decimals)
	if len(s) <= d {
		s = strings.Repeat("0", d-len(s)+1) + s
	}
	whole, frac := s[:len(s)-d], strings.TrimRight(s[len(s)-d:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

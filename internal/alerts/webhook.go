package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gregdel/pushover"

	"github.com/battwatch/battwatch/internal/config"
)

// maxDeliveryRetries bounds retries per webhook per alert.
const maxDeliveryRetries = 4

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxElapsedTime = time.Minute
	return b
}

// pushSender is the subset of *pushover.Pushover the engine uses.
type pushSender interface {
	SendMessage(*pushover.Message, *pushover.Recipient) (*pushover.Response, error)
}

func newPushoverSender(token string) pushSender {
	return pushover.New(token)
}

// style is the presentation of one severity.
type style struct {
	label string
	color string
}

var styles = map[string]style{
	"critical": {"[CRITICAL]", "FF4F6A"},
	"warning":  {"[WARNING]", "FFAB40"},
	"info":     {"[INFO]", "00D4FF"},
}

const resolvedColor = "2EB886"

// notice is the target-independent rendering of an alert.
type notice struct {
	alert *Alert
	label string
	color string
	facts [][2]string
}

func newNotice(a *Alert) notice {
	st, ok := styles[a.Severity]
	if !ok {
		st = styles["info"]
	}
	if a.State == StateResolved {
		st.color = resolvedColor
	}
	return notice{
		alert: a,
		label: st.label,
		color: st.color,
		facts: [][2]string{
			{"Rule", a.RuleName},
			{"Condition", a.Condition},
			{"Value", strconv.FormatFloat(a.Value, 'f', -1, 64)},
			{"State", a.State},
			{"Record", a.Timestamp},
		},
	}
}

// deliver sends a to every target. Each target is retried on its own;
// failures are logged and never reach the caller.
func (e *Engine) deliver(targets []config.WebhookConfig, a *Alert) {
	n := newNotice(a)
	for _, wh := range targets {
		send, ok := e.sender(wh, n)
		if !ok {
			continue
		}
		log := slog.With("type", wh.Type, "rule", a.RuleName, "state", a.State)

		retry := func(err error, d time.Duration) {
			log.Warn("alerts: delivery attempt failed", "retry_in", d.Round(time.Millisecond), "err", err)
		}
		policy := backoff.WithMaxRetries(e.newBackOff(), maxDeliveryRetries)
		if err := backoff.RetryNotify(send, policy, retry); err != nil {
			log.Error("alerts: delivery abandoned", "err", err)
			continue
		}
		log.Debug("alerts: delivered")
	}
}

// sender builds the delivery operation for one target. It returns false when
// the target lacks a URL or credentials.
func (e *Engine) sender(wh config.WebhookConfig, n notice) (backoff.Operation, bool) {
	url := wh.URL()
	if url == "" {
		slog.Debug("alerts: webhook url unset, skipping", "type", wh.Type, "url_env", wh.URLEnv)
		return nil, false
	}

	switch wh.Type {
	case "slack":
		return e.postJSON(url, slackPayload(n)), true
	case "teams":
		return e.postJSON(url, teamsPayload(n)), true
	case "http":
		return e.postJSON(url, map[string]interface{}{"alert": n.alert}), true
	case "pushover":
		user := wh.Recipient()
		if user == "" {
			slog.Debug("alerts: pushover recipient unset, skipping", "recipient_env", wh.RecipientEnv)
			return nil, false
		}
		push := e.newPush(url)
		return func() error { return sendPushover(push, user, n) }, true
	default:
		slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
		return nil, false
	}
}

func slackPayload(n notice) map[string]interface{} {
	fields := make([]map[string]interface{}, 0, len(n.facts))
	for _, f := range n.facts {
		fields = append(fields, map[string]interface{}{"title": f[0], "value": f[1], "short": true})
	}
	return map[string]interface{}{
		"text": fmt.Sprintf("*%s* %s", n.label, n.alert.Message),
		"attachments": []map[string]interface{}{
			{"color": "#" + n.color, "fields": fields},
		},
	}
}

func teamsPayload(n notice) map[string]interface{} {
	facts := make([]map[string]string, 0, len(n.facts))
	for _, f := range n.facts {
		facts = append(facts, map[string]string{"name": f[0], "value": f[1]})
	}
	return map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": n.color,
		"summary":    n.alert.RuleName,
		"title":      "Battery alert: " + n.alert.RuleName,
		"text":       n.alert.Message,
		"sections":   []map[string]interface{}{{"facts": facts}},
	}
}

func sendPushover(push pushSender, user string, n notice) error {
	a := n.alert
	msg := pushover.NewMessageWithTitle(a.Message, "battwatch: "+a.RuleName)
	if a.Severity == "critical" && a.State == StateFiring {
		msg.Priority = pushover.PriorityHigh
	}
	if _, err := push.SendMessage(msg, pushover.NewRecipient(user)); err != nil {
		return fmt.Errorf("pushover: %w", err)
	}
	return nil
}

// postJSON returns an operation that posts payload to url. Rate limiting and
// server errors are retried; other 4xx responses are permanent.
func (e *Engine) postJSON(url string, payload interface{}) backoff.Operation {
	body, err := json.Marshal(payload)
	return func() error {
		if err != nil {
			return backoff.Permanent(fmt.Errorf("encode payload: %w", err))
		}
		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := e.client.Do(req)
		if err != nil {
			return fmt.Errorf("post: %w", err)
		}
		defer resp.Body.Close()

		status := fmt.Errorf("receiver answered HTTP %d", resp.StatusCode)
		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return status
		case resp.StatusCode >= 400:
			return backoff.Permanent(status)
		}
		return nil
	}
}

package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"

	"github.com/battwatch/battwatch/internal/config"
	"github.com/battwatch/battwatch/internal/diagnose"
)

const (
	defaultCooldown = 15 * time.Minute
	defaultSeverity = "warning"
	maxHistoryLen   = 200
	recentWindow    = time.Hour
)

// Alert states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	Condition  string     `json:"condition"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	Timestamp  string     `json:"timestamp"` // record that triggered the alert
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"`
}

type rule struct {
	config.AlertRule
	cond Condition
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for cooldowns and alert times.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithHTTPClient overrides the client used for slack, teams and http webhooks.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) { e.client = c }
}

// WithBackOff overrides the retry policy used for every delivery attempt.
// newBackOff is called once per delivery.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(e *Engine) { e.newBackOff = newBackOff }
}

// Engine evaluates alert rules against derived records and delivers webhook
// notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	now        func() time.Time
	client     *http.Client
	newBackOff func() backoff.BackOff
	newPush    func(token string) pushSender

	mu       sync.Mutex
	rules    []rule
	webhooks []config.WebhookConfig
	active   map[string]*Alert    // key: rule name
	lastFire map[string]time.Time // last fire time per rule (for cooldown)
	history  []*Alert             // recently resolved alerts

	inflight sync.WaitGroup
}

// New creates an Engine from the alert configuration. It fails if any rule
// condition does not parse. An Engine with no rules is valid; Evaluate is then
// a no-op.
func New(cfg config.AlertsConfig, opts ...Option) (*Engine, error) {
	rules, err := compileRules(cfg.Rules)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		now:        time.Now,
		client:     &http.Client{Timeout: 10 * time.Second},
		newBackOff: defaultBackOff,
		newPush:    newPushoverSender,
		rules:      rules,
		webhooks:   cfg.Webhooks,
		active:     make(map[string]*Alert),
		lastFire:   make(map[string]time.Time),
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

func compileRules(in []config.AlertRule) ([]rule, error) {
	out := make([]rule, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, r := range in {
		if _, dup := seen[r.Name]; dup {
			return nil, fmt.Errorf("alerts: rule %q defined twice", r.Name)
		}
		seen[r.Name] = struct{}{}

		c, err := ParseCondition(r.Condition)
		if err != nil {
			return nil, fmt.Errorf("alerts: rule %q: %w", r.Name, err)
		}
		if r.Severity == "" {
			r.Severity = defaultSeverity
		}
		if r.Cooldown <= 0 {
			r.Cooldown = defaultCooldown
		}
		out = append(out, rule{AlertRule: r, cond: c})
	}
	return out, nil
}

// SetRules replaces the rule set. On a parse error the previous rules stay in
// effect. Alerts firing for rules that no longer exist are resolved without
// notification.
func (e *Engine) SetRules(in []config.AlertRule) error {
	rules, err := compileRules(in)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.replaceRulesLocked(rules)
	return nil
}

// Reconfigure swaps rules and webhooks together. If any rule fails to parse
// neither is changed.
func (e *Engine) Reconfigure(cfg config.AlertsConfig) error {
	rules, err := compileRules(cfg.Rules)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.replaceRulesLocked(rules)
	e.webhooks = cfg.Webhooks
	return nil
}

// replaceRulesLocked installs rules and resolves alerts of removed rules.
// Caller holds e.mu.
func (e *Engine) replaceRulesLocked(rules []rule) {
	e.rules = rules
	keep := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		keep[r.Name] = struct{}{}
	}
	now := e.now()
	for name, a := range e.active {
		if _, ok := keep[name]; ok {
			continue
		}
		e.resolveLocked(name, a, now)
	}
}

// Evaluate tests all configured rules against rec.
// Alerts that fire are stored and webhook delivery is triggered asynchronously.
// Alerts that were firing but whose condition is now false are resolved.
func (e *Engine) Evaluate(rec *diagnose.Record) {
	if rec == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	for _, r := range e.rules {
		fires, value := r.cond.Eval(rec)

		if fires {
			if _, firing := e.active[r.Name]; firing {
				continue
			}
			if last, ok := e.lastFire[r.Name]; ok && now.Sub(last) < r.Cooldown {
				continue
			}
			a := &Alert{
				ID:        uuid.NewString(),
				RuleName:  r.Name,
				Condition: r.cond.String(),
				Severity:  r.Severity,
				Value:     value,
				Timestamp: rec.Timestamp,
				Message: fmt.Sprintf("%s fired: %s (value %.2f) at %s",
					r.Name, r.cond, value, rec.Timestamp),
				FiredAt: now,
				State:   StateFiring,
			}
			e.active[r.Name] = a
			e.lastFire[r.Name] = now

			slog.Warn("alerts: fired",
				"rule", r.Name,
				"value", value,
				"severity", r.Severity,
				"timestamp", rec.Timestamp,
			)
			e.dispatchLocked(*a)
			continue
		}

		if a, ok := e.active[r.Name]; ok {
			e.resolveLocked(r.Name, a, now)
			slog.Info("alerts: resolved", "rule", r.Name, "timestamp", rec.Timestamp)
			e.dispatchLocked(*a)
		}
	}
}

// resolveLocked moves an active alert to history. Caller holds e.mu.
func (e *Engine) resolveLocked(name string, a *Alert, now time.Time) {
	resolved := now
	a.State = StateResolved
	a.ResolvedAt = &resolved
	a.Message = fmt.Sprintf("%s resolved: %s", a.RuleName, a.Condition)
	delete(e.active, name)

	e.history = append(e.history, a)
	if len(e.history) > maxHistoryLen {
		e.history = e.history[len(e.history)-maxHistoryLen:]
	}
}

// dispatchLocked starts asynchronous delivery of a. Caller holds e.mu.
func (e *Engine) dispatchLocked(a Alert) {
	if len(e.webhooks) == 0 {
		return
	}
	targets := append([]config.WebhookConfig(nil), e.webhooks...)
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		e.deliver(targets, &a)
	}()
}

// Wait blocks until every in-flight webhook delivery has finished.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, sorted newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindow)
	out := make([]*Alert, 0, len(e.active))

	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FiredAt.After(out[j].FiredAt)
	})
	return out
}

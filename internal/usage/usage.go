// Package usage reports CLI and IDE extension usage events to the
// platform. Sending is best effort: failures are logged and journaled,
// never returned to the command that triggered them.
package usage

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"resty.dev/v3"

	"github.com/majorcontext/hublink/internal/config"
	"github.com/majorcontext/hublink/internal/log"
	"github.com/majorcontext/hublink/internal/transport"
)

// Known event names.
const (
	EventCLIInteraction = "cli-interaction"
	EventIDEInteraction = "ide-extension-interaction"
)

// Event classes.
const (
	ClassInteraction = "INTERACTION"
	ClassView        = "VIEW"
	ClassActivation  = "ACTIVATION"
)

// BasePath is the telemetry API root.
const BasePath = "content/filemapper/v1"

var endpoints = map[string]string{
	EventCLIInteraction: "cms-cli-usage",
	EventIDEInteraction: "ide-extension-usage",
}

// Endpoint returns the API endpoint for an event name.
func Endpoint(name string) (string, bool) {
	ep, ok := endpoints[name]
	return ep, ok
}

// Event is a single usage event.
type Event struct {
	ID        string
	Time      time.Time
	Name      string
	Class     string
	AccountID int64
	Meta      map[string]string
}

// NewEvent returns an event with a fresh id.
func NewEvent(name, class string, meta map[string]string, accountID int64) Event {
	return Event{
		ID:        uuid.NewString(),
		Time:      time.Now(),
		Name:      name,
		Class:     class,
		AccountID: accountID,
		Meta:      meta,
	}
}

type payload struct {
	EventName  string            `json:"eventName"`
	EventClass string            `json:"eventClass"`
	Meta       map[string]string `json:"meta"`
}

func (ev Event) payload() payload {
	meta := map[string]string{
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cliVersion": transport.Version,
		"eventId":    ev.ID,
	}
	for k, v := range ev.Meta {
		meta[k] = v
	}
	return payload{EventName: ev.Name, EventClass: ev.Class, Meta: meta}
}

// DefaultTimeout bounds each async send.
const DefaultTimeout = 5 * time.Second

// Tracker sends usage events.
type Tracker struct {
	cfg     *config.CLIConfiguration
	client  *transport.Client
	journal *Journal

	// BaseURL, when set, replaces the platform origin for unauthenticated
	// sends. Tests point it at an httptest server.
	BaseURL string
	Timeout time.Duration

	mu   sync.Mutex
	anon map[string]*resty.Client
	wg   sync.WaitGroup
}

// NewTracker returns a Tracker. client sends authenticated events for
// personal access key accounts. journal may be nil.
func NewTracker(cfg *config.CLIConfiguration, client *transport.Client, journal *Journal) *Tracker {
	return &Tracker{
		cfg:     cfg,
		client:  client,
		journal: journal,
		Timeout: DefaultTimeout,
		anon:    map[string]*resty.Client{},
	}
}

// Enabled reports whether the configuration allows usage tracking.
func (t *Tracker) Enabled() bool {
	return t.cfg.UsageTrackingAllowed()
}

// Track sends an event and waits for the result. It returns nil when
// tracking is disabled or the event name is unknown.
func (t *Tracker) Track(ctx context.Context, name, class string, meta map[string]string, accountID int64) error {
	ev, ok := t.accept(name, class, meta, accountID)
	if !ok {
		return nil
	}
	req, path, err := t.prepare(ctx, ev)
	if err != nil {
		t.record(ev, err)
		return err
	}
	err = t.send(req, path)
	t.record(ev, err)
	return err
}

// TrackAsync sends an event in the background. Errors are logged and
// journaled. Config lookups and authorization happen before it returns,
// so the caller keeps sole use of the configuration.
func (t *Tracker) TrackAsync(name, class string, meta map[string]string, accountID int64) {
	ev, ok := t.accept(name, class, meta, accountID)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.Timeout)
	req, path, err := t.prepare(ctx, ev)
	if err != nil {
		cancel()
		log.Debug("usage event not sent", "event", name, "error", err)
		t.record(ev, err)
		return
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer cancel()
		err := t.send(req, path)
		if err != nil {
			log.Debug("usage event failed", "event", name, "error", err)
		}
		t.record(ev, err)
	}()
}

// Wait blocks until pending async sends finish or timeout passes. It
// reports whether everything finished.
func (t *Tracker) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// Flush resends journaled events whose last send failed and returns how
// many were sent.
func (t *Tracker) Flush(ctx context.Context) (int, error) {
	if t.journal == nil {
		return 0, nil
	}
	if !t.Enabled() {
		return 0, fmt.Errorf("usage tracking is disabled\n\nEnable it with: hublink config set --allow-usage-tracking=true")
	}
	failed, err := t.journal.Failed()
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, rec := range failed {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		req, path, err := t.prepare(ctx, rec.Event)
		if err == nil {
			err = t.send(req, path)
		}
		t.record(rec.Event, err)
		if err == nil {
			sent++
		}
	}
	return sent, nil
}

// Close waits briefly for pending sends and releases HTTP clients. It
// does not close the journal.
func (t *Tracker) Close() error {
	t.Wait(t.Timeout)
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, rc := range t.anon {
		rc.Client().CloseIdleConnections()
		rc.Close()
		delete(t.anon, k)
	}
	return nil
}

func (t *Tracker) accept(name, class string, meta map[string]string, accountID int64) (Event, bool) {
	if !t.Enabled() {
		log.Debug("usage tracking disabled, dropping event", "event", name)
		return Event{}, false
	}
	if _, ok := endpoints[name]; !ok {
		log.Debug("unknown usage event, dropping", "event", name)
		return Event{}, false
	}
	return NewEvent(name, class, meta, accountID), true
}

// prepare builds the request for ev. Personal access key accounts post to
// the authenticated endpoint; everyone else posts anonymously.
func (t *Tracker) prepare(ctx context.Context, ev Event) (*resty.Request, string, error) {
	path := BasePath + "/" + endpoints[ev.Name]
	body := ev.payload()

	var account *config.Account
	if ev.AccountID != 0 {
		account, _ = t.cfg.AccountByID(ev.AccountID)
	}

	if account != nil && account.AuthType == config.AuthPersonalAccessKey && t.client != nil {
		req, err := t.client.Request(ctx, ev.AccountID)
		if err != nil {
			return nil, "", err
		}
		return req.SetHeader("Content-Type", "application/json").SetBody(body), "/" + path + "/authenticated", nil
	}

	var accountID int64
	if account != nil {
		accountID = account.AccountID
	}
	rc, err := t.anonClient(accountID)
	if err != nil {
		return nil, "", err
	}
	req := rc.R().SetContext(ctx).SetHeader("Content-Type", "application/json").SetBody(body)
	return req, "/" + path, nil
}

func (t *Tracker) anonClient(accountID int64) (*resty.Client, error) {
	opts, err := transport.BuildOptions(t.cfg, accountID)
	if err != nil {
		return nil, err
	}
	if t.BaseURL != "" {
		opts.BaseURL = t.BaseURL
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if rc, ok := t.anon[opts.BaseURL]; ok {
		return rc, nil
	}
	rc := transport.NewClient(opts)
	t.anon[opts.BaseURL] = rc
	return rc, nil
}

func (t *Tracker) send(req *resty.Request, path string) error {
	resp, err := req.Execute(http.MethodPost, path)
	if err != nil {
		return fmt.Errorf("sending usage event: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("sending usage event: %s", resp.Status())
	}
	return nil
}

func (t *Tracker) record(ev Event, err error) {
	if t.journal == nil {
		return
	}
	status := StatusSent
	if err != nil {
		status = StatusFailed
	}
	if jerr := t.journal.Record(ev, status, err); jerr != nil {
		log.Debug("failed to journal usage event", "error", jerr)
	}
}

// Package calling places outbound phone calls that read an approved call script, using the
// Twilio Voice API.
package calling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/twilio/twilio-go/twiml"

	"github.com/BTreeMap/CareConcierge/internal/models"
)

// Disclosure is read before every script.
const Disclosure = "Hello. This is an automated call placed by an AI assistant on behalf of a patient."

var (
	ErrScriptNotFound = errors.New("call script not found")
	ErrNoClinicPhone  = errors.New("call script has no clinic phone number")
)

// ScriptSource looks up persisted call scripts.
type ScriptSource interface {
	GetCallScript(id string) (*models.CallScript, error)
}

// voiceAPI is the part of the Twilio REST API used here.
type voiceAPI interface {
	CreateCall(params *twilioApi.CreateCallParams) (*twilioApi.ApiV2010Call, error)
}

// Opts holds configuration options for the Twilio voice caller.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	Voice      string
}

// Option defines a configuration option for the Twilio voice caller.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromNumber sets the caller id in E.164 format.
func WithFromNumber(from string) Option {
	return func(o *Opts) { o.FromNumber = from }
}

// WithVoice sets the TwiML <Say> voice.
func WithVoice(voice string) Option {
	return func(o *Opts) { o.Voice = voice }
}

// Client places calls through Twilio.
type Client struct {
	api     voiceAPI
	scripts ScriptSource
	from    string
	voice   string
}

// NewClient creates a Twilio voice caller. Credentials fall back to TWILIO_ACCOUNT_SID,
// TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER.
func NewClient(scripts ScriptSource, opts ...Option) (*Client, error) {
	cfg := Opts{Voice: "alice"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio voice config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromNumber_set", cfg.FromNumber != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("from number must be provided")
	}
	if scripts == nil {
		return nil, fmt.Errorf("script source must be provided")
	}

	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Client{api: rest.Api, scripts: scripts, from: cfg.FromNumber, voice: cfg.Voice}, nil
}

// Call dials the clinic of the script and reads it. It reports only success or failure;
// details are logged.
func (c *Client) Call(ctx context.Context, scriptID string) bool {
	sid, err := c.Place(ctx, scriptID)
	if err != nil {
		slog.Error("Twilio Call failed", "scriptID", scriptID, "error", err)
		return false
	}
	slog.Info("Twilio call placed", "scriptID", scriptID, "callSID", sid)
	return true
}

// Place dials the clinic of the script and returns the Twilio call SID.
func (c *Client) Place(ctx context.Context, scriptID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	script, err := c.scripts.GetCallScript(scriptID)
	if err != nil {
		return "", fmt.Errorf("failed to load call script %s: %w", scriptID, err)
	}
	if script == nil {
		return "", ErrScriptNotFound
	}
	if strings.TrimSpace(script.ClinicPhone) == "" {
		return "", ErrNoClinicPhone
	}

	params := &twilioApi.CreateCallParams{}
	params.SetTo(script.ClinicPhone)
	params.SetFrom(c.from)
	doc, err := TwiML(script.ScriptText, c.voice)
	if err != nil {
		return "", fmt.Errorf("failed to render TwiML for script %s: %w", script.ID, err)
	}
	params.SetTwiml(doc)

	call, err := c.api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("failed to create call to %s: %w", script.ClinicPhone, err)
	}
	if call != nil && call.Sid != nil {
		return *call.Sid, nil
	}
	return "", nil
}

// TwiML renders the disclosure and script as a <Say> document.
func TwiML(script, voice string) (string, error) {
	var verbs []twiml.Element
	for _, part := range []string{Disclosure, script} {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		verbs = append(verbs, &twiml.VoiceSay{Message: part, Voice: voice})
	}
	return twiml.Voice(verbs)
}

// MockClient records calls instead of placing them.
type MockClient struct {
	mu     sync.Mutex
	Calls  []string
	Result bool
}

// NewMockClient returns a MockClient whose calls succeed.
func NewMockClient() *MockClient {
	return &MockClient{Calls: []string{}, Result: true}
}

// Call records scriptID and returns m.Result.
func (m *MockClient) Call(ctx context.Context, scriptID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, scriptID)
	slog.Debug("MockClient Call", "scriptID", scriptID, "result", m.Result)
	return m.Result
}

// CallCount returns how many calls were recorded.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

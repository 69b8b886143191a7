package authflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// HTTPDispatcher delivers templated mail through an EmailJS style HTTP
// API: a JSON POST naming the service, template, and substitution
// parameters.
type HTTPDispatcher struct {
	endpoint  string
	serviceID string
	publicKey string
	secretKey string
	templates map[TemplateKey]string
	client    *http.Client
	logger    Logger
}

var _ MailDispatcher = (*HTTPDispatcher)(nil)

type httpDispatchPayload struct {
	ServiceID      string     `json:"service_id"`
	TemplateID     string     `json:"template_id"`
	UserID         string     `json:"user_id"`
	AccessToken    string     `json:"accessToken,omitempty"`
	TemplateParams MailParams `json:"template_params"`
}

func NewHTTPDispatcher(cfg MailConfig) *HTTPDispatcher {
	return &HTTPDispatcher{
		endpoint:  cfg.Endpoint,
		serviceID: cfg.ServiceID,
		publicKey: cfg.PublicKey,
		secretKey: cfg.PrivateKey,
		templates: map[TemplateKey]string{
			TemplateVerifyOTP:  cfg.TemplateVerify,
			TemplateRecoverOTP: cfg.TemplateRecover,
			TemplateWelcome:    cfg.TemplateWelcome,
			TemplateContact:    cfg.TemplateContact,
			TemplateReset:      cfg.TemplateReset,
		},
		client: &http.Client{Timeout: time.Second * 10},
		logger: defLogger{},
	}
}

func (d *HTTPDispatcher) WithLogger(logger Logger) *HTTPDispatcher {
	if logger != nil {
		d.logger = logger
	}
	return d
}

func (d *HTTPDispatcher) WithHTTPClient(client *http.Client) *HTTPDispatcher {
	if client != nil {
		d.client = client
	}
	return d
}

func (d *HTTPDispatcher) Send(ctx context.Context, template TemplateKey, to string, params MailParams) error {
	templateID, ok := d.templates[template]
	if !ok || templateID == "" {
		return goerrors.New("no template configured for key", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"template": string(template)})
	}

	merged := MailParams{"to_email": to}
	for k, v := range params {
		merged[k] = v
	}

	payload := httpDispatchPayload{
		ServiceID:      d.serviceID,
		TemplateID:     templateID,
		UserID:         d.publicKey,
		AccessToken:    d.secretKey,
		TemplateParams: merged,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode mail payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build mail request")
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := d.client.Do(req)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "mail dispatch request failed").
			WithTextCode(textCodeDispatchFailed)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		d.logger.Error("mail dispatch rejected: status=%d body=%s", res.StatusCode, string(detail))
		return goerrors.New(
			fmt.Sprintf("mail service rejected dispatch with status %d", res.StatusCode),
			goerrors.CategoryOperation,
		).WithTextCode(textCodeDispatchFailed).
			WithMetadata(map[string]any{"status": res.StatusCode, "template": string(template)})
	}

	return nil
}

// SentMail is one captured dispatch.
type SentMail struct {
	Template TemplateKey
	To       string
	Params   MailParams
}

// RecordingDispatcher captures dispatches instead of delivering them.
// Useful in development and in tests.
type RecordingDispatcher struct {
	mu   sync.Mutex
	sent []SentMail
	fail error
}

var _ MailDispatcher = (*RecordingDispatcher)(nil)

func NewRecordingDispatcher() *RecordingDispatcher {
	return &RecordingDispatcher{}
}

// FailWith makes every subsequent Send return the given error.
func (d *RecordingDispatcher) FailWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = err
}

func (d *RecordingDispatcher) Send(ctx context.Context, template TemplateKey, to string, params MailParams) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fail != nil {
		return d.fail
	}

	d.sent = append(d.sent, SentMail{
		Template: template,
		To:       to,
		Params:   params,
	})

	return nil
}

func (d *RecordingDispatcher) Sent() []SentMail {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]SentMail, len(d.sent))
	copy(out, d.sent)
	return out
}

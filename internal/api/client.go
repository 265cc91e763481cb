// Package api is the storefront backend client. Every call goes through
// Call, which attaches credentials, maps failures onto the error taxonomy and
// forces a logout when the backend rejects the session.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	apierrors "github.com/FulloMyself/tasselgroupreact/internal/errors"
	"github.com/FulloMyself/tasselgroupreact/internal/events"
	"github.com/FulloMyself/tasselgroupreact/internal/httputil"
	"github.com/FulloMyself/tasselgroupreact/pkg/logger"
)

// Session is the credential holder the client reads tokens from and forces
// out on a 401.
type Session interface {
	Token() string
	Invalidate(ctx context.Context, reason string)
}

// ReasonUnauthorized is the invalidation reason used on a 401.
const ReasonUnauthorized = "unauthorized"

// Config configures a Client.
type Config struct {
	// BaseURL is the resolved API root, e.g. http://localhost:5000/api.
	BaseURL   string
	Transport *httputil.Transport
	// Bus receives session.changed when no Session is bound.
	Bus    *events.Bus
	Logger *logger.Logger
}

// Client is safe for concurrent use.
type Client struct {
	baseURL   string
	transport *httputil.Transport
	bus       *events.Bus
	log       *logger.Logger

	mu      sync.RWMutex
	session Session
}

// New creates a client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("api")
	}
	tr := cfg.Transport
	if tr == nil {
		tr = httputil.NewTransport(httputil.Config{Logger: log.Named("transport")})
	}

	return &Client{
		baseURL:   base,
		transport: tr,
		bus:       cfg.Bus,
		log:       log,
	}, nil
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Bind attaches the session whose token is sent and which is invalidated on
// a 401. Passing nil detaches it.
func (c *Client) Bind(s Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

func (c *Client) boundSession() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// CallOptions describes one call.
type CallOptions struct {
	Method string
	Body   interface{}
	Header http.Header
	Query  url.Values

	// Anonymous sends no bearer token and leaves the session alone on 401.
	// Credential exchanges use it: their 401 means bad credentials.
	Anonymous bool
}

// Call performs a request against endpoint, a path relative to the base URL.
// On failure the returned error is always an *apierrors.Error.
func (c *Client) Call(ctx context.Context, endpoint string, opts CallOptions) (*httputil.Result, error) {
	method := strings.ToUpper(opts.Method)
	if method == "" {
		method = http.MethodGet
	}

	req := &httputil.Request{
		Method: method,
		URL:    c.url(endpoint, opts.Query),
		Header: make(http.Header),
	}
	for k, vs := range opts.Header {
		req.Header[k] = append([]string(nil), vs...)
	}
	req.Header.Set("Content-Type", "application/json")

	session := c.boundSession()
	if opts.Anonymous {
		session = nil
	}
	if session != nil {
		if token := session.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	if opts.Body != nil && method != http.MethodGet && method != http.MethodHead {
		data, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, &apierrors.Error{
				Kind:    apierrors.KindValidation,
				Message: apierrors.UserMessage(apierrors.KindValidation),
				Detail:  fmt.Sprintf("marshal body: %v", err),
				Err:     err,
			}
		}
		req.Body = data
	}

	res, err := c.transport.Send(ctx, req)
	if err != nil {
		return nil, c.fail(ctx, method, endpoint, session, !opts.Anonymous, err)
	}
	return res, nil
}

// CallJSON performs a call and decodes the envelope's data member into out.
// out may be nil when only success matters.
func (c *Client) CallJSON(ctx context.Context, endpoint string, opts CallOptions, out interface{}) error {
	res, err := c.Call(ctx, endpoint, opts)
	if err != nil {
		return err
	}
	return decodeData(res, out)
}

// callRaw performs a call and decodes the whole JSON body into out.
func (c *Client) callRaw(ctx context.Context, endpoint string, opts CallOptions, out interface{}) error {
	res, err := c.Call(ctx, endpoint, opts)
	if err != nil {
		return err
	}
	if !res.IsJSON {
		return apierrors.UnexpectedResponse(fmt.Sprintf("%s returned %q", endpoint, res.ContentType))
	}
	if err := res.Decode(out); err != nil {
		e := apierrors.UnexpectedResponse(err.Error())
		e.Err = err
		return e
	}
	return nil
}

func (c *Client) fail(ctx context.Context, method, endpoint string, session Session, tearDown bool, err error) error {
	e := apierrors.Classify(err)

	var se *httputil.HTTPStatusError
	if errors.As(err, &se) && se.Message != "" {
		e = &apierrors.Error{Kind: e.Kind, Status: e.Status, Message: e.Message, Detail: se.Message, Err: e.Err}
	}

	entry := c.log.WithContext(ctx).WithFields(map[string]interface{}{
		"method":   method,
		"endpoint": endpoint,
		"kind":     string(e.Kind),
		"status":   e.Status,
	})
	if e.Kind == apierrors.KindServer || e.Kind == apierrors.KindConnectivity || e.Kind == apierrors.KindTimeout {
		entry.WithError(err).Error("api call failed")
	} else {
		entry.WithError(err).Debug("api call failed")
	}

	if e.Kind == apierrors.KindAuthentication && tearDown {
		c.unauthorized(ctx, session)
	}
	return e
}

// unauthorized clears the bound session. Without one the client still
// announces the change so listeners drop cached identity.
func (c *Client) unauthorized(ctx context.Context, session Session) {
	if session != nil {
		session.Invalidate(ctx, ReasonUnauthorized)
		return
	}
	c.bus.Publish(events.Event{Type: events.EventSessionChanged, Reason: ReasonUnauthorized})
}

func (c *Client) url(endpoint string, query url.Values) string {
	u := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// decodeData extracts the "data" member of the response envelope. A 2xx body
// with success:false is reported as a generic failure with the server message.
func decodeData(res *httputil.Result, out interface{}) error {
	if !res.IsJSON {
		return apierrors.UnexpectedResponse(fmt.Sprintf("expected JSON, got %q", res.ContentType))
	}
	if ok := res.Get("success"); ok.Exists() && !ok.Bool() {
		return serverRefusal(res.Get("message").String())
	}
	data := res.Get("data")
	if !data.Exists() {
		return apierrors.UnexpectedResponse("response envelope has no data member")
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(data.Raw), out); err != nil {
		e := apierrors.UnexpectedResponse(fmt.Sprintf("decode data: %v", err))
		e.Err = err
		return e
	}
	return nil
}

func serverRefusal(msg string) *apierrors.Error {
	e := apierrors.New(apierrors.KindGeneric, msg)
	if strings.TrimSpace(msg) != "" {
		e.Message = msg
	}
	return e
}

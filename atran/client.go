package atran

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/LukasK13/ESBO-ETC/logging"
	"github.com/LukasK13/ESBO-ETC/spectral"
)

// DefaultURL is the host of the public ATRAN service
const DefaultURL = "https://atran.arc.nasa.gov"

const formPath = "/cgi-bin/atran/atran.cgi"

var (
	errorRe = regexp.MustCompile(`<CENTER><H2>ERROR!!</H2></CENTER><CENTER>(.*)</CENTER>`)
	linkRe  = regexp.MustCompile(`href="(/atran_calc/atran.(?:plt|smo).\d*.dat)"`)
)

// Fetcher computes transmission spectra
type Fetcher interface {
	Fetch(ctx context.Context, r Request) (*spectral.Qty, error)
}

// Client talks to an ATRAN service.  It is safe for concurrent use.
type Client struct {
	// URL is the host the form and result paths are resolved against
	URL string

	// HTTP is the client used for both requests of a model run
	HTTP *http.Client

	// Retries is the number of retries after a failed transfer.  Errors
	// reported by the service are not retried.
	Retries uint64

	limiter *rate.Limiter
	log     logging.Logger

	mu    sync.Mutex
	cache map[form]*spectral.Qty
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithURL points the client at another host
func WithURL(u string) ClientOption {
	return func(c *Client) { c.URL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.HTTP = h }
}

// WithRetries sets the number of retries
func WithRetries(n uint64) ClientOption {
	return func(c *Client) { c.Retries = n }
}

// WithRate limits the client to one model run per interval
func WithRate(every time.Duration) ClientOption {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Every(every), 1) }
}

// WithLogger sets the sink for progress messages
func WithLogger(l logging.Logger) ClientOption {
	return func(c *Client) { c.log = l }
}

// NewClient returns a client for the public service with a one minute
// timeout, three retries and at most one model run every two seconds
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		URL:     DefaultURL,
		HTTP:    &http.Client{Timeout: time.Minute},
		Retries: 3,
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 1),
		cache:   make(map[form]*spectral.Qty),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = logging.OrNoop(c.log)
	return c
}

// Fetch runs the model for r and returns the transmittance spectrum
func (c *Client) Fetch(ctx context.Context, r Request) (*spectral.Qty, error) {
	f, err := r.form()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	q, ok := c.cache[f]
	c.mu.Unlock()
	if ok {
		return q, nil
	}

	c.log.Info("requesting ATRAN transmission profile",
		logging.Float("altitude_ft", f.altitude),
		logging.Float("wl_min_um", f.wlMin),
		logging.Float("wl_max_um", f.wlMax))

	// failures reported by the service end the retries, transfer errors
	// are returned to backoff
	var permanent error
	op := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			permanent = err
			return nil
		}
		res, err := c.run(ctx, f)
		if err != nil {
			if errors.Cause(err) == ErrService || ctx.Err() != nil {
				permanent = err
				return nil
			}
			c.log.Warn("ATRAN request failed", logging.String("error", err.Error()))
			return err
		}
		q = res
		return nil
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.Retries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, errors.Wrap(err, "ATRAN request")
	}
	if permanent != nil {
		return nil, permanent
	}

	c.mu.Lock()
	c.cache[f] = q
	c.mu.Unlock()
	return q, nil
}

func (c *Client) run(ctx context.Context, f form) (*spectral.Qty, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL+formPath, strings.NewReader(f.values().Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	page, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if m := errorRe.FindSubmatch(page); m != nil {
		return nil, errors.Wrap(ErrService, string(m[1]))
	}
	m := linkRe.FindSubmatch(page)
	if m == nil {
		return nil, errors.Wrap(ErrService, "link to data file not found")
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, c.URL+string(m[1]), nil)
	if err != nil {
		return nil, err
	}
	data, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errors.Wrap(ErrService, "request returned empty response")
	}
	q, err := Parse(strings.NewReader(string(data)), spectral.WithLogger(c.log))
	if err != nil {
		return nil, errors.Wrap(ErrService, err.Error())
	}
	return q, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode >= 500:
		return nil, errors.Errorf("%s %s returned status code %d", req.Method, req.URL.Path, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, errors.Wrapf(ErrService, "%s %s returned status code %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	return body, nil
}

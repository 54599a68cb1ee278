// Copyright (c) 2025 Harbornet and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type httpSourceOptions struct {
	logger      *zap.Logger
	client      *http.Client
	password    string
	maxRetries  int
	waitMin     time.Duration
	waitMax     time.Duration
	tripCount   uint32
	breakerName string
}

// HTTPSourceOption configures an HTTPSource.
type HTTPSourceOption func(*httpSourceOptions)

// HTTPSourceLogger configures the logger used for reporting fetch attempts.
func HTTPSourceLogger(logger *zap.Logger) HTTPSourceOption {
	return func(o *httpSourceOptions) {
		o.logger = logger
	}
}

// HTTPSourceClient overrides the underlying http.Client. When set, the
// retry options are ignored and the client is used as-is.
func HTTPSourceClient(c *http.Client) HTTPSourceOption {
	return func(o *httpSourceOptions) {
		o.client = c
	}
}

// PKCS12Password sets the password used to decode PKCS#12 bundles
// served with an application/x-pkcs12 content type.
func PKCS12Password(password string) HTTPSourceOption {
	return func(o *httpSourceOptions) {
		o.password = password
	}
}

// MaxAttempts configures how many times a single fetch is retried.
func MaxAttempts(n int) HTTPSourceOption {
	return func(o *httpSourceOptions) {
		o.maxRetries = n
	}
}

// TripCount determines the number of consecutive fetch failures
// required to trip the circuit and stop hitting the issuer for a while.
func TripCount(n uint32) HTTPSourceOption {
	return func(o *httpSourceOptions) {
		o.tripCount = n
	}
}

// HTTPSource periodically fetches identity material from an HTTP
// endpoint, for example an internal issuance service. Fetches are
// retried with backoff and guarded by a circuit breaker so a flapping
// issuer cannot be hammered; the serving path is unaffected either way
// since the previous identity remains active.
type HTTPSource struct {
	url      string
	interval time.Duration
	password string

	log    *zap.Logger
	client *http.Client
	cb     *gobreaker.CircuitBreaker

	ch chan Loader
}

// NewHTTPSource returns an HTTPSource which fetches from url every interval.
func NewHTTPSource(url string, interval time.Duration, opts ...HTTPSourceOption) *HTTPSource {
	ho := &httpSourceOptions{
		logger:      zap.NewNop(),
		maxRetries:  2,
		waitMin:     100 * time.Millisecond,
		waitMax:     5 * time.Second,
		tripCount:   5,
		breakerName: "identity-http-source",
	}
	for _, opt := range opts {
		opt(ho)
	}

	log := ho.logger
	client := ho.client
	if client == nil {
		rc := retryablehttp.NewClient()
		rc.Logger = nil
		rc.RetryMax = ho.maxRetries
		rc.RetryWaitMin = ho.waitMin
		rc.RetryWaitMax = ho.waitMax
		rc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
			log.Info("fetching identity material", zap.String("url", req.URL.String()), zap.Int("request_attempt_count", attempt))
		}
		client = rc.StandardClient()
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: ho.breakerName,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= ho.tripCount
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			switch to {
			case gobreaker.StateOpen:
				log.Error("identity fetch circuit has been opened")
			case gobreaker.StateHalfOpen:
				log.Warn("identity fetch circuit is now half open")
			case gobreaker.StateClosed:
				log.Info("identity fetch circuit has been closed")
			}
		},
	})

	return &HTTPSource{
		url:      url,
		interval: interval,
		password: ho.password,
		log:      log,
		client:   client,
		cb:       cb,
		ch:       make(chan Loader, 8),
	}
}

// Updates implements the Source interface.
func (s *HTTPSource) Updates() <-chan Loader {
	return s.ch
}

// Poll fetches immediately and then on every interval tick until the
// context is cancelled. Individual fetch failures are logged and the
// next tick tries again.
func (s *HTTPSource) Poll(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		err := s.fetch(ctx)
		if err != nil && !errors.Is(err, gobreaker.ErrOpenState) {
			s.log.Error("failed to fetch identity material", zap.String("url", s.url), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *HTTPSource) fetch(ctx context.Context) error {
	v, err := s.cb.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, UnexpectedStatusError{StatusCode: resp.StatusCode}
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return s.loaderFor(resp.Header.Get("Content-Type"), body), nil
	})
	if err != nil {
		return err
	}

	select {
	case s.ch <- v.(Loader):
	default:
	}
	return nil
}

// loaderFor defers parsing to drain time so superseded fetches are
// never parsed at all.
func (s *HTTPSource) loaderFor(contentType string, body []byte) Loader {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	password := s.password
	if mediaType == "application/x-pkcs12" {
		return LoaderFunc(func() (Identity, error) {
			return FromPKCS12(body, password)
		})
	}
	return LoaderFunc(func() (Identity, error) {
		return fromBundle(body)
	})
}

// fromBundle splits a concatenated PEM bundle into certificate and key
// material. Issuers commonly serve both in one document.
func fromBundle(bundle []byte) (Identity, error) {
	certPEM, keyPEM := splitBundle(bundle)
	if len(certPEM) == 0 || len(keyPEM) == 0 {
		return Identity{}, InvalidMaterialError{Cause: errors.New("bundle must contain both certificate and key blocks")}
	}
	return FromPEM(certPEM, keyPEM)
}

// UnexpectedStatusError occurs when the identity endpoint responds
// with anything other than 200 OK.
type UnexpectedStatusError struct {
	StatusCode int
}

// Error implements the error interface.
func (e UnexpectedStatusError) Error() string {
	return fmt.Sprintf("unexpected status code from identity endpoint: %d", e.StatusCode)
}

package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ifuryst/postshare/internal/models"
	"github.com/ifuryst/postshare/internal/service/publisher"
)

const (
	DefaultEndpoint = "https://api.linkedin.com/v2/ugcPosts"

	restliProtocolVersion = "2.0.0"
	maxErrorBody          = 4 << 10
)

// StatusError is returned for a non-2xx response from LinkedIn.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("linkedin responded %d: %s", e.StatusCode, e.Body)
}

// clientFault reports whether the failure is specific to the request, so it
// does not count against the circuit breaker.
func clientFault(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 &&
		statusErr.StatusCode != http.StatusTooManyRequests
}

type Options struct {
	Endpoint        string
	Timeout         time.Duration
	RatePerSec      float64
	Burst           int
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// Publisher shares text posts through the LinkedIn UGC API. It makes a single
// attempt per call.
type Publisher struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker[*publisher.PublishResult]
	logger   *zap.Logger
	now      func() time.Time
}

func NewPublisher(opts Options, logger *zap.Logger) *Publisher {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	limit := rate.Inf
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
	}
	failures := opts.BreakerFailures
	if failures == 0 {
		failures = 5
	}

	breaker := gobreaker.NewCircuitBreaker[*publisher.PublishResult](gobreaker.Settings{
		Name:        "linkedin",
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || clientFault(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Publisher{
		endpoint: opts.Endpoint,
		client:   &http.Client{Timeout: opts.Timeout},
		limiter:  rate.NewLimiter(limit, opts.Burst),
		breaker:  breaker,
		logger:   logger,
		now:      time.Now,
	}
}

func (p *Publisher) GetPlatformName() string {
	return models.ProviderLinkedIn
}

func (p *Publisher) Publish(ctx context.Context, content publisher.PublishContent, creds publisher.Credentials) (*publisher.PublishResult, error) {
	if creds.UID == "" || creds.Token == "" {
		return nil, errors.Wrap(publisher.ErrNotConnected, "missing linkedin uid or token")
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limit wait")
	}

	return p.breaker.Execute(func() (*publisher.PublishResult, error) {
		return p.post(ctx, content, creds)
	})
}

type ugcPost struct {
	Author          string          `json:"author"`
	LifecycleState  string          `json:"lifecycleState"`
	SpecificContent specificContent `json:"specificContent"`
	Visibility      visibility      `json:"visibility"`
}

type specificContent struct {
	ShareContent shareContent `json:"com.linkedin.ugc.ShareContent"`
}

type shareContent struct {
	ShareCommentary    shareCommentary `json:"shareCommentary"`
	ShareMediaCategory string          `json:"shareMediaCategory"`
}

type shareCommentary struct {
	Text string `json:"text"`
}

type visibility struct {
	MemberNetworkVisibility string `json:"com.linkedin.ugc.MemberNetworkVisibility"`
}

func newUGCPost(uid, text string) ugcPost {
	return ugcPost{
		Author:         "urn:li:person:" + uid,
		LifecycleState: "PUBLISHED",
		SpecificContent: specificContent{
			ShareContent: shareContent{
				ShareCommentary:    shareCommentary{Text: text},
				ShareMediaCategory: "NONE",
			},
		},
		Visibility: visibility{MemberNetworkVisibility: "PUBLIC"},
	}
}

func (p *Publisher) post(ctx context.Context, content publisher.PublishContent, creds publisher.Credentials) (*publisher.PublishResult, error) {
	body, err := json.Marshal(newUGCPost(creds.UID, content.Text))
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal ugc post")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Authorization", "Bearer "+creds.Token)
	req.Header.Set("X-Restli-Protocol-Version", restliProtocolVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "linkedin request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	publishID := resp.Header.Get("X-RestLi-Id")
	p.logger.Info("Published to LinkedIn",
		zap.Uint("post_id", content.ID),
		zap.String("publish_id", publishID))

	return &publisher.PublishResult{
		Success:     true,
		PublishID:   publishID,
		PublishedAt: p.now(),
	}, nil
}

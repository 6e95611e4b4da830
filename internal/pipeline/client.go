// Package pipeline is the HTTP client for the remote audio-analysis pipeline:
// upload slot, direct storage write, pipeline trigger and status reads.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"sales-coach-go/internal/logger"
	"sales-coach-go/internal/types"
)

// maxErrorBody bounds how much of a response body is kept for errors and
// decoding.
const maxErrorBody = 8 << 20

type ClientConfig struct {
	BaseURL    string
	HTTPClient *http.Client

	SlotTimeout     time.Duration
	TriggerTimeout  time.Duration
	StatusTimeout   time.Duration
	TransferTimeout time.Duration

	// RetryMaxElapsed bounds retries of the slot and trigger calls. Zero
	// disables retrying. Status reads are never retried.
	RetryMaxElapsed      time.Duration
	RetryInitialInterval time.Duration

	// RateLimitRPS paces API calls (not storage writes). Zero disables it.
	RateLimitRPS   float64
	RateLimitBurst int

	Logger *logrus.Entry
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter

	slotTimeout     time.Duration
	triggerTimeout  time.Duration
	statusTimeout   time.Duration
	transferTimeout time.Duration

	retryMaxElapsed time.Duration
	retryInitial    time.Duration

	log *logrus.Entry
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = 250 * time.Millisecond
	}
	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}

	return &Client{
		baseURL:         strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		httpClient:      cfg.HTTPClient,
		limiter:         limiter,
		slotTimeout:     cfg.SlotTimeout,
		triggerTimeout:  cfg.TriggerTimeout,
		statusTimeout:   cfg.StatusTimeout,
		transferTimeout: cfg.TransferTimeout,
		retryMaxElapsed: cfg.RetryMaxElapsed,
		retryInitial:    cfg.RetryInitialInterval,
		log:             logger.OrDiscard(cfg.Logger).WithField("component", "pipeline"),
	}
}

// RequestUploadSlot asks the server for a job id and a pre-signed upload URL.
func (c *Client) RequestUploadSlot(ctx context.Context, fileExtension string) (types.UploadSlot, error) {
	ctx, cancel := withTimeout(ctx, c.slotTimeout)
	defer cancel()

	endpoint := c.baseURL + "/upload?" + url.Values{"file_extension": {fileExtension}}.Encode()
	var slot types.UploadSlot
	err := c.call(ctx, apiRequest{
		kind:     KindUploadInit,
		method:   http.MethodPost,
		endpoint: endpoint,
		retry:    true,
		target:   &slot,
	})
	if err != nil {
		return types.UploadSlot{}, err
	}
	if slot.JobID == "" || slot.UploadURL == "" {
		return types.UploadSlot{}, &Error{
			Kind: KindUploadInit,
			Err:  fmt.Errorf("incomplete upload slot: job_id=%q upload_url set=%t", slot.JobID, slot.UploadURL != ""),
		}
	}

	c.log.WithField("job_id", slot.JobID).Info("upload slot granted")
	return slot, nil
}

// Transfer PUTs the raw bytes to a pre-signed storage URL. size < 0 means
// unknown length.
func (c *Client) Transfer(ctx context.Context, uploadURL string, body io.Reader, size int64) error {
	ctx, cancel := withTimeout(ctx, c.transferTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, body)
	if err != nil {
		return &Error{Kind: KindUploadTransfer, Err: err}
	}
	// No Content-Type: the URL was signed without one and storage rejects the
	// write if it is present.
	switch {
	case size == 0:
		req.Body = http.NoBody
		req.ContentLength = 0
	case size > 0:
		req.ContentLength = size
	default:
		req.ContentLength = -1
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: KindUploadTransfer, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.log.WithField("http_status", resp.StatusCode).Warn("storage rejected upload")
		return &Error{Kind: KindUploadTransfer, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// StartJob tells the server to begin processing an uploaded job. Any 2xx is
// an acknowledgement.
func (c *Client) StartJob(ctx context.Context, jobID string) error {
	ctx, cancel := withTimeout(ctx, c.triggerTimeout)
	defer cancel()

	err := c.call(ctx, apiRequest{
		kind:     KindPipelineTrigger,
		jobID:    jobID,
		method:   http.MethodPost,
		endpoint: c.baseURL + "/start/" + url.PathEscape(jobID),
		retry:    true,
	})
	if err != nil {
		return err
	}
	c.log.WithField("job_id", jobID).Info("pipeline started")
	return nil
}

// Status reads one snapshot of a job.
func (c *Client) Status(ctx context.Context, jobID string) (types.Snapshot, error) {
	ctx, cancel := withTimeout(ctx, c.statusTimeout)
	defer cancel()

	var snap types.Snapshot
	err := c.call(ctx, apiRequest{
		kind:     KindStatusFetch,
		jobID:    jobID,
		method:   http.MethodGet,
		endpoint: c.baseURL + "/status/" + url.PathEscape(jobID),
		target:   &snap,
	})
	if err != nil {
		return types.Snapshot{}, err
	}
	if snap.ID == "" {
		snap.ID = jobID
	}
	return snap, nil
}

type apiRequest struct {
	kind     Kind
	jobID    string
	method   string
	endpoint string
	retry    bool
	target   any
}

// call performs one API request, retrying transport errors, 429 and 5xx when
// r.retry is set. 4xx and decode failures are permanent.
func (c *Client) call(ctx context.Context, r apiRequest) error {
	log := c.log.WithFields(logrus.Fields{"method": r.method, "endpoint": r.endpoint})
	if r.jobID != "" {
		log = log.WithField("job_id", r.jobID)
	}

	var lastErr *Error
	op := func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				lastErr = &Error{Kind: r.kind, JobID: r.jobID, Err: err}
				return backoff.Permanent(lastErr)
			}
		}

		req, err := http.NewRequestWithContext(ctx, r.method, r.endpoint, nil)
		if err != nil {
			lastErr = &Error{Kind: r.kind, JobID: r.jobID, Err: err}
			return backoff.Permanent(lastErr)
		}
		reqID := uuid.NewString()
		req.Header.Set("X-Request-ID", reqID)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = &Error{Kind: r.kind, JobID: r.jobID, Err: err}
			log.WithField("req_id", reqID).WithField("error", err.Error()).Warn("pipeline request failed")
			return lastErr
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			lastErr = &Error{
				Kind:       r.kind,
				JobID:      r.jobID,
				StatusCode: resp.StatusCode,
				Body:       strings.TrimSpace(string(body)),
			}
			log.WithFields(logrus.Fields{"req_id": reqID, "http_status": resp.StatusCode}).Warn("pipeline returned error status")
			if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(lastErr)
			}
			return lastErr
		}

		if r.target != nil {
			if err := json.Unmarshal(body, r.target); err != nil {
				lastErr = &Error{Kind: r.kind, JobID: r.jobID, Err: fmt.Errorf("decode response: %w body=%s", err, string(body))}
				return backoff.Permanent(lastErr)
			}
		}
		log.WithFields(logrus.Fields{"req_id": reqID, "http_status": resp.StatusCode}).Debug("pipeline request ok")
		lastErr = nil
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(c.backOff(r.retry), ctx)); err != nil {
		if lastErr != nil {
			return lastErr
		}
		return &Error{Kind: r.kind, JobID: r.jobID, Err: err}
	}
	return nil
}

func (c *Client) backOff(retry bool) backoff.BackOff {
	if !retry || c.retryMaxElapsed <= 0 {
		return &backoff.StopBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInitial
	b.MaxElapsedTime = c.retryMaxElapsed
	return b
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// Package retry re-runs outbound requests that fail for transient reasons
// (gateway errors, unreachable DNS) and tells the user while it does.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/alerts"
	"github.com/aicsgithub/aics-file-upload-app-sub003/pkg/log"
)

const (
	DefaultAttempts = 5
	DefaultDelay    = 10 * time.Second
)

// ErrServiceUnreachable is returned once every attempt failed transiently.
var ErrServiceUnreachable = errors.New("could not reach the job service; check your network or VPN connection and try again")

// Policy controls how often and how patiently a request is retried.
type Policy struct {
	Attempts int
	Delay    time.Duration

	// IsTransient classifies failures; defaults to IsTransient.
	IsTransient func(err error) bool
}

func DefaultPolicy() Policy {
	return Policy{
		Attempts:    DefaultAttempts,
		Delay:       DefaultDelay,
		IsTransient: IsTransient,
	}
}

func (p Policy) normalized() Policy {
	if p.Attempts <= 0 {
		p.Attempts = DefaultAttempts
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	if p.IsTransient == nil {
		p.IsTransient = IsTransient
	}
	return p
}

// HTTPStatusError is implemented by errors that carry a response status code.
type HTTPStatusError interface {
	error
	HTTPStatus() int
}

// IsTransient reports whether err looks like a gateway hiccup or a network
// (VPN/DNS) outage rather than a real rejection.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var statusErr HTTPStatusError
	if errors.As(err, &statusErr) && statusErr.HTTPStatus() == http.StatusBadGateway {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

var retryCounter, _ = otel.Meter("github.com/aicsgithub/aics-file-upload-app-sub003/internal/retry").
	Int64Counter("upload_request_retries_total",
		metric.WithDescription("Requests re-sent after a transient failure"))

const (
	retryingMessage = "Could not contact the job service. Retrying request..."
	successMessage  = "Success! Reconnected to the job service."
)

// Do runs request until it succeeds, fails with a non-transient error, or
// runs out of attempts. The retry warning and the success notice are each
// sent at most once per call; a first-try success sends nothing.
func Do[T any](
	ctx context.Context,
	name string,
	policy Policy,
	notifier alerts.Notifier,
	request func(ctx context.Context) (T, error),
) (T, error) {
	var zero T
	policy = policy.normalized()

	retried := false
	var lastErr error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		result, err := request(ctx)
		if err == nil {
			if retried && notifier != nil {
				notifier.SetAlert(alerts.Alert{Type: alerts.LevelSuccess, Message: successMessage})
			}
			return result, nil
		}
		if !policy.IsTransient(err) {
			return zero, err
		}

		lastErr = err
		log.Warn("%s failed on attempt %d/%d: %v", name, attempt, policy.Attempts, err)
		if attempt == policy.Attempts {
			break
		}

		if !retried {
			retried = true
			if notifier != nil {
				notifier.SetAlert(alerts.Alert{Type: alerts.LevelWarn, Message: retryingMessage})
			}
		}
		retryCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("request", name)))

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("%s: %w", name, ctx.Err())
		case <-time.After(policy.Delay):
		}
	}

	log.Error("%s gave up after %d attempts: %v", name, policy.Attempts, lastErr)
	return zero, ErrServiceUnreachable
}

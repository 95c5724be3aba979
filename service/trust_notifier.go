package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/ijatinydv/ParkEase-sub000/domain"
)

// HTTPTrustNotifier delivers terminal-booking notifications to the trust
// service over HTTP, behind a circuit breaker so a struggling trust service
// cannot slow down booking transitions.
type HTTPTrustNotifier struct {
	endpoint string
	client   *http.Client
	cb       *gobreaker.CircuitBreaker
	logger   *logrus.Logger
}

func NewHTTPTrustNotifier(endpoint string, client *http.Client, logger *logrus.Logger) *HTTPTrustNotifier {
	return &HTTPTrustNotifier{
		endpoint: endpoint,
		client:   client,
		cb:       newCircuitBreaker("trustNotifier", logger),
		logger:   logger,
	}
}

func (n *HTTPTrustNotifier) BookingTerminal(ctx context.Context, userID string, outcome string) error {
	payload, err := json.Marshal(map[string]string{
		"userId":  userID,
		"outcome": outcome,
	})
	if err != nil {
		return err
	}

	_, err = n.cb.Execute(func() (interface{}, error) {
		request, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		request.Header.Set("Content-Type", "application/json")

		response, err := n.client.Do(request)
		if err != nil {
			return nil, err
		}
		defer response.Body.Close()
		if response.StatusCode >= 400 {
			return nil, fmt.Errorf("trust service returned %s", response.Status)
		}
		return nil, nil
	})
	return err
}

// NoopTrustNotifier stands in when no trust service is configured.
type NoopTrustNotifier struct{}

func (NoopTrustNotifier) BookingTerminal(context.Context, string, string) error { return nil }

var _ domain.TrustNotifier = (*HTTPTrustNotifier)(nil)
var _ domain.TrustNotifier = NoopTrustNotifier{}

func newCircuitBreaker(name string, logger *logrus.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(
		gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     10 * time.Second,
			Interval:    0,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 2
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logger.Warnf("Circuit Breaker '%s' changed from '%s' to '%s'", name, from, to)
			},
		},
	)
}

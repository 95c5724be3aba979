package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/ijatinydv/ParkEase-sub000/domain"
)

// SpotHTTPCatalog reads spot data from the spot inventory service. A
// circuit breaker keeps a struggling inventory service from stalling
// admission control.
type SpotHTTPCatalog struct {
	baseURL string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker
	tracer  trace.Tracer
	logger  *logrus.Logger
}

func NewSpotHTTPCatalog(baseURL string, client *http.Client, tracer trace.Tracer, logger *logrus.Logger) *SpotHTTPCatalog {
	return &SpotHTTPCatalog{
		baseURL: baseURL,
		client:  client,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "spotCatalog",
			MaxRequests: 1,
			Timeout:     10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 2
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logger.Warnf("Circuit Breaker '%s' changed from '%s' to '%s'", name, from, to)
			},
			IsSuccessful: func(err error) bool {
				// A missing spot is an answer, not an outage.
				return err == nil || errors.Is(err, domain.ErrNotFound)
			},
		}),
		tracer: tracer,
		logger: logger,
	}
}

var _ domain.SpotCatalog = (*SpotHTTPCatalog)(nil)

func (catalog *SpotHTTPCatalog) GetSpot(ctx context.Context, spotID string) (*domain.Spot, error) {
	ctx, span := catalog.tracer.Start(ctx, "SpotHTTPCatalog.GetSpot")
	defer span.End()

	result, err := catalog.cb.Execute(func() (interface{}, error) {
		endpoint := fmt.Sprintf("%s/spots/%s", catalog.baseURL, spotID)
		request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(request.Header))

		response, err := catalog.client.Do(request)
		if err != nil {
			return nil, err
		}
		defer response.Body.Close()

		if response.StatusCode == http.StatusNotFound {
			return nil, domain.ErrNotFound.WithReason("spot %s not found", spotID)
		}
		if response.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("spot catalog returned %s", response.Status)
		}

		var spot domain.Spot
		if err := json.NewDecoder(response.Body).Decode(&spot); err != nil {
			return nil, err
		}
		return &spot, nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		catalog.logger.Errorf("get spot %s: %s", spotID, err)
		return nil, err
	}
	return result.(*domain.Spot), nil
}

package startup

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/ijatinydv/ParkEase-sub000/domain"
	"github.com/ijatinydv/ParkEase-sub000/service"
	"github.com/ijatinydv/ParkEase-sub000/startup/config"
	"github.com/ijatinydv/ParkEase-sub000/store"
)

// Server is the composition root of the booking core. It wires storage,
// collaborators and the engine; the HTTP/API surface attaches out of scope.
type Server struct {
	config *config.Config
	engine *service.BookingEngine
}

var Logger = logrus.New()

const (
	LogFilePath = "/app/logs/booking.log"
)

type CustomFormatter struct{}

func (f *CustomFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	msg := fmt.Sprintf("[%s] [%s] %s\n",
		entry.Time.Format("2006-01-02T15:04:05Z07:00"),
		entry.Level,
		entry.Message,
	)
	return []byte(msg), nil
}

func initLogger() {
	writer, err := rotatelogs.New(
		LogFilePath+"_%Y%m%d%H%M",
		rotatelogs.WithRotationTime(24*time.Hour),
	)
	if err != nil {
		Logger.Fatalf("Failed to create rotatelogs hook: %v", err)
	}
	Logger.SetOutput(writer)
	Logger.SetFormatter(&CustomFormatter{})
}

func NewServer(config *config.Config) *Server {
	return &Server{
		config: config,
	}
}

// Engine exposes the wired booking engine to the embedding API layer.
func (server *Server) Engine() *service.BookingEngine {
	return server.engine
}

func (server *Server) initMongoClient(httpClient *http.Client) *mongo.Client {
	client, err := store.GetClientWithHTTPConfig(server.config.BookingDBHost, server.config.BookingDBPort, httpClient)
	if err != nil {
		log.Fatal(err)
	}
	return client
}

func (server *Server) initReservationStore(client *mongo.Client, tracer trace.Tracer) domain.ReservationStore {
	reservationStore := store.NewReservationMongoDBStore(client, tracer, Logger)
	if err := reservationStore.EnsureIndexes(context.Background()); err != nil {
		Logger.Warnf("ensure indexes: %s", err)
	}
	return reservationStore
}

func (server *Server) initAuditTrail(tracer trace.Tracer) domain.AuditTrail {
	if server.config.AuditDBHost == "" {
		Logger.Warn("no audit DB configured, booking events will not be recorded")
		return store.NoopAuditTrail{}
	}
	auditStore, err := store.NewBookingAuditStore(server.config.AuditDBHost, tracer, Logger)
	if err != nil {
		log.Fatal(err)
	}
	auditStore.CreateTables()
	return auditStore
}

func (server *Server) initSpotCatalog(httpClient *http.Client, tracer trace.Tracer) domain.SpotCatalog {
	catalog := store.NewSpotHTTPCatalog(server.config.SpotCatalogURL, httpClient, tracer, Logger)
	if server.config.RedisAddress == "" {
		return catalog
	}
	redisClient := redis.NewClient(&redis.Options{Addr: server.config.RedisAddress})
	return store.NewSpotRedisCache(redisClient, catalog, tracer, Logger)
}

func (server *Server) initTrustNotifier(httpClient *http.Client) domain.TrustNotifier {
	if server.config.TrustServiceURL == "" {
		return service.NoopTrustNotifier{}
	}
	return service.NewHTTPTrustNotifier(server.config.TrustServiceURL, httpClient, Logger)
}

func (server *Server) Start() {
	initLogger()

	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			MaxConnsPerHost:     10,
		},
	}

	mongoClient := server.initMongoClient(httpClient)
	defer func(mongoClient *mongo.Client, ctx context.Context) {
		if err := mongoClient.Disconnect(ctx); err != nil {
			Logger.Warnf("mongo disconnect: %s", err)
		}
	}(mongoClient, context.Background())

	ctx := context.Background()
	exp, err := newExporter(server.config.JaegerAddress)
	if err != nil {
		log.Fatalf("Failed to Initialize Exporter: %v", err)
	}

	tp := newTraceProvider(exp)
	defer func() { _ = tp.Shutdown(ctx) }()
	otel.SetTracerProvider(tp)
	tracer := tp.Tracer("booking_service")
	otel.SetTextMapPropagator(propagation.TraceContext{})

	reservationStore := server.initReservationStore(mongoClient, tracer)
	auditTrail := server.initAuditTrail(tracer)
	spotCatalog := server.initSpotCatalog(httpClient, tracer)
	trustNotifier := server.initTrustNotifier(httpClient)

	server.engine = service.NewBookingEngine(
		reservationStore,
		spotCatalog,
		auditTrail,
		trustNotifier,
		config.PolicyConfig(),
		service.SystemClock(),
		tracer,
		Logger,
	)

	log.Println("Booking engine ready")

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	signal.Notify(c, syscall.SIGTERM)

	sig := <-c
	log.Println("Received terminate, shutting down", sig)
	if closer, ok := auditTrail.(*store.BookingAuditStore); ok {
		closer.CloseSession()
	}
	log.Println("Server Gracefully Stopped")
}

func newExporter(address string) (*jaeger.Exporter, error) {
	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(address)))
	if err != nil {
		return nil, err
	}
	return exp, nil
}

func newTraceProvider(exp sdktrace.SpanExporter) *sdktrace.TracerProvider {
	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("booking_service"),
		),
	)
	if err != nil {
		panic(err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(r),
	)
}

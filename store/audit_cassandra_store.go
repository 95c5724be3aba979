package store

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ijatinydv/ParkEase-sub000/domain"
)

// BookingAuditStore appends every booking transition to Cassandra. The
// mongo reservation record stays the system of record; this trail exists
// for refunds, dispute handling and trust scoring.
type BookingAuditStore struct {
	session *gocql.Session
	tracer  trace.Tracer
	logger  *logrus.Logger
}

func NewBookingAuditStore(host string, tracer trace.Tracer, logger *logrus.Logger) (*BookingAuditStore, error) {
	cluster := gocql.NewCluster(host)
	cluster.Keyspace = "system"
	session, err := cluster.CreateSession()
	if err != nil {
		logger.Errorf("cassandra connect: %s", err)
		return nil, err
	}

	err = session.Query(
		fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS %s
					WITH replication = {
						'class' : 'SimpleStrategy',
						'replication_factor' : %d
					}`, "booking", 1)).Exec()
	if err != nil {
		logger.Errorf("create keyspace: %s", err)
	}
	session.Close()

	cluster.Keyspace = "booking"
	cluster.Consistency = gocql.One
	session, err = cluster.CreateSession()
	if err != nil {
		logger.Errorf("cassandra connect to booking keyspace: %s", err)
		return nil, err
	}

	return &BookingAuditStore{
		session: session,
		tracer:  tracer,
		logger:  logger,
	}, nil
}

var _ domain.AuditTrail = (*BookingAuditStore)(nil)

func (store *BookingAuditStore) CloseSession() {
	store.session.Close()
}

func (store *BookingAuditStore) CreateTables() {
	err := store.session.Query(
		`CREATE TABLE IF NOT EXISTS events_by_reservation
				(reservation_id text, event_id timeuuid, spot_id text, seeker_id text,
				event_type text, from_status text, to_status text, amount bigint, reason text, at timestamp,
				PRIMARY KEY ((reservation_id), event_id))
				WITH CLUSTERING ORDER BY (event_id ASC)`).Exec()
	if err != nil {
		store.logger.Errorf("create events table: %s", err)
	}
}

func (store *BookingAuditStore) Append(ctx context.Context, event *domain.BookingEvent) error {
	ctx, span := store.tracer.Start(ctx, "BookingAuditStore.Append")
	defer span.End()

	err := store.session.Query(
		`INSERT INTO events_by_reservation
		(reservation_id, event_id, spot_id, seeker_id, event_type, from_status, to_status, amount, reason, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ReservationID, gocql.TimeUUID(), event.SpotID, event.SeekerID,
		event.Type, string(event.FromStatus), string(event.ToStatus), event.Amount, event.Reason, event.At,
	).WithContext(ctx).Exec()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		store.logger.Errorf("append booking event: %s", err)
		return err
	}
	return nil
}

func (store *BookingAuditStore) ListByReservation(ctx context.Context, reservationID string) ([]*domain.BookingEvent, error) {
	ctx, span := store.tracer.Start(ctx, "BookingAuditStore.ListByReservation")
	defer span.End()

	scanner := store.session.Query(
		`SELECT reservation_id, spot_id, seeker_id, event_type, from_status, to_status, amount, reason, at
		FROM events_by_reservation WHERE reservation_id = ?`, reservationID).
		WithContext(ctx).Iter().Scanner()

	var events []*domain.BookingEvent
	for scanner.Next() {
		var event domain.BookingEvent
		var fromStatus, toStatus string
		err := scanner.Scan(
			&event.ReservationID,
			&event.SpotID,
			&event.SeekerID,
			&event.Type,
			&fromStatus,
			&toStatus,
			&event.Amount,
			&event.Reason,
			&event.At,
		)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			store.logger.Errorf("scan booking event: %s", err)
			return nil, err
		}
		event.FromStatus = domain.Status(fromStatus)
		event.ToStatus = domain.Status(toStatus)
		events = append(events, &event)
	}
	if err := scanner.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		store.logger.Errorf("iterate booking events: %s", err)
		return nil, err
	}
	return events, nil
}

// NoopAuditTrail stands in when no Cassandra cluster is configured.
type NoopAuditTrail struct{}

func (NoopAuditTrail) Append(context.Context, *domain.BookingEvent) error { return nil }

func (NoopAuditTrail) ListByReservation(context.Context, string) ([]*domain.BookingEvent, error) {
	return nil, nil
}

var _ domain.AuditTrail = NoopAuditTrail{}

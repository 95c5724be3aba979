package store

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ijatinydv/ParkEase-sub000/domain"
)

const (
	DATABASE   = "booking"
	COLLECTION = "reservations"
)

type ReservationMongoDBStore struct {
	reservations *mongo.Collection
	tracer       trace.Tracer
	logger       *logrus.Logger
}

func NewReservationMongoDBStore(client *mongo.Client, tracer trace.Tracer, logger *logrus.Logger) *ReservationMongoDBStore {
	reservations := client.Database(DATABASE).Collection(COLLECTION)
	return &ReservationMongoDBStore{
		reservations: reservations,
		tracer:       tracer,
		logger:       logger,
	}
}

var _ domain.ReservationStore = (*ReservationMongoDBStore)(nil)

// EnsureIndexes creates the indexes the admission snapshot and the seeker
// and spot listings scan on.
func (store *ReservationMongoDBStore) EnsureIndexes(ctx context.Context) error {
	_, err := store.reservations.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "spotId", Value: 1}, {Key: "status", Value: 1}, {Key: "startTime", Value: 1}}},
		{Keys: bson.D{{Key: "seekerId", Value: 1}}},
	})
	return err
}

func (store *ReservationMongoDBStore) Insert(ctx context.Context, reservation *domain.Reservation) (*domain.Reservation, error) {
	ctx, span := store.tracer.Start(ctx, "ReservationMongoDBStore.Insert")
	defer span.End()

	if reservation.ID.IsZero() {
		reservation.ID = primitive.NewObjectID()
	}
	_, err := store.reservations.InsertOne(ctx, reservation)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrConflict
		}
		store.logger.Errorf("insert reservation: %s", err)
		return nil, err
	}
	return reservation, nil
}

func (store *ReservationMongoDBStore) Get(ctx context.Context, id string) (*domain.Reservation, error) {
	ctx, span := store.tracer.Start(ctx, "ReservationMongoDBStore.Get")
	defer span.End()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrNotFound.WithReason("malformed reservation id %q", id)
	}

	var reservation domain.Reservation
	err = store.reservations.FindOne(ctx, bson.M{"_id": objectID}).Decode(&reservation)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		store.logger.Errorf("get reservation %s: %s", id, err)
		return nil, err
	}
	return &reservation, nil
}

func (store *ReservationMongoDBStore) ListActiveBySpot(ctx context.Context, spotID string, hint domain.Window) ([]*domain.Reservation, error) {
	ctx, span := store.tracer.Start(ctx, "ReservationMongoDBStore.ListActiveBySpot")
	defer span.End()

	filter := bson.M{
		"spotId": spotID,
		"status": bson.M{"$in": domain.ActiveStatuses},
	}
	if !hint.Start.IsZero() && !hint.End.IsZero() {
		filter["startTime"] = bson.M{"$lt": hint.End}
		filter["endTime"] = bson.M{"$gt": hint.Start}
	}
	return store.filter(ctx, span, filter, nil)
}

func (store *ReservationMongoDBStore) ListBySeeker(ctx context.Context, seekerID string) ([]*domain.Reservation, error) {
	ctx, span := store.tracer.Start(ctx, "ReservationMongoDBStore.ListBySeeker")
	defer span.End()

	sort := options.Find().SetSort(bson.D{{Key: "startTime", Value: -1}})
	return store.filter(ctx, span, bson.M{"seekerId": seekerID}, sort)
}

func (store *ReservationMongoDBStore) ListBySpot(ctx context.Context, spotID string) ([]*domain.Reservation, error) {
	ctx, span := store.tracer.Start(ctx, "ReservationMongoDBStore.ListBySpot")
	defer span.End()

	sort := options.Find().SetSort(bson.D{{Key: "startTime", Value: -1}})
	return store.filter(ctx, span, bson.M{"spotId": spotID}, sort)
}

// UpdateStatus is the atomic compare-and-set behind every transition: the
// filter pins the expected status class, so a duplicate or concurrent event
// delivery cannot apply the same transition twice or clobber a newer state.
func (store *ReservationMongoDBStore) UpdateStatus(ctx context.Context, id string, from []domain.Status, update domain.StatusUpdate) (*domain.Reservation, error) {
	ctx, span := store.tracer.Start(ctx, "ReservationMongoDBStore.UpdateStatus")
	defer span.End()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrNotFound.WithReason("malformed reservation id %q", id)
	}

	from = domain.FilterSources(from, update.To)
	if len(from) == 0 {
		return nil, domain.ErrInvalidState
	}

	set := bson.M{
		"status":    update.To,
		"updatedAt": time.Now(),
	}
	if update.CheckIn != nil {
		set["checkIn"] = update.CheckIn
	}
	if update.CheckOut != nil {
		set["checkOut"] = update.CheckOut
	}
	if update.Cancellation != nil {
		set["cancellation"] = update.Cancellation
	}
	if update.Dispute != nil {
		set["dispute"] = update.Dispute
	}
	if update.Overtime != nil {
		set["overtime"] = update.Overtime
	}

	filter := bson.M{"_id": objectID, "status": bson.M{"$in": from}}
	after := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated domain.Reservation
	err = store.reservations.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, after).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		count, countErr := store.reservations.CountDocuments(ctx, bson.M{"_id": objectID})
		if countErr != nil {
			span.SetStatus(codes.Error, countErr.Error())
			return nil, countErr
		}
		if count == 0 {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrInvalidState
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		store.logger.Errorf("update reservation %s: %s", id, err)
		return nil, err
	}
	return &updated, nil
}

func (store *ReservationMongoDBStore) filter(ctx context.Context, span trace.Span, filter interface{}, opts *options.FindOptions) ([]*domain.Reservation, error) {
	var cursor *mongo.Cursor
	var err error
	if opts != nil {
		cursor, err = store.reservations.Find(ctx, filter, opts)
	} else {
		cursor, err = store.reservations.Find(ctx, filter)
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		store.logger.Errorf("list reservations: %s", err)
		return nil, err
	}
	defer cursor.Close(ctx)

	var reservations []*domain.Reservation
	for cursor.Next(ctx) {
		var reservation domain.Reservation
		if err := cursor.Decode(&reservation); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		reservations = append(reservations, &reservation)
	}
	if err := cursor.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return reservations, nil
}

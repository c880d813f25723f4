// Package user persists Telegram users who completed email registration.
package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"affiliate_shop_bot/internal/logging"
)

type profileCollection interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// Registrar binds a Telegram user to an affiliate account. Registering the
// same user again overwrites email and affiliate id and keeps registered_at.
type Registrar struct {
	profiles profileCollection
	logger   *logrus.Entry
}

// NewRegistrar constructs a Registrar for the provided profiles collection.
func NewRegistrar(profiles profileCollection, logger *logrus.Entry) *Registrar {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Registrar{
		profiles: profiles,
		logger:   logger,
	}
}

// Register upserts the profile keyed by userID. It reports whether a new
// profile was created.
func (r *Registrar) Register(ctx context.Context, userID int64, email, affiliateUserID string) (bool, error) {
	if r == nil || r.profiles == nil {
		return false, errors.New("user registrar is not initialized")
	}
	if ctx == nil {
		return false, errors.New("context is required")
	}
	if userID == 0 {
		return false, errors.New("user id is required")
	}
	if strings.TrimSpace(affiliateUserID) == "" {
		return false, errors.New("affiliate user id is required")
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	update := bson.M{
		"$set": bson.M{
			"email":             email,
			"affiliate_user_id": affiliateUserID,
		},
		"$setOnInsert": bson.M{
			"user_id":       userID,
			"registered_at": now,
		},
	}

	result, err := r.profiles.UpdateOne(ctx,
		bson.M{"user_id": userID},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, fmt.Errorf("register user: %w", err)
	}

	created := result != nil && result.UpsertedCount > 0
	if created {
		r.log(ctx).WithFields(logging.Fields{
			"event":   "user_registered",
			"user_id": userID,
		}).Info("registered new user")
		return true, nil
	}

	r.log(ctx).WithFields(logging.Fields{
		"event":   "user_reregistered",
		"user_id": userID,
	}).Info("updated registration for existing user")

	return false, nil
}

func (r *Registrar) log(ctx context.Context) *logrus.Entry {
	return logging.FromContext(ctx, r.logger)
}

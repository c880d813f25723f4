package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type findOneCollection interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
}

// ProfileRepository reads registered Telegram profiles and resolves emails
// against the affiliate system's accounts.
type ProfileRepository struct {
	profiles findOneCollection
	accounts findOneCollection
}

// NewProfileRepository constructs a ProfileRepository over the Telegram
// profiles collection and the affiliate accounts collection.
func NewProfileRepository(profiles, accounts findOneCollection) *ProfileRepository {
	return &ProfileRepository{profiles: profiles, accounts: accounts}
}

// GetByUserID fetches the profile for a Telegram user_id. It returns an error
// wrapping ErrNotFound when the user has never registered.
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID int64) (Profile, error) {
	if r == nil || r.profiles == nil {
		return Profile{}, errors.New("profile repository is not initialized")
	}
	if ctx == nil {
		return Profile{}, errors.New("context is required")
	}
	if userID == 0 {
		return Profile{}, errors.New("user_id is required")
	}

	result := r.profiles.FindOne(ctx, bson.M{"user_id": userID})
	if result == nil {
		return Profile{}, errors.New("find profile returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Profile{}, fmt.Errorf("find profile %d: %w", userID, ErrNotFound)
		}
		return Profile{}, fmt.Errorf("find profile: %w", err)
	}

	var profile Profile
	if err := result.Decode(&profile); err != nil {
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}

	return profile, nil
}

// Exists reports whether a profile is stored for the Telegram user_id.
func (r *ProfileRepository) Exists(ctx context.Context, userID int64) (bool, error) {
	_, err := r.GetByUserID(ctx, userID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

// FindAffiliateIDByEmail returns the affiliate user id of the first account
// whose email equals the given address exactly. Missing accounts yield
// ErrEmailNotFound.
func (r *ProfileRepository) FindAffiliateIDByEmail(ctx context.Context, email string) (string, error) {
	if r == nil || r.accounts == nil {
		return "", errors.New("profile repository is not initialized")
	}
	if ctx == nil {
		return "", errors.New("context is required")
	}
	if strings.TrimSpace(email) == "" {
		return "", ErrEmailNotFound
	}

	result := r.accounts.FindOne(ctx,
		bson.M{"email": email},
		options.FindOne().SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
	if result == nil {
		return "", errors.New("find account returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", ErrEmailNotFound
		}
		return "", fmt.Errorf("find account: %w", err)
	}

	var account Account
	if err := result.Decode(&account); err != nil {
		return "", fmt.Errorf("decode account: %w", err)
	}
	if strings.TrimSpace(account.AffiliateUserID) == "" {
		return "", ErrEmailNotFound
	}

	return account.AffiliateUserID, nil
}

// LinkRepository reads the merchant catalog.
type LinkRepository struct {
	collection findOneCollection
}

// NewLinkRepository constructs a LinkRepository.
func NewLinkRepository(collection findOneCollection) *LinkRepository {
	return &LinkRepository{collection: collection}
}

// GetByMerchant fetches the link spec for a merchant name. The trimmed name is
// matched exactly first, then by its MerchantKey. Unknown merchants yield
// ErrMerchantNotFound.
func (r *LinkRepository) GetByMerchant(ctx context.Context, merchant string) (AffiliateLinkSpec, error) {
	if r == nil || r.collection == nil {
		return AffiliateLinkSpec{}, errors.New("link repository is not initialized")
	}
	if ctx == nil {
		return AffiliateLinkSpec{}, errors.New("context is required")
	}

	name := strings.TrimSpace(merchant)
	if name == "" {
		return AffiliateLinkSpec{}, ErrMerchantNotFound
	}

	candidates := []string{name}
	if key := MerchantKey(name); key != name {
		candidates = append(candidates, key)
	}

	for _, candidate := range candidates {
		spec, err := r.findMerchant(ctx, candidate)
		if errors.Is(err, mongo.ErrNoDocuments) {
			continue
		}
		return spec, err
	}

	return AffiliateLinkSpec{}, ErrMerchantNotFound
}

func (r *LinkRepository) findMerchant(ctx context.Context, name string) (AffiliateLinkSpec, error) {
	result := r.collection.FindOne(ctx, bson.M{"merchant": name})
	if result == nil {
		return AffiliateLinkSpec{}, errors.New("find merchant returned no result")
	}
	if err := result.Err(); err != nil {
		return AffiliateLinkSpec{}, fmt.Errorf("find merchant: %w", err)
	}

	var spec AffiliateLinkSpec
	if err := result.Decode(&spec); err != nil {
		return AffiliateLinkSpec{}, fmt.Errorf("decode merchant: %w", err)
	}

	return spec, nil
}

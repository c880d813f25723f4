// Package tracking turns merchant link specs into personalized affiliate
// tracking URLs.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"affiliate_shop_bot/internal/domain"
	"affiliate_shop_bot/internal/logging"
)

// platformRules appends the affiliate user id the way each network expects.
var platformRules = map[domain.Platform]func(link, userID string) string{
	domain.PlatformImpact:            func(link, userID string) string { return link + "?subid1=" + userID },
	domain.PlatformInvolveAsia:       func(link, userID string) string { return link + "?aff_sub=" + userID },
	domain.PlatformCommissionFactory: func(link, userID string) string { return link + "&UniqueId=" + userID },
	domain.PlatformOptimise:          func(link, userID string) string { return link + "&UID=" + userID },
	domain.PlatformCJ:                func(link, userID string) string { return link + "?sid=" + userID },
	domain.PlatformRakuten:           func(link, userID string) string { return link + "&u1=" + userID },
	domain.PlatformPartnerize:        func(link, userID string) string { return link + "/pubref:" + userID },
	domain.PlatformAwin:              func(link, userID string) string { return link + "&clickref=" + userID },
}

// BuildURL rewrites spec's tracking link for affiliateUserID.
//
// Templates carrying {USER_ID} are filled in directly (with {OFFER_UUID} set to
// the offer id) and the platform is ignored. Otherwise the platform rule
// applies; unknown platforms return the template unchanged.
func BuildURL(spec domain.AffiliateLinkSpec, affiliateUserID string) string {
	link := spec.TrackingLink

	if HasPlaceholder(link) {
		link = strings.ReplaceAll(link, domain.PlaceholderUserID, affiliateUserID)
		return strings.ReplaceAll(link, domain.PlaceholderOfferUUID, spec.OfferID)
	}

	rule, ok := platformRules[spec.SourcePlatform]
	if !ok {
		return link
	}

	return rule(link, affiliateUserID)
}

// HasPlaceholder reports whether the template takes the user id by substitution.
func HasPlaceholder(link string) bool {
	return strings.Contains(link, domain.PlaceholderUserID)
}

// KnownPlatform reports whether a rewrite rule exists for the platform.
func KnownPlatform(platform domain.Platform) bool {
	_, ok := platformRules[platform]
	return ok
}

type profileFinder interface {
	GetByUserID(ctx context.Context, userID int64) (domain.Profile, error)
}

// Generator builds tracking links for Telegram users by resolving their
// affiliate user id from the profile store.
type Generator struct {
	profiles profileFinder
	logger   *logrus.Entry
}

// NewGenerator constructs a Generator.
func NewGenerator(profiles profileFinder, logger *logrus.Entry) *Generator {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Generator{
		profiles: profiles,
		logger:   logger,
	}
}

// Generate returns the tracking link for userID. Users without a stored
// affiliate id get domain.ErrUnregisteredUser.
func (g *Generator) Generate(ctx context.Context, userID int64, spec domain.AffiliateLinkSpec) (string, error) {
	if g == nil || g.profiles == nil {
		return "", errors.New("link generator is not initialized")
	}
	if ctx == nil {
		return "", errors.New("context is required")
	}

	profile, err := g.profiles.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.ErrUnregisteredUser
		}
		return "", fmt.Errorf("resolve affiliate user: %w", err)
	}

	affiliateUserID := strings.TrimSpace(profile.AffiliateUserID)
	if affiliateUserID == "" {
		return "", domain.ErrUnregisteredUser
	}

	if !HasPlaceholder(spec.TrackingLink) && !KnownPlatform(spec.SourcePlatform) {
		g.log(ctx).WithFields(logging.Fields{
			"event":    "unknown_platform",
			"kind":     domain.KindUnknownPlatform.String(),
			"platform": string(spec.SourcePlatform),
			"merchant": spec.Merchant,
		}).Warn("no rewrite rule for platform, passing tracking link through")
	}

	return BuildURL(spec, affiliateUserID), nil
}

func (g *Generator) log(ctx context.Context) *logrus.Entry {
	return logging.FromContext(ctx, g.logger)
}

package tracking

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"affiliate_shop_bot/internal/domain"
	"affiliate_shop_bot/internal/logging"
)

func TestBuildURLPlatformRules(t *testing.T) {
	const template = "https://x.com/t"

	tests := []struct {
		platform domain.Platform
		want     string
	}{
		{domain.PlatformImpact, "https://x.com/t?subid1=42"},
		{domain.PlatformInvolveAsia, "https://x.com/t?aff_sub=42"},
		{domain.PlatformCommissionFactory, "https://x.com/t&UniqueId=42"},
		{domain.PlatformOptimise, "https://x.com/t&UID=42"},
		{domain.PlatformCJ, "https://x.com/t?sid=42"},
		{domain.PlatformRakuten, "https://x.com/t&u1=42"},
		{domain.PlatformPartnerize, "https://x.com/t/pubref:42"},
		{domain.PlatformAwin, "https://x.com/t&clickref=42"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.platform), func(t *testing.T) {
			got := BuildURL(domain.AffiliateLinkSpec{TrackingLink: template, SourcePlatform: tt.platform, OfferID: "off-1"}, "42")
			if got != tt.want {
				t.Fatalf("BuildURL(%s) = %q, want %q", tt.platform, got, tt.want)
			}
			if !KnownPlatform(tt.platform) {
				t.Fatalf("expected %s to be a known platform", tt.platform)
			}
		})
	}
}

func TestBuildURLPlaceholderTakesPrecedence(t *testing.T) {
	for _, platform := range []domain.Platform{domain.PlatformCJ, domain.PlatformPartnerize, "UNKNOWN_PLATFORM", ""} {
		spec := domain.AffiliateLinkSpec{
			TrackingLink:   "https://x.com/t?u={USER_ID}&o={OFFER_UUID}",
			SourcePlatform: platform,
			OfferID:        "off-1",
		}

		if got := BuildURL(spec, "42"); got != "https://x.com/t?u=42&o=off-1" {
			t.Fatalf("BuildURL with platform %q = %q", platform, got)
		}
	}
}

func TestBuildURLReplacesEveryPlaceholder(t *testing.T) {
	spec := domain.AffiliateLinkSpec{
		TrackingLink: "https://x.com/{USER_ID}/t?u={USER_ID}&o={OFFER_UUID}&o2={OFFER_UUID}",
		OfferID:      "off-1",
	}

	want := "https://x.com/42/t?u=42&o=off-1&o2=off-1"
	if got := BuildURL(spec, "42"); got != want {
		t.Fatalf("BuildURL = %q, want %q", got, want)
	}
}

func TestBuildURLOfferPlaceholderAloneUsesPlatformRule(t *testing.T) {
	spec := domain.AffiliateLinkSpec{
		TrackingLink:   "https://x.com/t?o={OFFER_UUID}",
		SourcePlatform: domain.PlatformAwin,
		OfferID:        "off-1",
	}

	want := "https://x.com/t?o={OFFER_UUID}&clickref=42"
	if got := BuildURL(spec, "42"); got != want {
		t.Fatalf("BuildURL = %q, want %q", got, want)
	}
}

func TestBuildURLUnknownPlatformPassesThrough(t *testing.T) {
	for _, platform := range []domain.Platform{"UNKNOWN_PLATFORM", "", "impact"} {
		spec := domain.AffiliateLinkSpec{TrackingLink: "https://x.com/t", SourcePlatform: platform}

		first := BuildURL(spec, "42")
		if first != "https://x.com/t" {
			t.Fatalf("expected passthrough for %q, got %q", platform, first)
		}

		spec.TrackingLink = first
		if again := BuildURL(spec, "42"); again != first {
			t.Fatalf("expected passthrough to be idempotent for %q, got %q", platform, again)
		}

		if KnownPlatform(platform) {
			t.Fatalf("expected %q to be unknown", platform)
		}
	}
}

func TestGeneratorResolvesAffiliateUser(t *testing.T) {
	hookLogger, hook := logtest.NewNullLogger()
	profiles := stubProfiles{42: {UserID: 42, AffiliateUserID: "aff-42"}}
	gen := NewGenerator(profiles, logrus.NewEntry(hookLogger))

	link, err := gen.Generate(context.Background(), 42, domain.AffiliateLinkSpec{
		TrackingLink:   "https://x.com/t",
		SourcePlatform: domain.PlatformImpact,
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if link != "https://x.com/t?subid1=aff-42" {
		t.Fatalf("unexpected link %q", link)
	}
	if len(hook.AllEntries()) != 0 {
		t.Fatalf("expected no warnings for known platform, got %d entries", len(hook.AllEntries()))
	}
}

func TestGeneratorWarnsOnUnknownPlatform(t *testing.T) {
	hookLogger, hook := logtest.NewNullLogger()
	profiles := stubProfiles{42: {UserID: 42, AffiliateUserID: "aff-42"}}
	gen := NewGenerator(profiles, logrus.NewEntry(hookLogger))

	link, err := gen.Generate(context.Background(), 42, domain.AffiliateLinkSpec{
		Merchant:       "acme",
		TrackingLink:   "https://x.com/t",
		SourcePlatform: "UNKNOWN_PLATFORM",
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if link != "https://x.com/t" {
		t.Fatalf("expected template passthrough, got %q", link)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.WarnLevel || entry.Data["event"] != "unknown_platform" {
		t.Fatalf("expected unknown_platform warning, got %v", entry)
	}
	if entry.Data["platform"] != "UNKNOWN_PLATFORM" || entry.Data["merchant"] != "acme" {
		t.Fatalf("expected platform and merchant fields, got %v", entry.Data)
	}
}

func TestGeneratorLogsThroughRequestLogger(t *testing.T) {
	fallbackLogger, fallbackHook := logtest.NewNullLogger()
	scopedLogger, scopedHook := logtest.NewNullLogger()
	profiles := stubProfiles{42: {UserID: 42, AffiliateUserID: "aff-42"}}
	gen := NewGenerator(profiles, logrus.NewEntry(fallbackLogger))

	ctx := logging.IntoContext(context.Background(), logging.WithContext(logrus.NewEntry(scopedLogger), logging.Context{RequestID: "req-3"}))
	if _, err := gen.Generate(ctx, 42, domain.AffiliateLinkSpec{
		Merchant:       "acme",
		TrackingLink:   "https://x.com/t",
		SourcePlatform: "UNKNOWN_PLATFORM",
	}); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	entry := scopedHook.LastEntry()
	if entry == nil || entry.Data["event"] != "unknown_platform" || entry.Data["request_id"] != "req-3" {
		t.Fatalf("expected unknown_platform with request_id, got %v", entry)
	}
	if len(fallbackHook.AllEntries()) != 0 {
		t.Fatalf("expected fallback logger to stay quiet, got %d entries", len(fallbackHook.AllEntries()))
	}
}

func TestGeneratorReportsUnregisteredUser(t *testing.T) {
	hookLogger, _ := logtest.NewNullLogger()
	profiles := stubProfiles{7: {UserID: 7, AffiliateUserID: "  "}}
	gen := NewGenerator(profiles, logrus.NewEntry(hookLogger))

	spec := domain.AffiliateLinkSpec{TrackingLink: "https://x.com/t", SourcePlatform: domain.PlatformCJ}

	for _, userID := range []int64{7, 8} {
		_, err := gen.Generate(context.Background(), userID, spec)
		if !errors.Is(err, domain.ErrUnregisteredUser) {
			t.Fatalf("expected unregistered user error for %d, got %v", userID, err)
		}
		if err.Error() != "User is not registered." {
			t.Fatalf("unexpected message %q", err.Error())
		}
	}
}

func TestGeneratorPropagatesStoreErrors(t *testing.T) {
	gen := NewGenerator(failingProfiles{err: errors.New("mongo down")}, nil)

	_, err := gen.Generate(context.Background(), 1, domain.AffiliateLinkSpec{TrackingLink: "https://x.com/t"})
	if err == nil || errors.Is(err, domain.ErrUnregisteredUser) {
		t.Fatalf("expected store error distinct from unregistered user, got %v", err)
	}

	var nilGen *Generator
	if _, err := nilGen.Generate(context.Background(), 1, domain.AffiliateLinkSpec{}); err == nil {
		t.Fatalf("expected error for nil generator")
	}
}

type stubProfiles map[int64]domain.Profile

func (s stubProfiles) GetByUserID(_ context.Context, userID int64) (domain.Profile, error) {
	profile, ok := s[userID]
	if !ok {
		return domain.Profile{}, fmt.Errorf("find profile %d: %w", userID, domain.ErrNotFound)
	}
	return profile, nil
}

type failingProfiles struct {
	err error
}

func (f failingProfiles) GetByUserID(context.Context, int64) (domain.Profile, error) {
	return domain.Profile{}, f.err
}

package domain

import "strings"

// Platform identifies the affiliate network that issued a tracking link.
type Platform string

// Known affiliate platforms.
const (
	PlatformImpact            Platform = "IMPACT"
	PlatformInvolveAsia       Platform = "INVOLVE_ASIA"
	PlatformCommissionFactory Platform = "COMMISSION_FACTORY"
	PlatformOptimise          Platform = "OPTIMISE"
	PlatformCJ                Platform = "CJ"
	PlatformRakuten           Platform = "RAKUTEN"
	PlatformPartnerize        Platform = "PARTNERIZE"
	PlatformAwin              Platform = "AWIN"
)

// Placeholders recognised inside tracking link templates.
const (
	PlaceholderUserID    = "{USER_ID}"
	PlaceholderOfferUUID = "{OFFER_UUID}"
)

// AffiliateLinkSpec describes how to build a merchant's tracking link.
type AffiliateLinkSpec struct {
	Merchant       string   `bson:"merchant" json:"merchant"`
	TrackingLink   string   `bson:"tracking_link" json:"tracking_link"`
	SourcePlatform Platform `bson:"source_platform" json:"source_platform"`
	OfferID        string   `bson:"offer_id" json:"offer_id"`
}

// MerchantKey normalizes a merchant name to the lowercase catalog key.
func MerchantKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

package storage

import "hotel-price-tracker/models"

const (
	KeyHotels                = "hotels"
	KeyPriceChanges          = "priceChanges"
	KeyCheckin               = "checkin"
	KeyCheckout              = "checkout"
	KeyAutoRefresh           = "autoRefresh"
	KeyRefreshTabs           = "refreshTabsList"
	KeyUserID                = "userId"
	KeySubscriptionStatus    = "subscriptionStatus"
	KeySubscriptionCheckTime = "subscriptionCheckTime"
	KeyNextBackgroundFetch   = "nextBackgroundFetch"

	snapshotKeyPrefix = "backgroundHotelData_"
)

// SnapshotKey is the key of the persisted SnapshotRecord for a listing
func SnapshotKey(site models.SiteID, canonicalURL string) string {
	return snapshotKeyPrefix + models.ListingKey(site, canonicalURL)
}

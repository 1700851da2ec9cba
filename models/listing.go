package models

import "time"

// RawRoom is one room candidate as a site strategy saw it, before normalization
type RawRoom struct {
	Label         string
	PriceText     string
	ConditionText string
}

// ExtractionResult is the raw output of one extraction cascade run
type ExtractionResult struct {
	Site       SiteID
	Name       string
	SourceURL  string
	Currency   string // fallback currency label, e.g. "RM" on Agoda
	Method     string // name of the cascade method that produced the rooms
	Rooms      []RawRoom
	CapturedAt time.Time
}

// RoomOffer is a normalized (label, price, condition) tuple
type RoomOffer struct {
	Label         string       `json:"label"`
	Price         Money        `json:"price"`
	Condition     ConditionTag `json:"condition"`
	ConditionText string       `json:"conditionText,omitempty"`
}

// HotelSnapshot is the canonical result of one successful extraction
type HotelSnapshot struct {
	Site         SiteID      `json:"site"`
	ListingName  string      `json:"listingName"`
	CanonicalURL string      `json:"canonicalUrl"`
	SourceURL    string      `json:"sourceUrl"`
	Method       string      `json:"method,omitempty"`
	Rooms        []RoomOffer `json:"rooms"`
	CapturedAt   time.Time   `json:"capturedAt"`
}

// Key identifies the listing the snapshot belongs to
func (s *HotelSnapshot) Key() string {
	return ListingKey(s.Site, s.CanonicalURL)
}

// ListingKey builds the identity key of a listing
func ListingKey(site SiteID, canonicalURL string) string {
	return string(site) + "_" + canonicalURL
}

// TrackedListing is an entry of the user's watch list
type TrackedListing struct {
	Site         SiteID      `json:"site"`
	Name         string      `json:"name"`
	URL          string      `json:"url"`
	CanonicalURL string      `json:"canonicalUrl"`
	Rooms        []RoomOffer `json:"rooms,omitempty"`
	AddedAt      time.Time   `json:"addedAt"`
	LastChecked  time.Time   `json:"lastChecked,omitempty"`
}

func (l *TrackedListing) Key() string {
	return ListingKey(l.Site, l.CanonicalURL)
}

// SnapshotRecord is what gets persisted per listing: the current rooms and the
// rooms from the fetch before. Every write replaces the whole record.
type SnapshotRecord struct {
	Name          string      `json:"name"`
	Rooms         []RoomOffer `json:"rooms"`
	PreviousRooms []RoomOffer `json:"previousRooms"`
	FetchedAt     time.Time   `json:"fetchedAt"`
}

// Direction of a price change
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// PriceChangeEvent records a single room whose price moved between fetches
type PriceChangeEvent struct {
	Site         SiteID    `json:"site"`
	ListingName  string    `json:"listingName"`
	CanonicalURL string    `json:"canonicalUrl"`
	RoomLabel    string    `json:"roomLabel"`
	OldPrice     Money     `json:"oldPrice"`
	NewPrice     Money     `json:"newPrice"`
	PercentDelta string    `json:"percentDelta"` // one decimal, e.g. "16.7"
	Direction    Direction `json:"direction"`
	Timestamp    time.Time `json:"timestamp"`
}

// RoomRef points at one room of one listing
type RoomRef struct {
	Site        SiteID
	ListingName string
	Room        RoomOffer
}

// InsightReport holds computed analytics over tracked listings and recent changes
type InsightReport struct {
	TotalListings   int
	TotalRooms      int
	ListingsBySite  map[SiteID]int
	CheapestBySite  map[SiteID]*RoomRef
	PriciestBySite  map[SiteID]*RoomRef
	RecentDrops     int
	RecentIncreases int
	BiggestDrop     *PriceChangeEvent
	StaleListings   []*TrackedListing
}

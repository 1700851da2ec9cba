package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"hotel-price-tracker/models"
	"hotel-price-tracker/storage"
	"hotel-price-tracker/utils"

	"github.com/google/uuid"
)

// ErrTierLimit is returned when the current tier does not allow another listing
var ErrTierLimit = errors.New("tier limit reached")

// Tier is the subscription level
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// Status is the answer of the billing backend
type Status struct {
	Subscribed bool `json:"subscribed"`
	Tier       Tier `json:"tier,omitempty"`
}

// Premium reports whether paid features are unlocked
func (s Status) Premium() bool {
	return s.Subscribed && s.Tier != TierFree
}

var freeStatus = Status{Subscribed: false, Tier: TierFree}

// SubscriptionClient verifies the subscription against the billing backend.
// Results are cached in the store; any failure reads as the free tier.
type SubscriptionClient struct {
	baseURL string
	http    *http.Client
	store   storage.Store
	ttl     time.Duration
	now     func() time.Time
	logger  *utils.Logger
}

func NewSubscriptionClient(baseURL string, store storage.Store, ttl time.Duration, logger *utils.Logger) *SubscriptionClient {
	return &SubscriptionClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		store:   store,
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
	}
}

// UserID returns the persisted user id, creating one on first use
func (c *SubscriptionClient) UserID(ctx context.Context) (string, error) {
	id, found, err := storage.GetJSON[string](ctx, c.store, storage.KeyUserID)
	if err != nil {
		return "", err
	}
	if found && id != "" {
		return id, nil
	}
	id = "user_" + uuid.NewString()
	if err := storage.SetJSON(ctx, c.store, map[string]any{storage.KeyUserID: id}); err != nil {
		return "", err
	}
	return id, nil
}

// Check returns the cached status when fresh, otherwise asks the backend
func (c *SubscriptionClient) Check(ctx context.Context) Status {
	if status, ok := c.cached(ctx); ok {
		return status
	}
	if c.baseURL == "" {
		return freeStatus
	}

	userID, err := c.UserID(ctx)
	if err != nil {
		c.logger.Warn("Subscription check skipped: %v", err)
		return freeStatus
	}
	status, err := c.verify(ctx, userID)
	if err != nil {
		c.logger.Warn("Subscription check failed: %v", err)
		return freeStatus
	}

	if err := storage.SetJSON(ctx, c.store, map[string]any{
		storage.KeySubscriptionStatus:    status,
		storage.KeySubscriptionCheckTime: c.now().UnixMilli(),
	}); err != nil {
		c.logger.Warn("Failed to cache subscription status: %v", err)
	}
	return status
}

func (c *SubscriptionClient) cached(ctx context.Context) (Status, bool) {
	values, err := c.store.Get(ctx, storage.KeySubscriptionStatus, storage.KeySubscriptionCheckTime)
	if err != nil {
		return Status{}, false
	}
	rawStatus, ok1 := values[storage.KeySubscriptionStatus]
	rawTime, ok2 := values[storage.KeySubscriptionCheckTime]
	if !ok1 || !ok2 {
		return Status{}, false
	}
	var (
		status    Status
		checkedAt int64
	)
	if json.Unmarshal(rawStatus, &status) != nil || json.Unmarshal(rawTime, &checkedAt) != nil {
		return Status{}, false
	}
	if c.now().Sub(time.UnixMilli(checkedAt)) >= c.ttl {
		return Status{}, false
	}
	return status, true
}

func (c *SubscriptionClient) verify(ctx context.Context, userID string) (Status, error) {
	endpoint := c.baseURL + "/verify/" + url.PathEscape(userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Status{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Status{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Status{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return Status{}, fmt.Errorf("failed to decode response: %w", err)
	}
	switch {
	case !status.Subscribed:
		status.Tier = TierFree
	case status.Tier == "":
		status.Tier = TierPremium
	}
	return status, nil
}

// TierLimits is what a tier may track
type TierLimits struct {
	Sites       []models.SiteID
	MaxListings int // 0 means unlimited
}

// LimitsFor returns the limits of status. The free tier covers Booking and
// Airbnb only, up to freeMax listings.
func LimitsFor(status Status, freeMax int) TierLimits {
	if status.Premium() {
		return TierLimits{Sites: models.AllSites}
	}
	return TierLimits{
		Sites:       []models.SiteID{models.SiteBooking, models.SiteAirbnb},
		MaxListings: freeMax,
	}
}

// Allow checks whether one more listing on site fits next to tracked ones
func (l TierLimits) Allow(site models.SiteID, tracked int) error {
	allowed := false
	for _, s := range l.Sites {
		if s == site {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: %s requires premium", ErrTierLimit, site.Title())
	}
	if l.MaxListings > 0 && tracked >= l.MaxListings {
		return fmt.Errorf("%w: %d listings allowed", ErrTierLimit, l.MaxListings)
	}
	return nil
}

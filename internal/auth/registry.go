package auth

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/gatherhq/gather-api/internal/models"
)

// Sweep windows. A dynamically registered client that never completes a grant
// is garbage after 48 hours; developer-portal clients get a year of idleness
// before cleanup, whether never-used or simply dormant.
const (
	dynamicUnusedTTL = 48 * time.Hour
	portalIdleTTL    = 365 * 24 * time.Hour
)

// ClientPurger removes a client and its outstanding grants from the external
// grant engine. Implemented by OAuthService.
type ClientPurger interface {
	PurgeClient(ctx context.Context, clientID string) error
}

// ClientRegistry tracks OAuth client provenance and usage independently of
// the grant engine's client store. It feeds the scheduled sweep that removes
// stale, unused clients from both places.
type ClientRegistry struct {
	db     *gorm.DB
	purger ClientPurger
}

func NewClientRegistry(db *gorm.DB, purger ClientPurger) *ClientRegistry {
	return &ClientRegistry{db: db, purger: purger}
}

// Register inserts a provenance record for a newly created client. Called
// once per client regardless of registration path.
func (r *ClientRegistry) Register(clientID, source string, ownerID *uint, clientName *string) error {
	record := &models.OAuthClientRecord{
		ClientID:     clientID,
		Source:       source,
		OwnerID:      ownerID,
		ClientName:   clientName,
		RegisteredAt: time.Now(),
		LastGrantAt:  nil,
	}
	return r.db.Create(record).Error
}

// RecordGrant bumps the client's last-grant timestamp. Concurrent calls are
// commutative; last write wins.
func (r *ClientRegistry) RecordGrant(clientID string) error {
	now := time.Now()
	return r.db.Model(&models.OAuthClientRecord{}).
		Where("client_id = ?", clientID).
		Update("last_grant_at", &now).Error
}

// RecordGrantAsync is the fire-and-forget form used on the authorization hot
// path. The response never waits on, or surfaces, a bookkeeping failure;
// failures are logged for operational visibility.
func (r *ClientRegistry) RecordGrantAsync(clientID string) {
	go func() {
		if err := r.RecordGrant(clientID); err != nil {
			log.WithFields(logrus.Fields{"client_id": clientID, "error": err.Error()}).Warn("Failed to record client grant usage")
		}
	}()
}

// Deregister removes the registry record and tells the grant engine to drop
// the client and everything issued to it.
func (r *ClientRegistry) Deregister(ctx context.Context, clientID string) error {
	if err := r.db.Where("client_id = ?", clientID).Delete(&models.OAuthClientRecord{}).Error; err != nil {
		return err
	}
	return r.purger.PurgeClient(ctx, clientID)
}

// Sweep deletes stale client records per the provenance rules, each record
// evaluated independently. A failure on one client never aborts the rest.
// Returns the number of clients removed.
func (r *ClientRegistry) Sweep(ctx context.Context, now time.Time) int {
	var records []models.OAuthClientRecord
	if err := r.db.Find(&records).Error; err != nil {
		log.WithField("error", err.Error()).Error("Sweep aborted: could not list client records")
		return 0
	}

	removed := 0
	for _, record := range records {
		if !staleAt(&record, now) {
			continue
		}
		if err := r.deleteStale(ctx, record.ClientID, now); err != nil {
			log.WithFields(logrus.Fields{"client_id": record.ClientID, "error": err.Error()}).Warn("Failed to sweep stale client")
			continue
		}
		removed++
	}

	if removed > 0 {
		log.WithField("removed", removed).Info("Swept stale OAuth clients")
	}
	return removed
}

// staleAt evaluates the deletion rules for a record at the given instant
func staleAt(record *models.OAuthClientRecord, now time.Time) bool {
	switch record.Source {
	case models.ClientSourceDynamic:
		return record.LastGrantAt == nil && now.Sub(record.RegisteredAt) > dynamicUnusedTTL
	case models.ClientSourcePortal:
		if record.LastGrantAt == nil {
			return now.Sub(record.RegisteredAt) > portalIdleTTL
		}
		return now.Sub(*record.LastGrantAt) > portalIdleTTL
	default:
		return false
	}
}

// deleteStale re-reads the record immediately before deleting so a client
// completing its first grant mid-sweep is not lost to the race.
func (r *ClientRegistry) deleteStale(ctx context.Context, clientID string, now time.Time) error {
	var current models.OAuthClientRecord
	if err := r.db.Where("client_id = ?", clientID).First(&current).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		return err
	}
	if !staleAt(&current, now) {
		return nil
	}

	if err := r.db.Where("client_id = ?", clientID).Delete(&models.OAuthClientRecord{}).Error; err != nil {
		return err
	}
	return r.purger.PurgeClient(ctx, clientID)
}

// StartSweeper runs Sweep on a fixed interval until the returned stop
// function is called.
func (r *ClientRegistry) StartSweeper(interval time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				r.Sweep(context.Background(), time.Now())
			case <-done:
				return
			}
		}
	}()

	return func() {
		ticker.Stop()
		close(done)
	}
}

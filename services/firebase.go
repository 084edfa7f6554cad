package services

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"firebase.google.com/go/v4/db"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"firewatch/config"
	"firewatch/models"
	"firewatch/store"
)

const (
	devicesPath             = "devices"
	historyChild            = "statusHistory"
	notificationsCollection = "notifications"
	registrationsCollection = "devices"
)

// FirebaseStore backs the store interfaces with the hosted platform: the
// Realtime Database holds the raw device tree and per-device alert history,
// Firestore holds registrations and notifications.
type FirebaseStore struct {
	rtdb   *db.Client
	fs     *firestore.Client
	auth   *auth.Client
	logger *zap.Logger
}

var (
	_ store.DeviceStore       = (*FirebaseStore)(nil)
	_ store.RegistrationStore = (*FirebaseStore)(nil)
	_ store.NotificationStore = (*FirebaseStore)(nil)
)

func NewFirebaseStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*FirebaseStore, error) {
	conf := &firebase.Config{
		DatabaseURL: cfg.FirebaseDbUrl,
		ProjectID:   cfg.FirebaseProjectID,
	}
	opt := option.WithCredentialsJSON([]byte(cfg.FirebaseServiceAccountJSON))

	app, err := firebase.NewApp(ctx, conf, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %v", err)
	}
	rtdb, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting database client: %v", err)
	}
	fs, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting firestore client: %v", err)
	}
	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting auth client: %v", err)
	}

	s := &FirebaseStore{
		rtdb:   rtdb,
		fs:     fs,
		auth:   authClient,
		logger: logger,
	}
	if err := s.testConnection(ctx); err != nil {
		return nil, fmt.Errorf("firebase connection test failed: %v", err)
	}
	return s, nil
}

// testConnection tests Firebase connection with retry logic
func (s *FirebaseStore) testConnection(ctx context.Context) error {
	maxRetries := 3

	for attempt := 1; attempt <= maxRetries; attempt++ {
		s.logger.Info("Testing Firebase connection", zap.Int("attempt", attempt), zap.Int("max_retries", maxRetries))

		var data interface{}
		err := s.rtdb.NewRef(devicesPath).Get(ctx, &data)
		if err == nil {
			s.logger.Info("Firebase connection successful")
			return nil
		}

		s.logger.Warn("Firebase connection failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}

	return fmt.Errorf("failed to connect to Firebase after %d attempts", maxRetries)
}

func (s *FirebaseStore) Close() error {
	s.logger.Info("Closing Firebase store")
	return s.fs.Close()
}

// VerifyIDToken resolves a Firebase ID token to the caller's user id.
func (s *FirebaseStore) VerifyIDToken(ctx context.Context, idToken string) (string, error) {
	token, err := s.auth.VerifyIDToken(ctx, idToken)
	if err != nil {
		return "", fmt.Errorf("verify id token: %v", err)
	}
	return token.UID, nil
}

func (s *FirebaseStore) deviceRef(deviceID string) *db.Ref {
	return s.rtdb.NewRef(devicesPath + "/" + deviceID)
}

func (s *FirebaseStore) Device(ctx context.Context, deviceID string) (map[string]interface{}, error) {
	var doc map[string]interface{}
	if err := s.deviceRef(deviceID).Get(ctx, &doc); err != nil {
		return nil, fmt.Errorf("get device %s: %v", deviceID, err)
	}
	return doc, nil
}

func (s *FirebaseStore) Devices(ctx context.Context) (map[string]map[string]interface{}, error) {
	var raw map[string]interface{}
	if err := s.rtdb.NewRef(devicesPath).Get(ctx, &raw); err != nil {
		return nil, fmt.Errorf("get devices: %v", err)
	}
	out := make(map[string]map[string]interface{}, len(raw))
	for id, v := range raw {
		if doc, ok := v.(map[string]interface{}); ok {
			out[id] = doc
		}
	}
	return out, nil
}

func (s *FirebaseStore) UpdateDevice(ctx context.Context, deviceID string, fields map[string]interface{}) error {
	if err := s.deviceRef(deviceID).Update(ctx, fields); err != nil {
		return fmt.Errorf("update device %s: %v", deviceID, err)
	}
	return nil
}

func (s *FirebaseStore) UpdateStatus(ctx context.Context, deviceID string, fields map[string]interface{}) error {
	if err := s.deviceRef(deviceID).Child("status").Update(ctx, fields); err != nil {
		return fmt.Errorf("update device %s status: %v", deviceID, err)
	}
	return nil
}

func (s *FirebaseStore) AppendHistory(ctx context.Context, deviceID string, entry models.AlertHistoryEntry) (string, error) {
	entry.ID = ""
	ref, err := s.deviceRef(deviceID).Child(historyChild).Push(ctx, entry)
	if err != nil {
		return "", fmt.Errorf("push history entry: %v", err)
	}
	return ref.Key, nil
}

func (s *FirebaseStore) History(ctx context.Context, deviceID string) ([]models.AlertHistoryEntry, error) {
	var items map[string]models.AlertHistoryEntry
	if err := s.deviceRef(deviceID).Child(historyChild).Get(ctx, &items); err != nil {
		return nil, fmt.Errorf("get history: %v", err)
	}
	entries := make([]models.AlertHistoryEntry, 0, len(items))
	for id, entry := range items {
		entry.ID = id
		entries = append(entries, entry)
	}
	return entries, nil
}

// RemoveHistory deletes entries in a single multi-path update so the trim
// is all-or-nothing.
func (s *FirebaseStore) RemoveHistory(ctx context.Context, deviceID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	updates := make(map[string]interface{}, len(ids))
	for _, id := range ids {
		updates[devicesPath+"/"+deviceID+"/"+historyChild+"/"+id] = nil
	}
	if err := s.rtdb.NewRef("/").Update(ctx, updates); err != nil {
		return fmt.Errorf("remove history entries: %v", err)
	}
	return nil
}

// UpdateOnline writes all changed online flags in one multi-path update.
func (s *FirebaseStore) UpdateOnline(ctx context.Context, updates map[string]models.OnlineState) error {
	if len(updates) == 0 {
		return nil
	}
	flat := make(map[string]interface{}, len(updates)*2)
	for deviceID, state := range updates {
		flat[devicesPath+"/"+deviceID+"/isOnline"] = state.IsOnline
		flat[devicesPath+"/"+deviceID+"/lastChecked"] = state.LastChecked
	}
	if err := s.rtdb.NewRef("/").Update(ctx, flat); err != nil {
		return fmt.Errorf("update online state: %v", err)
	}
	return nil
}

func (s *FirebaseStore) ListByDevice(ctx context.Context, deviceID string) ([]models.Registration, error) {
	iter := s.fs.Collection(registrationsCollection).Where("deviceId", "==", deviceID).Documents(ctx)
	defer iter.Stop()

	var regs []models.Registration
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list registrations: %v", err)
		}
		var reg models.Registration
		if err := doc.DataTo(&reg); err != nil {
			s.logger.Warn("Skipping malformed registration",
				zap.String("doc_id", doc.Ref.ID),
				zap.Error(err))
			continue
		}
		regs = append(regs, reg)
	}
	return regs, nil
}

func (s *FirebaseStore) Create(ctx context.Context, n models.Notification) error {
	ref := s.notificationRef(n)
	if _, err := ref.Set(ctx, n); err != nil {
		return fmt.Errorf("create notification: %v", err)
	}
	return nil
}

// CreateAll writes every notification in one Firestore batch, so fanout is
// all-or-nothing per transition.
func (s *FirebaseStore) CreateAll(ctx context.Context, ns []models.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	batch := s.fs.Batch()
	for _, n := range ns {
		batch.Set(s.notificationRef(n), n)
	}
	if _, err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("commit notification batch: %v", err)
	}
	return nil
}

func (s *FirebaseStore) notificationRef(n models.Notification) *firestore.DocumentRef {
	col := s.fs.Collection(notificationsCollection)
	if n.ID == "" {
		return col.NewDoc()
	}
	return col.Doc(n.ID)
}

// SubscribeToDeviceChanges polls the device tree and emits one DeviceChange
// per device whose document differs from the cached snapshot. The first
// poll only primes the cache, so a restart does not replay transitions the
// platform already delivered.
func (s *FirebaseStore) SubscribeToDeviceChanges(ctx context.Context, interval time.Duration, callback func(DeviceChange)) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		s.logger.Info("Starting device tree polling", zap.Duration("interval", interval))

		snapshots := make(map[string]map[string]interface{})
		primed := false

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Device tree polling stopped")
				return
			case <-ticker.C:
				current, err := s.Devices(ctx)
				if err != nil {
					s.logger.Error("Error polling devices", zap.Error(err))
					continue
				}

				if !primed {
					snapshots = current
					primed = true
					s.logger.Info("Device snapshot cache primed", zap.Int("devices", len(current)))
					continue
				}

				for deviceID, doc := range current {
					before := snapshots[deviceID]
					if reflect.DeepEqual(before, doc) {
						continue
					}
					snapshots[deviceID] = doc
					callback(DeviceChange{DeviceID: deviceID, Before: before, After: doc})
				}
				for deviceID, before := range snapshots {
					if _, ok := current[deviceID]; ok {
						continue
					}
					delete(snapshots, deviceID)
					callback(DeviceChange{DeviceID: deviceID, Before: before, After: nil})
				}
			}
		}
	}()
}

package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"safetysec/internal/models"
	"safetysec/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var errFakeNotFound = errors.New("not found")

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]*models.User
}

func newFakeUserRepo(users ...*models.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[primitive.ObjectID]*models.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) Create(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, errFakeNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, errFakeNotFound
}

func (r *fakeUserRepo) Update(_ context.Context, id primitive.ObjectID, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return errFakeNotFound
	}
	if name, ok := updates["name"].(string); ok {
		user.Name = name
	}
	if phone, ok := updates["phone"].(string); ok {
		user.Phone = phone
	}
	if code, ok := updates["cancellation_code"].(string); ok {
		user.CancellationCode = code
	}
	return nil
}

func (r *fakeUserRepo) Delete(_ context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, id)
	return nil
}

func (r *fakeUserRepo) UpdateLocation(_ context.Context, id primitive.ObjectID, location *models.GeoPoint, batteryLevel *float64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return errFakeNotFound
	}
	user.Location = location
	user.BatteryLevel = batteryLevel
	user.LocationUpdated = &at
	return nil
}

func (r *fakeUserRepo) GetMonitors(ctx context.Context, protectedID primitive.ObjectID) ([]*models.User, error) {
	protected, err := r.GetByID(ctx, protectedID)
	if err != nil {
		return nil, err
	}
	return r.byIDs(protected.Monitors), nil
}

func (r *fakeUserRepo) GetProtecteds(ctx context.Context, monitorID primitive.ObjectID) ([]*models.User, error) {
	monitor, err := r.GetByID(ctx, monitorID)
	if err != nil {
		return nil, err
	}
	return r.byIDs(monitor.Protecteds), nil
}

func (r *fakeUserRepo) byIDs(ids []primitive.ObjectID) []*models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		if user, ok := r.users[id]; ok {
			copied := *user
			out = append(out, &copied)
		}
	}
	return out
}

func (r *fakeUserRepo) AddDeviceToken(_ context.Context, id primitive.ObjectID, token models.DeviceToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return errFakeNotFound
	}
	user.DeviceTokens = append(user.DeviceTokens, token)
	return nil
}

func (r *fakeUserRepo) RemoveDeviceToken(_ context.Context, id primitive.ObjectID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return errFakeNotFound
	}
	kept := user.DeviceTokens[:0]
	for _, t := range user.DeviceTokens {
		if t.Token != token {
			kept = append(kept, t)
		}
	}
	user.DeviceTokens = kept
	return nil
}

func (r *fakeUserRepo) List(_ context.Context, _ *utils.PaginationParams) ([]*models.User, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.User, 0, len(r.users))
	for _, user := range r.users {
		copied := *user
		out = append(out, &copied)
	}
	return out, int64(len(out)), nil
}

type fakeRuleRepo struct {
	mu    sync.Mutex
	rules map[primitive.ObjectID]*models.SafetyRule
}

func newFakeRuleRepo(rules ...*models.SafetyRule) *fakeRuleRepo {
	r := &fakeRuleRepo{rules: make(map[primitive.ObjectID]*models.SafetyRule)}
	for _, rule := range rules {
		r.rules[rule.ID] = rule
	}
	return r
}

func (r *fakeRuleRepo) Create(_ context.Context, rule *models.SafetyRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rule.ID.IsZero() {
		rule.ID = primitive.NewObjectID()
	}
	copied := *rule
	r.rules[rule.ID] = &copied
	return nil
}

func (r *fakeRuleRepo) GetByID(_ context.Context, id primitive.ObjectID) (*models.SafetyRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[id]
	if !ok {
		return nil, errFakeNotFound
	}
	copied := *rule
	return &copied, nil
}

func (r *fakeRuleRepo) Update(_ context.Context, id primitive.ObjectID, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[id]
	if !ok {
		return errFakeNotFound
	}
	if name, ok := updates["name"].(string); ok {
		rule.Name = name
	}
	if desc, ok := updates["description"].(string); ok {
		rule.Description = desc
	}
	if params, ok := updates["params"].(map[string]float64); ok {
		rule.Params = params
	}
	if windows, ok := updates["time_windows"].([]models.TimeWindow); ok {
		rule.TimeWindows = windows
	}
	if authorized, ok := updates["authorized"].(bool); ok {
		rule.Authorized = authorized
	}
	return nil
}

func (r *fakeRuleRepo) Delete(_ context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[id]; !ok {
		return errFakeNotFound
	}
	delete(r.rules, id)
	return nil
}

func (r *fakeRuleRepo) GetActiveForProtected(_ context.Context, protectedID primitive.ObjectID) ([]*models.SafetyRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.SafetyRule, 0)
	for _, rule := range r.rules {
		if rule.ProtectedID == protectedID && rule.Authorized {
			copied := *rule
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeRuleRepo) ListByProtected(_ context.Context, protectedID primitive.ObjectID, _ *utils.PaginationParams) ([]*models.SafetyRule, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.SafetyRule, 0)
	for _, rule := range r.rules {
		if rule.ProtectedID == protectedID {
			copied := *rule
			out = append(out, &copied)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeRuleRepo) ListByMonitor(_ context.Context, monitorID primitive.ObjectID, _ *utils.PaginationParams) ([]*models.SafetyRule, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.SafetyRule, 0)
	for _, rule := range r.rules {
		if rule.MonitorID == monitorID {
			copied := *rule
			out = append(out, &copied)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeRuleRepo) SetAuthorized(_ context.Context, id primitive.ObjectID, authorized bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[id]
	if !ok {
		return errFakeNotFound
	}
	rule.Authorized = authorized
	return nil
}

func (r *fakeRuleRepo) WatchProtected(ctx context.Context, _ primitive.ObjectID) (<-chan struct{}, error) {
	ch := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

type fakeAlertRepo struct {
	mu     sync.Mutex
	alerts map[primitive.ObjectID]*models.Alert
}

func newFakeAlertRepo(alerts ...*models.Alert) *fakeAlertRepo {
	r := &fakeAlertRepo{alerts: make(map[primitive.ObjectID]*models.Alert)}
	for _, alert := range alerts {
		r.alerts[alert.ID] = alert
	}
	return r
}

func (r *fakeAlertRepo) Create(_ context.Context, alert *models.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if alert.ID.IsZero() {
		alert.ID = primitive.NewObjectID()
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	copied := *alert
	r.alerts[alert.ID] = &copied
	return nil
}

func (r *fakeAlertRepo) GetByID(_ context.Context, id primitive.ObjectID) (*models.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	alert, ok := r.alerts[id]
	if !ok {
		return nil, errFakeNotFound
	}
	copied := *alert
	return &copied, nil
}

func (r *fakeAlertRepo) AttachVideo(_ context.Context, id primitive.ObjectID, videoURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	alert, ok := r.alerts[id]
	if !ok {
		return errFakeNotFound
	}
	alert.VideoURL = &videoURL
	return nil
}

func (r *fakeAlertRepo) Resolve(_ context.Context, id primitive.ObjectID, resolvedBy primitive.ObjectID, notes string) (*models.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	alert, ok := r.alerts[id]
	if !ok {
		return nil, errFakeNotFound
	}
	if !alert.Resolved {
		now := time.Now()
		alert.Resolved = true
		alert.ResolvedBy = &resolvedBy
		alert.ResolvedAt = &now
		alert.Notes = notes
	}
	copied := *alert
	return &copied, nil
}

func (r *fakeAlertRepo) ListByProtected(_ context.Context, protectedID primitive.ObjectID, _ *utils.PaginationParams) ([]*models.Alert, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Alert, 0)
	for _, alert := range r.alerts {
		if alert.ProtectedID == protectedID {
			copied := *alert
			out = append(out, &copied)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeAlertRepo) ListUnresolvedByProtecteds(_ context.Context, protectedIDs []primitive.ObjectID) ([]*models.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wanted := make(map[primitive.ObjectID]bool, len(protectedIDs))
	for _, id := range protectedIDs {
		wanted[id] = true
	}
	out := make([]*models.Alert, 0)
	for _, alert := range r.alerts {
		if wanted[alert.ProtectedID] && !alert.Resolved {
			copied := *alert
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeAlertRepo) CountUnresolved(_ context.Context, protectedID primitive.ObjectID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, alert := range r.alerts {
		if alert.ProtectedID == protectedID && !alert.Resolved {
			n++
		}
	}
	return n, nil
}

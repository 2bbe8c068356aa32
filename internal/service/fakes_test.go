package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/sakif/graduation-photo/internal/apperror"
	"github.com/sakif/graduation-photo/internal/auth"
	"github.com/sakif/graduation-photo/internal/model"
	"github.com/sakif/graduation-photo/internal/repository"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================
//
// Hand-written in-memory fakes of the repository interfaces and the booking
// engine. Each one stores copies so a test can't reach into its state by
// accident, and exposes an error field to simulate a failing database.

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeUserRepo struct {
	users   map[string]*model.User // keyed by internal ID
	bySDUID map[string]string      // sdu_id → internal ID
	nextID  int
	err     error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:   make(map[string]*model.User),
		bySDUID: make(map[string]string),
	}
}

func (f *fakeUserRepo) put(u model.User) *model.User {
	if u.ID == "" {
		f.nextID++
		u.ID = fmt.Sprintf("user-%d", f.nextID)
	}
	f.users[u.ID] = &u
	f.bySDUID[u.SDUID] = u.ID
	copied := u
	return &copied
}

func (f *fakeUserRepo) CreateUser(_ context.Context, user *model.User) error {
	if f.err != nil {
		return f.err
	}
	if _, ok := f.bySDUID[user.SDUID]; ok {
		return apperror.Conflict("user", user.SDUID)
	}
	*user = *f.put(*user)
	return nil
}

func (f *fakeUserRepo) UpsertUserBySDUID(_ context.Context, user *model.User) error {
	if f.err != nil {
		return f.err
	}
	if id, ok := f.bySDUID[user.SDUID]; ok {
		existing := f.users[id]
		existing.Name = user.Name
		*user = *existing
		return nil
	}
	*user = *f.put(*user)
	return nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) GetUserBySDUID(ctx context.Context, sduID string) (*model.User, error) {
	id, ok := f.bySDUID[sduID]
	if !ok {
		return nil, apperror.NotFound("user", sduID)
	}
	return f.GetUserByID(ctx, id)
}

func (f *fakeUserRepo) ListUsers(_ context.Context, opts repository.ListOptions) ([]model.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	opts = opts.Normalize()
	all := make([]model.User, 0, len(f.users))
	for _, u := range f.users {
		all = append(all, *u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].SDUID < all[j].SDUID })
	if opts.Offset >= len(all) {
		return []model.User{}, nil
	}
	all = all[opts.Offset:]
	if opts.Limit < len(all) {
		all = all[:opts.Limit]
	}
	return all, nil
}

type fakeCatalogRepo struct {
	campuses map[string]*model.Campus
	times    map[string]*model.Time
	nextID   int
	err      error
}

func newFakeCatalogRepo() *fakeCatalogRepo {
	return &fakeCatalogRepo{
		campuses: make(map[string]*model.Campus),
		times:    make(map[string]*model.Time),
	}
}

func (f *fakeCatalogRepo) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeCatalogRepo) CreateCampus(_ context.Context, c *model.Campus) error {
	if f.err != nil {
		return f.err
	}
	c.ID = f.id("campus")
	copied := *c
	f.campuses[c.ID] = &copied
	return nil
}

func (f *fakeCatalogRepo) GetCampus(_ context.Context, id string) (*model.Campus, error) {
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.campuses[id]
	if !ok {
		return nil, apperror.NotFound("campus", id)
	}
	copied := *c
	return &copied, nil
}

func (f *fakeCatalogRepo) ListCampuses(_ context.Context, _ repository.ListOptions) ([]model.Campus, error) {
	out := make([]model.Campus, 0, len(f.campuses))
	for _, c := range f.campuses {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeCatalogRepo) UpdateCampus(ctx context.Context, id string, patch model.CampusPatch) (*model.Campus, error) {
	c, err := f.GetCampus(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := patch.Apply(c); err != nil {
		return nil, err
	}
	f.campuses[id] = c
	copied := *c
	return &copied, nil
}

func (f *fakeCatalogRepo) DeleteCampus(ctx context.Context, id string) (*model.Campus, error) {
	c, err := f.GetCampus(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, t := range f.times {
		if t.CampusID == id {
			return nil, apperror.Conflictf("campus %s still has time slots", id)
		}
	}
	delete(f.campuses, id)
	return c, nil
}

func (f *fakeCatalogRepo) CreateTime(_ context.Context, t *model.Time) error {
	if f.err != nil {
		return f.err
	}
	t.ID = f.id("time")
	copied := *t
	f.times[t.ID] = &copied
	return nil
}

func (f *fakeCatalogRepo) GetTime(_ context.Context, id string) (*model.Time, error) {
	if f.err != nil {
		return nil, f.err
	}
	t, ok := f.times[id]
	if !ok {
		return nil, apperror.NotFound("time", id)
	}
	copied := *t
	return &copied, nil
}

func (f *fakeCatalogRepo) ListTimes(_ context.Context, filter repository.TimeFilter, _ repository.ListOptions) ([]model.Time, error) {
	out := make([]model.Time, 0, len(f.times))
	for _, t := range f.times {
		if filter.CampusID == "" || t.CampusID == filter.CampusID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (f *fakeCatalogRepo) UpdateTimeSchedule(ctx context.Context, id string, patch model.TimePatch) (*model.Time, error) {
	t, err := f.GetTime(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := patch.Apply(t); err != nil {
		return nil, err
	}
	f.times[id] = t
	copied := *t
	return &copied, nil
}

func (f *fakeCatalogRepo) DeleteTime(ctx context.Context, id string) (*model.Time, error) {
	t, err := f.GetTime(ctx, id)
	if err != nil {
		return nil, err
	}
	delete(f.times, id)
	return t, nil
}

// fakeEngine returns scripted results. errs is consumed one entry per call,
// so a test can make the first attempts conflict and a later one succeed.
type fakeEngine struct {
	calls int
	errs  []error
	user  *model.User
	time  *model.Time

	lastPatch model.UserPatch
	lastDelta int
}

func (e *fakeEngine) next() error {
	e.calls++
	if len(e.errs) == 0 {
		return nil
	}
	err := e.errs[0]
	e.errs = e.errs[1:]
	return err
}

func (e *fakeEngine) UpdateUserBooking(_ context.Context, _ string, patch model.UserPatch) (*model.User, error) {
	e.lastPatch = patch
	if err := e.next(); err != nil {
		return nil, err
	}
	copied := *e.user
	return &copied, nil
}

func (e *fakeEngine) DeleteUser(_ context.Context, _ string) (*model.User, error) {
	if err := e.next(); err != nil {
		return nil, err
	}
	copied := *e.user
	return &copied, nil
}

func (e *fakeEngine) AdjustCapacityDirect(_ context.Context, _ string, delta int) (*model.Time, error) {
	e.lastDelta = delta
	if err := e.next(); err != nil {
		return nil, err
	}
	copied := *e.time
	copied.Capacity += delta
	return &copied, nil
}

type fakeIdentity struct {
	name  string
	err   error
	calls int
}

func (f *fakeIdentity) ValidateIdentity(_ context.Context, _, _ string) (*auth.Identity, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &auth.Identity{Name: f.name}, nil
}

func newTestTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars", 15*time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return tokens
}

// fastRetry keeps retry tests quick.
var fastRetry = RetryPolicy{Retries: 3, Backoff: time.Millisecond}

func strPtr(s string) *string { return &s }

// bookedUser is a user holding a seat of timeID.
func bookedUser(sduID, name, timeID string) model.User {
	return model.User{SDUID: sduID, Name: name, SignedUp: true, TimeID: strPtr(timeID)}
}

package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sakif/graduation-photo/internal/apperror"
	"github.com/sakif/graduation-photo/internal/metrics"
	"github.com/sakif/graduation-photo/internal/model"
	"github.com/sakif/graduation-photo/internal/repository"
)

type userFixture struct {
	users   *fakeUserRepo
	catalog *fakeCatalogRepo
	engine  *fakeEngine
	metrics *metrics.Metrics
	svc     *UserService
}

func newUserFixture(t *testing.T) *userFixture {
	t.Helper()
	f := &userFixture{
		users:   newFakeUserRepo(),
		catalog: newFakeCatalogRepo(),
		engine:  &fakeEngine{},
		metrics: metrics.New(),
	}
	f.svc = NewUserService(f.users, f.catalog, f.engine, fastRetry, f.metrics, discardLogger())
	return f
}

func (f *userFixture) slot(t *testing.T, capacity int) *model.Time {
	t.Helper()
	start := time.Date(2025, 6, 20, 9, 0, 0, 0, time.UTC)
	slot := &model.Time{Start: start, End: start.Add(30 * time.Minute), Capacity: capacity, CampusID: "campus-x"}
	if err := f.catalog.CreateTime(context.Background(), slot); err != nil {
		t.Fatalf("CreateTime: %v", err)
	}
	return slot
}

func TestUserGet_EmbedsTime(t *testing.T) {
	f := newUserFixture(t)
	slot := f.slot(t, 3)
	u := f.users.put(bookedUser("1", "A", slot.ID))

	got, err := f.svc.Get(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Time == nil || got.Time.ID != slot.ID {
		t.Fatalf("Time = %+v, want slot %s embedded", got.Time, slot.ID)
	}
}

func TestUserGet_WithoutTime(t *testing.T) {
	f := newUserFixture(t)
	u := f.users.put(model.User{SDUID: "1", Name: "A"})

	got, err := f.svc.Get(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Time != nil {
		t.Errorf("Time = %+v, want nil", got.Time)
	}
}

func TestUserGet_MissingTimeIsTolerated(t *testing.T) {
	f := newUserFixture(t)
	u := f.users.put(bookedUser("1", "A", "time-gone"))

	got, err := f.svc.Get(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Time != nil {
		t.Errorf("Time = %+v, want nil", got.Time)
	}
}

func TestUserGet_NotFound(t *testing.T) {
	f := newUserFixture(t)
	_, err := f.svc.Get(context.Background(), "nope")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("err = %v, want NotFound", err)
	}
}

func TestUserList(t *testing.T) {
	f := newUserFixture(t)
	f.users.put(model.User{SDUID: "2", Name: "B"})
	f.users.put(model.User{SDUID: "1", Name: "A"})

	got, err := f.svc.List(context.Background(), repository.ListOptions{Limit: 1})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].SDUID != "1" {
		t.Errorf("List = %+v, want only sdu_id 1", got)
	}
}

func TestUpdateBooking_PassesPatchAndEmbedsTime(t *testing.T) {
	f := newUserFixture(t)
	slot := f.slot(t, 2)
	u := bookedUser("1", "A", slot.ID)
	u.ID = "user-1"
	f.engine.user = &u

	patch := model.UserPatch{SignedUp: model.Some(true), TimeID: model.Some(slot.ID)}
	got, err := f.svc.UpdateBooking(context.Background(), "user-1", patch)
	if err != nil {
		t.Fatalf("UpdateBooking: %v", err)
	}
	if f.engine.lastPatch.TimeID.Value != slot.ID {
		t.Errorf("engine got patch %+v", f.engine.lastPatch)
	}
	if got.Time == nil || got.Time.ID != slot.ID {
		t.Errorf("Time = %+v, want embedded slot", got.Time)
	}
}

func TestUpdateBooking_RetriesConflicts(t *testing.T) {
	f := newUserFixture(t)
	u := model.User{ID: "user-1", SDUID: "1"}
	f.engine.user = &u
	f.engine.errs = []error{apperror.Conflictf("busy"), apperror.Conflictf("busy")}

	if _, err := f.svc.UpdateBooking(context.Background(), "user-1", model.UserPatch{}); err != nil {
		t.Fatalf("UpdateBooking: %v", err)
	}
	if f.engine.calls != 3 {
		t.Errorf("engine calls = %d, want 3", f.engine.calls)
	}
	if got := testutil.ToFloat64(f.metrics.BookingRetries); got != 2 {
		t.Errorf("retries = %v, want 2", got)
	}
}

func TestUpdateBooking_GivesUpAfterRetries(t *testing.T) {
	f := newUserFixture(t)
	f.engine.user = &model.User{ID: "user-1"}
	for i := 0; i < 10; i++ {
		f.engine.errs = append(f.engine.errs, apperror.Conflictf("busy"))
	}

	_, err := f.svc.UpdateBooking(context.Background(), "user-1", model.UserPatch{})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("err = %v, want Conflict", err)
	}
	if want := fastRetry.Retries + 1; f.engine.calls != want {
		t.Errorf("engine calls = %d, want %d", f.engine.calls, want)
	}
}

func TestUpdateBooking_DoesNotRetryAnswers(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "insufficient capacity", err: apperror.InsufficientCapacity("t")},
		{name: "not found", err: apperror.NotFound("time", "t")},
		{name: "validation", err: apperror.ValidationFailed("qq", "too long")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newUserFixture(t)
			f.engine.user = &model.User{ID: "user-1"}
			f.engine.errs = []error{tt.err}

			_, err := f.svc.UpdateBooking(context.Background(), "user-1", model.UserPatch{})
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			if f.engine.calls != 1 {
				t.Errorf("engine calls = %d, want 1", f.engine.calls)
			}
		})
	}
}

func TestUpdateBooking_StopsWhenContextEnds(t *testing.T) {
	f := newUserFixture(t)
	f.engine.user = &model.User{ID: "user-1"}
	f.engine.errs = []error{apperror.Conflictf("busy"), apperror.Conflictf("busy")}
	f.svc.retry = RetryPolicy{Retries: 5, Backoff: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.UpdateBooking(ctx, "user-1", model.UserPatch{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if f.engine.calls != 1 {
		t.Errorf("engine calls = %d, want 1", f.engine.calls)
	}
}

func TestUserDelete(t *testing.T) {
	f := newUserFixture(t)
	f.engine.user = &model.User{ID: "user-1", SDUID: "1"}
	f.engine.errs = []error{apperror.Conflictf("busy")}

	got, err := f.svc.Delete(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got.ID != "user-1" || f.engine.calls != 2 {
		t.Errorf("got %+v after %d calls", got, f.engine.calls)
	}
}

func TestRegister(t *testing.T) {
	f := newUserFixture(t)

	u, err := f.svc.Register(context.Background(), " 201900001 ", " Li Si ")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.ID == "" || u.SDUID != "201900001" || u.Name != "Li Si" {
		t.Errorf("Register = %+v", u)
	}

	_, err = f.svc.Register(context.Background(), "201900001", "Again")
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("duplicate sdu_id: err = %v, want Conflict", err)
	}
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name      string
		sduID     string
		userName  string
		wantField string
	}{
		{name: "no sdu_id", sduID: "", userName: "A", wantField: "sdu_id"},
		{name: "no name", sduID: "1", userName: " ", wantField: "name"},
		{name: "long name", sduID: "1", userName: string(bytes.Repeat([]byte("x"), model.MaxNameLength+1)), wantField: "name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newUserFixture(t)
			_, err := f.svc.Register(context.Background(), tt.sduID, tt.userName)
			var appErr *apperror.AppError
			if !errors.As(err, &appErr) || !errors.Is(err, apperror.ErrValidation) {
				t.Fatalf("err = %v, want Validation", err)
			}
			if appErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", appErr.Field, tt.wantField)
			}
		})
	}
}

func TestTicket(t *testing.T) {
	f := newUserFixture(t)
	slot := f.slot(t, 1)
	u := f.users.put(bookedUser("201900001", "A", slot.ID))

	png, err := f.svc.Ticket(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("Ticket: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG\r\n\x1a\n")) {
		t.Errorf("ticket is not a PNG: % x", png[:8])
	}
}

func TestTicket_NoSeat(t *testing.T) {
	tests := []struct {
		name string
		user model.User
	}{
		{name: "never booked", user: model.User{SDUID: "1", Name: "A"}},
		{name: "signed out but slot remembered", user: model.User{SDUID: "2", Name: "B", TimeID: strPtr("time-1")}},
		{name: "signed up without a slot", user: model.User{SDUID: "3", Name: "C", SignedUp: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newUserFixture(t)
			f.slot(t, 1) // time-1
			u := f.users.put(tt.user)

			_, err := f.svc.Ticket(context.Background(), u.ID)
			if !errors.Is(err, apperror.ErrNotFound) {
				t.Errorf("err = %v, want NotFound", err)
			}
		})
	}
}

func TestTicketPayload(t *testing.T) {
	start := time.Date(2025, 6, 20, 17, 30, 0, 0, time.FixedZone("CST", 8*3600))
	u := &model.User{ID: "u1", SDUID: "201900001", Time: &model.Time{Start: start}}

	got := ticketPayload(u, "t1")
	want := "gradphoto|u1|201900001|t1|2025-06-20T09:30:00Z"
	if got != want {
		t.Errorf("payload = %q, want %q", got, want)
	}
}

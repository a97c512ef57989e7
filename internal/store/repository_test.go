package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"rollcall/internal/attendance"
)

// newTestRepository migrates the database named by
// ATTENDANCE_TEST_DATABASE_URL and empties it, or skips.
func newTestRepository(t *testing.T) *attendance.Repository {
	t.Helper()
	url := os.Getenv("ATTENDANCE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("ATTENDANCE_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := NewDB(ctx, url)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if _, err := db.Client.ExecContext(ctx, `TRUNCATE attendance, devices, users`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return attendance.NewRepository(db.Client)
}

func TestRepository_ServiceScenario(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	start := time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return start.Add(time.Duration(tick) * time.Minute)
	}
	n := 0
	tokens := func() (string, error) {
		n++
		return "integration-token-" + string(rune('a'+n)), nil
	}
	svc := attendance.NewService(repo, tokens, attendance.WithClock(clock))

	u, err := svc.CreateUser(ctx, attendance.UserInput{AdmissionNumber: "ADM-1", Name: "Asha"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := svc.CreateUser(ctx, attendance.UserInput{AdmissionNumber: "ADM-1", Name: "Dup"}); !errors.Is(err, attendance.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	d, err := svc.CreateDevice(ctx, "GATE-1", "Main gate")
	if err != nil {
		t.Fatalf("CreateDevice: %v", err)
	}

	resolved, err := repo.DeviceByToken(ctx, d.Token)
	if err != nil || resolved.ID != d.ID {
		t.Fatalf("DeviceByToken: %v %+v", err, resolved)
	}

	a, err := svc.Mark(ctx, d, attendance.MarkInput{UserID: u.ID, Event: attendance.EventIn})
	if err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if a.User == nil || a.User.AdmissionNumber != "ADM-1" || a.Device == nil || a.Device.DeviceID != "GATE-1" {
		t.Fatalf("expected joined row, got %+v", a)
	}
	if a.Confidence != nil {
		t.Errorf("expected null confidence, got %v", *a.Confidence)
	}
	if _, err := svc.Mark(ctx, d, attendance.MarkInput{UserID: u.ID, Event: attendance.EventOut}); err != nil {
		t.Fatalf("Mark: %v", err)
	}

	q, err := svc.ParseQuery(attendance.QueryParams{UserID: u.ID, StartDate: "2024-01-05", EndDate: "2024-01-05", Limit: "1"})
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	page, err := svc.Query(ctx, q)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if page.Pagination.Total != 2 || page.Pagination.Pages != 2 || len(page.Attendances) != 1 {
		t.Fatalf("unexpected page %+v", page.Pagination)
	}
	if page.Attendances[0].Event != attendance.EventOut {
		t.Errorf("expected newest event first, got %s", page.Attendances[0].Event)
	}

	devices, err := svc.ListDevices(ctx)
	if err != nil || len(devices) != 1 || devices[0].Count.Attendance != 2 {
		t.Fatalf("ListDevices: %v %+v", err, devices)
	}

	if err := svc.DeleteUser(ctx, u.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if n, err := repo.CountAttendance(ctx, attendance.Filter{UserID: u.ID}); err != nil || n != 0 {
		t.Fatalf("expected attendance gone, got %d %v", n, err)
	}
	if err := svc.DeleteUser(ctx, u.ID); !errors.Is(err, attendance.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRepository_ForeignKeyIsNotFound(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	d, err := repo.CreateDevice(ctx, attendance.Device{ID: "dev-1", DeviceID: "GATE-1", Name: "Gate", Token: "t1", CreatedAt: time.Now().UTC()})
	if err != nil {
		t.Fatalf("CreateDevice: %v", err)
	}
	_, err = repo.InsertAttendance(ctx, attendance.Attendance{
		ID: "att-1", Event: attendance.EventIn, UserID: "ghost", DeviceID: d.ID, CreatedAt: time.Now().UTC(),
	})
	var nf *attendance.NotFoundError
	if !errors.As(err, &nf) || nf.Resource != "user" {
		t.Fatalf("expected user not found, got %v", err)
	}
}

func TestRepository_TokenConflict(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	now := time.Now().UTC()
	if _, err := repo.CreateDevice(ctx, attendance.Device{ID: "dev-1", DeviceID: "GATE-1", Name: "A", Token: "shared", CreatedAt: now}); err != nil {
		t.Fatalf("CreateDevice: %v", err)
	}
	_, err := repo.CreateDevice(ctx, attendance.Device{ID: "dev-2", DeviceID: "GATE-2", Name: "B", Token: "shared", CreatedAt: now})
	var c *attendance.ConflictError
	if !errors.As(err, &c) || c.Field != attendance.FieldToken {
		t.Fatalf("expected token conflict, got %v", err)
	}
}

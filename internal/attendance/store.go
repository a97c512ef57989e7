package attendance

import (
	"context"
	"time"
)

// Filter is a normalized attendance predicate plus the page window.
// Zero-valued fields do not constrain the result. From and To are inclusive.
type Filter struct {
	UserID   string
	DeviceID string
	From     *time.Time
	To       *time.Time
	Offset   int
	Limit    int
}

// UserFilter selects users whose name, admission number or email contains
// Search, case-insensitively.
type UserFilter struct {
	Search string
	Offset int
	Limit  int
}

// UserStore persists users. Lookups of a missing id return a *NotFoundError;
// a duplicate admission number returns a *ConflictError.
type UserStore interface {
	CreateUser(ctx context.Context, u User) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	UpdateUser(ctx context.Context, u User) (User, error)
	// DeleteUser removes the user's attendance and then the user, atomically.
	DeleteUser(ctx context.Context, id string) error
	ListUsers(ctx context.Context, f UserFilter) ([]User, error)
	CountUsers(ctx context.Context, f UserFilter) (int, error)
}

// DeviceStore persists devices. Token and DeviceID are unique; a violation
// returns a *ConflictError naming the field.
type DeviceStore interface {
	CreateDevice(ctx context.Context, d Device) (Device, error)
	GetDevice(ctx context.Context, id string) (Device, error)
	DeviceByToken(ctx context.Context, token string) (Device, error)
	SetDeviceToken(ctx context.Context, id, token string) (Device, error)
	// DeleteDevice removes the device's attendance and then the device, atomically.
	DeleteDevice(ctx context.Context, id string) error
	ListDevices(ctx context.Context) ([]DeviceSummary, error)
}

// AttendanceStore persists attendance events. Reads return rows joined with
// their user and device, newest first.
type AttendanceStore interface {
	// InsertAttendance writes a single row. A missing user or device returns
	// a *NotFoundError and writes nothing.
	InsertAttendance(ctx context.Context, a Attendance) (Attendance, error)
	ListAttendance(ctx context.Context, f Filter) ([]Attendance, error)
	CountAttendance(ctx context.Context, f Filter) (int, error)
}

// Store is everything the service needs from the backing store.
type Store interface {
	UserStore
	DeviceStore
	AttendanceStore
	Ping(ctx context.Context) error
}

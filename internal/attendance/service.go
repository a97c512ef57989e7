package attendance

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Unique fields reported by ConflictError.
const (
	FieldToken           = "token"
	FieldDeviceID        = "deviceId"
	FieldAdmissionNumber = "admissionNumber"
)

const (
	// recentLimit is how many events a user or device detail view carries.
	recentLimit = 10
	// tokenAttempts bounds retries when a generated token collides.
	tokenAttempts = 3
)

// TokenFunc produces a fresh opaque device token.
type TokenFunc func() (string, error)

// Service records attendance and answers admin queries on top of a Store.
type Service struct {
	store    Store
	newToken TokenFunc
	bounds   Bounds
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithBounds sets page-size defaults and the zone bare dates are read in.
func WithBounds(b Bounds) Option {
	return func(s *Service) { s.bounds = b.withDefaults() }
}

// WithClock overrides the time source used for creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a service backed by store. newToken generates device
// credentials.
func NewService(store Store, newToken TokenFunc, opts ...Option) *Service {
	s := &Service{
		store:    store,
		newToken: newToken,
		bounds:   Bounds{}.withDefaults(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bounds returns the normalization bounds the service applies.
func (s *Service) Bounds() Bounds { return s.bounds }

// Ping checks the backing store.
func (s *Service) Ping(ctx context.Context) error { return s.store.Ping(ctx) }

// MarkInput is the payload a device submits for one event.
type MarkInput struct {
	UserID     string
	Event      string
	Confidence *float64
}

// Mark records one event authored by device. The user must exist; nothing is
// written unless every check passes.
func (s *Service) Mark(ctx context.Context, device Device, in MarkInput) (Attendance, error) {
	if in.UserID == "" || in.Event == "" {
		return Attendance{}, invalid("userId and event are required")
	}
	if !ValidEvent(in.Event) {
		return Attendance{}, invalid("Event must be 'IN' or 'OUT'")
	}
	if _, err := s.store.GetUser(ctx, in.UserID); err != nil {
		return Attendance{}, err
	}
	return s.store.InsertAttendance(ctx, Attendance{
		ID:         uuid.NewString(),
		Event:      in.Event,
		Confidence: in.Confidence,
		UserID:     in.UserID,
		DeviceID:   device.ID,
		CreatedAt:  s.now().UTC(),
	})
}

// ParseQuery normalizes raw parameters with the service's bounds.
func (s *Service) ParseQuery(p QueryParams) (Query, error) {
	return ParseQuery(p, s.bounds)
}

// Query returns one page of matching attendance, newest first. The page and
// the total are read independently and may disagree under concurrent writes.
func (s *Service) Query(ctx context.Context, q Query) (AttendancePage, error) {
	f := q.Filter()

	var (
		rows  []Attendance
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = s.store.ListAttendance(gctx, f)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.store.CountAttendance(gctx, f)
		return err
	})
	if err := g.Wait(); err != nil {
		return AttendancePage{}, err
	}
	if rows == nil {
		rows = []Attendance{}
	}
	return AttendancePage{Attendances: rows, Pagination: newPagination(q.Page, q.Limit, total)}, nil
}

// UserInput carries every mutable user field.
type UserInput struct {
	AdmissionNumber string
	Name            string
	Email           string
	Phone           string
	RollNumber      string
	ClassName       string
	Section         string
	Batch           string
}

func (in UserInput) validate() error {
	if strings.TrimSpace(in.AdmissionNumber) == "" || strings.TrimSpace(in.Name) == "" {
		return invalid("admissionNumber and name are required")
	}
	return nil
}

func (in UserInput) apply(u User) User {
	u.AdmissionNumber = strings.TrimSpace(in.AdmissionNumber)
	u.Name = strings.TrimSpace(in.Name)
	u.Email = in.Email
	u.Phone = in.Phone
	u.RollNumber = in.RollNumber
	u.ClassName = in.ClassName
	u.Section = in.Section
	u.Batch = in.Batch
	return u
}

// CreateUser adds a user. Optional fields default to empty strings.
func (s *Service) CreateUser(ctx context.Context, in UserInput) (User, error) {
	if err := in.validate(); err != nil {
		return User{}, err
	}
	u := in.apply(User{ID: uuid.NewString(), CreatedAt: s.now().UTC()})
	return s.store.CreateUser(ctx, u)
}

// UpdateUser replaces every mutable field of user id.
func (s *Service) UpdateUser(ctx context.Context, id string, in UserInput) (User, error) {
	if err := in.validate(); err != nil {
		return User{}, err
	}
	return s.store.UpdateUser(ctx, in.apply(User{ID: id}))
}

// DeleteUser removes the user and, first, all of their attendance.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	return s.store.DeleteUser(ctx, id)
}

// UserDetail returns a user with their most recent events.
func (s *Service) UserDetail(ctx context.Context, id string) (UserDetail, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return UserDetail{}, err
	}
	recent, err := s.store.ListAttendance(ctx, Filter{UserID: id, Limit: recentLimit})
	if err != nil {
		return UserDetail{}, err
	}
	if recent == nil {
		recent = []Attendance{}
	}
	return UserDetail{User: u, Attendance: recent}, nil
}

// ListUsers searches users, newest first.
func (s *Service) ListUsers(ctx context.Context, search, rawPage, rawLimit string) (UserPage, error) {
	page, limit, err := ParsePage(rawPage, rawLimit, s.bounds)
	if err != nil {
		return UserPage{}, err
	}
	f := UserFilter{Search: strings.TrimSpace(search), Offset: (page - 1) * limit, Limit: limit}

	var (
		users []User
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		users, err = s.store.ListUsers(gctx, f)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.store.CountUsers(gctx, f)
		return err
	})
	if err := g.Wait(); err != nil {
		return UserPage{}, err
	}
	if users == nil {
		users = []User{}
	}
	return UserPage{Users: users, Pagination: newPagination(page, limit, total)}, nil
}

// CreateDevice registers a reader with a freshly generated token.
func (s *Service) CreateDevice(ctx context.Context, deviceID, name string) (Device, error) {
	deviceID, name = strings.TrimSpace(deviceID), strings.TrimSpace(name)
	if deviceID == "" || name == "" {
		return Device{}, invalid("deviceId and name are required")
	}
	return s.withFreshToken(func(token string) (Device, error) {
		return s.store.CreateDevice(ctx, Device{
			ID:        uuid.NewString(),
			DeviceID:  deviceID,
			Name:      name,
			Token:     token,
			CreatedAt: s.now().UTC(),
		})
	})
}

// RotateDeviceToken replaces the device's token; its identity is unchanged.
func (s *Service) RotateDeviceToken(ctx context.Context, id string) (Device, error) {
	return s.withFreshToken(func(token string) (Device, error) {
		return s.store.SetDeviceToken(ctx, id, token)
	})
}

// withFreshToken calls write with new tokens until one does not collide.
func (s *Service) withFreshToken(write func(token string) (Device, error)) (Device, error) {
	var lastErr error
	for range tokenAttempts {
		token, err := s.newToken()
		if err != nil {
			return Device{}, unavailable("generate token", err)
		}
		d, err := write(token)
		var conflict *ConflictError
		if errors.As(err, &conflict) && conflict.Field == FieldToken {
			lastErr = err
			continue
		}
		return d, err
	}
	return Device{}, unavailable("generate token", lastErr)
}

// DeleteDevice removes the device and, first, all of its attendance.
func (s *Service) DeleteDevice(ctx context.Context, id string) error {
	return s.store.DeleteDevice(ctx, id)
}

// ListDevices returns all devices, newest first, with event counts.
func (s *Service) ListDevices(ctx context.Context) ([]DeviceSummary, error) {
	devices, err := s.store.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	if devices == nil {
		devices = []DeviceSummary{}
	}
	return devices, nil
}

// DeviceDetail returns a device with its most recent events.
func (s *Service) DeviceDetail(ctx context.Context, id string) (DeviceDetail, error) {
	d, err := s.store.GetDevice(ctx, id)
	if err != nil {
		return DeviceDetail{}, err
	}
	recent, err := s.store.ListAttendance(ctx, Filter{DeviceID: id, Limit: recentLimit})
	if err != nil {
		return DeviceDetail{}, err
	}
	if recent == nil {
		recent = []Attendance{}
	}
	return DeviceDetail{Device: d, Attendance: recent}, nil
}

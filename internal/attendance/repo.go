package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres error codes the repository discriminates.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

const (
	userColumns   = `u.id, u.admission_number, u.name, u.email, u.phone, u.roll_number, u.class_name, u.section, u.batch, u.created_at`
	deviceColumns = `d.id, d.device_id, d.name, d.token, d.created_at`
)

// Repository persists users, devices and attendance in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var _ Store = (*Repository)(nil)

// Ping checks connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func userDest(u *User) []any {
	return []any{&u.ID, &u.AdmissionNumber, &u.Name, &u.Email, &u.Phone, &u.RollNumber, &u.ClassName, &u.Section, &u.Batch, &u.CreatedAt}
}

func deviceDest(d *Device) []any {
	return []any{&d.ID, &d.DeviceID, &d.Name, &d.Token, &d.CreatedAt}
}

func scanUser(row scanner) (User, error) {
	var u User
	err := row.Scan(userDest(&u)...)
	return u, err
}

func scanDevice(row scanner) (Device, error) {
	var d Device
	err := row.Scan(deviceDest(&d)...)
	return d, err
}

// scanJoined reads an attendance row followed by its user and device columns.
func scanJoined(row scanner) (Attendance, error) {
	var (
		a Attendance
		u User
		d Device
	)
	dest := []any{&a.ID, &a.Event, &a.Confidence, &a.UserID, &a.DeviceID, &a.CreatedAt}
	dest = append(dest, userDest(&u)...)
	dest = append(dest, deviceDest(&d)...)
	if err := row.Scan(dest...); err != nil {
		return Attendance{}, err
	}
	a.User, a.Device = &u, &d
	return a, nil
}

// mapErr classifies a driver error. Constraint violations become typed
// errors; everything else is a store failure.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return &ConflictError{Field: constraintField(pgErr.ConstraintName)}
		case pgForeignKeyViolation:
			return &NotFoundError{Resource: constraintResource(pgErr.ConstraintName)}
		}
	}
	return unavailable(op, err)
}

func constraintField(name string) string {
	switch name {
	case "devices_token_key":
		return FieldToken
	case "devices_device_id_key":
		return FieldDeviceID
	case "users_admission_number_key":
		return FieldAdmissionNumber
	}
	return name
}

func constraintResource(name string) string {
	switch name {
	case "attendance_user_id_fkey":
		return "user"
	case "attendance_device_id_fkey":
		return "device"
	}
	return name
}

// ── users ───────────────────────────────────────────────────────────────────

// CreateUser inserts a user.
func (r *Repository) CreateUser(ctx context.Context, u User) (User, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (id, admission_number, name, email, phone, roll_number, class_name, section, batch, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at
	`, u.ID, u.AdmissionNumber, u.Name, u.Email, u.Phone, u.RollNumber, u.ClassName, u.Section, u.Batch, u.CreatedAt)
	if err := row.Scan(&u.CreatedAt); err != nil {
		return User{}, mapErr("create user", err)
	}
	return u, nil
}

// GetUser returns a single user by id.
func (r *Repository) GetUser(ctx context.Context, id string) (User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, &NotFoundError{Resource: "user"}
	}
	if err != nil {
		return User{}, mapErr("get user", err)
	}
	return u, nil
}

// UpdateUser overwrites every mutable field.
func (r *Repository) UpdateUser(ctx context.Context, u User) (User, error) {
	updated, err := scanUser(r.db.QueryRowContext(ctx, `
		UPDATE users u
		SET admission_number = $2, name = $3, email = $4, phone = $5,
			roll_number = $6, class_name = $7, section = $8, batch = $9
		WHERE u.id = $1
		RETURNING `+userColumns,
		u.ID, u.AdmissionNumber, u.Name, u.Email, u.Phone, u.RollNumber, u.ClassName, u.Section, u.Batch))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, &NotFoundError{Resource: "user"}
	}
	if err != nil {
		return User{}, mapErr("update user", err)
	}
	return updated, nil
}

// DeleteUser removes the user's attendance and then the user in one transaction.
func (r *Repository) DeleteUser(ctx context.Context, id string) error {
	return r.deleteWithAttendance(ctx, "user", `DELETE FROM attendance WHERE user_id = $1`, `DELETE FROM users WHERE id = $1`, id)
}

// ListUsers returns a page of users matching the search, newest first.
func (r *Repository) ListUsers(ctx context.Context, f UserFilter) ([]User, error) {
	where, args := userWhere(f)
	query := `SELECT ` + userColumns + ` FROM users u` + where + ` ORDER BY u.created_at DESC, u.id DESC`
	query, args = paginate(query, args, f.Offset, f.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr("list users", err)
	}
	defer rows.Close()
	var res []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, mapErr("list users", err)
		}
		res = append(res, u)
	}
	return res, mapErr("list users", rows.Err())
}

// CountUsers counts users matching the search.
func (r *Repository) CountUsers(ctx context.Context, f UserFilter) (int, error) {
	where, args := userWhere(f)
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users u`+where, args...).Scan(&n); err != nil {
		return 0, mapErr("count users", err)
	}
	return n, nil
}

func userWhere(f UserFilter) (string, []any) {
	if f.Search == "" {
		return "", nil
	}
	return ` WHERE (u.name ILIKE $1 OR u.admission_number ILIKE $1 OR u.email ILIKE $1)`,
		[]any{"%" + escapeLike(f.Search) + "%"}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

// ── devices ─────────────────────────────────────────────────────────────────

// CreateDevice inserts a device.
func (r *Repository) CreateDevice(ctx context.Context, d Device) (Device, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO devices (id, device_id, name, token, created_at)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at
	`, d.ID, d.DeviceID, d.Name, d.Token, d.CreatedAt)
	if err := row.Scan(&d.CreatedAt); err != nil {
		return Device{}, mapErr("create device", err)
	}
	return d, nil
}

// GetDevice returns a single device by id.
func (r *Repository) GetDevice(ctx context.Context, id string) (Device, error) {
	return r.oneDevice(ctx, "get device", `SELECT `+deviceColumns+` FROM devices d WHERE d.id = $1`, id)
}

// DeviceByToken resolves a bearer token to its device.
func (r *Repository) DeviceByToken(ctx context.Context, token string) (Device, error) {
	return r.oneDevice(ctx, "device by token", `SELECT `+deviceColumns+` FROM devices d WHERE d.token = $1`, token)
}

// SetDeviceToken replaces the device's token.
func (r *Repository) SetDeviceToken(ctx context.Context, id, token string) (Device, error) {
	return r.oneDevice(ctx, "set device token", `UPDATE devices d SET token = $2 WHERE d.id = $1 RETURNING `+deviceColumns, id, token)
}

func (r *Repository) oneDevice(ctx context.Context, op, query string, args ...any) (Device, error) {
	d, err := scanDevice(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Device{}, &NotFoundError{Resource: "device"}
	}
	if err != nil {
		return Device{}, mapErr(op, err)
	}
	return d, nil
}

// DeleteDevice removes the device's attendance and then the device in one transaction.
func (r *Repository) DeleteDevice(ctx context.Context, id string) error {
	return r.deleteWithAttendance(ctx, "device", `DELETE FROM attendance WHERE device_id = $1`, `DELETE FROM devices WHERE id = $1`, id)
}

// ListDevices returns every device with its attendance count, newest first.
func (r *Repository) ListDevices(ctx context.Context) ([]DeviceSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+deviceColumns+`, COUNT(a.id)
		FROM devices d
		LEFT JOIN attendance a ON a.device_id = d.id
		GROUP BY d.id
		ORDER BY d.created_at DESC, d.id DESC
	`)
	if err != nil {
		return nil, mapErr("list devices", err)
	}
	defer rows.Close()
	var res []DeviceSummary
	for rows.Next() {
		var s DeviceSummary
		if err := rows.Scan(append(deviceDest(&s.Device), &s.Count.Attendance)...); err != nil {
			return nil, mapErr("list devices", err)
		}
		res = append(res, s)
	}
	return res, mapErr("list devices", rows.Err())
}

func (r *Repository) deleteWithAttendance(ctx context.Context, resource, deleteEvents, deleteOwner, id string) (err error) {
	op := "delete " + resource
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(op, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, deleteEvents, id); err != nil {
		return mapErr(op, err)
	}
	res, err := tx.ExecContext(ctx, deleteOwner, id)
	if err != nil {
		return mapErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapErr(op, err)
	}
	if n == 0 {
		err = &NotFoundError{Resource: resource}
		return err
	}
	if err = tx.Commit(); err != nil {
		return mapErr(op, err)
	}
	return nil
}

// ── attendance ──────────────────────────────────────────────────────────────

// InsertAttendance writes one event and reads it back joined, in a single statement.
func (r *Repository) InsertAttendance(ctx context.Context, a Attendance) (Attendance, error) {
	row := r.db.QueryRowContext(ctx, `
		WITH ins AS (
			INSERT INTO attendance (id, event, confidence, user_id, device_id, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)
			RETURNING id, event, confidence, user_id, device_id, created_at
		)
		SELECT ins.id, ins.event, ins.confidence, ins.user_id, ins.device_id, ins.created_at, `+userColumns+`, `+deviceColumns+`
		FROM ins
		JOIN users u ON u.id = ins.user_id
		JOIN devices d ON d.id = ins.device_id
	`, a.ID, a.Event, a.Confidence, a.UserID, a.DeviceID, a.CreatedAt)
	created, err := scanJoined(row)
	if err != nil {
		return Attendance{}, mapErr("insert attendance", err)
	}
	return created, nil
}

// ListAttendance returns a page of events matching f, newest first.
func (r *Repository) ListAttendance(ctx context.Context, f Filter) ([]Attendance, error) {
	where, args := attendanceWhere(f)
	query := `
		SELECT a.id, a.event, a.confidence, a.user_id, a.device_id, a.created_at, ` + userColumns + `, ` + deviceColumns + `
		FROM attendance a
		JOIN users u ON u.id = a.user_id
		JOIN devices d ON d.id = a.device_id` + where + `
		ORDER BY a.created_at DESC, a.id DESC`
	query, args = paginate(query, args, f.Offset, f.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr("list attendance", err)
	}
	defer rows.Close()
	var res []Attendance
	for rows.Next() {
		a, err := scanJoined(rows)
		if err != nil {
			return nil, mapErr("list attendance", err)
		}
		res = append(res, a)
	}
	return res, mapErr("list attendance", rows.Err())
}

// CountAttendance counts events matching f, ignoring the page window.
func (r *Repository) CountAttendance(ctx context.Context, f Filter) (int, error) {
	where, args := attendanceWhere(f)
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendance a`+where, args...).Scan(&n); err != nil {
		return 0, mapErr("count attendance", err)
	}
	return n, nil
}

// attendanceWhere builds the conjunctive predicate for f with positional args.
func attendanceWhere(f Filter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(cond, len(args)))
	}
	if f.UserID != "" {
		add("a.user_id = $%d", f.UserID)
	}
	if f.DeviceID != "" {
		add("a.device_id = $%d", f.DeviceID)
	}
	if f.From != nil {
		add("a.created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("a.created_at <= $%d", *f.To)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func paginate(query string, args []any, offset, limit int) (string, []any) {
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}

package attendance

import "time"

// Event kinds accepted by the recorder. Matching is exact and case-sensitive.
const (
	EventIn  = "IN"
	EventOut = "OUT"
)

// ValidEvent reports whether kind is one of the persisted event kinds.
func ValidEvent(kind string) bool {
	return kind == EventIn || kind == EventOut
}

// User is a person whose attendance is tracked.
type User struct {
	ID              string    `json:"id"`
	AdmissionNumber string    `json:"admissionNumber"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone"`
	RollNumber      string    `json:"rollNumber"`
	ClassName       string    `json:"className"`
	Section         string    `json:"section"`
	Batch           string    `json:"batch"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Device is a physical reader. DeviceID is the external code printed on the
// hardware; Token is the bearer credential the reader presents.
type Device struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"deviceId"`
	Name      string    `json:"name"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"createdAt"`
}

// DeviceCounts holds per-device relation counts.
type DeviceCounts struct {
	Attendance int `json:"attendance"`
}

// DeviceSummary is a device with the number of events it has recorded,
// serialized as "_count": {"attendance": n} for existing clients.
type DeviceSummary struct {
	Device
	Count DeviceCounts `json:"_count"`
}

// Attendance is an immutable IN/OUT event. User and Device are populated when
// the record is read back joined.
type Attendance struct {
	ID         string    `json:"id"`
	Event      string    `json:"event"`
	Confidence *float64  `json:"confidence"`
	UserID     string    `json:"userId"`
	DeviceID   string    `json:"deviceId"`
	CreatedAt  time.Time `json:"createdAt"`
	User       *User     `json:"user,omitempty"`
	Device     *Device   `json:"device,omitempty"`
}

// Pagination describes a page of a larger result set.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

func newPagination(page, limit, total int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}

// AttendancePage is one page of a filtered attendance query.
type AttendancePage struct {
	Attendances []Attendance `json:"attendances"`
	Pagination  Pagination   `json:"pagination"`
}

// UserPage is one page of a user search.
type UserPage struct {
	Users      []User     `json:"users"`
	Pagination Pagination `json:"pagination"`
}

// UserDetail is a user together with their most recent events.
type UserDetail struct {
	User
	Attendance []Attendance `json:"attendance"`
}

// DeviceDetail is a device together with its most recent events.
type DeviceDetail struct {
	Device
	Attendance []Attendance `json:"attendance"`
}

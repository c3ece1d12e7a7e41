package model

import "time"

// 预约状态：Active → Retired 为唯一出口，Retired 为终态
const (
	BookingStatusActive  = "active"
	BookingStatusRetired = "retired"
)

// 资源类型
const (
	ResourceTypeClassroom = "classroom"
	ResourceTypeFaculty   = "faculty"
)

// Booking 预约表 — 对应 bookings
// (resource_type, resource_id, slot_id, academic_year, semester) 在 status=active 时唯一
type Booking struct {
	BookingID     string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"booking_id"`
	ResourceType  string     `gorm:"type:varchar(20);not null"                      json:"resource_type"`
	ResourceID    string     `gorm:"type:varchar(64);not null"                      json:"resource_id"`
	SlotID        string     `gorm:"type:uuid;not null"                             json:"slot_id"`
	AcademicYear  string     `gorm:"type:varchar(9);not null"                       json:"academic_year"`
	Semester      int        `gorm:"type:smallint;not null"                         json:"semester"`
	Title         string     `gorm:"type:varchar(100);not null;default:''"          json:"title"`
	Status        string     `gorm:"type:varchar(10);not null;default:'active'"     json:"status"`
	RetiredAt     *time.Time `gorm:"type:timestamptz"                               json:"retired_at,omitempty"`
	RetiredReason *string    `gorm:"type:varchar(200)"                              json:"retired_reason,omitempty"`
	VersionedModel

	// 关联
	Slot *TimeSlot `gorm:"foreignKey:SlotID;references:TimeSlotID" json:"slot,omitempty"`
}

// TableName 指定表名
func (Booking) TableName() string { return "bookings" }

// IsLive 是否为有效占用
func (b *Booking) IsLive() bool { return b.Status == BookingStatusActive }

// IsValidResourceType 校验资源类型
func IsValidResourceType(t string) bool {
	return t == ResourceTypeClassroom || t == ResourceTypeFaculty
}

// BookingKey 标识一次占用：同一资源、同一时间段、同一学年学期
type BookingKey struct {
	ResourceType string
	ResourceID   string
	SlotID       string
	AcademicYear string
	Semester     int
}

// Key 返回预约的占用键
func (b *Booking) Key() BookingKey {
	return BookingKey{
		ResourceType: b.ResourceType,
		ResourceID:   b.ResourceID,
		SlotID:       b.SlotID,
		AcademicYear: b.AcademicYear,
		Semester:     b.Semester,
	}
}

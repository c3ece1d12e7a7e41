package model

// 时间段类型
const (
	SlotKindRegular = "regular"
	SlotKindBreak   = "break"
	SlotKindLunch   = "lunch"
)

// TimeSlot 时间段目录表 — 对应 time_slots
// StartTime/EndTime 以 "HH:MM:SS" 存取，DayOfWeek 取 ISO 1(周一)-7(周日)
type TimeSlot struct {
	TimeSlotID string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"time_slot_id"`
	Name       string `gorm:"type:varchar(50);not null"                      json:"name"`
	DayOfWeek  int    `gorm:"type:smallint;not null"                         json:"day_of_week"`
	StartTime  string `gorm:"type:time(0);not null"                          json:"start_time"`
	EndTime    string `gorm:"type:time(0);not null"                          json:"end_time"`
	Kind       string `gorm:"type:varchar(10);not null;default:'regular'"    json:"kind"`
	IsActive   bool   `gorm:"not null;default:true"                          json:"is_active"`
	VersionedModel
}

// TableName 指定表名
func (TimeSlot) TableName() string { return "time_slots" }

// IsValidSlotKind 校验时间段类型
func IsValidSlotKind(kind string) bool {
	switch kind {
	case SlotKindRegular, SlotKindBreak, SlotKindLunch:
		return true
	}
	return false
}

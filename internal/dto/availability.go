package dto

// ── 可用性查询 DTO ──

// AvailabilityRequest 资源可用性查询参数
type AvailabilityRequest struct {
	ResourceType     string `form:"resource_type"      binding:"required,oneof=classroom faculty"`
	ResourceID       string `form:"resource_id"        binding:"required,max=64"`
	SlotID           string `form:"slot_id"            binding:"required,uuid"`
	AcademicYear     string `form:"academic_year"      binding:"required,academic_year"`
	Semester         int    `form:"semester"           binding:"required,min=1,max=3"`
	ExcludeBookingID string `form:"exclude_booking_id" binding:"omitempty,uuid"`
}

// AvailabilityResponse 可用性结果
// Available 仅按精确键判定；Overlapping 列出同资源同学期内时间重叠的其他时间段预约
type AvailabilityResponse struct {
	Available   bool              `json:"available"`
	Overlapping []BookingResponse `json:"overlapping,omitempty"`
}

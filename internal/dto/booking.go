package dto

// ── 预约模块 DTO ──

// CreateBookingRequest 创建预约请求
type CreateBookingRequest struct {
	ResourceType string `json:"resource_type" binding:"required,oneof=classroom faculty"`
	ResourceID   string `json:"resource_id"   binding:"required,max=64"`
	SlotID       string `json:"slot_id"       binding:"required,uuid"`
	AcademicYear string `json:"academic_year" binding:"required,academic_year"` // "2024-2025"
	Semester     int    `json:"semester"      binding:"required,min=1,max=3"`
	Title        string `json:"title"         binding:"omitempty,max=100"`
}

// MoveBookingRequest 调整预约请求（换资源/换时间段/换学期），资源类型不可变
type MoveBookingRequest struct {
	ResourceID   *string `json:"resource_id"   binding:"omitempty,max=64"`
	SlotID       *string `json:"slot_id"       binding:"omitempty,uuid"`
	AcademicYear *string `json:"academic_year" binding:"omitempty,academic_year"`
	Semester     *int    `json:"semester"      binding:"omitempty,min=1,max=3"`
	Title        *string `json:"title"         binding:"omitempty,max=100"`
	Version      *int    `json:"version"       binding:"omitempty,min=1"`
}

// CancelBookingRequest 取消预约请求
type CancelBookingRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=200"`
}

// BookingListRequest 预约列表查询参数
type BookingListRequest struct {
	PaginationRequest
	ResourceType string `form:"resource_type" binding:"omitempty,oneof=classroom faculty"`
	ResourceID   string `form:"resource_id"   binding:"omitempty,max=64"`
	SlotID       string `form:"slot_id"       binding:"omitempty,uuid"`
	AcademicYear string `form:"academic_year" binding:"omitempty,academic_year"`
	Semester     int    `form:"semester"      binding:"omitempty,min=1,max=3"`
	Status       string `form:"status"        binding:"omitempty,oneof=active retired"`
}

// BookingResponse 预约信息响应
type BookingResponse struct {
	ID            string         `json:"id"`
	ResourceType  string         `json:"resource_type"`
	ResourceID    string         `json:"resource_id"`
	SlotID        string         `json:"slot_id"`
	Slot          *TimeSlotBrief `json:"slot,omitempty"`
	AcademicYear  string         `json:"academic_year"`
	Semester      int            `json:"semester"`
	Title         string         `json:"title"`
	Status        string         `json:"status"`
	RetiredAt     *string        `json:"retired_at,omitempty"`
	RetiredReason *string        `json:"retired_reason,omitempty"`
	Version       int            `json:"version"`
	CreatedAt     string         `json:"created_at"`
	UpdatedAt     string         `json:"updated_at"`
}

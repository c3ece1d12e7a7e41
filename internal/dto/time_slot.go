package dto

// ── 时间段模块 DTO ──

// CreateTimeSlotRequest 定义时间段请求
type CreateTimeSlotRequest struct {
	Name      string `json:"name"       binding:"required,min=1,max=50"`
	Day       string `json:"day"        binding:"required,weekday"`   // "Monday" … "Sunday"
	StartTime string `json:"start_time" binding:"required,timeofday"` // "09:00:00"
	EndTime   string `json:"end_time"   binding:"required,timeofday"` // "10:30:00"
	Kind      string `json:"kind"       binding:"omitempty,oneof=regular break lunch"`
}

// UpdateTimeSlotRequest 重新定义时间段请求，未提供的字段沿用原值
type UpdateTimeSlotRequest struct {
	Name      *string `json:"name"       binding:"omitempty,min=1,max=50"`
	Day       *string `json:"day"        binding:"omitempty,weekday"`
	StartTime *string `json:"start_time" binding:"omitempty,timeofday"`
	EndTime   *string `json:"end_time"   binding:"omitempty,timeofday"`
	Kind      *string `json:"kind"       binding:"omitempty,oneof=regular break lunch"`
	Version   *int    `json:"version"    binding:"omitempty,min=1"` // 提供时作为乐观锁期望版本
}

// TimeSlotListRequest 时间段列表查询参数
type TimeSlotListRequest struct {
	Day             string `form:"day"              binding:"omitempty,weekday"`
	Kind            string `form:"kind"             binding:"omitempty,oneof=regular break lunch"`
	IncludeInactive bool   `form:"include_inactive"`
}

// TimeSlotResponse 时间段信息响应
type TimeSlotResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Day       string `json:"day"`
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Kind      string `json:"kind"`
	IsActive  bool   `json:"is_active"`
	Version   int    `json:"version"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// TimeSlotBrief 时间段简要信息（嵌入预约响应）
type TimeSlotBrief struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Day       string `json:"day"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

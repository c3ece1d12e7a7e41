package dto

// ── 课表导出 DTO ──

// TimetableExportRequest 教室课表导出参数
// From / Until 仅用于 iCalendar 导出，格式 "2006-01-02"
type TimetableExportRequest struct {
	AcademicYear string `form:"academic_year" binding:"required,academic_year"`
	Semester     int    `form:"semester"      binding:"required,min=1,max=3"`
	From         string `form:"from"          binding:"omitempty,datetime=2006-01-02"`
	Until        string `form:"until"         binding:"omitempty,datetime=2006-01-02"`
}

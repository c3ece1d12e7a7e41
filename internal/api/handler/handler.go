package handler

import "github.com/PaulOdartey/Timetable-Management-System-sub001/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	TimeSlot     *TimeSlotHandler
	Availability *AvailabilityHandler
	Booking      *BookingHandler
	Classroom    *ClassroomHandler
	Export       *ExportHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		TimeSlot:     NewTimeSlotHandler(svc.TimeSlot),
		Availability: NewAvailabilityHandler(svc.Availability),
		Booking:      NewBookingHandler(svc.Booking),
		Classroom:    NewClassroomHandler(svc.Classroom),
		Export:       NewExportHandler(svc.Export, svc.Calendar),
	}
}

package service

import (
	"context"
	"time"

	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/model"
)

// 预约领域事件的路由键
const (
	EventBookingCreated = "booking.created"
	EventBookingMoved   = "booking.moved"
	EventBookingRetired = "booking.retired"
)

// EventPublisher 领域事件发布接口，*mq.Publisher 满足此接口
type EventPublisher interface {
	PublishJSON(ctx context.Context, routingKey string, v any) error
}

type nopPublisher struct{}

func (nopPublisher) PublishJSON(context.Context, string, any) error { return nil }

// NopPublisher 不发布任何事件
func NopPublisher() EventPublisher { return nopPublisher{} }

// BookingEvent 预约变更事件载荷
type BookingEvent struct {
	Type         string    `json:"type"`
	BookingID    string    `json:"booking_id"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	SlotID       string    `json:"slot_id"`
	AcademicYear string    `json:"academic_year"`
	Semester     int       `json:"semester"`
	Status       string    `json:"status"`
	Version      int       `json:"version"`
	Actor        string    `json:"actor,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

func newBookingEvent(eventType string, b *model.Booking, actor string) BookingEvent {
	return BookingEvent{
		Type:         eventType,
		BookingID:    b.BookingID,
		ResourceType: b.ResourceType,
		ResourceID:   b.ResourceID,
		SlotID:       b.SlotID,
		AcademicYear: b.AcademicYear,
		Semester:     b.Semester,
		Status:       b.Status,
		Version:      b.Version,
		Actor:        actor,
		OccurredAt:   time.Now().UTC(),
	}
}

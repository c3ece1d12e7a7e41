package service

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/dto"
	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/model"
	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/repository"
)

// AvailabilityService 资源可用性检查
//
// IsAvailable 为精确键匹配：只有 (资源, 时间段, 学年, 学期) 完全一致的
// 有效预约才算占用。任何存储错误都按不可用处理（fail-closed）。
type AvailabilityService interface {
	IsAvailable(ctx context.Context, key model.BookingKey, excludeBookingID string) (bool, error)
	// FindOverlapping 同资源同学期内，占用其他时间段且时间重叠的有效预约
	FindOverlapping(ctx context.Context, key model.BookingKey, excludeBookingID string) ([]model.Booking, error)
	Check(ctx context.Context, req *dto.AvailabilityRequest) (*dto.AvailabilityResponse, error)
}

type availabilityService struct {
	repo   *repository.Repository
	strict bool
	logger *zap.Logger
}

// NewAvailabilityService 创建 AvailabilityService 实例
// strict 为 true 时 Check 额外返回时间重叠的其他预约
func NewAvailabilityService(repo *repository.Repository, strict bool, logger *zap.Logger) AvailabilityService {
	return &availabilityService{repo: repo, strict: strict, logger: orNop(logger)}
}

func (s *availabilityService) IsAvailable(ctx context.Context, key model.BookingKey, excludeBookingID string) (bool, error) {
	exists, err := s.repo.Booking.ExistsActive(ctx, key, excludeBookingID)
	if err != nil {
		s.logger.Error("可用性检查失败，按不可用处理",
			zap.String("resource_type", key.ResourceType),
			zap.String("resource_id", key.ResourceID),
			zap.String("slot_id", key.SlotID),
			zap.Error(err),
		)
		return false, storeError(err)
	}
	return !exists, nil
}

func (s *availabilityService) FindOverlapping(ctx context.Context, key model.BookingKey, excludeBookingID string) ([]model.Booking, error) {
	if !isUUID(key.SlotID) {
		return nil, ErrTimeSlotNotFound
	}
	slot, err := s.repo.TimeSlot.GetByID(ctx, key.SlotID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTimeSlotNotFound
		}
		return nil, storeError(err)
	}
	return s.overlapping(ctx, slot, key, excludeBookingID)
}

func (s *availabilityService) overlapping(ctx context.Context, slot *model.TimeSlot, key model.BookingKey, excludeBookingID string) ([]model.Booking, error) {
	target, err := SlotInterval(slot)
	if err != nil {
		return nil, err
	}

	bookings, err := s.repo.Booking.ListActiveByResourcePeriod(ctx, key.ResourceType, key.ResourceID, key.AcademicYear, key.Semester)
	if err != nil {
		s.logger.Error("查询资源学期预约失败", zap.String("resource_id", key.ResourceID), zap.Error(err))
		return nil, storeError(err)
	}

	if excludeBookingID != "" {
		kept := bookings[:0]
		for _, b := range bookings {
			if b.BookingID != excludeBookingID {
				kept = append(kept, b)
			}
		}
		bookings = kept
	}
	return OverlappingBookings(target, slot.TimeSlotID, bookings), nil
}

// Check 失败时返回 Available=false 的结果以及错误，调用方不得当作可用
func (s *availabilityService) Check(ctx context.Context, req *dto.AvailabilityRequest) (*dto.AvailabilityResponse, error) {
	unavailable := &dto.AvailabilityResponse{Available: false}

	if err := ValidatePeriod(req.AcademicYear, req.Semester); err != nil {
		return unavailable, err
	}
	if !model.IsValidResourceType(req.ResourceType) || req.ResourceID == "" {
		return unavailable, ErrInvalidResource
	}

	key := model.BookingKey{
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		SlotID:       req.SlotID,
		AcademicYear: req.AcademicYear,
		Semester:     req.Semester,
	}

	available, err := s.IsAvailable(ctx, key, req.ExcludeBookingID)
	if err != nil {
		return unavailable, err
	}
	resp := &dto.AvailabilityResponse{Available: available}

	if s.strict {
		overlaps, err := s.FindOverlapping(ctx, key, req.ExcludeBookingID)
		switch {
		case errors.Is(err, ErrTimeSlotNotFound):
			// 不存在的时间段不与任何预约重叠
		case err != nil:
			return unavailable, err
		default:
			resp.Overlapping = toBookingResponses(overlaps)
		}
	}
	return resp, nil
}

package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PaulOdartey/Timetable-Management-System-sub001/config"
	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/repository"
	pkgerrors "github.com/PaulOdartey/Timetable-Management-System-sub001/pkg/errors"
)

// Service 所有 Service 的聚合入口
type Service struct {
	TimeSlot     TimeSlotService
	Availability AvailabilityService
	Booking      BookingService
	Classroom    ClassroomService
	Export       ExportService
	Calendar     CalendarService
}

// NewService 创建 Service 聚合
// publisher 为 nil 时不发布领域事件
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	publisher EventPublisher,
	logger *zap.Logger,
) *Service {
	strict := cfg.Scheduling.StrictOverlap

	loc, err := time.LoadLocation(cfg.Scheduling.Timezone)
	if err != nil {
		orNop(logger).Warn("无法加载课表时区，使用 UTC", zap.String("timezone", cfg.Scheduling.Timezone), zap.Error(err))
		loc = time.UTC
	}

	return &Service{
		TimeSlot:     NewTimeSlotService(repo, logger),
		Availability: NewAvailabilityService(repo, strict, logger),
		Booking:      NewBookingService(repo, publisher, strict, logger),
		Classroom:    NewClassroomService(repo, logger),
		Export:       NewExportService(repo, logger),
		Calendar:     NewCalendarService(repo, loc, logger),
	}
}

func orNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// storeError 将仓储层的基础设施错误包装为 ErrStoreUnavailable
// 乐观锁冲突属于业务结果，原样返回
func storeError(err error) error {
	if err == nil ||
		errors.Is(err, pkgerrors.ErrOptimisticLock) ||
		errors.Is(err, pkgerrors.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", pkgerrors.ErrStoreUnavailable, err)
}

// isUUID 主键均为 uuid，非法格式直接视为不存在，避免落到数据库报语法错误
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

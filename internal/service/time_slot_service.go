package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/dto"
	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/model"
	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/repository"
	pkgerrors "github.com/PaulOdartey/Timetable-Management-System-sub001/pkg/errors"
)

// ── 时间段模块业务错误 ──

var (
	ErrTimeSlotNotFound     = errors.New("时间段不存在")
	ErrTimeSlotNameRequired = errors.New("时间段名称不能为空")
	ErrInvalidSlotKind      = errors.New("时间段类型必须为 regular / break / lunch")
	ErrTimeSlotInUse        = fmt.Errorf("时间段仍被预约引用，请改为停用: %w", ErrResourceInUse)
)

// TimeSlotService 时间段目录业务接口
type TimeSlotService interface {
	Define(ctx context.Context, req *dto.CreateTimeSlotRequest, callerID string) (*dto.TimeSlotResponse, error)
	Redefine(ctx context.Context, id string, req *dto.UpdateTimeSlotRequest, callerID string) (*dto.TimeSlotResponse, error)
	Deactivate(ctx context.Context, id string, callerID string) error
	Activate(ctx context.Context, id string, callerID string) error
	Retire(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*dto.TimeSlotResponse, error)
	ListByDay(ctx context.Context, day string) ([]dto.TimeSlotResponse, error)
	List(ctx context.Context, req *dto.TimeSlotListRequest) ([]dto.TimeSlotResponse, error)
}

type timeSlotService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewTimeSlotService 创建 TimeSlotService 实例
func NewTimeSlotService(repo *repository.Repository, logger *zap.Logger) TimeSlotService {
	return &timeSlotService{repo: repo, logger: orNop(logger)}
}

// ────────────────────── Define ──────────────────────

func (s *timeSlotService) Define(ctx context.Context, req *dto.CreateTimeSlotRequest, callerID string) (*dto.TimeSlotResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrTimeSlotNameRequired
	}
	kind := req.Kind
	if kind == "" {
		kind = model.SlotKindRegular
	}
	if !model.IsValidSlotKind(kind) {
		return nil, ErrInvalidSlotKind
	}

	day, err := ParseWeekday(req.Day)
	if err != nil {
		return nil, err
	}
	iv, err := NewTimeInterval(day, req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}

	slot := &model.TimeSlot{
		Name:      name,
		DayOfWeek: int(iv.Day),
		StartTime: iv.Start.String(),
		EndTime:   iv.End.String(),
		Kind:      kind,
		IsActive:  true,
	}
	slot.CreatedBy = &callerID
	slot.UpdatedBy = &callerID

	err = s.repo.Transaction(ctx, func(txRepo *repository.Repository) error {
		if err := txRepo.Lock.Acquire(ctx, dayLockKey(iv.Day)); err != nil {
			return storeError(err)
		}
		existing, err := txRepo.TimeSlot.ListByDay(ctx, int(iv.Day), true)
		if err != nil {
			return storeError(err)
		}
		if err := CheckDefinition(iv, existing, ""); err != nil {
			return err
		}
		return storeError(txRepo.TimeSlot.Create(ctx, slot))
	})
	if err != nil {
		s.logFailure("定义时间段失败", err, zap.String("interval", iv.String()))
		return nil, err
	}

	return toTimeSlotResponse(slot), nil
}

// ────────────────────── Redefine ──────────────────────

func (s *timeSlotService) Redefine(ctx context.Context, id string, req *dto.UpdateTimeSlotRequest, callerID string) (*dto.TimeSlotResponse, error) {
	var updated *model.TimeSlot

	if !isUUID(id) {
		return nil, ErrTimeSlotNotFound
	}

	err := s.repo.Transaction(ctx, func(txRepo *repository.Repository) error {
		slot, err := txRepo.TimeSlot.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTimeSlotNotFound
			}
			return storeError(err)
		}
		if req.Version != nil && *req.Version != slot.Version {
			return pkgerrors.ErrOptimisticLock
		}
		oldDay := Weekday(slot.DayOfWeek)

		// 补丁字段覆盖原值后重新计算区间
		day := oldDay
		if req.Day != nil {
			if day, err = ParseWeekday(*req.Day); err != nil {
				return err
			}
		}
		start, end := slot.StartTime, slot.EndTime
		if req.StartTime != nil {
			start = *req.StartTime
		}
		if req.EndTime != nil {
			end = *req.EndTime
		}
		iv, err := NewTimeInterval(day, start, end)
		if err != nil {
			return err
		}
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return ErrTimeSlotNameRequired
			}
			slot.Name = name
		}
		if req.Kind != nil {
			if !model.IsValidSlotKind(*req.Kind) {
				return ErrInvalidSlotKind
			}
			slot.Kind = *req.Kind
		}

		if err := txRepo.Lock.Acquire(ctx, dayLockKey(oldDay), dayLockKey(iv.Day)); err != nil {
			return storeError(err)
		}
		existing, err := txRepo.TimeSlot.ListByDay(ctx, int(iv.Day), true)
		if err != nil {
			return storeError(err)
		}
		if err := CheckDefinition(iv, existing, slot.TimeSlotID); err != nil {
			// 更新场景下与其他时间段完全相同同样视为重叠
			var ce *SlotConflictError
			if errors.As(err, &ce) && errors.Is(err, ErrDuplicateSlot) {
				return &SlotConflictError{Kind: ErrOverlappingSlot, Existing: ce.Existing}
			}
			return err
		}

		slot.DayOfWeek = int(iv.Day)
		slot.StartTime = iv.Start.String()
		slot.EndTime = iv.End.String()
		slot.UpdatedBy = &callerID
		if err := txRepo.TimeSlot.Update(ctx, slot); err != nil {
			return storeError(err)
		}
		updated = slot
		return nil
	})
	if err != nil {
		s.logFailure("重新定义时间段失败", err, zap.String("id", id))
		return nil, err
	}

	return toTimeSlotResponse(updated), nil
}

// ────────────────────── Deactivate / Activate ──────────────────────

func (s *timeSlotService) Deactivate(ctx context.Context, id string, callerID string) error {
	return s.setActive(ctx, id, false, callerID)
}

// Activate 无需重新校验重叠：定义时已与停用的时间段一并比较
func (s *timeSlotService) Activate(ctx context.Context, id string, callerID string) error {
	return s.setActive(ctx, id, true, callerID)
}

func (s *timeSlotService) setActive(ctx context.Context, id string, active bool, callerID string) error {
	if !isUUID(id) {
		return ErrTimeSlotNotFound
	}
	if err := s.repo.TimeSlot.SetActive(ctx, id, active, callerID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTimeSlotNotFound
		}
		s.logger.Error("切换时间段状态失败", zap.String("id", id), zap.Bool("active", active), zap.Error(err))
		return storeError(err)
	}
	return nil
}

// ────────────────────── Retire ──────────────────────

// Retire 物理删除时间段，仅当任何学期都没有预约引用它时允许
func (s *timeSlotService) Retire(ctx context.Context, id string) error {
	if !isUUID(id) {
		return ErrTimeSlotNotFound
	}
	err := s.repo.Transaction(ctx, func(txRepo *repository.Repository) error {
		if _, err := txRepo.TimeSlot.GetByID(ctx, id); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTimeSlotNotFound
			}
			return storeError(err)
		}

		refs, err := txRepo.Booking.CountBySlot(ctx, id)
		if err != nil {
			return storeError(err)
		}
		if refs > 0 {
			return ErrTimeSlotInUse
		}

		if err := txRepo.TimeSlot.Delete(ctx, id); err != nil {
			// 计数之后并发插入的预约由外键拦截
			if errors.Is(err, gorm.ErrForeignKeyViolated) {
				return ErrTimeSlotInUse
			}
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTimeSlotNotFound
			}
			return storeError(err)
		}
		return nil
	})
	if err != nil {
		s.logFailure("删除时间段失败", err, zap.String("id", id))
		return err
	}
	return nil
}

// ────────────────────── GetByID ──────────────────────

func (s *timeSlotService) GetByID(ctx context.Context, id string) (*dto.TimeSlotResponse, error) {
	if !isUUID(id) {
		return nil, ErrTimeSlotNotFound
	}
	slot, err := s.repo.TimeSlot.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTimeSlotNotFound
		}
		s.logger.Error("查询时间段失败", zap.String("id", id), zap.Error(err))
		return nil, storeError(err)
	}

	return toTimeSlotResponse(slot), nil
}

// ────────────────────── ListByDay / List ──────────────────────

func (s *timeSlotService) ListByDay(ctx context.Context, day string) ([]dto.TimeSlotResponse, error) {
	d, err := ParseWeekday(day)
	if err != nil {
		return nil, err
	}

	slots, err := s.repo.TimeSlot.ListByDay(ctx, int(d), false)
	if err != nil {
		s.logger.Error("按天列出时间段失败", zap.Stringer("day", d), zap.Error(err))
		return nil, storeError(err)
	}
	return toTimeSlotResponses(slots), nil
}

func (s *timeSlotService) List(ctx context.Context, req *dto.TimeSlotListRequest) ([]dto.TimeSlotResponse, error) {
	filter := repository.TimeSlotFilter{
		Kind:            req.Kind,
		IncludeInactive: req.IncludeInactive,
	}
	if req.Day != "" {
		d, err := ParseWeekday(req.Day)
		if err != nil {
			return nil, err
		}
		day := int(d)
		filter.DayOfWeek = &day
	}

	slots, err := s.repo.TimeSlot.List(ctx, filter)
	if err != nil {
		s.logger.Error("列出时间段失败", zap.Error(err))
		return nil, storeError(err)
	}
	return toTimeSlotResponses(slots), nil
}

// ── 内部辅助方法 ──

func (s *timeSlotService) logFailure(msg string, err error, fields ...zap.Field) {
	// 业务拒绝由调用方展示，这里只记录基础设施故障
	if errors.Is(err, pkgerrors.ErrStoreUnavailable) {
		s.logger.Error(msg, append(fields, zap.Error(err))...)
		return
	}
	s.logger.Debug(msg, append(fields, zap.Error(err))...)
}

func dayLockKey(d Weekday) string {
	return fmt.Sprintf("time_slots:day:%d", int(d))
}

// normalizeClock 统一为 HH:MM:SS，无法解析时原样返回
func normalizeClock(s string) string {
	t, err := parseStoredTimeOfDay(s)
	if err != nil {
		return s
	}
	return t.String()
}

func toTimeSlotResponse(slot *model.TimeSlot) *dto.TimeSlotResponse {
	return &dto.TimeSlotResponse{
		ID:        slot.TimeSlotID,
		Name:      slot.Name,
		Day:       Weekday(slot.DayOfWeek).String(),
		DayOfWeek: slot.DayOfWeek,
		StartTime: normalizeClock(slot.StartTime),
		EndTime:   normalizeClock(slot.EndTime),
		Kind:      slot.Kind,
		IsActive:  slot.IsActive,
		Version:   slot.Version,
		CreatedAt: slot.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt: slot.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func toTimeSlotResponses(slots []model.TimeSlot) []dto.TimeSlotResponse {
	result := make([]dto.TimeSlotResponse, 0, len(slots))
	for i := range slots {
		result = append(result, *toTimeSlotResponse(&slots[i]))
	}
	return result
}

func toTimeSlotBrief(slot *model.TimeSlot) *dto.TimeSlotBrief {
	if slot == nil {
		return nil
	}
	return &dto.TimeSlotBrief{
		ID:        slot.TimeSlotID,
		Name:      slot.Name,
		Day:       Weekday(slot.DayOfWeek).String(),
		StartTime: normalizeClock(slot.StartTime),
		EndTime:   normalizeClock(slot.EndTime),
	}
}

// sortSlots 周一→周日，同一天按开始时间升序
func sortSlots(slots []model.TimeSlot) {
	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].DayOfWeek != slots[j].DayOfWeek {
			return slots[i].DayOfWeek < slots[j].DayOfWeek
		}
		return normalizeClock(slots[i].StartTime) < normalizeClock(slots[j].StartTime)
	})
}

package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/dto"
	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/model"
	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/repository"
	pkgerrors "github.com/PaulOdartey/Timetable-Management-System-sub001/pkg/errors"
)

// ── 预约模块业务错误 ──

var (
	ErrBookingNotFound     = errors.New("预约不存在")
	ErrResourceUnavailable = errors.New("该资源在此时间段已被占用")
	ErrBookingRetired      = errors.New("预约已退役，不可再修改")
	ErrBookingNotRetired   = errors.New("仅已退役的预约可以删除")
	ErrTimeSlotInactive    = errors.New("时间段已停用，不可预约")
	ErrOverlappingBooking  = errors.New("该资源在同学期的其他重叠时间段已有预约")
	ErrInvalidPeriod       = errors.New("学年格式应为 YYYY-YYYY（相邻两年），学期为 1-3")
	ErrInvalidResource     = errors.New("资源类型或资源标识无效")
)

// BookingConflictError 严格模式下与其他时间段预约的重叠冲突
type BookingConflictError struct {
	Conflicts []model.Booking
}

func (e *BookingConflictError) Error() string {
	if len(e.Conflicts) == 0 {
		return ErrOverlappingBooking.Error()
	}
	b := e.Conflicts[0]
	if b.Slot != nil {
		return fmt.Sprintf("%s: %s (%s %s-%s)", ErrOverlappingBooking.Error(), b.Title,
			Weekday(b.Slot.DayOfWeek), normalizeClock(b.Slot.StartTime), normalizeClock(b.Slot.EndTime))
	}
	return fmt.Sprintf("%s: %s", ErrOverlappingBooking.Error(), b.BookingID)
}

func (e *BookingConflictError) Unwrap() error { return ErrOverlappingBooking }

// Details 冲突预约的响应形式，供 Handler 返回
func (e *BookingConflictError) Details() []dto.BookingResponse {
	return toBookingResponses(e.Conflicts)
}

var academicYearPattern = regexp.MustCompile(`^(\d{4})-(\d{4})$`)

// IsAcademicYear 学年形如 "2024-2025"，后一年必须紧接前一年
func IsAcademicYear(s string) bool {
	m := academicYearPattern.FindStringSubmatch(s)
	if m == nil {
		return false
	}
	first, _ := strconv.Atoi(m[1])
	second, _ := strconv.Atoi(m[2])
	return second == first+1
}

// ValidatePeriod 校验学年学期
func ValidatePeriod(academicYear string, semester int) error {
	if !IsAcademicYear(academicYear) || semester < 1 || semester > 3 {
		return ErrInvalidPeriod
	}
	return nil
}

// BookingService 预约业务接口
//
// 状态机：Proposed → Active → Retired；可用性检查失败不落库。
// 创建与调整在同一事务内完成 加锁 → 检查 → 写入，
// 部分唯一索引 uq_bookings_live_key 是并发下的最终裁决。
type BookingService interface {
	Create(ctx context.Context, req *dto.CreateBookingRequest, callerID string) (*dto.BookingResponse, error)
	Move(ctx context.Context, id string, req *dto.MoveBookingRequest, callerID string) (*dto.BookingResponse, error)
	Cancel(ctx context.Context, id string, req *dto.CancelBookingRequest, callerID string) (*dto.BookingResponse, error)
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*dto.BookingResponse, error)
	List(ctx context.Context, req *dto.BookingListRequest) ([]dto.BookingResponse, int64, error)
}

type bookingService struct {
	repo      *repository.Repository
	publisher EventPublisher
	strict    bool
	logger    *zap.Logger
}

// NewBookingService 创建 BookingService 实例
func NewBookingService(repo *repository.Repository, publisher EventPublisher, strict bool, logger *zap.Logger) BookingService {
	if publisher == nil {
		publisher = NopPublisher()
	}
	return &bookingService{repo: repo, publisher: publisher, strict: strict, logger: orNop(logger)}
}

// ────────────────────── Create ──────────────────────

func (s *bookingService) Create(ctx context.Context, req *dto.CreateBookingRequest, callerID string) (*dto.BookingResponse, error) {
	if err := ValidatePeriod(req.AcademicYear, req.Semester); err != nil {
		return nil, err
	}

	b := &model.Booking{
		ResourceType: req.ResourceType,
		ResourceID:   strings.TrimSpace(req.ResourceID),
		SlotID:       req.SlotID,
		AcademicYear: req.AcademicYear,
		Semester:     req.Semester,
		Title:        strings.TrimSpace(req.Title),
		Status:       model.BookingStatusActive,
	}
	b.CreatedBy = &callerID
	b.UpdatedBy = &callerID

	err := s.repo.Transaction(ctx, func(txRepo *repository.Repository) error {
		if err := s.place(ctx, txRepo, b, ""); err != nil {
			return err
		}
		return translateBookingWrite(txRepo.Booking.Create(ctx, b))
	})
	if err != nil {
		s.logFailure("创建预约失败", err, b)
		return nil, err
	}

	s.publish(ctx, EventBookingCreated, b, callerID)
	return toBookingResponse(b), nil
}

// ────────────────────── Move ──────────────────────

// Move 编辑预约：以自身为排除项重新校验可用性后原地更新
func (s *bookingService) Move(ctx context.Context, id string, req *dto.MoveBookingRequest, callerID string) (*dto.BookingResponse, error) {
	var b *model.Booking

	err := s.repo.Transaction(ctx, func(txRepo *repository.Repository) error {
		var err error
		if b, err = s.loadLive(ctx, txRepo, id); err != nil {
			return err
		}
		if req.Version != nil && *req.Version != b.Version {
			return pkgerrors.ErrOptimisticLock
		}

		if req.ResourceID != nil {
			b.ResourceID = strings.TrimSpace(*req.ResourceID)
		}
		if req.SlotID != nil {
			b.SlotID = *req.SlotID
		}
		if req.AcademicYear != nil {
			b.AcademicYear = *req.AcademicYear
		}
		if req.Semester != nil {
			b.Semester = *req.Semester
		}
		if req.Title != nil {
			b.Title = strings.TrimSpace(*req.Title)
		}
		if err := ValidatePeriod(b.AcademicYear, b.Semester); err != nil {
			return err
		}

		if err := s.place(ctx, txRepo, b, b.BookingID); err != nil {
			return err
		}
		b.UpdatedBy = &callerID
		return translateBookingWrite(txRepo.Booking.Update(ctx, b))
	})
	if err != nil {
		s.logFailure("调整预约失败", err, b)
		return nil, err
	}

	s.publish(ctx, EventBookingMoved, b, callerID)
	return toBookingResponse(b), nil
}

// ────────────────────── Cancel ──────────────────────

func (s *bookingService) Cancel(ctx context.Context, id string, req *dto.CancelBookingRequest, callerID string) (*dto.BookingResponse, error) {
	var b *model.Booking

	err := s.repo.Transaction(ctx, func(txRepo *repository.Repository) error {
		var err error
		if b, err = s.loadLive(ctx, txRepo, id); err != nil {
			return err
		}

		now := time.Now()
		b.Status = model.BookingStatusRetired
		b.RetiredAt = &now
		if reason := strings.TrimSpace(req.Reason); reason != "" {
			b.RetiredReason = &reason
		}
		b.UpdatedBy = &callerID
		return storeError(txRepo.Booking.Update(ctx, b))
	})
	if err != nil {
		s.logFailure("取消预约失败", err, b)
		return nil, err
	}

	s.publish(ctx, EventBookingRetired, b, callerID)
	return toBookingResponse(b), nil
}

// ────────────────────── Delete ──────────────────────

// Delete 物理删除已退役的预约；有效预约必须先取消
func (s *bookingService) Delete(ctx context.Context, id string) error {
	b, err := s.getBooking(ctx, s.repo, id)
	if err != nil {
		return err
	}
	if b.IsLive() {
		return ErrBookingNotRetired
	}

	if err := s.repo.Booking.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrBookingNotFound
		}
		s.logger.Error("删除预约失败", zap.String("id", id), zap.Error(err))
		return storeError(err)
	}
	return nil
}

// ────────────────────── GetByID / List ──────────────────────

func (s *bookingService) GetByID(ctx context.Context, id string) (*dto.BookingResponse, error) {
	b, err := s.getBooking(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	return toBookingResponse(b), nil
}

func (s *bookingService) List(ctx context.Context, req *dto.BookingListRequest) ([]dto.BookingResponse, int64, error) {
	filter := repository.BookingFilter{
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		SlotID:       req.SlotID,
		AcademicYear: req.AcademicYear,
		Semester:     req.Semester,
		Status:       req.Status,
	}

	bookings, total, err := s.repo.Booking.List(ctx, filter, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("列出预约失败", zap.Error(err))
		return nil, 0, storeError(err)
	}
	return toBookingResponses(bookings), total, nil
}

// ── 内部辅助方法 ──

// place 校验资源与时间段，持有资源学期锁后检查占用
// 调用方须在同一事务内紧接着写入
func (s *bookingService) place(ctx context.Context, txRepo *repository.Repository, b *model.Booking, excludeID string) error {
	// 先取教室锁再读教室状态，与教室删除/停用互斥
	if b.ResourceType == model.ResourceTypeClassroom && isUUID(b.ResourceID) {
		if err := txRepo.Lock.Acquire(ctx, classroomLockKey(b.ResourceID)); err != nil {
			return storeError(err)
		}
	}
	if err := checkResource(ctx, txRepo, b.ResourceType, b.ResourceID); err != nil {
		return err
	}

	if !isUUID(b.SlotID) {
		return ErrTimeSlotNotFound
	}
	slot, err := txRepo.TimeSlot.GetByID(ctx, b.SlotID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTimeSlotNotFound
		}
		return storeError(err)
	}
	if !slot.IsActive {
		return ErrTimeSlotInactive
	}

	if err := txRepo.Lock.Acquire(ctx, resourceLockKey(b)); err != nil {
		return storeError(err)
	}

	checker := &availabilityService{repo: txRepo, strict: s.strict, logger: s.logger}
	available, err := checker.IsAvailable(ctx, b.Key(), excludeID)
	if err != nil {
		return err
	}
	if !available {
		return ErrResourceUnavailable
	}

	if s.strict {
		conflicts, err := checker.overlapping(ctx, slot, b.Key(), excludeID)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return &BookingConflictError{Conflicts: conflicts}
		}
	}

	b.Slot = slot
	return nil
}

func (s *bookingService) getBooking(ctx context.Context, r *repository.Repository, id string) (*model.Booking, error) {
	if !isUUID(id) {
		return nil, ErrBookingNotFound
	}
	b, err := r.Booking.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		s.logger.Error("查询预约失败", zap.String("id", id), zap.Error(err))
		return nil, storeError(err)
	}
	return b, nil
}

func (s *bookingService) loadLive(ctx context.Context, r *repository.Repository, id string) (*model.Booking, error) {
	b, err := s.getBooking(ctx, r, id)
	if err != nil {
		return nil, err
	}
	if !b.IsLive() {
		return nil, ErrBookingRetired
	}
	return b, nil
}

// publish 事件在提交后发出，失败只记录日志
func (s *bookingService) publish(ctx context.Context, eventType string, b *model.Booking, actor string) {
	if err := s.publisher.PublishJSON(ctx, eventType, newBookingEvent(eventType, b, actor)); err != nil {
		s.logger.Warn("发布预约事件失败",
			zap.String("event", eventType),
			zap.String("booking_id", b.BookingID),
			zap.Error(err),
		)
	}
}

func (s *bookingService) logFailure(msg string, err error, b *model.Booking) {
	fields := []zap.Field{zap.Error(err)}
	if b != nil {
		fields = append(fields,
			zap.String("resource_type", b.ResourceType),
			zap.String("resource_id", b.ResourceID),
			zap.String("slot_id", b.SlotID),
		)
	}
	if errors.Is(err, pkgerrors.ErrStoreUnavailable) {
		s.logger.Error(msg, fields...)
		return
	}
	s.logger.Info(msg, fields...)
}

// checkResource 教室必须存在且启用；教师标识为外部系统的不透明 ID
func checkResource(ctx context.Context, r *repository.Repository, resourceType, resourceID string) error {
	if !model.IsValidResourceType(resourceType) || resourceID == "" {
		return ErrInvalidResource
	}
	if resourceType != model.ResourceTypeClassroom {
		return nil
	}

	if !isUUID(resourceID) {
		return ErrClassroomNotFound
	}
	room, err := r.Classroom.GetByID(ctx, resourceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrClassroomNotFound
		}
		return storeError(err)
	}
	if !room.IsActive {
		return ErrClassroomInactive
	}
	return nil
}

func resourceLockKey(b *model.Booking) string {
	return fmt.Sprintf("bookings:%s:%s:%s:%d", b.ResourceType, b.ResourceID, b.AcademicYear, b.Semester)
}

// translateBookingWrite 唯一索引冲突即资源已被占用；外键失败说明时间段已被删除
func translateBookingWrite(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrResourceUnavailable
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return ErrTimeSlotNotFound
	default:
		return storeError(err)
	}
}

func toBookingResponse(b *model.Booking) *dto.BookingResponse {
	resp := &dto.BookingResponse{
		ID:            b.BookingID,
		ResourceType:  b.ResourceType,
		ResourceID:    b.ResourceID,
		SlotID:        b.SlotID,
		Slot:          toTimeSlotBrief(b.Slot),
		AcademicYear:  b.AcademicYear,
		Semester:      b.Semester,
		Title:         b.Title,
		Status:        b.Status,
		RetiredReason: b.RetiredReason,
		Version:       b.Version,
		CreatedAt:     b.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:     b.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
	if b.RetiredAt != nil {
		at := b.RetiredAt.Format("2006-01-02T15:04:05Z")
		resp.RetiredAt = &at
	}
	return resp
}

func toBookingResponses(bookings []model.Booking) []dto.BookingResponse {
	result := make([]dto.BookingResponse, 0, len(bookings))
	for i := range bookings {
		result = append(result, *toBookingResponse(&bookings[i]))
	}
	return result
}

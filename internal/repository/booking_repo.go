package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/model"
	pkgerrors "github.com/PaulOdartey/Timetable-Management-System-sub001/pkg/errors"
)

// BookingFilter 预约列表过滤条件，零值字段不参与过滤
type BookingFilter struct {
	ResourceType string
	ResourceID   string
	SlotID       string
	AcademicYear string
	Semester     int
	Status       string
}

// BookingRepository 预约数据访问接口
type BookingRepository interface {
	Create(ctx context.Context, b *model.Booking) error
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	// ExistsActive 是否存在与 key 完全一致的有效预约；excludeID 非空时排除该预约
	ExistsActive(ctx context.Context, key model.BookingKey, excludeID string) (bool, error)
	// ListActiveByResourcePeriod 某资源某学期全部有效预约（预加载 Slot）
	ListActiveByResourcePeriod(ctx context.Context, resourceType, resourceID, academicYear string, semester int) ([]model.Booking, error)
	List(ctx context.Context, filter BookingFilter, offset, limit int) ([]model.Booking, int64, error)
	// CountBySlot 引用该时间段的预约数，不区分状态与学期
	CountBySlot(ctx context.Context, slotID string) (int64, error)
	CountActiveByResource(ctx context.Context, resourceType, resourceID string) (int64, error)
	Update(ctx context.Context, b *model.Booking) error
	Delete(ctx context.Context, id string) error
}

type bookingRepo struct {
	db *gorm.DB
}

// NewBookingRepo 创建 BookingRepository 实例
func NewBookingRepo(db *gorm.DB) BookingRepository {
	return &bookingRepo{db: db}
}

// Create 不写关联，Slot 仅用于响应组装
func (r *bookingRepo) Create(ctx context.Context, b *model.Booking) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(b).Error
}

func (r *bookingRepo) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	var b model.Booking
	err := r.db.WithContext(ctx).
		Preload("Slot").
		Where("booking_id = ?", id).
		First(&b).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *bookingRepo) ExistsActive(ctx context.Context, key model.BookingKey, excludeID string) (bool, error) {
	db := r.db.WithContext(ctx).
		Model(&model.Booking{}).
		Where("resource_type = ? AND resource_id = ? AND slot_id = ? AND academic_year = ? AND semester = ?",
			key.ResourceType, key.ResourceID, key.SlotID, key.AcademicYear, key.Semester).
		Where("status = ?", model.BookingStatusActive)
	if excludeID != "" {
		db = db.Where("booking_id <> ?", excludeID)
	}

	var count int64
	if err := db.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *bookingRepo) ListActiveByResourcePeriod(ctx context.Context, resourceType, resourceID, academicYear string, semester int) ([]model.Booking, error) {
	var bookings []model.Booking
	err := r.db.WithContext(ctx).
		Preload("Slot").
		Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).
		Where("academic_year = ? AND semester = ?", academicYear, semester).
		Where("status = ?", model.BookingStatusActive).
		Order("created_at ASC").
		Find(&bookings).Error
	return bookings, err
}

func (r *bookingRepo) List(ctx context.Context, filter BookingFilter, offset, limit int) ([]model.Booking, int64, error) {
	var bookings []model.Booking
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Booking{})
	if filter.ResourceType != "" {
		db = db.Where("resource_type = ?", filter.ResourceType)
	}
	if filter.ResourceID != "" {
		db = db.Where("resource_id = ?", filter.ResourceID)
	}
	if filter.SlotID != "" {
		db = db.Where("slot_id = ?", filter.SlotID)
	}
	if filter.AcademicYear != "" {
		db = db.Where("academic_year = ?", filter.AcademicYear)
	}
	if filter.Semester > 0 {
		db = db.Where("semester = ?", filter.Semester)
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Preload("Slot").
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&bookings).Error
	return bookings, total, err
}

func (r *bookingRepo) CountBySlot(ctx context.Context, slotID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Booking{}).
		Where("slot_id = ?", slotID).
		Count(&count).Error
	return count, err
}

func (r *bookingRepo) CountActiveByResource(ctx context.Context, resourceType, resourceID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Booking{}).
		Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).
		Where("status = ?", model.BookingStatusActive).
		Count(&count).Error
	return count, err
}

func (r *bookingRepo) Update(ctx context.Context, b *model.Booking) error {
	oldVersion := b.Version
	result := r.db.WithContext(ctx).
		Model(&model.Booking{}).
		Where("booking_id = ? AND version = ?", b.BookingID, oldVersion).
		Updates(map[string]interface{}{
			"resource_type":  b.ResourceType,
			"resource_id":    b.ResourceID,
			"slot_id":        b.SlotID,
			"academic_year":  b.AcademicYear,
			"semester":       b.Semester,
			"title":          b.Title,
			"status":         b.Status,
			"retired_at":     b.RetiredAt,
			"retired_reason": b.RetiredReason,
			"updated_by":     b.UpdatedBy,
			"version":        oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	b.Version = oldVersion + 1
	return nil
}

func (r *bookingRepo) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Where("booking_id = ? AND status = ?", id, model.BookingStatusRetired).
		Delete(&model.Booking{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

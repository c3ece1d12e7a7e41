package service

import (
	"errors"
	"fmt"

	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/dto"
	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/model"
)

// ── 冲突判定规则 ──────────────────────────────────────────────
//
// 两种强度不同的检查共用此处的谓词：
//   - 时间段定义：同一天内区间不得重叠（区间语义）
//   - 预约占用：同一 (资源, 时间段, 学年, 学期) 不得重复（精确键语义）
//
// 严格模式下预约还会按区间语义检查同资源同学期的其他时间段，
// 避免通过不同 slot_id 但时间重叠的时间段重复占用。
// 本文件不持有任何状态。
// ─────────────────────────────────────────────────────────────

var (
	ErrInvalidRange    = errors.New("时间区间无效")
	ErrDuplicateSlot   = errors.New("已存在相同星期与起止时间的时间段")
	ErrOverlappingSlot = errors.New("与已有时间段时间重叠")
	ErrResourceInUse   = errors.New("资源仍被预约引用")
)

// SlotConflictError 时间段定义冲突，携带冲突的已有时间段
// errors.Is 可匹配 ErrDuplicateSlot / ErrOverlappingSlot
type SlotConflictError struct {
	Kind     error
	Existing model.TimeSlot
}

func (e *SlotConflictError) Error() string {
	return fmt.Sprintf("%s: %s (%s %s-%s)", e.Kind.Error(), e.Existing.Name,
		Weekday(e.Existing.DayOfWeek), e.Existing.StartTime, e.Existing.EndTime)
}

func (e *SlotConflictError) Unwrap() error { return e.Kind }

// Details 冲突时间段的响应形式
func (e *SlotConflictError) Details() *dto.TimeSlotResponse {
	return toTimeSlotResponse(&e.Existing)
}

// SlotInterval 将时间段记录转换为区间，容忍数据库返回的小数秒
func SlotInterval(slot *model.TimeSlot) (TimeInterval, error) {
	return buildInterval(Weekday(slot.DayOfWeek), slot.StartTime, slot.EndTime, parseStoredTimeOfDay)
}

// CheckDefinition 校验候选区间与已有时间段是否冲突
// 已有时间段不区分启用状态；excludeID 非空时跳过该时间段（自身更新场景）
// 完全相同优先报 ErrDuplicateSlot，其余相交报 ErrOverlappingSlot
func CheckDefinition(candidate TimeInterval, existing []model.TimeSlot, excludeID string) error {
	intervals := make([]TimeInterval, len(existing))
	for i := range existing {
		iv, err := SlotInterval(&existing[i])
		if err != nil {
			return fmt.Errorf("时间段 %s 数据异常: %w", existing[i].TimeSlotID, err)
		}
		intervals[i] = iv
	}

	for i := range existing {
		if excludeID != "" && existing[i].TimeSlotID == excludeID {
			continue
		}
		if SameSpan(candidate, intervals[i]) {
			return &SlotConflictError{Kind: ErrDuplicateSlot, Existing: existing[i]}
		}
	}
	for i := range existing {
		if excludeID != "" && existing[i].TimeSlotID == excludeID {
			continue
		}
		if Overlaps(candidate, intervals[i]) {
			return &SlotConflictError{Kind: ErrOverlappingSlot, Existing: existing[i]}
		}
	}
	return nil
}

// SameOccupancy 两个占用键是否完全一致
func SameOccupancy(a, b model.BookingKey) bool {
	return a == b
}

// OverlappingBookings 返回与目标区间时间重叠、但占用其他时间段的有效预约
// bookings 需预加载 Slot；同一时间段的重复由精确键检查负责
func OverlappingBookings(target TimeInterval, targetSlotID string, bookings []model.Booking) []model.Booking {
	var result []model.Booking
	for _, b := range bookings {
		if !b.IsLive() || b.SlotID == targetSlotID || b.Slot == nil {
			continue
		}
		iv, err := SlotInterval(b.Slot)
		if err != nil {
			continue
		}
		if Overlaps(target, iv) {
			result = append(result, b)
		}
	}
	return result
}

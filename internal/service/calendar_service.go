package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
	"go.uber.org/zap"

	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/model"
	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/repository"
)

// ── iCalendar 导出 ──────────────────────────────────────────
//
// 每条有效预约生成一个按周重复的 VEVENT：
//   - 首次发生在 from 当天或之后第一个与时间段星期相同的日期
//   - RRULE:FREQ=WEEKLY;UNTIL=<until 当天结束>
//   - 时间段时刻按配置时区的墙上时间解释：UTC 直接写 Z 时间，
//     其他时区写 TZID 本地时间并附带 VTIMEZONE，跨夏令时切换后上课时刻不变
// ─────────────────────────────────────────────────────────────

const (
	calendarProductID   = "-//timetable//classroom timetable//ZH"
	icalLocalTimeFormat = "20060102T150405"
	icalUTCTimeFormat   = "20060102T150405Z"
)

// CalendarService 课表日历导出接口
type CalendarService interface {
	// ClassroomCalendar 导出教室某学期课表为 iCalendar 文本，from 必须早于 until
	ClassroomCalendar(ctx context.Context, classroomID, academicYear string, semester int, from, until time.Time) (string, string, error)
	// Location 课表所在时区，日期参数按此解释
	Location() *time.Location
}

type calendarService struct {
	repo   *repository.Repository
	loc    *time.Location
	logger *zap.Logger
}

// NewCalendarService 创建 CalendarService 实例，loc 为 nil 时使用 UTC
func NewCalendarService(repo *repository.Repository, loc *time.Location, logger *zap.Logger) CalendarService {
	if loc == nil {
		loc = time.UTC
	}
	return &calendarService{repo: repo, loc: loc, logger: orNop(logger)}
}

func (s *calendarService) Location() *time.Location { return s.loc }

func (s *calendarService) ClassroomCalendar(ctx context.Context, classroomID, academicYear string, semester int, from, until time.Time) (string, string, error) {
	if err := ValidatePeriod(academicYear, semester); err != nil {
		return "", "", err
	}
	if !from.Before(until) {
		return "", "", fmt.Errorf("%w: 日历起始日期必须早于结束日期", ErrInvalidRange)
	}

	room, bookings, err := loadClassroomBookings(ctx, s.repo, classroomID, academicYear, semester)
	if err != nil {
		if !errors.Is(err, ErrClassroomNotFound) {
			s.logger.Error("查询教室课表失败", zap.String("classroom_id", classroomID), zap.Error(err))
		}
		return "", "", err
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(calendarProductID)
	cal.SetXWRCalName(fmt.Sprintf("%s %s 第%d学期", room.Code, academicYear, semester))

	stamp := time.Now().UTC()
	last := endOfDay(until, s.loc)
	untilUTC := last.UTC().Format(icalUTCTimeFormat)
	if s.loc != time.UTC {
		y, m, d := from.Date()
		addTimezone(cal, s.loc, time.Date(y, m, d, 0, 0, 0, 0, s.loc), last)
	}

	for i := range bookings {
		b := &bookings[i]
		if b.Slot == nil {
			continue
		}
		iv, err := SlotInterval(b.Slot)
		if err != nil {
			s.logger.Warn("时间段数据异常，跳过", zap.String("slot_id", b.SlotID), zap.Error(err))
			continue
		}

		first := firstOccurrence(from, iv.Day, s.loc)
		if first.After(last) {
			continue
		}
		event := cal.AddEvent(b.BookingID + "@timetable")
		event.SetDtStampTime(stamp)
		s.setEventTime(event, ics.ComponentPropertyDtStart, atTimeOfDay(first, iv.Start))
		s.setEventTime(event, ics.ComponentPropertyDtEnd, atTimeOfDay(first, iv.End))
		event.SetSummary(bookingLabel(b))
		event.SetLocation(classroomLocation(room))
		event.SetDescription(fmt.Sprintf("%s %s", b.Slot.Name, iv))
		event.AddProperty(ics.ComponentPropertyRrule, "FREQ=WEEKLY;UNTIL="+untilUTC)
	}

	filename := fmt.Sprintf("课表_%s_%s_%d.ics", room.Code, academicYear, semester)
	return cal.Serialize(), filename, nil
}

// firstOccurrence from 当天或之后第一个星期为 day 的日期零点
// from 只取日历日期，在 loc 中解释
func firstOccurrence(from time.Time, day Weekday, loc *time.Location) time.Time {
	y, m, d := from.Date()
	date := time.Date(y, m, d, 0, 0, 0, 0, loc)
	offset := (int(day) - isoWeekday(date.Weekday()) + 7) % 7
	return date.AddDate(0, 0, offset)
}

// atTimeOfDay date 当天墙上时间 tod，夏令时切换日也按时分秒构造
func atTimeOfDay(date time.Time, tod TimeOfDay) time.Time {
	y, m, d := date.Date()
	sec := int(tod)
	return time.Date(y, m, d, sec/3600, (sec%3600)/60, sec%60, 0, date.Location())
}

func (s *calendarService) setEventTime(event *ics.VEvent, prop ics.ComponentProperty, t time.Time) {
	if s.loc == time.UTC {
		event.SetProperty(prop, t.UTC().Format(icalUTCTimeFormat))
		return
	}
	event.SetProperty(prop, t.In(s.loc).Format(icalLocalTimeFormat), tzidParam(s.loc))
}

func tzidParam(loc *time.Location) ics.PropertyParameter {
	return &ics.KeyValues{Key: string(ics.ParameterTzid), Value: []string{loc.String()}}
}

// addTimezone 写入 VTIMEZONE，按 Go 时区数据列出 [from, until] 内生效的每一段偏移
func addTimezone(cal *ics.Calendar, loc *time.Location, from, until time.Time) {
	tz := cal.AddTimezone(loc.String())
	tz.AddProperty(ics.ComponentProperty("X-LIC-LOCATION"), loc.String())

	t := from.In(loc)
	for i := 0; i < 64; i++ {
		start, end := t.ZoneBounds()
		name, offset := t.Zone()
		onset, prevOffset := time.Unix(0, 0).UTC(), offset
		if !start.IsZero() {
			_, prevOffset = start.Add(-time.Second).Zone()
			onset = start.In(time.FixedZone("", prevOffset))
		}

		var obs ics.ComponentBase
		obs.AddProperty(ics.ComponentPropertyDtStart, onset.Format(icalLocalTimeFormat))
		obs.AddProperty(ics.ComponentProperty("TZOFFSETFROM"), formatUTCOffset(prevOffset))
		obs.AddProperty(ics.ComponentProperty("TZOFFSETTO"), formatUTCOffset(offset))
		obs.AddProperty(ics.ComponentProperty("TZNAME"), name)
		if t.IsDST() {
			tz.Components = append(tz.Components, &ics.Daylight{ComponentBase: obs})
		} else {
			tz.Components = append(tz.Components, &ics.Standard{ComponentBase: obs})
		}

		if end.IsZero() || end.After(until) {
			return
		}
		t = end.In(loc)
	}
}

// formatUTCOffset 秒数偏移 → "+0100" / "-0530"
func formatUTCOffset(offset int) string {
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	return fmt.Sprintf("%c%02d%02d", sign, offset/3600, (offset%3600)/60)
}

func endOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, loc)
}

// isoWeekday time.Weekday（0=周日）→ ISO（7=周日）
func isoWeekday(wd time.Weekday) int {
	if wd == time.Sunday {
		return 7
	}
	return int(wd)
}

func classroomLocation(room *model.Classroom) string {
	if room.Building == "" {
		return room.Code
	}
	return room.Building + " " + room.Code
}

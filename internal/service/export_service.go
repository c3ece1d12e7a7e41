package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/model"
	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/repository"
)

// ── 导出模块业务错误 ──

var (
	ErrExportNoBookings   = errors.New("该教室在此学期暂无有效预约")
	ErrExportGenerateFail = errors.New("生成 Excel 文件失败")
)

// weekdayLabels 导出用中文星期名，下标为 ISO 星期
var weekdayLabels = [...]string{"", "周一", "周二", "周三", "周四", "周五", "周六", "周日"}

var slotKindLabels = map[string]string{
	model.SlotKindRegular: "上课",
	model.SlotKindBreak:   "课间",
	model.SlotKindLunch:   "午休",
}

// ExportService 导出业务接口
//
// 导出以 bytes.Buffer 返回，由 Handler 层设置 HTTP 响应头后写入 Response
type ExportService interface {
	// ExportClassroomTimetable 导出教室某学期课表为 Excel
	ExportClassroomTimetable(ctx context.Context, classroomID, academicYear string, semester int) (*bytes.Buffer, string, error)
}

type exportService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(repo *repository.Repository, logger *zap.Logger) ExportService {
	return &exportService{repo: repo, logger: orNop(logger)}
}

// ═══════════════════════════════════════════════════════════
// ExportClassroomTimetable — 导出教室课表为 Excel
// ═══════════════════════════════════════════════════════════
//
// 输出格式：
//   - 单个 Sheet "课表"
//   - 行：全部启用的时间段（周一→周日，按开始时间），以及已被预约但已停用的时间段
//   - 列：| 星期 | 时间段 | 时间 | 类型 | 课程 |
//
// 返回值：buf（Excel 内容）, filename（建议文件名）, error

func (s *exportService) ExportClassroomTimetable(ctx context.Context, classroomID, academicYear string, semester int) (*bytes.Buffer, string, error) {
	if err := ValidatePeriod(academicYear, semester); err != nil {
		return nil, "", err
	}
	room, bookings, err := loadClassroomBookings(ctx, s.repo, classroomID, academicYear, semester)
	if err != nil {
		if errors.Is(err, ErrClassroomNotFound) {
			return nil, "", err
		}
		s.logger.Error("查询教室课表失败", zap.String("classroom_id", classroomID), zap.Error(err))
		return nil, "", err
	}
	if len(bookings) == 0 {
		return nil, "", ErrExportNoBookings
	}

	slots, err := s.repo.TimeSlot.List(ctx, repository.TimeSlotFilter{})
	if err != nil {
		s.logger.Error("查询时间段失败", zap.Error(err))
		return nil, "", storeError(err)
	}

	// 时间段 → 课程名；停用的时间段若仍有预约也需出现在表中
	titles := make(map[string]string, len(bookings))
	seen := make(map[string]bool, len(slots))
	for _, sl := range slots {
		seen[sl.TimeSlotID] = true
	}
	for _, b := range bookings {
		titles[b.SlotID] = bookingLabel(&b)
		if b.Slot != nil && !seen[b.SlotID] {
			seen[b.SlotID] = true
			slots = append(slots, *b.Slot)
		}
	}
	sortSlots(slots)

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "课表"
	idx, _ := f.NewSheet(sheetName)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	f.SetColWidth(sheetName, "A", "A", 8)
	f.SetColWidth(sheetName, "B", "B", 16)
	f.SetColWidth(sheetName, "C", "C", 20)
	f.SetColWidth(sheetName, "D", "D", 8)
	f.SetColWidth(sheetName, "E", "E", 28)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	// 标题行
	f.SetCellValue(sheetName, "A1", fmt.Sprintf("%s %s %s 第%d学期课表", room.Code, room.Name, academicYear, semester))
	f.MergeCell(sheetName, "A1", "E1")
	f.SetCellStyle(sheetName, "A1", "A1", headerStyle)

	// 表头
	headers := []string{"星期", "时间段", "时间", "类型", "课程"}
	for i, h := range headers {
		f.SetCellValue(sheetName, cell(colName(i), 2), h)
	}
	f.SetCellStyle(sheetName, "A2", "E2", headerStyle)

	// 数据行
	row := 3
	for _, sl := range slots {
		f.SetCellValue(sheetName, cell("A", row), weekdayLabel(sl.DayOfWeek))
		f.SetCellValue(sheetName, cell("B", row), sl.Name)
		f.SetCellValue(sheetName, cell("C", row), fmt.Sprintf("%s-%s", normalizeClock(sl.StartTime), normalizeClock(sl.EndTime)))
		f.SetCellValue(sheetName, cell("D", row), slotKindLabels[sl.Kind])
		if title, ok := titles[sl.TimeSlotID]; ok {
			f.SetCellValue(sheetName, cell("E", row), title)
		} else {
			f.SetCellValue(sheetName, cell("E", row), "-")
		}
		row++
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("课表_%s_%s_%d.xlsx", room.Code, academicYear, semester)
	return buf, filename, nil
}

// ── 辅助函数 ──

// loadClassroomBookings 查询教室及其某学期全部有效预约（预加载 Slot）
func loadClassroomBookings(ctx context.Context, r *repository.Repository, classroomID, academicYear string, semester int) (*model.Classroom, []model.Booking, error) {
	if !isUUID(classroomID) {
		return nil, nil, ErrClassroomNotFound
	}
	room, err := r.Classroom.GetByID(ctx, classroomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrClassroomNotFound
		}
		return nil, nil, storeError(err)
	}

	bookings, err := r.Booking.ListActiveByResourcePeriod(ctx, model.ResourceTypeClassroom, classroomID, academicYear, semester)
	if err != nil {
		return nil, nil, storeError(err)
	}
	return room, bookings, nil
}

func bookingLabel(b *model.Booking) string {
	if b.Title != "" {
		return b.Title
	}
	return "已预约"
}

func weekdayLabel(day int) string {
	if day < 1 || day > 7 {
		return "-"
	}
	return weekdayLabels[day]
}

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}

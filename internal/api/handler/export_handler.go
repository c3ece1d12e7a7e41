package handler

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/dto"
	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/service"
	"github.com/PaulOdartey/Timetable-Management-System-sub001/pkg/response"
)

// calendarDefaultWeeks 未指定 until 时日历覆盖的周数
const calendarDefaultWeeks = 18

// ExportHandler 导出模块 HTTP 处理器
type ExportHandler struct {
	exportSvc   service.ExportService
	calendarSvc service.CalendarService
	now         func() time.Time
}

// NewExportHandler 创建 ExportHandler
func NewExportHandler(exportSvc service.ExportService, calendarSvc service.CalendarService) *ExportHandler {
	return &ExportHandler{exportSvc: exportSvc, calendarSvc: calendarSvc, now: time.Now}
}

// ExportTimetable 导出教室课表 Excel
// GET /api/v1/classrooms/:id/timetable.xlsx?academic_year=2024-2025&semester=1
func (h *ExportHandler) ExportTimetable(c *gin.Context) {
	var req dto.TimetableExportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	buf, filename, err := h.exportSvc.ExportClassroomTimetable(c.Request.Context(), c.Param("id"), req.AcademicYear, req.Semester)
	if err != nil {
		h.handleExportError(c, err)
		return
	}

	// 设置下载响应头
	encodedFilename := url.QueryEscape(filename)
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+encodedFilename)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

// ExportCalendar 导出教室课表 iCalendar
// GET /api/v1/classrooms/:id/timetable.ics?academic_year=2024-2025&semester=1&from=2025-09-01&until=2026-01-16
// from 缺省为课表时区的今天，until 缺省为 from 之后 18 周
func (h *ExportHandler) ExportCalendar(c *gin.Context) {
	var req dto.TimetableExportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	loc := h.calendarSvc.Location()
	from := h.now().In(loc)
	if req.From != "" {
		t, err := time.ParseInLocation("2006-01-02", req.From, loc)
		if err != nil {
			response.BadRequest(c, 10001, "from 日期格式应为 YYYY-MM-DD")
			return
		}
		from = t
	}
	until := from.AddDate(0, 0, 7*calendarDefaultWeeks)
	if req.Until != "" {
		t, err := time.ParseInLocation("2006-01-02", req.Until, loc)
		if err != nil {
			response.BadRequest(c, 10001, "until 日期格式应为 YYYY-MM-DD")
			return
		}
		until = t
	}

	text, filename, err := h.calendarSvc.ClassroomCalendar(c.Request.Context(), c.Param("id"), req.AcademicYear, req.Semester, from, until)
	if err != nil {
		h.handleExportError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.QueryEscape(filename))
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(text))
}

func (h *ExportHandler) handleExportError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrClassroomNotFound):
		response.NotFound(c, 18001, "教室不存在")
	case errors.Is(err, service.ErrExportNoBookings):
		response.NotFound(c, 19001, "该教室在此学期暂无有效预约")
	case errors.Is(err, service.ErrInvalidRange):
		response.BadRequest(c, 16004, err.Error())
	case errors.Is(err, service.ErrInvalidPeriod):
		response.BadRequest(c, 10001, err.Error())
	default:
		handleCommonError(c, err)
	}
}

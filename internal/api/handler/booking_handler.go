package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/dto"
	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/service"
	"github.com/PaulOdartey/Timetable-Management-System-sub001/pkg/response"
)

// BookingHandler 预约模块 HTTP 处理器
type BookingHandler struct {
	bookingSvc service.BookingService
}

// NewBookingHandler 创建 BookingHandler
func NewBookingHandler(bookingSvc service.BookingService) *BookingHandler {
	return &BookingHandler{bookingSvc: bookingSvc}
}

// ListBookings 分页查询预约
// GET /api/v1/bookings
func (h *BookingHandler) ListBookings(c *gin.Context) {
	var req dto.BookingListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	list, total, err := h.bookingSvc.List(c.Request.Context(), &req)
	if err != nil {
		h.handleBookingError(c, err)
		return
	}

	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// GetBooking 获取预约详情
// GET /api/v1/bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	booking, err := h.bookingSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleBookingError(c, err)
		return
	}

	response.OK(c, booking)
}

// CreateBooking 创建预约
// POST /api/v1/bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	var req dto.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	booking, err := h.bookingSvc.Create(c.Request.Context(), &req, callerID)
	if err != nil {
		h.handleBookingError(c, err)
		return
	}

	response.Created(c, booking)
}

// MoveBooking 调整预约
// PUT /api/v1/bookings/:id
func (h *BookingHandler) MoveBooking(c *gin.Context) {
	var req dto.MoveBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	booking, err := h.bookingSvc.Move(c.Request.Context(), c.Param("id"), &req, callerID)
	if err != nil {
		h.handleBookingError(c, err)
		return
	}

	response.OK(c, booking)
}

// CancelBooking 取消预约（进入已退役状态，不可逆）
// POST /api/v1/bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	var req dto.CancelBookingRequest
	// 请求体可省略
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, 10001, "参数校验失败")
			return
		}
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	booking, err := h.bookingSvc.Cancel(c.Request.Context(), c.Param("id"), &req, callerID)
	if err != nil {
		h.handleBookingError(c, err)
		return
	}

	response.OK(c, booking)
}

// DeleteBooking 删除已退役的预约
// DELETE /api/v1/bookings/:id
func (h *BookingHandler) DeleteBooking(c *gin.Context) {
	if err := h.bookingSvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.handleBookingError(c, err)
		return
	}

	response.OK(c, nil)
}

// handleBookingError 统一处理预约模块业务错误
func (h *BookingHandler) handleBookingError(c *gin.Context, err error) {
	var overlap *service.BookingConflictError
	switch {
	case errors.Is(err, service.ErrBookingNotFound):
		response.NotFound(c, 17001, "预约不存在")
	case errors.Is(err, service.ErrResourceUnavailable):
		response.Conflict(c, 17002, "该资源在此时间段已被占用")
	case errors.Is(err, service.ErrBookingRetired):
		response.Conflict(c, 17003, "预约已退役，不可再修改")
	case errors.Is(err, service.ErrTimeSlotInactive):
		response.Conflict(c, 17004, "时间段已停用，不可预约")
	case errors.As(err, &overlap):
		response.ErrorWithData(c, http.StatusConflict, 17005, "该资源在同学期的其他重叠时间段已有预约", overlap.Details())
	case errors.Is(err, service.ErrBookingNotRetired):
		response.Conflict(c, 17006, "仅已退役的预约可以删除")
	case errors.Is(err, service.ErrTimeSlotNotFound):
		response.NotFound(c, 16001, "时间段不存在")
	case errors.Is(err, service.ErrClassroomNotFound):
		response.NotFound(c, 18001, "教室不存在")
	case errors.Is(err, service.ErrClassroomInactive):
		response.Conflict(c, 18004, "教室已停用，不可预约")
	case errors.Is(err, service.ErrInvalidPeriod),
		errors.Is(err, service.ErrInvalidResource):
		response.BadRequest(c, 10001, err.Error())
	default:
		handleCommonError(c, err)
	}
}

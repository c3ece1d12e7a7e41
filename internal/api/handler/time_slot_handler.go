package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/dto"
	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/service"
	"github.com/PaulOdartey/Timetable-Management-System-sub001/pkg/response"
)

// TimeSlotHandler 时间段模块 HTTP 处理器
type TimeSlotHandler struct {
	timeSlotSvc service.TimeSlotService
}

// NewTimeSlotHandler 创建 TimeSlotHandler
func NewTimeSlotHandler(timeSlotSvc service.TimeSlotService) *TimeSlotHandler {
	return &TimeSlotHandler{timeSlotSvc: timeSlotSvc}
}

// ListTimeSlots 获取时间段列表
// GET /api/v1/time-slots?day=Monday&kind=regular&include_inactive=true
func (h *TimeSlotHandler) ListTimeSlots(c *gin.Context) {
	var req dto.TimeSlotListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	slots, err := h.timeSlotSvc.List(c.Request.Context(), &req)
	if err != nil {
		h.handleTimeSlotError(c, err)
		return
	}

	response.OK(c, gin.H{"list": slots})
}

// ListTimeSlotsForDay 某一天启用中的时间段，按开始时间排序
// GET /api/v1/time-slots/day/:day
func (h *TimeSlotHandler) ListTimeSlotsForDay(c *gin.Context) {
	slots, err := h.timeSlotSvc.ListByDay(c.Request.Context(), c.Param("day"))
	if err != nil {
		h.handleTimeSlotError(c, err)
		return
	}

	response.OK(c, gin.H{"list": slots})
}

// GetTimeSlot 获取时间段详情
// GET /api/v1/time-slots/:id
func (h *TimeSlotHandler) GetTimeSlot(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "时间段ID不能为空")
		return
	}

	slot, err := h.timeSlotSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		h.handleTimeSlotError(c, err)
		return
	}

	response.OK(c, slot)
}

// DefineTimeSlot 定义时间段
// POST /api/v1/time-slots
func (h *TimeSlotHandler) DefineTimeSlot(c *gin.Context) {
	var req dto.CreateTimeSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	slot, err := h.timeSlotSvc.Define(c.Request.Context(), &req, callerID)
	if err != nil {
		h.handleTimeSlotError(c, err)
		return
	}

	response.Created(c, slot)
}

// RedefineTimeSlot 重新定义时间段
// PUT /api/v1/time-slots/:id
func (h *TimeSlotHandler) RedefineTimeSlot(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "时间段ID不能为空")
		return
	}

	var req dto.UpdateTimeSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	slot, err := h.timeSlotSvc.Redefine(c.Request.Context(), id, &req, callerID)
	if err != nil {
		h.handleTimeSlotError(c, err)
		return
	}

	response.OK(c, slot)
}

// DeactivateTimeSlot 停用时间段
// PUT /api/v1/time-slots/:id/deactivate
func (h *TimeSlotHandler) DeactivateTimeSlot(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	if err := h.timeSlotSvc.Deactivate(c.Request.Context(), c.Param("id"), callerID); err != nil {
		h.handleTimeSlotError(c, err)
		return
	}

	response.OK(c, nil)
}

// ActivateTimeSlot 重新启用时间段
// PUT /api/v1/time-slots/:id/activate
func (h *TimeSlotHandler) ActivateTimeSlot(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	if err := h.timeSlotSvc.Activate(c.Request.Context(), c.Param("id"), callerID); err != nil {
		h.handleTimeSlotError(c, err)
		return
	}

	response.OK(c, nil)
}

// RetireTimeSlot 删除从未被预约引用的时间段
// DELETE /api/v1/time-slots/:id
func (h *TimeSlotHandler) RetireTimeSlot(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "时间段ID不能为空")
		return
	}

	if err := h.timeSlotSvc.Retire(c.Request.Context(), id); err != nil {
		h.handleTimeSlotError(c, err)
		return
	}

	response.OK(c, nil)
}

// handleTimeSlotError 统一处理时间段模块业务错误
func (h *TimeSlotHandler) handleTimeSlotError(c *gin.Context, err error) {
	var conflict *service.SlotConflictError
	switch {
	case errors.Is(err, service.ErrTimeSlotNotFound):
		response.NotFound(c, 16001, "时间段不存在")
	case errors.As(err, &conflict) && errors.Is(err, service.ErrDuplicateSlot):
		response.ErrorWithData(c, http.StatusConflict, 16002, "已存在相同星期与起止时间的时间段", conflict.Details())
	case errors.As(err, &conflict):
		response.ErrorWithData(c, http.StatusConflict, 16003, "与已有时间段时间重叠", conflict.Details())
	case errors.Is(err, service.ErrInvalidRange):
		response.BadRequest(c, 16004, err.Error())
	case errors.Is(err, service.ErrTimeSlotInUse):
		response.Conflict(c, 16005, "时间段仍被预约引用，请改为停用")
	case errors.Is(err, service.ErrTimeSlotNameRequired),
		errors.Is(err, service.ErrInvalidSlotKind):
		response.BadRequest(c, 10001, err.Error())
	default:
		handleCommonError(c, err)
	}
}

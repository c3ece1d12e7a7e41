package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/dto"
	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/service"
	pkgerrors "github.com/PaulOdartey/Timetable-Management-System-sub001/pkg/errors"
	"github.com/PaulOdartey/Timetable-Management-System-sub001/pkg/response"
)

// AvailabilityHandler 可用性查询 HTTP 处理器
type AvailabilityHandler struct {
	availabilitySvc service.AvailabilityService
}

// NewAvailabilityHandler 创建 AvailabilityHandler
func NewAvailabilityHandler(availabilitySvc service.AvailabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{availabilitySvc: availabilitySvc}
}

// CheckAvailability 查询资源在某时间段某学期是否可预约
// GET /api/v1/availability?resource_type=classroom&resource_id=...&slot_id=...&academic_year=2024-2025&semester=1
//
// 存储不可用时返回 503 且 available=false，调用方不得把失败当成可用
func (h *AvailabilityHandler) CheckAvailability(c *gin.Context) {
	var req dto.AvailabilityRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.availabilitySvc.Check(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, pkgerrors.ErrStoreUnavailable):
			_ = c.Error(err)
			response.ErrorWithData(c, http.StatusServiceUnavailable, 50300, "服务暂时不可用，请稍后重试",
				dto.AvailabilityResponse{Available: false})
		case errors.Is(err, service.ErrInvalidPeriod), errors.Is(err, service.ErrInvalidResource):
			response.BadRequest(c, 10001, err.Error())
		default:
			handleCommonError(c, err)
		}
		return
	}

	response.OK(c, result)
}

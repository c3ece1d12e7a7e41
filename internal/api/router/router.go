package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/PaulOdartey/Timetable-Management-System-sub001/config"
	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/api/handler"
	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/api/middleware"
	"github.com/PaulOdartey/Timetable-Management-System-sub001/pkg/jwt"
	"github.com/PaulOdartey/Timetable-Management-System-sub001/pkg/redis"
)

// Setup 初始化并返回 Gin 路由引擎
// rdb 为 nil 时限流与 Token 黑名单降级；db 为 nil 时健康检查不探测数据库
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, db *gorm.DB, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	if err := handler.RegisterValidators(); err != nil {
		logger.Fatal("注册参数校验规则失败", zap.Error(err))
	}

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			sqlDB, err := db.DB()
			if err == nil {
				err = sqlDB.PingContext(ctx)
			}
			if err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": "unreachable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 写接口统一限流
	limit := middleware.RateLimit(rdb, cfg.RateLimit.Limit, cfg.RateLimit.Window)
	adminOnly := []gin.HandlerFunc{middleware.RoleAuth(jwt.RoleAdmin), limit}
	schedulers := []gin.HandlerFunc{middleware.RoleAuth(jwt.RoleAdmin, jwt.RoleScheduler), limit}

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(jwtMgr, rdb))
	{
		// 时间段目录
		timeSlots := v1.Group("/time-slots")
		{
			timeSlots.GET("", h.TimeSlot.ListTimeSlots)
			timeSlots.GET("/day/:day", h.TimeSlot.ListTimeSlotsForDay)
			timeSlots.GET("/:id", h.TimeSlot.GetTimeSlot)
			timeSlots.POST("", append(adminOnly, h.TimeSlot.DefineTimeSlot)...)
			timeSlots.PUT("/:id", append(adminOnly, h.TimeSlot.RedefineTimeSlot)...)
			timeSlots.PUT("/:id/deactivate", append(adminOnly, h.TimeSlot.DeactivateTimeSlot)...)
			timeSlots.PUT("/:id/activate", append(adminOnly, h.TimeSlot.ActivateTimeSlot)...)
			timeSlots.DELETE("/:id", append(adminOnly, h.TimeSlot.RetireTimeSlot)...)
		}

		// 可用性查询
		v1.GET("/availability", h.Availability.CheckAvailability)

		// 预约
		bookings := v1.Group("/bookings")
		{
			bookings.GET("", h.Booking.ListBookings)
			bookings.GET("/:id", h.Booking.GetBooking)
			bookings.POST("", append(schedulers, h.Booking.CreateBooking)...)
			bookings.PUT("/:id", append(schedulers, h.Booking.MoveBooking)...)
			bookings.POST("/:id/cancel", append(schedulers, h.Booking.CancelBooking)...)
			bookings.DELETE("/:id", append(adminOnly, h.Booking.DeleteBooking)...)
		}

		// 教室与课表导出
		classrooms := v1.Group("/classrooms")
		{
			classrooms.GET("", h.Classroom.ListClassrooms)
			classrooms.GET("/:id", h.Classroom.GetClassroom)
			classrooms.GET("/:id/timetable.xlsx", h.Export.ExportTimetable)
			classrooms.GET("/:id/timetable.ics", h.Export.ExportCalendar)
			classrooms.POST("", append(adminOnly, h.Classroom.CreateClassroom)...)
			classrooms.PUT("/:id", append(adminOnly, h.Classroom.UpdateClassroom)...)
			classrooms.DELETE("/:id", append(adminOnly, h.Classroom.DeleteClassroom)...)
		}
	}

	return r
}

package handler

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/service"
)

// RegisterValidators 向 gin 的校验引擎注册排课领域的自定义 tag
//
//	weekday       "Monday" … "Sunday"（不区分大小写，可用三字母缩写）
//	timeofday     "HH:MM:SS" 或 "HH:MM"
//	academic_year "2024-2025"
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	rules := map[string]validator.Func{
		"weekday": func(fl validator.FieldLevel) bool {
			_, err := service.ParseWeekday(fl.Field().String())
			return err == nil
		},
		"timeofday": func(fl validator.FieldLevel) bool {
			_, err := service.ParseTimeOfDay(fl.Field().String())
			return err == nil
		},
		"academic_year": func(fl validator.FieldLevel) bool {
			return service.IsAcademicYear(fl.Field().String())
		},
	}
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return err
		}
	}
	return nil
}

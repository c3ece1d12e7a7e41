package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/dto"
	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/model"
	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/repository"
)

// ── 教室模块业务错误 ──

var (
	ErrClassroomNotFound  = errors.New("教室不存在")
	ErrClassroomInactive  = errors.New("教室已停用，不可预约")
	ErrClassroomCodeTaken = errors.New("教室编号已存在")
	ErrClassroomInUse     = fmt.Errorf("教室仍有有效预约，请先取消或改为停用: %w", ErrResourceInUse)
)

// ClassroomService 教室业务接口
type ClassroomService interface {
	Create(ctx context.Context, req *dto.CreateClassroomRequest, callerID string) (*dto.ClassroomResponse, error)
	GetByID(ctx context.Context, id string) (*dto.ClassroomResponse, error)
	List(ctx context.Context, req *dto.ClassroomListRequest) ([]dto.ClassroomResponse, error)
	Update(ctx context.Context, id string, req *dto.UpdateClassroomRequest, callerID string) (*dto.ClassroomResponse, error)
	Delete(ctx context.Context, id string, callerID string) error
}

type classroomService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewClassroomService 创建 ClassroomService 实例
func NewClassroomService(repo *repository.Repository, logger *zap.Logger) ClassroomService {
	return &classroomService{repo: repo, logger: orNop(logger)}
}

// ────────────────────── Create ──────────────────────

func (s *classroomService) Create(ctx context.Context, req *dto.CreateClassroomRequest, callerID string) (*dto.ClassroomResponse, error) {
	code := strings.TrimSpace(req.Code)
	if err := ensureCodeFree(ctx, s.repo, code, ""); err != nil {
		return nil, err
	}

	room := &model.Classroom{
		Code:     code,
		Name:     strings.TrimSpace(req.Name),
		Building: strings.TrimSpace(req.Building),
		Capacity: req.Capacity,
		IsActive: true,
	}
	room.CreatedBy = &callerID
	room.UpdatedBy = &callerID

	if err := s.repo.Classroom.Create(ctx, room); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrClassroomCodeTaken
		}
		s.logger.Error("创建教室失败", zap.Error(err))
		return nil, storeError(err)
	}

	return toClassroomResponse(room), nil
}

// ────────────────────── GetByID ──────────────────────

func (s *classroomService) GetByID(ctx context.Context, id string) (*dto.ClassroomResponse, error) {
	room, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return toClassroomResponse(room), nil
}

// ────────────────────── List ──────────────────────

func (s *classroomService) List(ctx context.Context, req *dto.ClassroomListRequest) ([]dto.ClassroomResponse, error) {
	rooms, err := s.repo.Classroom.List(ctx, req.IncludeInactive)
	if err != nil {
		s.logger.Error("列出教室失败", zap.Error(err))
		return nil, storeError(err)
	}

	result := make([]dto.ClassroomResponse, 0, len(rooms))
	for i := range rooms {
		result = append(result, *toClassroomResponse(&rooms[i]))
	}
	return result, nil
}

// ────────────────────── Update ──────────────────────

// Update 持有教室锁，与同一教室的新建预约互斥
func (s *classroomService) Update(ctx context.Context, id string, req *dto.UpdateClassroomRequest, callerID string) (*dto.ClassroomResponse, error) {
	var room *model.Classroom
	err := s.repo.Transaction(ctx, func(txRepo *repository.Repository) error {
		var err error
		room, err = s.lockAndGet(ctx, txRepo, id)
		if err != nil {
			return err
		}
		return s.applyUpdate(ctx, txRepo, room, req, callerID)
	})
	if err != nil {
		return nil, err
	}
	return toClassroomResponse(room), nil
}

func (s *classroomService) applyUpdate(ctx context.Context, txRepo *repository.Repository, room *model.Classroom, req *dto.UpdateClassroomRequest, callerID string) error {
	id := room.ClassroomID

	if req.Code != nil {
		code := strings.TrimSpace(*req.Code)
		if code != room.Code {
			if err := ensureCodeFree(ctx, txRepo, code, room.ClassroomID); err != nil {
				return err
			}
			room.Code = code
		}
	}
	if req.Name != nil {
		room.Name = strings.TrimSpace(*req.Name)
	}
	if req.Building != nil {
		room.Building = strings.TrimSpace(*req.Building)
	}
	if req.Capacity != nil {
		room.Capacity = *req.Capacity
	}
	// 停用不受已有预约限制，只阻止新的预约
	if req.IsActive != nil {
		room.IsActive = *req.IsActive
	}

	room.UpdatedBy = &callerID

	if err := txRepo.Classroom.Update(ctx, room); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrClassroomCodeTaken
		}
		s.logger.Error("更新教室失败", zap.String("id", id), zap.Error(err))
		return storeError(err)
	}
	return nil
}

// ────────────────────── Delete ──────────────────────

// Delete 软删除；持有教室锁后统计有效预约，并发新建预约会等待删除提交后看到教室已删除
func (s *classroomService) Delete(ctx context.Context, id string, callerID string) error {
	return s.repo.Transaction(ctx, func(txRepo *repository.Repository) error {
		if _, err := s.lockAndGet(ctx, txRepo, id); err != nil {
			return err
		}

		live, err := txRepo.Booking.CountActiveByResource(ctx, model.ResourceTypeClassroom, id)
		if err != nil {
			s.logger.Error("统计教室预约失败", zap.String("id", id), zap.Error(err))
			return storeError(err)
		}
		if live > 0 {
			return ErrClassroomInUse
		}

		if err := txRepo.Classroom.Delete(ctx, id, callerID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrClassroomNotFound
			}
			s.logger.Error("删除教室失败", zap.String("id", id), zap.Error(err))
			return storeError(err)
		}
		return nil
	})
}

// ── 内部辅助方法 ──

func (s *classroomService) get(ctx context.Context, id string) (*model.Classroom, error) {
	return s.getFrom(ctx, s.repo, id)
}

// lockAndGet 在事务内先取教室锁再读取，须在 Repository.Transaction 内调用
func (s *classroomService) lockAndGet(ctx context.Context, txRepo *repository.Repository, id string) (*model.Classroom, error) {
	if !isUUID(id) {
		return nil, ErrClassroomNotFound
	}
	if err := txRepo.Lock.Acquire(ctx, classroomLockKey(id)); err != nil {
		s.logger.Error("获取教室锁失败", zap.String("id", id), zap.Error(err))
		return nil, storeError(err)
	}
	return s.getFrom(ctx, txRepo, id)
}

func (s *classroomService) getFrom(ctx context.Context, r *repository.Repository, id string) (*model.Classroom, error) {
	if !isUUID(id) {
		return nil, ErrClassroomNotFound
	}
	room, err := r.Classroom.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClassroomNotFound
		}
		s.logger.Error("查询教室失败", zap.String("id", id), zap.Error(err))
		return nil, storeError(err)
	}
	return room, nil
}

// classroomLockKey 教室变更与该教室新建预约共用的锁
func classroomLockKey(id string) string {
	return "classrooms:" + id
}

func ensureCodeFree(ctx context.Context, r *repository.Repository, code, selfID string) error {
	existing, err := r.Classroom.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return storeError(err)
	}
	if existing.ClassroomID != selfID {
		return ErrClassroomCodeTaken
	}
	return nil
}

func toClassroomResponse(room *model.Classroom) *dto.ClassroomResponse {
	return &dto.ClassroomResponse{
		ID:        room.ClassroomID,
		Code:      room.Code,
		Name:      room.Name,
		Building:  room.Building,
		Capacity:  room.Capacity,
		IsActive:  room.IsActive,
		CreatedAt: room.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt: room.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

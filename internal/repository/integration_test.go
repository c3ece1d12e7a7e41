//go:build integration

package repository_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/model"
	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/repository"
	"github.com/PaulOdartey/Timetable-Management-System-sub001/pkg/database"
	pkgerrors "github.com/PaulOdartey/Timetable-Management-System-sub001/pkg/errors"
)

// ═══════════════════════════════════════════════════════════
// Test Setup
// ═══════════════════════════════════════════════════════════

var testDB *gorm.DB

func TestMain(m *testing.M) {
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		dsn = "host=localhost port=5433 user=timetable password=timetable dbname=timetable_test sslmode=disable TimeZone=UTC"
	}

	var err error
	testDB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "无法连接测试数据库: %v\n", err)
		os.Exit(1)
	}

	// 使用与生产相同的迁移文件，部分唯一索引不能靠 AutoMigrate 生成
	sqlDB, err := testDB.DB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "获取 sql.DB 失败: %v\n", err)
		os.Exit(1)
	}
	if err := database.RunMigrations(sqlDB, zap.NewNop()); err != nil {
		fmt.Fprintf(os.Stderr, "迁移失败: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	os.Exit(code)
}

// setupSlot 创建一个唯一时间的时间段并返回清理函数
// 每个测试使用不同分钟数，避免与其他测试的时间段重叠
func setupSlot(t *testing.T, minute int) (*model.TimeSlot, func()) {
	t.Helper()
	ctx := context.Background()

	ts := &model.TimeSlot{
		Name:      fmt.Sprintf("测试节次-%d", time.Now().UnixNano()),
		DayOfWeek: 7,
		StartTime: fmt.Sprintf("06:%02d:00", minute),
		EndTime:   fmt.Sprintf("06:%02d:30", minute),
		Kind:      model.SlotKindRegular,
		IsActive:  true,
	}
	if err := testDB.WithContext(ctx).Create(ts).Error; err != nil {
		t.Fatalf("创建时间段失败: %v", err)
	}

	cleanup := func() {
		testDB.Where("slot_id = ?", ts.TimeSlotID).Delete(&model.Booking{})
		testDB.Where("time_slot_id = ?", ts.TimeSlotID).Delete(&model.TimeSlot{})
	}
	return ts, cleanup
}

func newBooking(slotID, resourceID string) *model.Booking {
	return &model.Booking{
		ResourceType: model.ResourceTypeClassroom,
		ResourceID:   resourceID,
		SlotID:       slotID,
		AcademicYear: "2024-2025",
		Semester:     1,
		Title:        "高等数学",
		Status:       model.BookingStatusActive,
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Transaction Rollback / Commit
// ═══════════════════════════════════════════════════════════

func TestTransaction_Rollback(t *testing.T) {
	ts, cleanup := setupSlot(t, 1)
	defer cleanup()

	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	b := newBooking(ts.TimeSlotID, "room-rollback")
	err := repo.Transaction(ctx, func(txRepo *repository.Repository) error {
		if err := txRepo.Booking.Create(ctx, b); err != nil {
			return err
		}
		return errors.New("回滚")
	})
	if err == nil {
		t.Fatal("期望事务返回错误")
	}

	if _, err := repo.Booking.GetByID(ctx, b.BookingID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("期望回滚后查不到预约，实际: %v", err)
	}
}

func TestTransaction_BeginTxCommit(t *testing.T) {
	ts, cleanup := setupSlot(t, 2)
	defer cleanup()

	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	tx, err := repo.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx 失败: %v", err)
	}
	txRepo := repo.WithTx(tx)

	b := newBooking(ts.TimeSlotID, "room-commit")
	if err := txRepo.Booking.Create(ctx, b); err != nil {
		tx.Rollback()
		t.Fatalf("事务内创建预约失败: %v", err)
	}
	if err := tx.Commit().Error; err != nil {
		t.Fatalf("Commit 失败: %v", err)
	}

	found, err := repo.Booking.GetByID(ctx, b.BookingID)
	if err != nil {
		t.Fatalf("提交后查询预约失败: %v", err)
	}
	if found.Slot == nil || found.Slot.TimeSlotID != ts.TimeSlotID {
		t.Error("GetByID 应预加载 Slot")
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Optimistic Lock
// ═══════════════════════════════════════════════════════════

func TestOptimisticLock_TimeSlot_ConflictDetected(t *testing.T) {
	ts, cleanup := setupSlot(t, 3)
	defer cleanup()

	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	copy1, _ := repo.TimeSlot.GetByID(ctx, ts.TimeSlotID)
	copy2, _ := repo.TimeSlot.GetByID(ctx, ts.TimeSlotID)

	copy1.Name = "第一次修改"
	if err := repo.TimeSlot.Update(ctx, copy1); err != nil {
		t.Fatalf("第一次更新应成功: %v", err)
	}

	copy2.Name = "第二次修改"
	if err := repo.TimeSlot.Update(ctx, copy2); !errors.Is(err, pkgerrors.ErrOptimisticLock) {
		t.Errorf("期望 ErrOptimisticLock，得到: %v", err)
	}
}

func TestOptimisticLock_Booking_VersionIncrement(t *testing.T) {
	ts, cleanup := setupSlot(t, 4)
	defer cleanup()

	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	b := newBooking(ts.TimeSlotID, "room-version")
	if err := repo.Booking.Create(ctx, b); err != nil {
		t.Fatalf("创建预约失败: %v", err)
	}
	if b.Version != 1 {
		t.Errorf("初始 version 应为 1，得到: %d", b.Version)
	}

	for i := 0; i < 3; i++ {
		got, _ := repo.Booking.GetByID(ctx, b.BookingID)
		got.Title = fmt.Sprintf("标题-%d", i)
		if err := repo.Booking.Update(ctx, got); err != nil {
			t.Fatalf("第 %d 次更新失败: %v", i+1, err)
		}
	}

	final, _ := repo.Booking.GetByID(ctx, b.BookingID)
	if final.Version != 4 {
		t.Errorf("期望 version=4，得到: %d", final.Version)
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Unique live key
// ═══════════════════════════════════════════════════════════

func TestUniqueLiveBookingKey(t *testing.T) {
	ts, cleanup := setupSlot(t, 5)
	defer cleanup()

	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	first := newBooking(ts.TimeSlotID, "room-unique")
	if err := repo.Booking.Create(ctx, first); err != nil {
		t.Fatalf("创建第一条预约失败: %v", err)
	}

	// 同键第二条 active 预约违反部分唯一索引
	dup := newBooking(ts.TimeSlotID, "room-unique")
	if err := repo.Booking.Create(ctx, dup); !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Fatalf("期望 ErrDuplicatedKey，得到: %v", err)
	}

	// 退役后同键可再次预约
	now := time.Now()
	first.Status = model.BookingStatusRetired
	first.RetiredAt = &now
	if err := repo.Booking.Update(ctx, first); err != nil {
		t.Fatalf("退役失败: %v", err)
	}
	again := newBooking(ts.TimeSlotID, "room-unique")
	if err := repo.Booking.Create(ctx, again); err != nil {
		t.Fatalf("退役后同键预约应成功: %v", err)
	}

	exists, err := repo.Booking.ExistsActive(ctx, again.Key(), "")
	if err != nil || !exists {
		t.Fatalf("期望 ExistsActive=true，得到 %v, %v", exists, err)
	}
	exists, err = repo.Booking.ExistsActive(ctx, again.Key(), again.BookingID)
	if err != nil || exists {
		t.Fatalf("排除自身后期望 ExistsActive=false，得到 %v, %v", exists, err)
	}

	n, err := repo.Booking.CountBySlot(ctx, ts.TimeSlotID)
	if err != nil {
		t.Fatalf("CountBySlot 失败: %v", err)
	}
	if n != 2 {
		t.Errorf("CountBySlot 应包含已退役预约，期望 2，得到 %d", n)
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Concurrent booking race
// ═══════════════════════════════════════════════════════════

func TestConcurrentBooking_AtMostOneActive(t *testing.T) {
	ts, cleanup := setupSlot(t, 6)
	defer cleanup()

	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Transaction(ctx, func(txRepo *repository.Repository) error {
				b := newBooking(ts.TimeSlotID, "room-race")
				if err := txRepo.Lock.Acquire(ctx, "bookings:race"); err != nil {
					return err
				}
				exists, err := txRepo.Booking.ExistsActive(ctx, b.Key(), "")
				if err != nil {
					return err
				}
				if exists {
					return errors.New("已占用")
				}
				return txRepo.Booking.Create(ctx, b)
			})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("期望恰好 1 次成功，实际 %d 次", successes)
	}

	live, err := repo.Booking.ListActiveByResourcePeriod(ctx, model.ResourceTypeClassroom, "room-race", "2024-2025", 1)
	if err != nil {
		t.Fatalf("ListActiveByResourcePeriod 失败: %v", err)
	}
	if len(live) != 1 {
		t.Errorf("期望 1 条 active 预约，得到 %d 条", len(live))
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Soft Delete
// ═══════════════════════════════════════════════════════════

func TestClassroom_SoftDelete(t *testing.T) {
	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	room := &model.Classroom{
		Code:     fmt.Sprintf("R%d", time.Now().UnixNano()%1_000_000_000),
		Name:     "测试教室",
		Capacity: 40,
		IsActive: true,
	}
	if err := repo.Classroom.Create(ctx, room); err != nil {
		t.Fatalf("创建教室失败: %v", err)
	}
	defer testDB.Unscoped().Where("classroom_id = ?", room.ClassroomID).Delete(&model.Classroom{})

	if err := repo.Classroom.Delete(ctx, room.ClassroomID, "tester"); err != nil {
		t.Fatalf("软删除失败: %v", err)
	}

	if _, err := repo.Classroom.GetByID(ctx, room.ClassroomID); err == nil {
		t.Fatal("软删除后应查不到记录")
	}

	var found model.Classroom
	if err := testDB.Unscoped().Where("classroom_id = ?", room.ClassroomID).First(&found).Error; err != nil {
		t.Fatalf("Unscoped 查询应能找到: %v", err)
	}
	if found.DeletedAt.Time.IsZero() {
		t.Error("DeletedAt 应已设置")
	}
}

package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/dto"
	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/model"
	pkgerrors "github.com/PaulOdartey/Timetable-Management-System-sub001/pkg/errors"
)

// ── 测试辅助 ──

type bookingFixture struct {
	svc       BookingService
	mocks     *mockRepos
	publisher *mockPublisher
	room      string
	slot      string
}

func setupTestBookingService(strict bool) *bookingFixture {
	repo, mocks := newMockRepository()
	pub := &mockPublisher{}
	return &bookingFixture{
		svc:       NewBookingService(repo, pub, strict, zap.NewNop()),
		mocks:     mocks,
		publisher: pub,
		room:      mocks.rooms.put("R101", true),
		slot:      mocks.slots.put("第一节", 1, "09:00:00", "10:00:00", true),
	}
}

func (f *bookingFixture) createReq() *dto.CreateBookingRequest {
	return &dto.CreateBookingRequest{
		ResourceType: model.ResourceTypeClassroom,
		ResourceID:   f.room,
		SlotID:       f.slot,
		AcademicYear: "2024-2025",
		Semester:     1,
		Title:        "高等数学",
	}
}

// ── Create 测试 ──

func TestBookingService_Create_Success(t *testing.T) {
	f := setupTestBookingService(true)

	result, err := f.svc.Create(context.Background(), f.createReq(), "scheduler-1")
	if err != nil {
		t.Fatalf("Create 应成功: %v", err)
	}
	if result.Status != model.BookingStatusActive || result.Version != 1 {
		t.Errorf("新预约应为 active 且 version=1，实际 %+v", result)
	}
	if result.Slot == nil || result.Slot.StartTime != "09:00:00" {
		t.Errorf("响应应包含时间段信息，实际 %+v", result.Slot)
	}
	if keys := f.publisher.keys(); len(keys) != 1 || keys[0] != EventBookingCreated {
		t.Errorf("期望发布 booking.created，实际 %v", keys)
	}
	want := []string{"classrooms:" + f.room, "bookings:classroom:" + f.room + ":2024-2025:1"}
	if keys := f.mocks.lock.acquired(); len(keys) != 2 || keys[0] != want[0] || keys[1] != want[1] {
		t.Errorf("期望依次持有锁 %v，实际 %v", want, keys)
	}
}

func TestBookingService_Create_DuplicateKeyRejected(t *testing.T) {
	f := setupTestBookingService(false)
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, f.createReq(), "scheduler-1"); err != nil {
		t.Fatalf("第一次 Create 应成功: %v", err)
	}
	_, err := f.svc.Create(ctx, f.createReq(), "scheduler-2")
	if !errors.Is(err, ErrResourceUnavailable) {
		t.Errorf("期望 ErrResourceUnavailable，实际: %v", err)
	}
	if n := len(f.publisher.keys()); n != 1 {
		t.Errorf("被拒绝的预约不应发布事件，实际 %d 条", n)
	}
}

func TestBookingService_Create_OtherPeriodAllowed(t *testing.T) {
	f := setupTestBookingService(false)
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, f.createReq(), "scheduler-1"); err != nil {
		t.Fatalf("Create 应成功: %v", err)
	}
	req := f.createReq()
	req.Semester = 2
	if _, err := f.svc.Create(ctx, req, "scheduler-1"); err != nil {
		t.Errorf("不同学期应可预约: %v", err)
	}
}

func TestBookingService_Create_StrictOverlap(t *testing.T) {
	f := setupTestBookingService(true)
	ctx := context.Background()
	// 与第一节 [09:00,10:00) 重叠但 slot_id 不同
	overlapping := f.mocks.slots.put("加长课", 1, "09:30:00", "10:30:00", true)
	tuesday := f.mocks.slots.put("周二", 2, "09:30:00", "10:30:00", true)

	if _, err := f.svc.Create(ctx, f.createReq(), "scheduler-1"); err != nil {
		t.Fatalf("Create 应成功: %v", err)
	}

	req := f.createReq()
	req.SlotID = overlapping
	_, err := f.svc.Create(ctx, req, "scheduler-1")
	if !errors.Is(err, ErrOverlappingBooking) {
		t.Fatalf("严格模式下期望 ErrOverlappingBooking，实际: %v", err)
	}
	var ce *BookingConflictError
	if !errors.As(err, &ce) || len(ce.Conflicts) != 1 {
		t.Errorf("冲突详情应包含 1 条预约，实际 %v", err)
	}

	req.SlotID = tuesday
	if _, err := f.svc.Create(ctx, req, "scheduler-1"); err != nil {
		t.Errorf("其他天的时间段应可预约: %v", err)
	}
}

func TestBookingService_Create_NonStrictAllowsOverlapOnOtherSlot(t *testing.T) {
	f := setupTestBookingService(false)
	ctx := context.Background()
	other := f.mocks.slots.put("加长课", 1, "09:30:00", "10:30:00", true)

	if _, err := f.svc.Create(ctx, f.createReq(), "scheduler-1"); err != nil {
		t.Fatalf("Create 应成功: %v", err)
	}
	req := f.createReq()
	req.SlotID = other
	if _, err := f.svc.Create(ctx, req, "scheduler-1"); err != nil {
		t.Errorf("非严格模式只做精确键检查，应成功: %v", err)
	}
}

func TestBookingService_Create_Validation(t *testing.T) {
	f := setupTestBookingService(false)
	ctx := context.Background()
	inactiveRoom := f.mocks.rooms.put("R999", false)
	inactiveSlot := f.mocks.slots.put("停用", 3, "09:00:00", "10:00:00", false)

	tests := []struct {
		name   string
		mutate func(r *dto.CreateBookingRequest)
		want   error
	}{
		{"学年格式", func(r *dto.CreateBookingRequest) { r.AcademicYear = "2024/2025" }, ErrInvalidPeriod},
		{"学期越界", func(r *dto.CreateBookingRequest) { r.Semester = 4 }, ErrInvalidPeriod},
		{"资源类型", func(r *dto.CreateBookingRequest) { r.ResourceType = "projector" }, ErrInvalidResource},
		{"教室不存在", func(r *dto.CreateBookingRequest) { r.ResourceID = uuid.NewString() }, ErrClassroomNotFound},
		{"教室停用", func(r *dto.CreateBookingRequest) { r.ResourceID = inactiveRoom }, ErrClassroomInactive},
		{"时间段不存在", func(r *dto.CreateBookingRequest) { r.SlotID = uuid.NewString() }, ErrTimeSlotNotFound},
		{"时间段停用", func(r *dto.CreateBookingRequest) { r.SlotID = inactiveSlot }, ErrTimeSlotInactive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.createReq()
			tt.mutate(req)
			if _, err := f.svc.Create(ctx, req, "scheduler-1"); !errors.Is(err, tt.want) {
				t.Errorf("期望 %v，实际 %v", tt.want, err)
			}
		})
	}
}

func TestBookingService_Create_Faculty(t *testing.T) {
	f := setupTestBookingService(true)

	req := f.createReq()
	req.ResourceType = model.ResourceTypeFaculty
	req.ResourceID = "T-0042"
	if _, err := f.svc.Create(context.Background(), req, "scheduler-1"); err != nil {
		t.Fatalf("教师资源预约应成功: %v", err)
	}
	if _, err := f.svc.Create(context.Background(), req, "scheduler-1"); !errors.Is(err, ErrResourceUnavailable) {
		t.Errorf("同一教师同一时间段应不可用，实际 %v", err)
	}
}

func TestBookingService_Create_StoreFailureFailsClosed(t *testing.T) {
	f := setupTestBookingService(false)
	f.mocks.bookings.err = errors.New("connection reset")

	_, err := f.svc.Create(context.Background(), f.createReq(), "scheduler-1")
	if !errors.Is(err, pkgerrors.ErrStoreUnavailable) {
		t.Errorf("期望 ErrStoreUnavailable，实际 %v", err)
	}
}

func TestBookingService_Create_PublishFailureIgnored(t *testing.T) {
	f := setupTestBookingService(false)
	f.publisher.err = errors.New("broker down")

	if _, err := f.svc.Create(context.Background(), f.createReq(), "scheduler-1"); err != nil {
		t.Errorf("事件发布失败不应影响预约: %v", err)
	}
}

// 并发下同一键至多一个成功
func TestBookingService_Create_ConcurrentAtMostOne(t *testing.T) {
	f := setupTestBookingService(true)
	ctx := context.Background()

	const workers = 16
	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		successes   int
		unavailable int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.Create(ctx, f.createReq(), "scheduler-x")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrResourceUnavailable):
				unavailable++
			default:
				t.Errorf("意外错误: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if successes != 1 {
		t.Fatalf("期望恰好 1 次成功，实际 %d 次", successes)
	}
	if unavailable != workers-1 {
		t.Errorf("其余 %d 次应观察到不可用，实际 %d 次", workers-1, unavailable)
	}
}

// ── Move 测试 ──

func TestBookingService_Move_SameKeyExcludesSelf(t *testing.T) {
	f := setupTestBookingService(true)
	ctx := context.Background()
	created, _ := f.svc.Create(ctx, f.createReq(), "scheduler-1")

	result, err := f.svc.Move(ctx, created.ID, &dto.MoveBookingRequest{Title: strPtr("线性代数")}, "scheduler-1")
	if err != nil {
		t.Fatalf("仅改标题时不应与自身冲突: %v", err)
	}
	if result.Title != "线性代数" || result.Version != 2 {
		t.Errorf("期望标题更新且 version=2，实际 %+v", result)
	}
}

func TestBookingService_Move_ToOccupiedSlot(t *testing.T) {
	f := setupTestBookingService(false)
	ctx := context.Background()
	second := f.mocks.slots.put("第二节", 1, "10:00:00", "11:00:00", true)
	mine, _ := f.svc.Create(ctx, f.createReq(), "scheduler-1")

	req := f.createReq()
	req.SlotID = second
	if _, err := f.svc.Create(ctx, req, "scheduler-1"); err != nil {
		t.Fatalf("第二节预约应成功: %v", err)
	}

	_, err := f.svc.Move(ctx, mine.ID, &dto.MoveBookingRequest{SlotID: &second}, "scheduler-1")
	if !errors.Is(err, ErrResourceUnavailable) {
		t.Errorf("期望 ErrResourceUnavailable，实际 %v", err)
	}

	stored, _ := f.svc.GetByID(ctx, mine.ID)
	if stored.SlotID != f.slot {
		t.Error("调整失败时原预约不应被修改")
	}
}

func TestBookingService_Move_Success(t *testing.T) {
	f := setupTestBookingService(true)
	ctx := context.Background()
	second := f.mocks.slots.put("第二节", 1, "10:00:00", "11:00:00", true)
	mine, _ := f.svc.Create(ctx, f.createReq(), "scheduler-1")

	result, err := f.svc.Move(ctx, mine.ID, &dto.MoveBookingRequest{SlotID: &second, Version: intPtr(1)}, "scheduler-1")
	if err != nil {
		t.Fatalf("调整到空闲时间段应成功: %v", err)
	}
	if result.SlotID != second {
		t.Errorf("期望 slot=%s，实际 %s", second, result.SlotID)
	}

	// 原时间段已释放
	req := f.createReq()
	if _, err := f.svc.Create(ctx, req, "scheduler-2"); err != nil {
		t.Errorf("原时间段应已释放: %v", err)
	}
	keys := f.publisher.keys()
	if len(keys) != 3 || keys[1] != EventBookingMoved {
		t.Errorf("期望事件序列 created/moved/created，实际 %v", keys)
	}
}

func TestBookingService_Move_StaleVersion(t *testing.T) {
	f := setupTestBookingService(false)
	ctx := context.Background()
	mine, _ := f.svc.Create(ctx, f.createReq(), "scheduler-1")

	_, err := f.svc.Move(ctx, mine.ID, &dto.MoveBookingRequest{Title: strPtr("x"), Version: intPtr(9)}, "scheduler-1")
	if !errors.Is(err, pkgerrors.ErrOptimisticLock) {
		t.Errorf("期望 ErrOptimisticLock，实际 %v", err)
	}
}

// ── Cancel / Delete 测试 ──

func TestBookingService_CancelIsTerminal(t *testing.T) {
	f := setupTestBookingService(false)
	ctx := context.Background()
	mine, _ := f.svc.Create(ctx, f.createReq(), "scheduler-1")

	result, err := f.svc.Cancel(ctx, mine.ID, &dto.CancelBookingRequest{Reason: "课程调整"}, "scheduler-1")
	if err != nil {
		t.Fatalf("Cancel 应成功: %v", err)
	}
	if result.Status != model.BookingStatusRetired || result.RetiredAt == nil || result.RetiredReason == nil {
		t.Errorf("取消后应为 retired 并记录时间与原因，实际 %+v", result)
	}

	if _, err := f.svc.Cancel(ctx, mine.ID, &dto.CancelBookingRequest{}, "scheduler-1"); !errors.Is(err, ErrBookingRetired) {
		t.Errorf("重复取消期望 ErrBookingRetired，实际 %v", err)
	}
	if _, err := f.svc.Move(ctx, mine.ID, &dto.MoveBookingRequest{Title: strPtr("x")}, "scheduler-1"); !errors.Is(err, ErrBookingRetired) {
		t.Errorf("已退役预约不可调整，实际 %v", err)
	}

	// 键释放后可再次预约
	if _, err := f.svc.Create(ctx, f.createReq(), "scheduler-1"); err != nil {
		t.Errorf("取消后同键应可再次预约: %v", err)
	}
}

func TestBookingService_Delete(t *testing.T) {
	f := setupTestBookingService(false)
	ctx := context.Background()
	mine, _ := f.svc.Create(ctx, f.createReq(), "scheduler-1")

	if err := f.svc.Delete(ctx, mine.ID); !errors.Is(err, ErrBookingNotRetired) {
		t.Errorf("有效预约不可删除，期望 ErrBookingNotRetired，实际 %v", err)
	}

	if _, err := f.svc.Cancel(ctx, mine.ID, &dto.CancelBookingRequest{}, "scheduler-1"); err != nil {
		t.Fatalf("Cancel 应成功: %v", err)
	}
	if err := f.svc.Delete(ctx, mine.ID); err != nil {
		t.Fatalf("已退役预约应可删除: %v", err)
	}
	if _, err := f.svc.GetByID(ctx, mine.ID); !errors.Is(err, ErrBookingNotFound) {
		t.Errorf("删除后期望 ErrBookingNotFound，实际 %v", err)
	}
}

// ── List 测试 ──

func TestBookingService_List_FilterAndPaginate(t *testing.T) {
	f := setupTestBookingService(false)
	ctx := context.Background()
	for _, sem := range []int{1, 2, 3} {
		req := f.createReq()
		req.Semester = sem
		if _, err := f.svc.Create(ctx, req, "scheduler-1"); err != nil {
			t.Fatalf("Create 应成功: %v", err)
		}
	}

	list, total, err := f.svc.List(ctx, &dto.BookingListRequest{
		PaginationRequest: dto.PaginationRequest{Page: 1, PageSize: 2},
		ResourceID:        f.room,
	})
	if err != nil {
		t.Fatalf("List 应成功: %v", err)
	}
	if total != 3 || len(list) != 2 {
		t.Errorf("期望 total=3 且本页 2 条，实际 total=%d len=%d", total, len(list))
	}

	list, total, _ = f.svc.List(ctx, &dto.BookingListRequest{Semester: 2})
	if total != 1 || len(list) != 1 || list[0].Semester != 2 {
		t.Errorf("按学期过滤应得 1 条，实际 %+v", list)
	}
}

func TestIsAcademicYear(t *testing.T) {
	good := []string{"2024-2025", "1999-2000"}
	bad := []string{"2024-2024", "2024-2026", "2024", "abcd-efgh", "2024-2025 "}
	for _, s := range good {
		if !IsAcademicYear(s) {
			t.Errorf("%q 应为合法学年", s)
		}
	}
	for _, s := range bad {
		if IsAcademicYear(s) {
			t.Errorf("%q 不应为合法学年", s)
		}
	}
}

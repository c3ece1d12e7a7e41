package service

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/model"
	"github.com/PaulOdartey/Timetable-Management-System-sub001/internal/repository"
	pkgerrors "github.com/PaulOdartey/Timetable-Management-System-sub001/pkg/errors"
)

// ── 测试辅助 ──

type mockRepos struct {
	slots    *mockTimeSlotRepo
	rooms    *mockClassroomRepo
	bookings *mockBookingRepo
	lock     *mockLockRepo
}

// newMockRepository 未绑定数据库，Transaction 直接在 mock 上执行
func newMockRepository() (*repository.Repository, *mockRepos) {
	m := &mockRepos{
		slots: newMockTimeSlotRepo(),
		rooms: newMockClassroomRepo(),
		lock:  &mockLockRepo{},
	}
	m.bookings = newMockBookingRepo(m.slots)
	return &repository.Repository{
		TimeSlot:  m.slots,
		Classroom: m.rooms,
		Booking:   m.bookings,
		Lock:      m.lock,
	}, m
}

// ── Mock TimeSlotRepository ──

type mockTimeSlotRepo struct {
	mu    sync.Mutex
	slots map[string]*model.TimeSlot
	err   error // 非 nil 时所有方法返回该错误
}

func newMockTimeSlotRepo() *mockTimeSlotRepo {
	return &mockTimeSlotRepo{slots: make(map[string]*model.TimeSlot)}
}

// put 直接写入一条时间段，返回其 ID
func (m *mockTimeSlotRepo) put(name string, day int, start, end string, active bool) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.slots[id] = &model.TimeSlot{
		TimeSlotID:     id,
		Name:           name,
		DayOfWeek:      day,
		StartTime:      start,
		EndTime:        end,
		Kind:           model.SlotKindRegular,
		IsActive:       active,
		VersionedModel: model.VersionedModel{Version: 1},
	}
	return id
}

func (m *mockTimeSlotRepo) get(id string) *model.TimeSlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.slots[id]; ok {
		cp := *s
		return &cp
	}
	return nil
}

func (m *mockTimeSlotRepo) Create(_ context.Context, slot *model.TimeSlot) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if slot.TimeSlotID == "" {
		slot.TimeSlotID = uuid.NewString()
	}
	slot.Version = 1
	cp := *slot
	m.slots[slot.TimeSlotID] = &cp
	return nil
}

func (m *mockTimeSlotRepo) GetByID(_ context.Context, id string) (*model.TimeSlot, error) {
	if m.err != nil {
		return nil, m.err
	}
	if s := m.get(id); s != nil {
		return s, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockTimeSlotRepo) ListByDay(_ context.Context, dayOfWeek int, includeInactive bool) ([]model.TimeSlot, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.TimeSlot
	for _, s := range m.slots {
		if s.DayOfWeek != dayOfWeek || (!includeInactive && !s.IsActive) {
			continue
		}
		result = append(result, *s)
	}
	sortSlots(result)
	return result, nil
}

func (m *mockTimeSlotRepo) List(_ context.Context, filter repository.TimeSlotFilter) ([]model.TimeSlot, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.TimeSlot
	for _, s := range m.slots {
		if !filter.IncludeInactive && !s.IsActive {
			continue
		}
		if filter.DayOfWeek != nil && s.DayOfWeek != *filter.DayOfWeek {
			continue
		}
		if filter.Kind != "" && s.Kind != filter.Kind {
			continue
		}
		result = append(result, *s)
	}
	sortSlots(result)
	return result, nil
}

func (m *mockTimeSlotRepo) Update(_ context.Context, slot *model.TimeSlot) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.slots[slot.TimeSlotID]
	if !ok || stored.Version != slot.Version {
		return pkgerrors.ErrOptimisticLock
	}
	slot.Version++
	cp := *slot
	m.slots[slot.TimeSlotID] = &cp
	return nil
}

func (m *mockTimeSlotRepo) SetActive(_ context.Context, id string, active bool, _ string) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	s.IsActive = active
	s.Version++
	return nil
}

func (m *mockTimeSlotRepo) Delete(_ context.Context, id string) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.slots[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.slots, id)
	return nil
}

// ── Mock ClassroomRepository ──

type mockClassroomRepo struct {
	mu    sync.Mutex
	rooms map[string]*model.Classroom
}

func newMockClassroomRepo() *mockClassroomRepo {
	return &mockClassroomRepo{rooms: make(map[string]*model.Classroom)}
}

func (m *mockClassroomRepo) put(code string, active bool) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.rooms[id] = &model.Classroom{ClassroomID: id, Code: code, Name: "教室" + code, Capacity: 40, IsActive: active}
	return id
}

func (m *mockClassroomRepo) Create(_ context.Context, room *model.Classroom) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rooms {
		if r.Code == room.Code {
			return gorm.ErrDuplicatedKey
		}
	}
	if room.ClassroomID == "" {
		room.ClassroomID = uuid.NewString()
	}
	cp := *room
	m.rooms[room.ClassroomID] = &cp
	return nil
}

func (m *mockClassroomRepo) GetByID(_ context.Context, id string) (*model.Classroom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockClassroomRepo) GetByCode(_ context.Context, code string) (*model.Classroom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rooms {
		if r.Code == code {
			cp := *r
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockClassroomRepo) List(_ context.Context, includeInactive bool) ([]model.Classroom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Classroom
	for _, r := range m.rooms {
		if !includeInactive && !r.IsActive {
			continue
		}
		result = append(result, *r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result, nil
}

func (m *mockClassroomRepo) Update(_ context.Context, room *model.Classroom) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *room
	m.rooms[room.ClassroomID] = &cp
	return nil
}

func (m *mockClassroomRepo) Delete(_ context.Context, id string, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.rooms, id)
	return nil
}

// ── Mock BookingRepository ──

// mockBookingRepo Create/Update 模拟部分唯一索引：同键至多一条 active
type mockBookingRepo struct {
	mu       sync.Mutex
	bookings map[string]*model.Booking
	slots    *mockTimeSlotRepo
	err      error
}

func newMockBookingRepo(slots *mockTimeSlotRepo) *mockBookingRepo {
	return &mockBookingRepo{bookings: make(map[string]*model.Booking), slots: slots}
}

// put 直接写入一条预约，返回其 ID
func (m *mockBookingRepo) put(key model.BookingKey, status string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.bookings[id] = &model.Booking{
		BookingID:      id,
		ResourceType:   key.ResourceType,
		ResourceID:     key.ResourceID,
		SlotID:         key.SlotID,
		AcademicYear:   key.AcademicYear,
		Semester:       key.Semester,
		Title:          "已有课程",
		Status:         status,
		VersionedModel: model.VersionedModel{Version: 1},
	}
	return id
}

func (m *mockBookingRepo) liveConflict(b *model.Booking) bool {
	if !b.IsLive() {
		return false
	}
	for id, other := range m.bookings {
		if id != b.BookingID && other.IsLive() && SameOccupancy(other.Key(), b.Key()) {
			return true
		}
	}
	return false
}

func (m *mockBookingRepo) withSlot(b *model.Booking) *model.Booking {
	cp := *b
	cp.Slot = m.slots.get(b.SlotID)
	return &cp
}

func (m *mockBookingRepo) Create(_ context.Context, b *model.Booking) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.liveConflict(b) {
		return gorm.ErrDuplicatedKey
	}
	if b.BookingID == "" {
		b.BookingID = uuid.NewString()
	}
	b.Version = 1
	cp := *b
	cp.Slot = nil
	m.bookings[b.BookingID] = &cp
	return nil
}

func (m *mockBookingRepo) GetByID(_ context.Context, id string) (*model.Booking, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.bookings[id]; ok {
		return m.withSlot(b), nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockBookingRepo) ExistsActive(_ context.Context, key model.BookingKey, excludeID string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, b := range m.bookings {
		if id == excludeID || !b.IsLive() {
			continue
		}
		if SameOccupancy(b.Key(), key) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockBookingRepo) ListActiveByResourcePeriod(_ context.Context, resourceType, resourceID, academicYear string, semester int) ([]model.Booking, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Booking
	for _, b := range m.bookings {
		if b.IsLive() && b.ResourceType == resourceType && b.ResourceID == resourceID &&
			b.AcademicYear == academicYear && b.Semester == semester {
			result = append(result, *m.withSlot(b))
		}
	}
	return result, nil
}

func (m *mockBookingRepo) List(_ context.Context, filter repository.BookingFilter, offset, limit int) ([]model.Booking, int64, error) {
	if m.err != nil {
		return nil, 0, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []model.Booking
	for _, b := range m.bookings {
		if filter.ResourceType != "" && b.ResourceType != filter.ResourceType {
			continue
		}
		if filter.ResourceID != "" && b.ResourceID != filter.ResourceID {
			continue
		}
		if filter.SlotID != "" && b.SlotID != filter.SlotID {
			continue
		}
		if filter.AcademicYear != "" && b.AcademicYear != filter.AcademicYear {
			continue
		}
		if filter.Semester > 0 && b.Semester != filter.Semester {
			continue
		}
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		all = append(all, *m.withSlot(b))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].BookingID < all[j].BookingID })

	total := int64(len(all))
	if offset >= len(all) {
		return []model.Booking{}, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (m *mockBookingRepo) CountBySlot(_ context.Context, slotID string) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, b := range m.bookings {
		if b.SlotID == slotID {
			n++
		}
	}
	return n, nil
}

func (m *mockBookingRepo) CountActiveByResource(_ context.Context, resourceType, resourceID string) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, b := range m.bookings {
		if b.IsLive() && b.ResourceType == resourceType && b.ResourceID == resourceID {
			n++
		}
	}
	return n, nil
}

func (m *mockBookingRepo) Update(_ context.Context, b *model.Booking) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.bookings[b.BookingID]
	if !ok || stored.Version != b.Version {
		return pkgerrors.ErrOptimisticLock
	}
	if m.liveConflict(b) {
		return gorm.ErrDuplicatedKey
	}
	b.Version++
	cp := *b
	cp.Slot = nil
	m.bookings[b.BookingID] = &cp
	return nil
}

func (m *mockBookingRepo) Delete(_ context.Context, id string) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.IsLive() {
		return gorm.ErrRecordNotFound
	}
	delete(m.bookings, id)
	return nil
}

// ── Mock LockRepository ──

type mockLockRepo struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (m *mockLockRepo) Acquire(_ context.Context, keys ...string) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, keys...)
	return nil
}

func (m *mockLockRepo) acquired() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.keys...)
}

// ── Mock EventPublisher ──

type publishedEvent struct {
	routingKey string
	payload    any
}

type mockPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (m *mockPublisher) PublishJSON(_ context.Context, routingKey string, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, publishedEvent{routingKey: routingKey, payload: v})
	return m.err
}

func (m *mockPublisher) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.events {
		out = append(out, e.routingKey)
	}
	return out
}

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alexxgorcea9/primepass/internal/domain"
)

func newWaitlisted(id, tierID, waveID string, createdAt time.Time) *domain.Registration {
	return &domain.Registration{
		ID:            id,
		EventID:       "event-1",
		UserID:        "user-" + id,
		TierID:        tierID,
		WaveID:        waveID,
		Status:        domain.RegistrationStatusWaitlisted,
		PaymentStatus: domain.PaymentStatusPending,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
}

func TestMemoryEventRepository_GetMissing(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryEventRepository()

	if _, err := repo.GetEvent(ctx, "nope"); err != domain.ErrEventNotFound {
		t.Errorf("GetEvent() error = %v, want ErrEventNotFound", err)
	}
	if _, err := repo.GetTier(ctx, "nope"); err != domain.ErrTierNotFound {
		t.Errorf("GetTier() error = %v, want ErrTierNotFound", err)
	}
	if _, err := repo.GetWave(ctx, "nope"); err != domain.ErrWaveNotFound {
		t.Errorf("GetWave() error = %v, want ErrWaveNotFound", err)
	}
}

func TestMemoryEventRepository_UpdateTierCapacity(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryEventRepository()

	tier := &domain.Tier{ID: "tier-1", EventID: "event-1", Name: "GA", Capacity: 100, IsActive: true}
	if err := repo.CreateTier(ctx, tier); err != nil {
		t.Fatal(err)
	}

	if err := repo.UpdateTierCapacity(ctx, "tier-1", 150); err != nil {
		t.Fatalf("UpdateTierCapacity() error = %v", err)
	}
	got, err := repo.GetTier(ctx, "tier-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Capacity != 150 {
		t.Errorf("capacity = %d, want 150", got.Capacity)
	}

	// Mutating the returned copy must not leak into the store.
	got.Capacity = 1
	again, _ := repo.GetTier(ctx, "tier-1")
	if again.Capacity != 150 {
		t.Errorf("stored capacity changed through returned copy")
	}
}

func TestMemoryRegistrationRepository_NextWaitlistedFIFO(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRegistrationRepository()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	// Insert out of order; FIFO must follow created_at, then id.
	_ = repo.Create(ctx, newWaitlisted("reg-c", "tier-1", "", base.Add(2*time.Second)))
	_ = repo.Create(ctx, newWaitlisted("reg-a", "tier-1", "", base))
	_ = repo.Create(ctx, newWaitlisted("reg-b", "tier-1", "", base.Add(time.Second)))
	// Same timestamp as reg-a but later id, must lose the tie.
	_ = repo.Create(ctx, newWaitlisted("reg-z", "tier-1", "", base))

	next, err := repo.NextWaitlisted(ctx, "tier-1", "")
	if err != nil {
		t.Fatalf("NextWaitlisted() error = %v", err)
	}
	if next.ID != "reg-a" {
		t.Errorf("NextWaitlisted() = %s, want reg-a", next.ID)
	}
}

func TestMemoryRegistrationRepository_NextWaitlistedScopedToPool(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRegistrationRepository()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	_ = repo.Create(ctx, newWaitlisted("reg-wave", "tier-1", "wave-1", base))
	_ = repo.Create(ctx, newWaitlisted("reg-plain", "tier-1", "", base.Add(time.Second)))

	// Tier-only pool must not see the wave registration even though it is older.
	next, err := repo.NextWaitlisted(ctx, "tier-1", "")
	if err != nil {
		t.Fatal(err)
	}
	if next.ID != "reg-plain" {
		t.Errorf("NextWaitlisted(tier only) = %s, want reg-plain", next.ID)
	}

	next, err = repo.NextWaitlisted(ctx, "tier-1", "wave-1")
	if err != nil {
		t.Fatal(err)
	}
	if next.ID != "reg-wave" {
		t.Errorf("NextWaitlisted(wave pool) = %s, want reg-wave", next.ID)
	}

	if _, err := repo.NextWaitlisted(ctx, "tier-2", ""); err != domain.ErrRegistrationNotFound {
		t.Errorf("NextWaitlisted(empty pool) error = %v, want ErrRegistrationNotFound", err)
	}
}

func TestMemoryRegistrationRepository_CountActiveByUserAndEvent(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRegistrationRepository()

	reg := newWaitlisted("reg-1", "tier-1", "", time.Now())
	reg.UserID = "user-7"
	_ = repo.Create(ctx, reg)

	cancelled := newWaitlisted("reg-2", "tier-1", "", time.Now())
	cancelled.UserID = "user-7"
	cancelled.Status = domain.RegistrationStatusCancelled
	_ = repo.Create(ctx, cancelled)

	count, err := repo.CountActiveByUserAndEvent(ctx, "user-7", "event-1")
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1 (cancelled excluded)", count)
	}
}

func TestMemoryRegistrationRepository_WaitlistedKeys(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRegistrationRepository()

	base := time.Now()
	_ = repo.Create(ctx, newWaitlisted("reg-1", "tier-1", "", base))
	_ = repo.Create(ctx, newWaitlisted("reg-2", "tier-1", "", base))
	_ = repo.Create(ctx, newWaitlisted("reg-3", "tier-2", "wave-1", base))

	confirmed := newWaitlisted("reg-4", "tier-3", "", base)
	confirmed.Status = domain.RegistrationStatusConfirmed
	_ = repo.Create(ctx, confirmed)

	keys, err := repo.WaitlistedKeys(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []WaitlistKey{
		{EventID: "event-1", TierID: "tier-1", WaveID: ""},
		{EventID: "event-1", TierID: "tier-2", WaveID: "wave-1"},
	}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %v, want %v", i, keys[i], want[i])
		}
	}
}

func TestMemoryRegistrationRepository_CreateRejectsActiveDedupeKey(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRegistrationRepository()

	first := newWaitlisted("reg-1", "tier-1", "", time.Now())
	first.DedupeKey = "event-1:user-7"
	if err := repo.Create(ctx, first); err != nil {
		t.Fatal(err)
	}

	second := newWaitlisted("reg-2", "tier-1", "", time.Now())
	second.DedupeKey = "event-1:user-7"
	if err := repo.Create(ctx, second); err != domain.ErrDuplicateRegistration {
		t.Errorf("Create() error = %v, want ErrDuplicateRegistration", err)
	}

	// A cancelled holder releases the key.
	first.Status = domain.RegistrationStatusCancelled
	if err := repo.Update(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := repo.Create(ctx, second); err != nil {
		t.Errorf("Create() after cancel error = %v, want nil", err)
	}

	// Empty keys never collide.
	third := newWaitlisted("reg-3", "tier-1", "", time.Now())
	fourth := newWaitlisted("reg-4", "tier-1", "", time.Now())
	if err := repo.Create(ctx, third); err != nil {
		t.Fatal(err)
	}
	if err := repo.Create(ctx, fourth); err != nil {
		t.Errorf("Create() with empty dedupe key error = %v, want nil", err)
	}
}

func TestMemoryRegistrationRepository_UpdateIfStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRegistrationRepository()

	reg := newWaitlisted("reg-1", "tier-1", "", time.Now())
	_ = repo.Create(ctx, reg)

	// Another writer moves the stored row first.
	moved := *reg
	if err := moved.Cancel("other writer"); err != nil {
		t.Fatal(err)
	}
	if err := repo.UpdateIfStatus(ctx, &moved, domain.RegistrationStatusWaitlisted); err != nil {
		t.Fatalf("UpdateIfStatus() error = %v", err)
	}

	// The stale copy's conditional write must lose, and the stored row keeps
	// the first writer's state.
	stale := *reg
	_ = stale.Confirm("qr_stale")
	if err := repo.UpdateIfStatus(ctx, &stale, domain.RegistrationStatusWaitlisted); err != domain.ErrStaleRegistration {
		t.Errorf("UpdateIfStatus() stale error = %v, want ErrStaleRegistration", err)
	}
	stored, _ := repo.GetByID(ctx, "reg-1")
	if !stored.IsCancelled() {
		t.Errorf("stored status = %v, want cancelled", stored.Status)
	}

	ghost := newWaitlisted("ghost", "tier-1", "", time.Now())
	if err := repo.UpdateIfStatus(ctx, ghost, domain.RegistrationStatusWaitlisted); err != domain.ErrRegistrationNotFound {
		t.Errorf("UpdateIfStatus() missing error = %v, want ErrRegistrationNotFound", err)
	}
}

func TestMemoryRegistrationRepository_MarkCheckedInOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRegistrationRepository()

	reg := newWaitlisted("reg-1", "tier-1", "", time.Now())
	if err := reg.Confirm("qr_1"); err != nil {
		t.Fatal(err)
	}
	_ = repo.Create(ctx, reg)

	at := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	got, first, err := repo.MarkCheckedIn(ctx, "reg-1", at)
	if err != nil {
		t.Fatalf("MarkCheckedIn() error = %v", err)
	}
	if !first || !got.CheckedIn || got.CheckedInAt == nil || !got.CheckedInAt.Equal(at) {
		t.Errorf("first check-in = %v, %+v; want first=true at %v", first, got, at)
	}

	// Repeat keeps the original timestamp and reports no transition.
	got, first, err = repo.MarkCheckedIn(ctx, "reg-1", at.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if first || !got.CheckedInAt.Equal(at) {
		t.Errorf("repeat check-in = %v at %v, want first=false at original %v", first, got.CheckedInAt, at)
	}

	// A waitlisted registration never transitions.
	waiting := newWaitlisted("reg-2", "tier-1", "", time.Now())
	_ = repo.Create(ctx, waiting)
	got, first, err = repo.MarkCheckedIn(ctx, "reg-2", at)
	if err != nil {
		t.Fatal(err)
	}
	if first || got.CheckedIn {
		t.Errorf("waitlisted check-in = %v, checked_in=%v; want no transition", first, got.CheckedIn)
	}
}

func TestMemoryEventRepository_AdjustEventCounters(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryEventRepository()

	event := &domain.Event{ID: "event-1", Name: "Launch", Capacity: 100}
	if err := repo.CreateEvent(ctx, event); err != nil {
		t.Fatal(err)
	}

	if err := repo.AdjustEventCounters(ctx, "event-1", 2, 1); err != nil {
		t.Fatalf("AdjustEventCounters() error = %v", err)
	}
	got, _ := repo.GetEvent(ctx, "event-1")
	if got.RegisteredCount != 2 || got.WaitlistCount != 1 {
		t.Errorf("counters = %d/%d, want 2/1", got.RegisteredCount, got.WaitlistCount)
	}

	// Deltas floor at zero rather than going negative.
	if err := repo.AdjustEventCounters(ctx, "event-1", -5, -5); err != nil {
		t.Fatal(err)
	}
	got, _ = repo.GetEvent(ctx, "event-1")
	if got.RegisteredCount != 0 || got.WaitlistCount != 0 {
		t.Errorf("counters = %d/%d after floor, want 0/0", got.RegisteredCount, got.WaitlistCount)
	}

	if err := repo.AdjustEventCounters(ctx, "ghost", 1, 0); err != domain.ErrEventNotFound {
		t.Errorf("AdjustEventCounters() missing error = %v, want ErrEventNotFound", err)
	}
}

func TestMemoryRegistrationRepository_UpdateMissing(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRegistrationRepository()

	reg := newWaitlisted("ghost", "tier-1", "", time.Now())
	if err := repo.Update(ctx, reg); err != domain.ErrRegistrationNotFound {
		t.Errorf("Update() error = %v, want ErrRegistrationNotFound", err)
	}
}

func TestMemoryRegistrationRepository_ListByUser(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRegistrationRepository()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"reg-a", "reg-b", "reg-c"} {
		reg := newWaitlisted(id, "tier-1", "", base.Add(time.Duration(i)*time.Minute))
		reg.UserID = "user-1"
		_ = repo.Create(ctx, reg)
	}

	regs, err := repo.ListByUser(ctx, "user-1", 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(regs) != 2 || regs[0].ID != "reg-c" || regs[1].ID != "reg-b" {
		t.Errorf("ListByUser() = %v, want newest first reg-c, reg-b", regs)
	}

	regs, _ = repo.ListByUser(ctx, "user-1", 2, 2)
	if len(regs) != 1 || regs[0].ID != "reg-a" {
		t.Errorf("ListByUser(offset 2) = %v, want reg-a", regs)
	}
}

package domain

import (
	"testing"
	"time"
)

func TestRegistrationStatus_IsValid(t *testing.T) {
	tests := []struct {
		name   string
		status RegistrationStatus
		want   bool
	}{
		{"pending is valid", RegistrationStatusPending, true},
		{"confirmed is valid", RegistrationStatusConfirmed, true},
		{"waitlisted is valid", RegistrationStatusWaitlisted, true},
		{"cancelled is valid", RegistrationStatusCancelled, true},
		{"unknown is invalid", RegistrationStatus("unknown"), false},
		{"empty is invalid", RegistrationStatus(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.IsValid(); got != tt.want {
				t.Errorf("RegistrationStatus.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func newPendingRegistration() *Registration {
	now := time.Now()
	return &Registration{
		ID:            "reg-1",
		EventID:       "evt-1",
		UserID:        "user-1",
		TierID:        "tier-1",
		Status:        RegistrationStatusPending,
		PaymentStatus: PaymentStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestRegistration_Confirm(t *testing.T) {
	reg := newPendingRegistration()

	if err := reg.Confirm("qr-abc"); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if reg.Status != RegistrationStatusConfirmed {
		t.Errorf("Status = %v, want confirmed", reg.Status)
	}
	if reg.QRCode != "qr-abc" {
		t.Errorf("QRCode = %v, want qr-abc", reg.QRCode)
	}
	if reg.ConfirmedAt == nil {
		t.Error("ConfirmedAt not set")
	}
}

func TestRegistration_Confirm_KeepsExistingQRCode(t *testing.T) {
	reg := newPendingRegistration()
	reg.QRCode = "qr-original"

	if err := reg.Confirm("qr-new"); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if reg.QRCode != "qr-original" {
		t.Errorf("QRCode = %v, want qr-original", reg.QRCode)
	}
}

func TestRegistration_Confirm_FromWaitlisted(t *testing.T) {
	reg := newPendingRegistration()
	if err := reg.Waitlist(); err != nil {
		t.Fatalf("Waitlist() error = %v", err)
	}
	if err := reg.Confirm("qr-promoted"); err != nil {
		t.Fatalf("Confirm() from waitlisted error = %v", err)
	}
	if reg.Status != RegistrationStatusConfirmed {
		t.Errorf("Status = %v, want confirmed", reg.Status)
	}
}

func TestRegistration_Cancel_IsTerminal(t *testing.T) {
	reg := newPendingRegistration()
	if err := reg.Cancel("user request"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	firstCancelledAt := reg.CancelledAt

	// Second cancel is a no-op, not an error.
	if err := reg.Cancel("again"); err != nil {
		t.Fatalf("Cancel() repeat error = %v", err)
	}
	if reg.CancelledAt != firstCancelledAt {
		t.Error("repeat cancel changed CancelledAt")
	}
	if reg.StatusReason != "user request" {
		t.Errorf("StatusReason = %v, want original reason", reg.StatusReason)
	}

	// Nothing leaves cancelled.
	if err := reg.Confirm("qr"); err != ErrInvalidTransition {
		t.Errorf("Confirm() after cancel error = %v, want ErrInvalidTransition", err)
	}
	if err := reg.Waitlist(); err != ErrInvalidTransition {
		t.Errorf("Waitlist() after cancel error = %v, want ErrInvalidTransition", err)
	}
}

func TestRegistration_NoReentryToPending(t *testing.T) {
	reg := newPendingRegistration()
	if reg.canTransition(RegistrationStatusPending) {
		t.Error("pending -> pending should be illegal")
	}
	_ = reg.Confirm("qr")
	if reg.canTransition(RegistrationStatusPending) {
		t.Error("confirmed -> pending should be illegal")
	}
}

func TestRegistration_MarkCheckedIn(t *testing.T) {
	reg := newPendingRegistration()

	// Not allowed before confirmation.
	if err := reg.MarkCheckedIn(time.Now()); err != ErrNotConfirmed {
		t.Fatalf("MarkCheckedIn() on pending error = %v, want ErrNotConfirmed", err)
	}

	_ = reg.Confirm("qr")
	first := time.Now()
	if err := reg.MarkCheckedIn(first); err != nil {
		t.Fatalf("MarkCheckedIn() error = %v", err)
	}
	if !reg.CheckedIn || reg.CheckedInAt == nil {
		t.Fatal("check-in not recorded")
	}

	// Second call leaves the original timestamp untouched.
	if err := reg.MarkCheckedIn(first.Add(time.Hour)); err != nil {
		t.Fatalf("MarkCheckedIn() repeat error = %v", err)
	}
	if !reg.CheckedInAt.Equal(first) {
		t.Errorf("CheckedInAt = %v, want %v", reg.CheckedInAt, first)
	}
}

func TestRegistration_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Registration)
		wantErr error
	}{
		{"valid", func(r *Registration) {}, nil},
		{"missing id", func(r *Registration) { r.ID = "" }, ErrInvalidRegistrationID},
		{"missing event", func(r *Registration) { r.EventID = " " }, ErrInvalidEventID},
		{"missing user", func(r *Registration) { r.UserID = "" }, ErrInvalidUserID},
		{"missing tier", func(r *Registration) { r.TierID = "" }, ErrInvalidTierID},
		{"bad status", func(r *Registration) { r.Status = "nope" }, ErrInvalidRegistrationStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := newPendingRegistration()
			tt.mutate(reg)
			if err := reg.Validate(); err != tt.wantErr {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTier_OnSaleAt(t *testing.T) {
	now := time.Now()
	start := now.Add(-time.Hour)
	end := now.Add(time.Hour)

	tests := []struct {
		name string
		tier Tier
		at   time.Time
		want bool
	}{
		{"no window is always on sale", Tier{}, now, true},
		{"inside window", Tier{SaleStartDate: &start, SaleEndDate: &end}, now, true},
		{"before start", Tier{SaleStartDate: &start}, start.Add(-time.Minute), false},
		{"at end is closed", Tier{SaleEndDate: &end}, end, false},
		{"open-ended start", Tier{SaleEndDate: &end}, now, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tier.OnSaleAt(tt.at); got != tt.want {
				t.Errorf("OnSaleAt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWave_OpenAt(t *testing.T) {
	now := time.Now()
	wave := Wave{StartDate: now.Add(-time.Minute), EndDate: now.Add(time.Minute)}

	if !wave.OpenAt(now) {
		t.Error("OpenAt(now) = false, want true")
	}
	if !wave.OpenAt(wave.StartDate) {
		t.Error("start is inclusive")
	}
	if wave.OpenAt(wave.EndDate) {
		t.Error("end is exclusive")
	}
}

func TestWave_IncludesTier(t *testing.T) {
	wave := Wave{TierIDs: []string{"tier-1", "tier-2"}}
	if !wave.IncludesTier("tier-2") {
		t.Error("IncludesTier(tier-2) = false, want true")
	}
	if wave.IncludesTier("tier-3") {
		t.Error("IncludesTier(tier-3) = true, want false")
	}
}

package recurring

import (
	"context"
	"errors"
	"testing"
	"time"

	"estate-platform/internal/billing"
	"estate-platform/internal/journal"
	"estate-platform/internal/notify"
	"estate-platform/internal/payments"
)

type fakePayments struct {
	err           error
	utilityCalls  int
	transferCalls int
	keys          []string
}

func (f *fakePayments) PayUtility(_ context.Context, req payments.PayUtilityRequest) (payments.PayUtilityResult, error) {
	f.utilityCalls++
	f.keys = append(f.keys, req.IdempotencyKey)
	return payments.PayUtilityResult{}, f.err
}

func (f *fakePayments) TransferToCluster(_ context.Context, _ payments.TransferRequest) (journal.Transaction, error) {
	f.transferCalls++
	return journal.Transaction{}, f.err
}

type fakeBillPayer struct {
	err   error
	calls int
}

func (f *fakeBillPayer) Pay(_ context.Context, _ billing.PayRequest) (billing.PayResult, error) {
	f.calls++
	return billing.PayResult{}, f.err
}

type fakeLedger struct {
	sufficient bool
}

func (f *fakeLedger) HasSufficientBalance(context.Context, string, string, int64) (bool, error) {
	return f.sufficient, nil
}

type denyLocker struct {
	denied map[string]bool
}

func (l *denyLocker) Acquire(_ context.Context, walletID, _ string) (bool, error) {
	return !l.denied[walletID], nil
}

func (l *denyLocker) Release(context.Context, string, string) error { return nil }

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newService(pay *fakePayments, bills *fakeBillPayer, sufficient bool, events notify.Publisher) *Service {
	return NewService(NewMemoryRepo(), pay, bills, &fakeLedger{sufficient: sufficient}, nil, events)
}

func activePayment(t *testing.T, s *Service, req CreateRequest) RecurringPayment {
	t.Helper()
	rp, err := s.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return rp
}

func baseRequest(start time.Time) CreateRequest {
	return CreateRequest{
		ClusterID:   "est-1",
		UserID:      "user-1",
		WalletID:    "wal-1",
		Title:       "Service charge",
		AmountMinor: 25000,
		Currency:    "NGN",
		Frequency:   FrequencyMonthly,
		StartDate:   start,
	}
}

func TestNextAfter(t *testing.T) {
	base := time.Date(2026, time.March, 15, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		freq Frequency
		want time.Time
	}{
		{FrequencyDaily, time.Date(2026, time.March, 16, 9, 0, 0, 0, time.UTC)},
		{FrequencyWeekly, time.Date(2026, time.March, 22, 9, 0, 0, 0, time.UTC)},
		{FrequencyMonthly, time.Date(2026, time.April, 15, 9, 0, 0, 0, time.UTC)},
		{FrequencyQuarterly, time.Date(2026, time.June, 15, 9, 0, 0, 0, time.UTC)},
		{FrequencyYearly, time.Date(2027, time.March, 15, 9, 0, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		if got := c.freq.NextAfter(base); !got.Equal(c.want) {
			t.Errorf("%s: NextAfter = %v, want %v", c.freq, got, c.want)
		}
	}

	// Quarterly across a year boundary.
	nov := time.Date(2026, time.November, 10, 0, 0, 0, 0, time.UTC)
	if got := FrequencyQuarterly.NextAfter(nov); got.Year() != 2027 || got.Month() != time.February {
		t.Errorf("quarterly over year boundary = %v", got)
	}
}

func TestNextAfterClampsToMonthEnd(t *testing.T) {
	jan31 := time.Date(2025, time.January, 31, 9, 0, 0, 0, time.UTC)

	// A monthly payment anchored on the 31st charges the last day of a
	// shorter month instead of skipping it.
	got := FrequencyMonthly.NextAfter(jan31)
	if want := time.Date(2025, time.February, 28, 9, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("monthly from Jan 31 = %v, want %v", got, want)
	}

	// Leap year keeps the 29th.
	got = FrequencyMonthly.NextAfter(time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC))
	if got.Day() != 29 || got.Month() != time.February {
		t.Errorf("monthly from Jan 31 in a leap year = %v", got)
	}

	// Quarterly from end of May lands on Aug 31, not Sep.
	got = FrequencyQuarterly.NextAfter(time.Date(2025, time.May, 31, 0, 0, 0, 0, time.UTC))
	if got.Month() != time.August || got.Day() != 31 {
		t.Errorf("quarterly from May 31 = %v", got)
	}

	// Yearly from Feb 29 clamps to Feb 28 in the non-leap year.
	got = FrequencyYearly.NextAfter(time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC))
	if got.Year() != 2025 || got.Month() != time.February || got.Day() != 28 {
		t.Errorf("yearly from Feb 29 = %v", got)
	}
}

func TestCreateDefaults(t *testing.T) {
	s := newService(&fakePayments{}, &fakeBillPayer{}, true, nil)
	start := time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)

	rp := activePayment(t, s, baseRequest(start))
	if rp.Status != StatusActive {
		t.Errorf("status = %s, want active", rp.Status)
	}
	if rp.MaxFailedAttempts != 3 {
		t.Errorf("max failed attempts = %d, want default 3", rp.MaxFailedAttempts)
	}
	if !rp.NextPaymentDate.Equal(start) {
		t.Errorf("next payment date = %v, want start date", rp.NextPaymentDate)
	}
}

func TestThreeFailuresPause(t *testing.T) {
	pay := &fakePayments{err: errors.New("provider down")}
	events := &notify.MemoryPublisher{}
	s := newService(pay, &fakeBillPayer{}, true, events)
	now := time.Date(2026, time.September, 1, 8, 0, 0, 0, time.UTC)
	s.clock = fixedClock(now)

	rp := activePayment(t, s, baseRequest(now.AddDate(0, 0, -1)))
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		updated, err := s.ProcessPayment(ctx, "est-1", rp.ID)
		if err == nil {
			t.Fatalf("attempt %d: expected error", i)
		}
		if updated.FailedAttempts != i {
			t.Errorf("attempt %d: failed attempts = %d", i, updated.FailedAttempts)
		}
		if i < 3 && updated.Status != StatusActive {
			t.Errorf("attempt %d: status = %s, want still active", i, updated.Status)
		}
		if i == 3 && updated.Status != StatusPaused {
			t.Errorf("attempt 3: status = %s, want paused", updated.Status)
		}
	}

	// Paused payments are not processed again.
	if _, err := s.ProcessPayment(ctx, "est-1", rp.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}

	var pausedEvents int
	for _, e := range events.Snapshot() {
		if e.Kind == notify.KindRecurringPaused {
			pausedEvents++
		}
	}
	if pausedEvents != 1 {
		t.Errorf("paused notifications = %d, want 1", pausedEvents)
	}
}

func TestResumeResetsFailures(t *testing.T) {
	pay := &fakePayments{err: errors.New("provider down")}
	s := newService(pay, &fakeBillPayer{}, true, nil)
	now := time.Date(2026, time.September, 1, 8, 0, 0, 0, time.UTC)
	s.clock = fixedClock(now)
	ctx := context.Background()

	rp := activePayment(t, s, baseRequest(now.AddDate(0, 0, -1)))
	for i := 0; i < 3; i++ {
		s.ProcessPayment(ctx, "est-1", rp.ID)
	}

	resumed, err := s.Resume(ctx, "est-1", rp.ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Status != StatusActive || resumed.FailedAttempts != 0 {
		t.Errorf("resumed = %s/%d, want active/0", resumed.Status, resumed.FailedAttempts)
	}

	// Next attempt succeeds and advances the schedule.
	pay.err = nil
	after, err := s.ProcessPayment(ctx, "est-1", rp.ID)
	if err != nil {
		t.Fatalf("process after resume: %v", err)
	}
	if after.FailedAttempts != 0 || after.TotalPayments != 1 {
		t.Errorf("after = %d failures/%d payments, want 0/1", after.FailedAttempts, after.TotalPayments)
	}
	if !after.NextPaymentDate.After(now) {
		t.Errorf("schedule not advanced: %v", after.NextPaymentDate)
	}
}

func TestSpendingLimitAndInsufficiency(t *testing.T) {
	s := newService(&fakePayments{}, &fakeBillPayer{}, true, nil)
	now := time.Date(2026, time.September, 1, 8, 0, 0, 0, time.UTC)
	s.clock = fixedClock(now)
	ctx := context.Background()

	req := baseRequest(now)
	req.SpendingLimitMinor = 10000 // below the 25000 amount
	rp := activePayment(t, s, req)

	updated, err := s.ProcessPayment(ctx, "est-1", rp.ID)
	if !errors.Is(err, ErrSpendingLimit) {
		t.Fatalf("err = %v, want ErrSpendingLimit", err)
	}
	if updated.FailedAttempts != 1 {
		t.Errorf("failed attempts = %d, want 1", updated.FailedAttempts)
	}

	broke := newService(&fakePayments{}, &fakeBillPayer{}, false, nil)
	broke.clock = fixedClock(now)
	rp2 := activePayment(t, broke, baseRequest(now))
	if _, err := broke.ProcessPayment(ctx, "est-1", rp2.ID); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
}

func TestExpiresPastEndDate(t *testing.T) {
	pay := &fakePayments{}
	s := newService(pay, &fakeBillPayer{}, true, nil)
	now := time.Date(2026, time.September, 1, 8, 0, 0, 0, time.UTC)
	s.clock = fixedClock(now)
	ctx := context.Background()

	end := now.AddDate(0, 0, -1)
	req := baseRequest(now.AddDate(0, -1, 0))
	req.EndDate = &end
	rp := activePayment(t, s, req)

	updated, err := s.ProcessPayment(ctx, "est-1", rp.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if updated.Status != StatusExpired {
		t.Errorf("status = %s, want expired", updated.Status)
	}
	if pay.utilityCalls+pay.transferCalls != 0 {
		t.Error("expired payment still attempted a charge")
	}
}

func TestSuccessExpiresWhenNextExceedsEndDate(t *testing.T) {
	pay := &fakePayments{}
	s := newService(pay, &fakeBillPayer{}, true, nil)
	now := time.Date(2026, time.September, 1, 8, 0, 0, 0, time.UTC)
	s.clock = fixedClock(now)

	end := now.AddDate(0, 0, 10) // next month falls past this
	req := baseRequest(now)
	req.EndDate = &end
	rp := activePayment(t, s, req)

	updated, err := s.ProcessPayment(context.Background(), "est-1", rp.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if updated.Status != StatusExpired {
		t.Errorf("status = %s, want expired after final payment", updated.Status)
	}
	if updated.TotalPayments != 1 {
		t.Errorf("total payments = %d, want 1", updated.TotalPayments)
	}
}

func TestUtilityRouting(t *testing.T) {
	pay := &fakePayments{}
	s := newService(pay, &fakeBillPayer{}, true, nil)
	now := time.Date(2026, time.September, 1, 8, 0, 0, 0, time.UTC)
	s.clock = fixedClock(now)

	req := baseRequest(now)
	req.UtilityProviderID = "up-1"
	req.CustomerID = "12345678901"
	rp := activePayment(t, s, req)

	if _, err := s.ProcessPayment(context.Background(), "est-1", rp.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	if pay.utilityCalls != 1 || pay.transferCalls != 0 {
		t.Errorf("calls = %d utility/%d transfer, want 1/0", pay.utilityCalls, pay.transferCalls)
	}
	if len(pay.keys) != 1 || pay.keys[0] == "" {
		t.Error("utility attempt missing idempotency key")
	}
}

func TestBillRouting(t *testing.T) {
	bills := &fakeBillPayer{}
	s := newService(&fakePayments{}, bills, true, nil)
	now := time.Date(2026, time.September, 1, 8, 0, 0, 0, time.UTC)
	s.clock = fixedClock(now)

	req := baseRequest(now)
	req.BillID = "bill-1"
	rp := activePayment(t, s, req)

	if _, err := s.ProcessPayment(context.Background(), "est-1", rp.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	if bills.calls != 1 {
		t.Errorf("bill payer calls = %d, want 1", bills.calls)
	}
}

func TestProcessDueSweep(t *testing.T) {
	pay := &fakePayments{}
	locker := &denyLocker{denied: map[string]bool{"wal-locked": true}}
	s := NewService(NewMemoryRepo(), pay, &fakeBillPayer{}, &fakeLedger{sufficient: true}, locker, nil)
	now := time.Date(2026, time.September, 1, 8, 0, 0, 0, time.UTC)
	s.clock = fixedClock(now)
	ctx := context.Background()

	due := baseRequest(now.AddDate(0, 0, -1))
	activePayment(t, s, due)

	locked := baseRequest(now.AddDate(0, 0, -1))
	locked.WalletID = "wal-locked"
	activePayment(t, s, locked)

	future := baseRequest(now.AddDate(0, 0, 5))
	activePayment(t, s, future)

	res, err := s.ProcessDue(ctx, "est-1")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Processed != 1 || res.Skipped != 1 || res.Failed != 0 || res.Paused != 0 {
		t.Errorf("result = %+v, want 1 processed, 1 skipped", res)
	}
}

func TestRemindUpcoming(t *testing.T) {
	events := &notify.MemoryPublisher{}
	s := newService(&fakePayments{}, &fakeBillPayer{}, true, events)
	now := time.Date(2026, time.September, 1, 8, 0, 0, 0, time.UTC)
	s.clock = fixedClock(now)
	ctx := context.Background()

	activePayment(t, s, baseRequest(now.AddDate(0, 0, -1))) // already due, no reminder
	activePayment(t, s, baseRequest(now.AddDate(0, 0, 2)))  // inside the window
	activePayment(t, s, baseRequest(now.AddDate(0, 0, 20))) // outside

	n, err := s.RemindUpcoming(ctx, "est-1", 72*time.Hour)
	if err != nil {
		t.Fatalf("remind: %v", err)
	}
	if n != 1 {
		t.Errorf("reminders = %d, want 1", n)
	}
	snap := events.Snapshot()
	if len(snap) != 1 || snap[0].Kind != notify.KindRecurringDueSoon {
		t.Errorf("events = %+v", snap)
	}
}

package platform

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// fakeClock drives now/sleep without real waiting.
type fakeClock struct {
	current time.Time
	slept   []time.Duration
}

func (c *fakeClock) now() time.Time { return c.current }

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.slept = append(c.slept, d)
	c.current = c.current.Add(d)
	return nil
}

func fakePlatform() (*Platform, *fakeClock) {
	clock := &fakeClock{current: time.Unix(1000, 0)}
	p := New(nil)
	p.now = clock.now
	p.sleep = clock.sleep
	return p, clock
}

func TestSleepZeroReturnsImmediately(t *testing.T) {
	p := New(nil)
	start := time.Now()
	if err := p.Sleep(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("zero sleep blocked")
	}
}

func TestSleepHonorsCancelledContext(t *testing.T) {
	p := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestPollWithBackoffSucceeds(t *testing.T) {
	p, clock := fakePlatform()
	calls := 0
	err := p.PollWithBackoff(context.Background(), DefaultWaitRange(),
		func(ctx context.Context) (bool, error) {
			calls++
			return calls == 3, nil
		})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if len(clock.slept) != 2 {
		t.Fatalf("sleeps = %d, want 2", len(clock.slept))
	}
	if clock.slept[1] < clock.slept[0] {
		t.Fatal("poll interval must not shrink")
	}
}

func TestPollWithBackoffTimesOut(t *testing.T) {
	p, _ := fakePlatform()
	wait := WaitRange{Min: time.Second, Max: time.Second, Timeout: 3 * time.Second, Factor: 2}
	err := p.PollWithBackoff(context.Background(), wait,
		func(ctx context.Context) (bool, error) { return false, nil })
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestPollWithBackoffPropagatesCheckError(t *testing.T) {
	p, _ := fakePlatform()
	boom := errors.New("boom")
	err := p.PollWithBackoff(context.Background(), DefaultWaitRange(),
		func(ctx context.Context) (bool, error) { return false, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
}

func TestPollWithBackoffMaxIterations(t *testing.T) {
	p, _ := fakePlatform()
	wait := WaitRange{Min: time.Millisecond, Timeout: time.Hour, Factor: 2, MaxIterations: 4}
	calls := 0
	err := p.PollWithBackoff(context.Background(), wait,
		func(ctx context.Context) (bool, error) {
			calls++
			return false, nil
		})
	if err == nil {
		t.Fatal("expected iteration limit error")
	}
	if calls != 4 {
		t.Fatalf("calls = %d, want 4", calls)
	}
}

func TestWorkingDirectoryRestore(t *testing.T) {
	original, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()

	wd, err := Enter(dir)
	if err != nil {
		t.Fatal(err)
	}
	inside, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	// TempDir may be a symlink, compare resolved paths.
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatal(err)
	}
	if insideResolved, _ := filepath.EvalSymlinks(inside); insideResolved != resolved {
		t.Fatalf("cwd = %s, want %s", inside, dir)
	}

	if err := wd.Restore(); err != nil {
		t.Fatal(err)
	}
	restored, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if restored != original {
		t.Fatalf("cwd = %s, want %s", restored, original)
	}
}

func writeSupply(t *testing.T, root, name, kind, status string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "type"), []byte(kind+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if status != "" {
		if err := os.WriteFile(filepath.Join(dir, "status"), []byte(status+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestIsBatteryPowered(t *testing.T) {
	p := New(nil)
	p.powerSupplyPath = filepath.Join(t.TempDir(), "missing")
	if p.IsBatteryPowered() {
		t.Error("missing sysfs tree must report false")
	}

	root := t.TempDir()
	p.powerSupplyPath = root
	writeSupply(t, root, "AC", "Mains", "")
	writeSupply(t, root, "BAT0", "Battery", "Full")
	if p.IsBatteryPowered() {
		t.Error("charged battery must report false")
	}

	writeSupply(t, root, "BAT1", "Battery", "Discharging")
	if !p.IsBatteryPowered() {
		t.Error("discharging battery must report true")
	}
}

func TestDurationsMeasure(t *testing.T) {
	clock := &fakeClock{current: time.Unix(0, 0)}
	d := NewDurations()
	d.now = clock.now

	stop := d.Measure("setup")
	clock.current = clock.current.Add(3 * time.Second)
	stop()

	got, ok := d.Get("setup")
	if !ok || got != 3*time.Second {
		t.Fatalf("setup = %v, %v", got, ok)
	}
	if d.Len() != 1 {
		t.Fatalf("len = %d, want 1", d.Len())
	}
}

func TestDurationsDuplicatePanics(t *testing.T) {
	d := NewDurations()
	d.Set("run", time.Second)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate duration")
		}
	}()
	d.Set("run", 2*time.Second)
}

func TestDurationsMeasureDuplicatePanics(t *testing.T) {
	d := NewDurations()
	d.Set("run", time.Second)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate measurement")
		}
	}()
	d.Measure("run")
}

func TestDurationsToJSON(t *testing.T) {
	d := NewDurations()
	d.Set("setup", 1500*time.Millisecond)
	d.Set("run", 2*time.Second)

	got := d.ToJSON()
	if got["setup"] != 1.5 || got["run"] != 2.0 {
		t.Fatalf("ToJSON = %v", got)
	}
}

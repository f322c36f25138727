// Package platform abstracts the host a benchmark session runs on:
// sleeping, binary lookup, scoped directory changes and the machine
// details recorded alongside results.
package platform

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Platform is the local host. Probes and the runner go through it for
// anything host-dependent so tests can substitute timing and lookups.
type Platform struct {
	logger *slog.Logger

	// now, sleep and powerSupplyPath are swappable for tests.
	now             func() time.Time
	sleep           func(ctx context.Context, d time.Duration) error
	powerSupplyPath string
}

// New returns a Platform for the local host. A nil logger uses the
// default slog logger.
func New(logger *slog.Logger) *Platform {
	if logger == nil {
		logger = slog.Default()
	}
	return &Platform{
		logger:          logger,
		now:             time.Now,
		sleep:           sleepContext,
		powerSupplyPath: "/sys/class/power_supply",
	}
}

// ShortName identifies the host OS in results ("linux", "darwin",
// "windows").
func (p *Platform) ShortName() string { return runtime.GOOS }

// Machine returns the host architecture.
func (p *Platform) Machine() string { return runtime.GOARCH }

func (p *Platform) IsMacOS() bool { return runtime.GOOS == "darwin" }
func (p *Platform) IsLinux() bool { return runtime.GOOS == "linux" }
func (p *Platform) IsWin() bool   { return runtime.GOOS == "windows" }
func (p *Platform) IsPosix() bool { return p.IsMacOS() || p.IsLinux() }

// Now returns the current time.
func (p *Platform) Now() time.Time { return p.now() }

// Sleep pauses for d or until the context is cancelled. A zero or
// negative duration returns immediately.
func (p *Platform) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	p.logger.Debug("wait", "duration", d)
	return p.sleep(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsBatteryPowered reports whether the host is currently discharging a
// battery. Detection reads the linux power-supply sysfs tree; hosts
// without one (desktops, containers, other OSes) report false.
func (p *Platform) IsBatteryPowered() bool {
	supplies, err := os.ReadDir(p.powerSupplyPath)
	if err != nil {
		return false
	}
	for _, supply := range supplies {
		dir := filepath.Join(p.powerSupplyPath, supply.Name())
		kind, err := os.ReadFile(filepath.Join(dir, "type"))
		if err != nil || strings.TrimSpace(string(kind)) != "Battery" {
			continue
		}
		status, err := os.ReadFile(filepath.Join(dir, "status"))
		if err == nil && strings.TrimSpace(string(status)) == "Discharging" {
			return true
		}
	}
	return false
}

// Which resolves a binary on PATH, returning "" when not found.
func (p *Platform) Which(binary string) string {
	path, err := exec.LookPath(binary)
	if err != nil {
		return ""
	}
	return path
}

// SystemDetails collects the host facts written into results.json.
func (p *Platform) SystemDetails() map[string]any {
	return map[string]any{
		"machine": p.Machine(),
		"os": map[string]any{
			"system": runtime.GOOS,
		},
		"runtime": map[string]any{
			"version": runtime.Version(),
		},
		"cpu": map[string]any{
			"logical cores": runtime.NumCPU(),
		},
	}
}

package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeTempConfig(t, "label: desk\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Label != "desk" {
		t.Fatalf("label=%q want desk", cfg.Label)
	}
	if cfg.Motion.WindowSize != 40 || cfg.Motion.Threshold != 1.0 {
		t.Fatalf("motion=%+v want window 40 threshold 1", cfg.Motion)
	}
	if cfg.Source.Kind != SourceIMU || cfg.Source.IMU.I2CBus != 1 || cfg.Source.IMU.Interval != 60*time.Millisecond {
		t.Fatalf("source=%+v want imu defaults", cfg.Source)
	}
	if cfg.Store.Path == "" || cfg.Web.Listen != ":8080" {
		t.Fatalf("store=%+v web=%+v", cfg.Store, cfg.Web)
	}
	if cfg.Sync.Interval != 5*time.Minute || cfg.Sync.Batch != 100 || cfg.Sync.Topic == "" {
		t.Fatalf("sync=%+v want defaults", cfg.Sync)
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	path := writeTempConfig(t, "")
	if _, err := Load(path); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "UnknownSource",
			body: "source:\n  kind: camera\n",
			want: "source.kind must be one of imu, serial, replay, sim",
		},
		{
			name: "SerialRequiresPort",
			body: "source:\n  kind: serial\n",
			want: "source.serial.port is required when source.kind is 'serial'",
		},
		{
			name: "ReplayRequiresPath",
			body: "source:\n  kind: replay\n",
			want: "source.replay.path is required when source.kind is 'replay'",
		},
		{
			name: "ReplayNegativeInterval",
			body: "source:\n  kind: replay\n  replay:\n    path: x.csv\n    interval: -1s\n",
			want: "source.replay.interval must be >= 0",
		},
		{
			name: "NegativeWindow",
			body: "motion:\n  window_size: -3\n",
			want: "motion.window_size must be > 0",
		},
		{
			name: "NegativeThreshold",
			body: "motion:\n  threshold: -0.5\n",
			want: "motion.threshold must be > 0",
		},
		{
			name: "SyncRequiresBroker",
			body: "sync:\n  enable: true\n",
			want: "sync.broker is required when sync.enable is true",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTempConfig(t, tc.body)
			_, err := Load(path)
			requireErrEq(t, err, tc.want)
		})
	}
}

func TestLoad_SourceDefaults(t *testing.T) {
	cfg, err := Parse([]byte("source:\n  kind: serial\n  serial:\n    port: /dev/ttyUSB0\n"))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if cfg.Source.Serial.Baud != 115200 {
		t.Fatalf("baud=%d want 115200", cfg.Source.Serial.Baud)
	}

	cfg, err = Parse([]byte("source:\n  kind: sim\n"))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if cfg.Source.Sim.Still != 10*time.Second || cfg.Source.Sim.Moving != 5*time.Second {
		t.Fatalf("sim=%+v want defaults", cfg.Source.Sim)
	}
}

func TestLoad_RejectsUnknownField(t *testing.T) {
	path := writeTempConfig(t, "motion:\n  window: 40\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "field window not found") {
		t.Fatalf("err=%v want unknown field error", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); !os.IsNotExist(err) {
		t.Fatalf("err=%v want not-exist", err)
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := writeTempConfig(t, "label: before\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c Config) { changed <- c }, nil)
	}()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case c := <-changed:
			if c.Label != "after" {
				// A write can be observed mid-truncate.
				continue
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("Watch() error: %v", err)
			}
			return
		case <-tick.C:
			// The watcher may not be registered yet; keep rewriting.
			if err := os.WriteFile(path, []byte("label: after\n"), 0o644); err != nil {
				t.Fatalf("WriteFile() error: %v", err)
			}
		case <-deadline:
			t.Fatalf("timed out waiting for reload")
		}
	}
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "motionsense.example.yaml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Source.Kind != SourceIMU || cfg.Source.IMU.Addr != 0x68 || cfg.Source.IMU.Interval != 60*time.Millisecond {
		t.Fatalf("source=%+v", cfg.Source)
	}
	if cfg.Motion.WindowSize != 40 || cfg.Motion.Threshold != 1.0 {
		t.Fatalf("motion=%+v", cfg.Motion)
	}
	if cfg.Log.BufferLines != 500 || cfg.Sync.Enable {
		t.Fatalf("log=%+v sync=%+v", cfg.Log, cfg.Sync)
	}
}

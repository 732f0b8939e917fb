package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.IsFirstRun() {
		t.Error("expected first run on a fresh directory")
	}
	if _, err := os.Stat(filepath.Join(dir, DefaultConfigFile)); err != nil {
		t.Fatalf("default config not written: %v", err)
	}

	engine := cfg.GetEngine()
	if engine.MinContribution != 5000 {
		t.Errorf("MinContribution = %d, want 5000", engine.MinContribution)
	}
	if engine.InactiveTimeout() != time.Minute {
		t.Errorf("InactiveTimeout = %v, want 1m", engine.InactiveTimeout())
	}
	if engine.InstanceDebounce() != 0 {
		t.Errorf("InstanceDebounce = %v, want 0", engine.InstanceDebounce())
	}

	if res := Validate(cfg); !res.IsValid() {
		t.Errorf("default config invalid: %v", res.Errors)
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	dir := t.TempDir()
	partial := `{"engine": {"min_contribution": 100, "aoi_wipe_min": 4}, "api": {"port": 9100}}`
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(partial), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.IsFirstRun() {
		t.Error("existing file reported as first run")
	}
	if got := cfg.GetEngine().MinContribution; got != 100 {
		t.Errorf("MinContribution = %d, want 100", got)
	}
	if got := cfg.GetEngine().AOIWipeRatio; got != 0.8 {
		t.Errorf("AOIWipeRatio default lost: %v", got)
	}
	if got := cfg.GetAPI().Port; got != 9100 {
		t.Errorf("API port = %d, want 9100", got)
	}

	// Re-save fills in the missing keys.
	data, _ := os.ReadFile(filepath.Join(dir, DefaultConfigFile))
	if !strings.Contains(string(data), "subprofession_ratio") {
		t.Error("re-saved config is missing default keys")
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("{not json"), 0644)

	if _, err := Load(dir); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidateCatchesBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Capture.Mode = "udp"
	cfg.Engine.AOIWipeRatio = 1.5
	cfg.Engine.MaxFrameSize = 2
	cfg.Storage.CleanupTime = "25:99"
	cfg.MQTT.Enabled = true
	cfg.MQTT.Port = 0

	res := Validate(cfg)
	if res.IsValid() {
		t.Fatal("expected validation errors")
	}

	want := map[string]bool{
		"capture.mode":          false,
		"engine.aoi_wipe_ratio": false,
		"engine.max_frame_size": false,
		"storage.cleanup_time":  false,
		"mqtt.port":             false,
	}
	for _, e := range res.Errors {
		if _, ok := want[e.Field]; ok {
			want[e.Field] = true
		}
	}
	for field, seen := range want {
		if !seen {
			t.Errorf("missing error for %s", field)
		}
	}
}

func TestValidatePcapMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Capture.Mode = CapturePcap

	res := Validate(cfg)
	if res.IsValid() {
		t.Fatal("pcap mode without a file should be invalid")
	}

	cfg.Capture.PcapFile = filepath.Join(t.TempDir(), "missing.pcap")
	res = Validate(cfg)
	if !res.IsValid() {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	if len(res.Warnings) == 0 {
		t.Error("expected warning for a missing capture file")
	}
}

func TestUpdateEngineField(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.UpdateEngineField("min_contribution", 42); err != nil {
		t.Fatal(err)
	}
	if cfg.GetEngine().MinContribution != 42 {
		t.Errorf("MinContribution = %d, want 42", cfg.GetEngine().MinContribution)
	}
	if err := cfg.UpdateEngineField("no_such_key", 1); err == nil {
		t.Error("expected error for unknown key")
	}
	if err := cfg.UpdateEngineField("aoi_wipe_min", "many"); err == nil {
		t.Error("expected error for mistyped value")
	}
}

func TestRuntimeSwitches(t *testing.T) {
	r := NewRuntime(EngineConfig{StartPaused: true, OnlyRecordTarget: 7})

	if !r.Paused() {
		t.Error("runtime should start paused")
	}
	if r.SetPaused(true) {
		t.Error("SetPaused(true) on a paused runtime reported a change")
	}
	if !r.SetPaused(false) {
		t.Error("SetPaused(false) should report a change")
	}
	if r.OnlyRecordTarget() != 7 {
		t.Errorf("OnlyRecordTarget = %d, want 7", r.OnlyRecordTarget())
	}
	r.SetOnlyRecordTarget(0)
	if r.OnlyRecordTarget() != 0 {
		t.Error("target filter not cleared")
	}
}

func TestSetupWizard(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}

	answers := strings.Join([]string{
		"tcp",            // capture mode
		"127.0.0.1:9000", // listen address
		"",               // log dir
		"7",              // retention
		"yes",            // api
		"9200",           // api port
		"no",             // mqtt
	}, "\n") + "\n"

	var out bytes.Buffer
	if err := RunSetupWizard(cfg, strings.NewReader(answers), &out); err != nil {
		t.Fatalf("wizard: %v\n%s", err, out.String())
	}

	reloaded, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got := reloaded.GetCapture().ListenAddr; got != "127.0.0.1:9000" {
		t.Errorf("ListenAddr = %q", got)
	}
	if got := reloaded.GetStorage().RetentionDays; got != 7 {
		t.Errorf("RetentionDays = %d, want 7", got)
	}
	if got := reloaded.GetAPI().Port; got != 9200 {
		t.Errorf("API port = %d, want 9200", got)
	}
}

func TestSetupWizardGivesUpOnInvalidInput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.path = filepath.Join(t.TempDir(), DefaultConfigFile)

	// Bad mode every time, then decline the retry.
	answers := "carrier-pigeon\n\n\nno\nno\nno\n"
	var out bytes.Buffer
	if err := RunSetupWizard(cfg, strings.NewReader(answers), &out); err == nil {
		t.Fatal("expected validation failure")
	}
	if !strings.Contains(out.String(), "capture.mode") {
		t.Error("wizard did not report the failing field")
	}
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const validYAML = `
beamline: HOMS
mirrors:
  - name: m1h
    center: 239.98
    low_limit: 200
    high_limit: 280
    gradient: 0.0012
  - name: m2h
    center: 102.37
    low_limit: 60
    high_limit: 140
    gradient: 0.0008
imagers:
  - name: y1
    z: 103.66
    goal: 480
    floor: 0.2
    threshold: 0.3
  - name: y2
    z: 375.01
    goal: 512
    floor: 0.2
    threshold: 0.3
suspend:
  energy_pv: GDET:FEE1:241:ENRC
  energy_floor: 0.01
  rate_pv: EVNT:SYS0:1:LCLSBEAMRATE
  rate_floor: 2
align:
  tolerance: 5
  timeout: 600s
`

const validCUE = `
beamline: "HOMS"
mirrors: [
	{name: "m1h", center: 239.98, low_limit: 200, high_limit: 280},
	{name: "m2h", center: 102.37, low_limit: 60, high_limit: 140},
]
imagers: [
	{name: "y1", z: 103.66, goal: 480, floor: 0.2, threshold: 0.3},
	{name: "y2", z: 375.01, goal: 512, floor: 0.2, threshold: 0.3},
]
recovery: {
	enabled: true
	sweep_timeout: "90s"
}
`

func writeTempConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	return path
}

func TestLoader_LoadYAML(t *testing.T) {
	path := writeTempConfig(t, "beamline.yaml", validYAML)

	cfg, err := NewLoader().Load(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Beamline != "HOMS" {
		t.Errorf("Expected beamline HOMS, got %q", cfg.Beamline)
	}
	if len(cfg.Mirrors) != 2 || len(cfg.Imagers) != 2 {
		t.Fatalf("Expected 2 mirrors and 2 imagers, got %d and %d", len(cfg.Mirrors), len(cfg.Imagers))
	}

	m, ok := cfg.Mirror("m1h")
	if !ok || m.Center != 239.98 {
		t.Errorf("Unexpected mirror lookup: %+v ok=%v", m, ok)
	}
	im, ok := cfg.Imager("y2")
	if !ok || im.Z != 375.01 {
		t.Errorf("Unexpected imager lookup: %+v ok=%v", im, ok)
	}

	if cfg.Align.Tolerance != 5 {
		t.Errorf("Expected explicit tolerance kept, got %v", cfg.Align.Tolerance)
	}
	if cfg.Align.Timeout.Std() != 600*time.Second {
		t.Errorf("Expected 600s timeout, got %v", cfg.Align.Timeout)
	}
}

func TestLoader_LoadCUE(t *testing.T) {
	path := writeTempConfig(t, "beamline.cue", validCUE)

	cfg, err := NewLoader().Load(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if !cfg.Recovery.Enabled {
		t.Error("Expected recovery enabled")
	}
	if cfg.Recovery.SweepTimeout.Std() != 90*time.Second {
		t.Errorf("Expected 90s sweep timeout, got %v", cfg.Recovery.SweepTimeout)
	}
}

func TestLoader_LoadInlineCUE(t *testing.T) {
	cfg, err := NewLoader().LoadInlineCUE(validCUE)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.Beamline != "HOMS" {
		t.Errorf("Expected beamline HOMS, got %q", cfg.Beamline)
	}
}

func TestLoader_AppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, "beamline.yaml", validYAML)

	cfg, err := NewLoader().Load(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Align.Averages != DefaultAverages {
		t.Errorf("Expected default averages %d, got %d", DefaultAverages, cfg.Align.Averages)
	}
	if cfg.Align.MaxWalks != DefaultMaxWalks {
		t.Errorf("Expected default max walks %d, got %d", DefaultMaxWalks, cfg.Align.MaxWalks)
	}
	if cfg.Recovery.Samples != DefaultSamples {
		t.Errorf("Expected default samples %d, got %d", DefaultSamples, cfg.Recovery.Samples)
	}
	if cfg.Recovery.SweepTimeout != DefaultSweepTimeout {
		t.Errorf("Expected default sweep timeout, got %v", cfg.Recovery.SweepTimeout)
	}
	if cfg.Suspend.PollInterval != DefaultPollInterval {
		t.Errorf("Expected default poll interval, got %v", cfg.Suspend.PollInterval)
	}
}

func TestLoader_UnsupportedExtension(t *testing.T) {
	path := writeTempConfig(t, "beamline.toml", "beamline = 'HOMS'")

	if _, err := NewLoader().Load(path); err == nil {
		t.Fatal("Expected unsupported format error")
	}
}

func TestLoader_MissingRequiredFields(t *testing.T) {
	_, err := NewLoader().LoadInlineCUE(`beamline: "HOMS"`)
	if err == nil {
		t.Fatal("Expected validation error for missing devices")
	}
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("Expected ValidationError, got %T: %v", err, err)
	}
}

func TestLoader_DuplicateDeviceNames(t *testing.T) {
	_, err := NewLoader().LoadInlineCUE(`
beamline: "HOMS"
mirrors: [
	{name: "m1h", center: 240, low_limit: 200, high_limit: 280},
	{name: "m1h", center: 100, low_limit: 60, high_limit: 140},
]
imagers: [{name: "y1", z: 100, goal: 480}]
`)
	if err == nil {
		t.Fatal("Expected duplicate name error")
	}
	var verr ValidationError
	if !errors.As(err, &verr) || verr.Path != "mirrors[1].name" {
		t.Errorf("Expected error at mirrors[1].name, got %v", err)
	}
}

func TestLoader_CenterOutsideLimits(t *testing.T) {
	_, err := NewLoader().LoadInlineCUE(`
beamline: "HOMS"
mirrors: [{name: "m1h", center: 300, low_limit: 200, high_limit: 280}]
imagers: [{name: "y1", z: 100, goal: 480}]
`)
	if err == nil {
		t.Fatal("Expected center-outside-limits error")
	}
	var verr ValidationError
	if !errors.As(err, &verr) || verr.Path != "mirrors[0].center" {
		t.Errorf("Expected error at mirrors[0].center, got %v", err)
	}
}

func TestLoader_InvalidCUESyntax(t *testing.T) {
	_, err := NewLoader().LoadInlineCUE(`beamline: "HOMS`)
	if err == nil {
		t.Fatal("Expected CUE syntax error")
	}
}

func TestLoader_InvalidYAML(t *testing.T) {
	path := writeTempConfig(t, "bad.yaml", "beamline: [unclosed")

	if _, err := NewLoader().Load(path); err == nil {
		t.Fatal("Expected YAML parse error")
	}
}

func TestDuration_DecodesStringsAndNumbers(t *testing.T) {
	var d Duration
	if err := d.UnmarshalJSON([]byte(`"1m30s"`)); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if d.Std() != 90*time.Second {
		t.Errorf("Expected 90s, got %v", d)
	}

	if err := d.UnmarshalJSON([]byte(`1000000000`)); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if d.Std() != time.Second {
		t.Errorf("Expected 1s, got %v", d)
	}

	if err := d.UnmarshalJSON([]byte(`"banana"`)); err == nil {
		t.Error("Expected parse error for invalid duration string")
	}
}

package config

import (
	"time"
)

// EngineConfig tunes the rule evaluation engine. Defaults mirror the values
// the mobile client was calibrated with.
type EngineConfig struct {
	WarmUpPeriod       time.Duration `yaml:"warm_up_period"`
	MinGPSFixes        int           `yaml:"min_gps_fixes"`
	CooldownWindow     time.Duration `yaml:"cooldown_window"`
	FallThreshold      float64       `yaml:"fall_threshold"`
	DecelerationKmh    float64       `yaml:"deceleration_kmh"`
	MinCrashSpeedKmh   float64       `yaml:"min_crash_speed_kmh"`
	MovementThresholdM float64       `yaml:"movement_threshold_m"`
	Countdown          time.Duration `yaml:"countdown"`
	RecordDuration     time.Duration `yaml:"record_duration"`
	SafetyTimeout      time.Duration `yaml:"safety_timeout"`
	SampleBuffer       int           `yaml:"sample_buffer"`
	RulePollInterval   time.Duration `yaml:"rule_poll_interval"`
	CaptureDevicePath  string        `yaml:"capture_device_path"`
	EvidenceTmpDir     string        `yaml:"evidence_tmp_dir"`
}

func loadEngineConfig() *EngineConfig {
	return &EngineConfig{
		WarmUpPeriod:       getEnvAsDuration("ENGINE_WARM_UP_PERIOD", 10*time.Second),
		MinGPSFixes:        getEnvAsInt("ENGINE_MIN_GPS_FIXES", 3),
		CooldownWindow:     getEnvAsDuration("ENGINE_COOLDOWN_WINDOW", 60*time.Second),
		FallThreshold:      getEnvAsFloat64("ENGINE_FALL_THRESHOLD", 18.0),
		DecelerationKmh:    getEnvAsFloat64("ENGINE_DECELERATION_KMH", 20.0),
		MinCrashSpeedKmh:   getEnvAsFloat64("ENGINE_MIN_CRASH_SPEED_KMH", 20.0),
		MovementThresholdM: getEnvAsFloat64("ENGINE_MOVEMENT_THRESHOLD_M", 5.0),
		Countdown:          getEnvAsDuration("ENGINE_COUNTDOWN", 10*time.Second),
		RecordDuration:     getEnvAsDuration("ENGINE_RECORD_DURATION", 10*time.Second),
		SafetyTimeout:      getEnvAsDuration("ENGINE_SAFETY_TIMEOUT", 60*time.Second),
		SampleBuffer:       getEnvAsInt("ENGINE_SAMPLE_BUFFER", 64),
		RulePollInterval:   getEnvAsDuration("ENGINE_RULE_POLL_INTERVAL", 30*time.Second),
		CaptureDevicePath:  getEnv("ENGINE_CAPTURE_DEVICE", "/dev/video0"),
		EvidenceTmpDir:     getEnv("ENGINE_EVIDENCE_TMP_DIR", ""),
	}
}

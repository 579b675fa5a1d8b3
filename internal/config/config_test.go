package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"skirmish/server/internal/animation"
	"skirmish/server/internal/command"
	"skirmish/server/logging"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Addr)
	require.Equal(t, 15, cfg.TickRate)
	require.Equal(t, 5*time.Second, cfg.TimestampTolerance)
	require.Equal(t, 0.3, cfg.ComboWindowMin)
	require.Equal(t, 1024, cfg.QueueCapacity)
	require.Equal(t, []string{"console"}, cfg.LogSinks)

	table, err := cfg.Animations()
	require.NoError(t, err)
	require.Equal(t, animation.DefaultTable(), table)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SKIRMISH_ADDR", ":9000")
	t.Setenv("SKIRMISH_TIMESTAMP_TOLERANCE", "2500ms")
	t.Setenv("SKIRMISH_LOG_SINKS", "console,json")
	t.Setenv("SKIRMISH_LOG_JSON_PATH", "/tmp/skirmish.jsonl")
	t.Setenv("SKIRMISH_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.Addr)
	require.Equal(t, 2500*time.Millisecond, cfg.TimestampTolerance)

	logCfg := cfg.Logging()
	require.Equal(t, []string{"console", "json"}, logCfg.EnabledSinks)
	require.Equal(t, logging.SeverityDebug, logCfg.MinimumSeverity)
	require.Equal(t, "/tmp/skirmish.jsonl", logCfg.JSON.FilePath)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"SKIRMISH_TICK_RATE":        "0",
		"SKIRMISH_QUEUE_CAPACITY":   "-1",
		"SKIRMISH_LOG_LEVEL":        "loud",
		"SKIRMISH_LOG_SINKS":        "json",
		"SKIRMISH_COMBO_WINDOW_MIN": "-0.1",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestParseAnimations(t *testing.T) {
	table, err := ParseAnimations([]byte(`
animations:
  slash:
    action: animation
    cooldown: combo
    duration: 1.2
    maxStages: 4
    comboWindow: 0.6
    strengthCost: 8
  walk:
    action: movement
`), 0.3)
	require.NoError(t, err)
	require.Equal(t, animation.Entry{
		Action:       animation.ActionAnimation,
		Cooldown:     animation.CooldownCombo,
		Duration:     1.2,
		MaxStages:    4,
		ComboWindow:  0.6,
		StrengthCost: 8,
	}, table[command.AnimationID("slash")])
	require.Equal(t, animation.ActionMovement, table["walk"].Action)
}

func TestParseAnimationsRejectsShortComboWindow(t *testing.T) {
	_, err := ParseAnimations([]byte(`
animations:
  slash:
    cooldown: combo
    duration: 1
    maxStages: 2
    comboWindow: 0.2
`), 0.3)
	require.ErrorIs(t, err, animation.ErrInvalidComboWindow)
}

func TestParseAnimationsRejectsUnknownFields(t *testing.T) {
	_, err := ParseAnimations([]byte("animations:\n  walk:\n    speed: 3\n"), 0.3)
	require.Error(t, err)
}

func TestLoadAnimationsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "animations.yaml")
	require.NoError(t, os.WriteFile(path, []byte("animations:\n  dodge:\n    duration: 0.5\n"), 0o600))

	cfg := Server{AnimationsFile: path, ComboWindowMin: 0.3}
	table, err := cfg.Animations()
	require.NoError(t, err)
	require.Equal(t, 0.5, table["dodge"].Duration)

	_, err = LoadAnimations(filepath.Join(t.TempDir(), "missing.yaml"), 0.3)
	require.Error(t, err)
}

func TestAnimationsSchemaDescribesEntries(t *testing.T) {
	data, err := json.Marshal(AnimationsSchema())
	require.NoError(t, err)

	var doc struct {
		Properties struct {
			Animations struct {
				MinProperties        int `json:"minProperties"`
				AdditionalProperties struct {
					Required   []string `json:"required"`
					Properties map[string]struct {
						Enum []string `json:"enum"`
					} `json:"properties"`
				} `json:"additionalProperties"`
			} `json:"animations"`
		} `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))

	entry := doc.Properties.Animations.AdditionalProperties
	require.Equal(t, 1, doc.Properties.Animations.MinProperties)
	require.Equal(t, []string{"action", "cooldown"}, entry.Required)
	require.Equal(t, []string{"simple", "combo"}, entry.Properties["cooldown"].Enum)
	require.Contains(t, entry.Properties, "strengthCost")
}

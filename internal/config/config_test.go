package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/core"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"instanceId": "01234567",
		"mqtt": { "host": "192.168.27.66", "port": 1884 }
	}`)

	require.NoError(t, Load(dir))

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, "01234567", GetEngineConfig().InstanceID)
	mc := GetMQTTConfig()
	assert.Equal(t, "tcp://192.168.27.66:1884", mc.Broker())
	assert.Equal(t, "Mario_Kart_8", mc.Prefix)
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./logs", viper.GetString("logsDir"))

	ec := GetEngineConfig()
	assert.Equal(t, "00000000", ec.InstanceID)
	assert.Equal(t, core.RunTraining, ec.Mode)
	assert.True(t, ec.Resolve)
	assert.True(t, ec.AutoStart)
	assert.Equal(t, 10.0, ec.FreeRunRate)
	assert.Equal(t, 6, ec.StepSize)
	assert.Equal(t, 0.9, ec.MatchThreshold)
	assert.Equal(t, 100*time.Millisecond, ec.NavPoll)

	mc := GetMQTTConfig()
	assert.Equal(t, 60*time.Second, mc.KeepAlive)
	assert.Equal(t, "tcp://127.0.0.1:1883", mc.Broker())

	assert.Equal(t, 120*time.Second, GetMonitorConfig().WatchdogTimeout)
	assert.Equal(t, ".", GetMonitorConfig().StatusDir)
	assert.Equal(t, 50*time.Millisecond, GetInputConfig().Hold)
	assert.Equal(t, "127.0.0.1:6543", GetEmulatorConfig().GDBAddress)
	assert.False(t, GetInfluxConfig().Enabled)
	assert.Equal(t, "http://localhost:8086", GetInfluxConfig().URL())
	assert.False(t, GetGraylogConfig().Enabled)
	assert.Equal(t, "mk8gym", GetDBConfig().Database)
	assert.Equal(t, "http://localhost:5000", GetAPIConfig().ServerURL)
	assert.Equal(t, 640, GetCaptureConfig().Width)

	assert.Equal(t, core.DefaultGameSetup(), GetGameSetup())
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")

	var notFound viper.ConfigFileNotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Setenv("MK8GYM_INSTANCE_ID", "cafebabe")
	t.Setenv("MK8GYM_MQTT_HOST", "broker.local")
	t.Setenv("MK8GYM_MODE", "inference")

	require.NoError(t, Load(writeConfig(t, `{"mqtt": {"host": "ignored"}}`)))

	assert.Equal(t, "cafebabe", GetEngineConfig().InstanceID)
	assert.Equal(t, "broker.local", GetMQTTConfig().Host)
	assert.Equal(t, core.RunInference, GetEngineConfig().Mode)
}

func TestGetGameSetup_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{"game": {"MAX_STEP": 200, "COURSE_CUP": 0}}`)))

	g := GetGameSetup()
	assert.Equal(t, int32(200), g.MaxStep)
	assert.Equal(t, int32(0), g.CourseCup)
	assert.Equal(t, int32(15), g.Course)
}

func TestGetString(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	assert.Equal(t, "testValue", GetString("testKey"))
}

func TestGetInt(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testInt", 42)
	assert.Equal(t, 42, GetInt("testInt"))
}

func TestGetBool(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testBool", true)
	assert.Equal(t, true, GetBool("testBool"))
}

func TestGetStorageConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetStorageConfig()
	assert.Equal(t, "memory", cfg.Type)
	assert.Equal(t, "./recordings", cfg.Memory.OutputDir)
	assert.Equal(t, true, cfg.Memory.CompressOutput)
	assert.Equal(t, 3*time.Minute, cfg.SQLite.DumpInterval)
}

func TestGetStorageConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"storage": {
			"type": "sqlite",
			"memory": { "outputDir": "/tmp/out", "compressOutput": false },
			"sqlite": { "path": "/tmp/eps.db", "dumpInterval": "10m" },
			"websocket": { "url": "ws://collector:9000/stream", "secret": "k" }
		}
	}`)
	require.NoError(t, Load(dir))

	sc := GetStorageConfig()
	assert.Equal(t, "sqlite", sc.Type)
	assert.Equal(t, "/tmp/out", sc.Memory.OutputDir)
	assert.Equal(t, false, sc.Memory.CompressOutput)
	assert.Equal(t, "/tmp/eps.db", sc.SQLite.Path)
	assert.Equal(t, 10*time.Minute, sc.SQLite.DumpInterval)
	assert.Equal(t, "ws://collector:9000/stream", sc.Websocket.URL)
	assert.Equal(t, "k", sc.Websocket.Secret)
}

func TestGetOTelConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetOTelConfig()
	assert.Equal(t, false, cfg.Enabled)
	assert.Equal(t, "mk8gym", cfg.ServiceName)
	assert.Equal(t, 5*time.Second, cfg.BatchTimeout)
	assert.Equal(t, "", cfg.Endpoint)
	assert.Equal(t, true, cfg.Insecure)
	assert.Equal(t, ":9464", cfg.MetricsAddr)
}

func TestGetOTelConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"otel": {
			"enabled": true,
			"serviceName": "my-service",
			"batchTimeout": "30s",
			"endpoint": "localhost:4317",
			"insecure": false
		}
	}`)
	require.NoError(t, Load(dir))

	oc := GetOTelConfig()
	assert.Equal(t, true, oc.Enabled)
	assert.Equal(t, "my-service", oc.ServiceName)
	assert.Equal(t, 30*time.Second, oc.BatchTimeout)
	assert.Equal(t, "localhost:4317", oc.Endpoint)
	assert.Equal(t, false, oc.Insecure)
}

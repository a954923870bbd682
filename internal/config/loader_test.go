package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/gauntlet/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldResemble, config.New())
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("GAUNTLET_ADDR", ":8080")
			_ = os.Setenv("GAUNTLET_QUEUE_SIZE", "64")
			_ = os.Setenv("GAUNTLET_WORKER_COUNT", "16")
			_ = os.Setenv("GAUNTLET_STORE", "sqlite")
			_ = os.Setenv("GAUNTLET_SQLITE_PATH", "/tmp/g.db")
			_ = os.Setenv("GAUNTLET_ARTIFACT_WINDOW", "false")
			_ = os.Setenv("GAUNTLET_SIM_FAILURE_RATE", "0.25")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 64)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 16)
				convey.So(cfg.Store, convey.ShouldEqual, config.StoreSQLite)
				convey.So(cfg.SQLitePath, convey.ShouldEqual, "/tmp/g.db")
				convey.So(cfg.ArtifactWindow, convey.ShouldBeFalse)
				convey.So(cfg.SimFailureRate, convey.ShouldEqual, 0.25)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
round_count: 3
clash_rounds: 5
redis_addr: "localhost:6379"
nats_url: "nats://localhost:4222"
sweep_schedule: "@every 1m"
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("GAUNTLET_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file and keep other defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.RoundCount, convey.ShouldEqual, 3)
				convey.So(cfg.ClashRounds, convey.ShouldEqual, 5)
				convey.So(cfg.RedisAddr, convey.ShouldEqual, "localhost:6379")
				convey.So(cfg.NATSURL, convey.ShouldEqual, "nats://localhost:4222")
				convey.So(cfg.SweepSchedule, convey.ShouldEqual, "@every 1m")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 1024)
				convey.So(cfg.Flow().Rounds, convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
worker_count: 24
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("GAUNTLET_CONFIG", tmpFile)
			_ = os.Setenv("GAUNTLET_ADDR", ":8080")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 24)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile("addr: [unclosed")
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("GAUNTLET_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("GAUNTLET_CONFIG", "/nonexistent/gauntlet.yaml")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with an invalid value", func() {
			_ = os.Setenv("GAUNTLET_ROUND_COUNT", "9")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("GAUNTLET_QUEUE_SIZE", "many")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

func clearConfigEnvVars() {
	envVars := []string{
		"GAUNTLET_CONFIG",
		"GAUNTLET_ADDR",
		"GAUNTLET_QUEUE_SIZE",
		"GAUNTLET_WORKER_COUNT",
		"GAUNTLET_STORE",
		"GAUNTLET_SQLITE_PATH",
		"GAUNTLET_ARTIFACT_WINDOW",
		"GAUNTLET_SIM_FAILURE_RATE",
		"GAUNTLET_ROUND_COUNT",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "gauntlet-config-*.yaml")
	if err != nil {
		panic(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	if err := tmpFile.Close(); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}

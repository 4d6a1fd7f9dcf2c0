package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/crudapp/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.StoreDriver, convey.ShouldEqual, "memory")
				convey.So(cfg.CORSAllowedOrigins, convey.ShouldResemble, []string{"http://localhost:3000"})
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("CRUDAPP_ADDR", ":9090")
			_ = os.Setenv("CRUDAPP_STORE_DRIVER", "sqlite")
			_ = os.Setenv("CRUDAPP_SQLITE_PATH", "/tmp/people.db")
			_ = os.Setenv("CRUDAPP_WORKER_COUNT", "4")
			_ = os.Setenv("CRUDAPP_CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.StoreDriver, convey.ShouldEqual, "sqlite")
				convey.So(cfg.SQLitePath, convey.ShouldEqual, "/tmp/people.db")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
				convey.So(cfg.CORSAllowedOrigins, convey.ShouldResemble, []string{"http://a.test", "http://b.test"})
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			tmpFile := createTempConfigFile(`
addr: ":7070"
journal_size: 50
max_changes_limit: 20
cors_allowed_origins:
  - "http://localhost:5173"
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("CRUDAPP_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then file values apply and the rest keep defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.JournalSize, convey.ShouldEqual, 50)
				convey.So(cfg.MaxChangesLimit, convey.ShouldEqual, 20)
				convey.So(cfg.CORSAllowedOrigins, convey.ShouldResemble, []string{"http://localhost:5173"})
				convey.So(cfg.ChangeQueueSize, convey.ShouldEqual, 1024)
			})
		})

		convey.Convey("When both file and environment are set", func() {
			tmpFile := createTempConfigFile("addr: \":7070\"\nworker_count: 8\n")
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("CRUDAPP_CONFIG", tmpFile)
			_ = os.Setenv("CRUDAPP_ADDR", ":6060")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables win", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":6060")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 8)
			})
		})

		convey.Convey("When the YAML file is invalid", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("CRUDAPP_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When the file does not exist", func() {
			_ = os.Setenv("CRUDAPP_CONFIG", "/non/existent/file.yaml")

			cfg, err := config.Load(ctx)

			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When addr is empty", func() {
			_ = os.Setenv("CRUDAPP_ADDR", "")

			cfg, err := config.Load(ctx)

			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When a numeric variable is not a number", func() {
			_ = os.Setenv("CRUDAPP_WORKER_COUNT", "many")

			cfg, err := config.Load(ctx)

			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})
	})
}

func clearConfigEnvVars() {
	for _, envVar := range []string{
		"CRUDAPP_CONFIG",
		"CRUDAPP_ADDR",
		"CRUDAPP_STORE_DRIVER",
		"CRUDAPP_SQLITE_PATH",
		"CRUDAPP_POSTGRES_DSN",
		"CRUDAPP_WORKER_COUNT",
		"CRUDAPP_CORS_ALLOWED_ORIGINS",
	} {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "crudapp-config-*.yaml")
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

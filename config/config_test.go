package config_test

import (
	"os"
	"testing"
	"time"

	"dessert-api/config"

	. "github.com/smartystreets/goconvey/convey"
)

// unsetenv entfernt Variablen für die Dauer des Tests; t.Setenv stellt sie danach wieder her.
func unsetenv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}
}

func TestLoad(t *testing.T) {
	Convey("Given an environment without overrides", t, func() {
		unsetenv(t, "HTTP_PORT", "DATABASE_URL", "UPLOAD_BACKEND", "UPLOAD_DIR", "UPLOAD_URL_PREFIX",
			"UPLOAD_MAX_BYTES", "UPLOAD_SWEEP_GRACE", "DB_CONN_MAX_LIFETIME")

		cfg, err := config.Load()

		Convey("Then the defaults are applied", func() {
			So(err, ShouldBeNil)
			So(cfg.HTTPPort, ShouldEqual, "4000")
			So(cfg.UploadBackend, ShouldEqual, config.UploadBackendLocal)
			So(cfg.UploadDir, ShouldEqual, "uploads")
			So(cfg.UploadURLPrefix, ShouldEqual, "/uploads")
			So(cfg.UploadMaxBytes, ShouldEqual, int64(10<<20))
			So(cfg.UploadSweepGrace, ShouldEqual, time.Hour)
			So(cfg.DBConnMaxLifetime, ShouldEqual, 30*time.Minute)
			So(cfg.UploadKeyPrefix, ShouldEqual, "desserts/")
		})
	})

	Convey("Given the s3 backend without a bucket", t, func() {
		t.Setenv("UPLOAD_BACKEND", "s3")
		t.Setenv("S3_ENDPOINT", "http://localhost:9000")
		t.Setenv("S3_BUCKET", "")

		_, err := config.Load()

		Convey("Then loading fails", func() {
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "S3_BUCKET")
		})
	})

	Convey("Given the s3 backend sweeping the whole bucket", t, func() {
		t.Setenv("UPLOAD_BACKEND", "s3")
		t.Setenv("S3_ENDPOINT", "http://localhost:9000")
		t.Setenv("S3_BUCKET", "shared")
		t.Setenv("UPLOAD_KEY_PREFIX", "/")
		t.Setenv("UPLOAD_SWEEP_SCHEDULE", "@hourly")

		_, err := config.Load()

		Convey("Then loading fails", func() {
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "UPLOAD_KEY_PREFIX")
		})

		Convey("And the sweep is disabled", func() {
			t.Setenv("UPLOAD_SWEEP_SCHEDULE", "")

			_, err := config.Load()

			Convey("Then an empty prefix is accepted", func() {
				So(err, ShouldBeNil)
			})
		})
	})

	Convey("Given an unknown upload backend", t, func() {
		t.Setenv("UPLOAD_BACKEND", "ftp")

		_, err := config.Load()

		Convey("Then loading fails", func() {
			So(err, ShouldNotBeNil)
		})
	})
}

func TestConfig_DSN(t *testing.T) {
	Convey("Given a config with DATABASE_URL", t, func() {
		cfg := &config.Config{DatabaseURL: "postgres://u:p@db:5432/desserts", DBHost: "ignored"}

		Convey("Then the URL is used as is", func() {
			So(cfg.DSN(), ShouldEqual, "postgres://u:p@db:5432/desserts")
		})
	})

	Convey("Given a config built from parts", t, func() {
		cfg := &config.Config{DBHost: "db", DBPort: 5433, DBUser: "app", DBPassword: "secret", DBName: "desserts", DBSSLMode: "disable"}

		Convey("Then all parts end up in the DSN", func() {
			So(cfg.DSN(), ShouldEqual, "host=db user=app dbname=desserts port=5433 sslmode=disable password=secret")
		})
	})
}

func TestConfig_AllowedOrigins(t *testing.T) {
	Convey("Given a comma separated origin list with blanks", t, func() {
		cfg := &config.Config{CORSAllowOrigins: " http://a.test, ,http://b.test "}

		Convey("Then blanks are dropped and entries trimmed", func() {
			So(cfg.AllowedOrigins(), ShouldResemble, []string{"http://a.test", "http://b.test"})
		})
	})
}

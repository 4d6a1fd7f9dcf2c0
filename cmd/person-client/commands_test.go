package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/okian/crudapp/internal/adapters/http/api"
	app "github.com/okian/crudapp/internal/app"
	"github.com/okian/crudapp/internal/client"
	"github.com/okian/crudapp/internal/domain/model"
	"github.com/okian/crudapp/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// runCmd executes the command line against url and returns stdout, log output and the error.
func runCmd(url string, args ...string) (string, string, error) {
	var out, logs bytes.Buffer
	a := newApp()
	a.logOut = &logs
	a.rootCmd.SetOut(&out)
	a.rootCmd.SetErr(&logs)
	a.rootCmd.SetArgs(append([]string{"--url", url}, args...))
	err := a.Execute()
	return out.String(), logs.String(), err
}

func TestPersonClientCommands(t *testing.T) {
	Convey("Given a running person API", t, func() {
		svc := app.New(app.WithWorkerCount(1))
		So(svc.Start(context.Background()), ShouldBeNil)
		defer func() { _ = svc.Stop(context.Background()) }()
		mux := http.NewServeMux()
		srv := api.NewServer(svc, svc)
		srv.Register(context.Background(), mux)
		ts := httptest.NewServer(srv.Handler(mux))
		defer ts.Close()

		Convey("When listing an empty directory", func() {
			out, logs, err := runCmd(ts.URL, "list")

			Convey("Then an empty JSON array is printed and logged", func() {
				So(err, ShouldBeNil)
				var persons []model.Person
				So(json.Unmarshal([]byte(out), &persons), ShouldBeNil)
				So(persons, ShouldBeEmpty)
				So(logs, ShouldContainSubstring, "person list received")
			})
		})

		Convey("When creating, editing and deleting through the CLI", func() {
			out, _, err := runCmd(ts.URL, "create",
				"--first", "Ada", "--last", "Lovelace", "--email", "ada@example.com",
				"--street", "1 Main St", "--city", "London", "--state", "LN", "--zip", "02110",
				"--idempotency-key", "cli-1")
			So(err, ShouldBeNil)
			var res client.CreateResult
			So(json.Unmarshal([]byte(out), &res), ShouldBeNil)
			So(res.Person.PersonID, ShouldEqual, 1)

			out, _, err = runCmd(ts.URL, "edit", "1", "--city", "Paris")
			So(err, ShouldBeNil)
			var edited model.Person
			So(json.Unmarshal([]byte(out), &edited), ShouldBeNil)
			So(edited.City, ShouldEqual, "Paris")
			So(edited.LastName, ShouldEqual, "Lovelace")

			_, _, err = runCmd(ts.URL, "delete", "1")
			So(err, ShouldBeNil)

			Convey("Then get reports the person as missing", func() {
				_, logs, err := runCmd(ts.URL, "get", "1")
				So(err, ShouldNotBeNil)
				So(logs, ShouldContainSubstring, "command failed")
			})
		})

		Convey("When seeding", func() {
			out, _, err := runCmd(ts.URL, "seed", "--count", "12", "--workers", "3")

			Convey("Then the tally is printed", func() {
				So(err, ShouldBeNil)
				var res client.SeedResult
				So(json.Unmarshal([]byte(out), &res), ShouldBeNil)
				So(res.Created, ShouldEqual, 12)
			})
		})

		Convey("When an id argument is malformed", func() {
			_, _, err := runCmd(ts.URL, "get", "abc")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestListAgainstUnreachableServer(t *testing.T) {
	Convey("Given a server that is down", t, func() {
		ts := httptest.NewServer(http.NotFoundHandler())
		url := ts.URL
		ts.Close()

		Convey("When listing", func() {
			out, logs, err := runCmd(url, "list")

			Convey("Then the command fails and logs the error", func() {
				So(err, ShouldNotBeNil)
				So(out, ShouldBeEmpty)
				So(logs, ShouldContainSubstring, "command failed")
			})
		})
	})
}

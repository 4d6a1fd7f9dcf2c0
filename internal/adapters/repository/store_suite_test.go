package repository

import (
	"context"
	"testing"

	"github.com/okian/crudapp/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func person(first, last string) model.Person {
	return model.Person{
		FirstName:     first,
		LastName:      last,
		EmailAddress:  first + "@example.com",
		StreetAddress: "1 Main St",
		City:          "Boston",
		State:         "MA",
		ZipCode:       "02110",
	}
}

func names(ps []model.Person) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.FirstName+" "+p.LastName)
	}
	return out
}

// runStoreSuite checks the Store contract shared by every backend.
func runStoreSuite(t *testing.T, open func(t *testing.T) Store) {
	t.Helper()
	ctx := context.Background()

	Convey("Given an empty store", t, func() {
		s := open(t)
		Reset(func() { _ = s.Close() })

		Convey("Then List returns an empty, non-nil slice", func() {
			ps, err := s.List(ctx)
			So(err, ShouldBeNil)
			So(ps, ShouldNotBeNil)
			So(ps, ShouldBeEmpty)
			So(s.Count(ctx), ShouldEqual, 0)
		})

		Convey("When persons are created", func() {
			idBob, err := s.Create(ctx, person("Bob", "Smith"))
			So(err, ShouldBeNil)
			idAda, err := s.Create(ctx, person("Ada", "Lovelace"))
			So(err, ShouldBeNil)
			idBob2, err := s.Create(ctx, person("Bob", "Smith"))
			So(err, ShouldBeNil)
			idAl, err := s.Create(ctx, person("Ada", "Byron"))
			So(err, ShouldBeNil)

			Convey("Then ids are positive and distinct", func() {
				ids := map[int64]bool{idBob: true, idAda: true, idBob2: true, idAl: true}
				So(len(ids), ShouldEqual, 4)
				for id := range ids {
					So(id, ShouldBeGreaterThan, 0)
				}
				So(s.Count(ctx), ShouldEqual, 4)
			})

			Convey("Then List orders by first name, last name, then id", func() {
				ps, err := s.List(ctx)
				So(err, ShouldBeNil)
				So(names(ps), ShouldResemble, []string{"Ada Byron", "Ada Lovelace", "Bob Smith", "Bob Smith"})
				So(ps[2].PersonID, ShouldBeLessThan, ps[3].PersonID)
			})

			Convey("Then Read returns the stored record", func() {
				p, err := s.Read(ctx, idAda)
				So(err, ShouldBeNil)
				want := person("Ada", "Lovelace")
				want.PersonID = idAda
				So(p, ShouldResemble, want)
			})

			Convey("When a person is renamed", func() {
				p, err := s.Read(ctx, idBob)
				So(err, ShouldBeNil)
				p.FirstName = "Aaron"
				So(s.Update(ctx, p), ShouldBeNil)

				Convey("Then it moves in the listing", func() {
					ps, err := s.List(ctx)
					So(err, ShouldBeNil)
					So(ps[0].PersonID, ShouldEqual, idBob)
					So(ps[0].FirstName, ShouldEqual, "Aaron")
					So(s.Count(ctx), ShouldEqual, 4)
				})
			})

			Convey("When a person is deleted", func() {
				So(s.Delete(ctx, idAda), ShouldBeNil)

				Convey("Then it is gone", func() {
					_, err := s.Read(ctx, idAda)
					So(err, ShouldEqual, ErrNotFound)
					So(s.Count(ctx), ShouldEqual, 3)
				})

				Convey("Then deleting it again is not an error", func() {
					So(s.Delete(ctx, idAda), ShouldBeNil)
				})
			})
		})

		Convey("When names differ only in case", func() {
			_, err := s.Create(ctx, person("alice", "zed"))
			So(err, ShouldBeNil)
			_, err = s.Create(ctx, person("Bob", "Young"))
			So(err, ShouldBeNil)
			_, err = s.Create(ctx, person("bob", "Abel"))
			So(err, ShouldBeNil)

			Convey("Then List compares names byte by byte", func() {
				ps, err := s.List(ctx)
				So(err, ShouldBeNil)
				So(names(ps), ShouldResemble, []string{"Bob Young", "alice zed", "bob Abel"})
			})
		})

		Convey("When reading an unknown id", func() {
			_, err := s.Read(ctx, 999)
			So(err, ShouldEqual, ErrNotFound)
		})

		Convey("When updating an unknown id", func() {
			p := person("Nobody", "Here")
			p.PersonID = 999
			So(s.Update(ctx, p), ShouldEqual, ErrNotFound)
		})

		Convey("When using a non-positive id", func() {
			_, err := s.Read(ctx, 0)
			So(err, ShouldEqual, ErrInvalidID)
			So(s.Delete(ctx, -1), ShouldEqual, ErrInvalidID)
		})
	})
}

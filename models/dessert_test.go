package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"
)

func strPtr(s string) *string { return &s }

func TestDessertPatch_Apply(t *testing.T) {
	Convey("Given a stored dessert", t, func() {
		d := Dessert{
			ID:          7,
			Name:        "Flan",
			Price:       decimal.RequireFromString("3.5"),
			Description: "classic",
			ImageURL:    strPtr("1700000000000-flan.jpg"),
		}

		Convey("When only the price is patched", func() {
			price := decimal.RequireFromString("4.0")
			DessertPatch{Price: &price}.Apply(&d)

			Convey("Then every other field keeps its value", func() {
				So(d.ID, ShouldEqual, uint(7))
				So(d.Name, ShouldEqual, "Flan")
				So(d.Description, ShouldEqual, "classic")
				So(*d.ImageURL, ShouldEqual, "1700000000000-flan.jpg")
				So(d.Price.Equal(decimal.NewFromInt(4)), ShouldBeTrue)
			})
		})

		Convey("When an empty patch is applied", func() {
			before := d
			DessertPatch{}.Apply(&d)

			Convey("Then nothing changes", func() {
				So(d, ShouldResemble, before)
			})
		})

		Convey("When the image is replaced", func() {
			DessertPatch{ImageURL: strPtr("1700000000001-new.png")}.Apply(&d)

			Convey("Then the image points to the new file", func() {
				So(*d.ImageURL, ShouldEqual, "1700000000001-new.png")
			})
		})
	})
}

func TestDessert_JSON(t *testing.T) {
	Convey("Given a dessert without an image", t, func() {
		d := Dessert{ID: 1, Name: "Flan", Price: decimal.NewFromFloat(3.5), Description: "classic"}

		Convey("When it is marshalled", func() {
			raw, err := json.Marshal(d)
			So(err, ShouldBeNil)

			Convey("Then price is a number and image_url is null", func() {
				So(string(raw), ShouldEqual, `{"id":1,"name":"Flan","price":3.5,"description":"classic","image_url":null}`)
			})
		})
	})
}

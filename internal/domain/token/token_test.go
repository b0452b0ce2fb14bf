package token_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/okian/tagcaption/internal/domain/token"
	. "github.com/smartystreets/goconvey/convey"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func isAlphanumeric(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

func TestGenerator(t *testing.T) {
	Convey("Given a default generator", t, func() {
		g := token.NewGenerator()

		Convey("When generating tokens", func() {
			seen := make(map[string]struct{})
			for i := 0; i < 200; i++ {
				tok, err := g.New()
				So(err, ShouldBeNil)
				So(len(tok), ShouldEqual, token.Length)
				So(isAlphanumeric(tok), ShouldBeTrue)
				seen[tok] = struct{}{}
			}

			Convey("Then they should not repeat", func() {
				So(len(seen), ShouldEqual, 200)
			})
		})
	})

	Convey("Given a source that only yields biased bytes at first", t, func() {
		src := bytes.NewReader(append(bytes.Repeat([]byte{255}, token.Length), bytes.Repeat([]byte{0}, token.Length)...))
		g := token.NewGenerator(token.WithSource(src))

		Convey("Then the biased bytes are skipped", func() {
			tok, err := g.New()
			So(err, ShouldBeNil)
			So(tok, ShouldEqual, "AAAAAAAAAAAAAAAAAAAAAAAA")
		})
	})

	Convey("Given a failing source", t, func() {
		g := token.NewGenerator(token.WithSource(failingReader{}))

		Convey("Then New returns the read error", func() {
			tok, err := g.New()
			So(err, ShouldNotBeNil)
			So(tok, ShouldBeEmpty)
		})
	})
}

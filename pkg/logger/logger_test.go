package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/shelf/pkg/logger"
)

var timeZero time.Time

// failingHandler rejects every record.
type failingHandler struct{ slog.Handler }

func (failingHandler) Enabled(context.Context, slog.Level) bool { return true }
func (failingHandler) Handle(context.Context, slog.Record) error {
	return errors.New("sink down")
}

var _ = Describe("Logger", func() {
	Describe("New", func() {
		It("writes text at info level by default", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf))
			l.Info("book cataloged", "title", "clean code")
			l.Debug("hidden")

			Expect(buf.String()).To(ContainSubstring("book cataloged"))
			Expect(buf.String()).To(ContainSubstring("title=\"clean code\""))
			Expect(buf.String()).NotTo(ContainSubstring("hidden"))
		})

		It("respects debug level", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithDebug(true))
			l.Debug("candidate rejected")

			Expect(buf.String()).To(ContainSubstring("candidate rejected"))
		})

		It("writes JSON records", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithJSON(true))
			l.Info("scan finished", "status", "found", "position", 3)

			var parsed map[string]any
			Expect(json.Unmarshal(buf.Bytes(), &parsed)).To(Succeed())
			Expect(parsed["msg"]).To(Equal("scan finished"))
			Expect(parsed["status"]).To(Equal("found"))
			Expect(parsed["position"]).To(BeNumerically("==", 3))
		})

		It("adds the source location when asked", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithJSON(true), logger.WithSource(true))
			l.Info("with source")

			var parsed map[string]any
			Expect(json.Unmarshal(buf.Bytes(), &parsed)).To(Succeed())
			Expect(parsed).To(HaveKey("source"))
		})

		It("prefers the pretty handler over JSON", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithPretty(true), logger.WithJSON(true))
			l.Info("pretty output")

			Expect(buf.String()).To(ContainSubstring("pretty output"))
			Expect(json.Valid(buf.Bytes())).To(BeFalse())
		})

		It("ignores a nil writer", func() {
			Expect(logger.New(logger.WithWriter(nil)).Handler()).NotTo(BeNil())
		})
	})

	Describe("Nop", func() {
		It("discards everything", func() {
			l := logger.Nop()
			Expect(l.Handler().Enabled(context.Background(), slog.LevelError)).To(BeFalse())
			Expect(func() {
				l.With("k", "v").WithGroup("g").Error("dropped")
			}).NotTo(Panic())
		})
	})

	Describe("Multi", func() {
		It("dispatches to every logger that accepts the level", func() {
			var info, debug bytes.Buffer
			l := logger.Multi(
				logger.New(logger.WithWriter(&info)),
				logger.New(logger.WithWriter(&debug), logger.WithDebug(true)),
			)
			l.Info("both")
			l.Debug("only debug")

			Expect(info.String()).To(ContainSubstring("both"))
			Expect(info.String()).NotTo(ContainSubstring("only debug"))
			Expect(debug.String()).To(ContainSubstring("both"))
			Expect(debug.String()).To(ContainSubstring("only debug"))
		})

		It("carries attributes and groups to every logger", func() {
			var a, b bytes.Buffer
			l := logger.Multi(
				logger.New(logger.WithWriter(&a), logger.WithJSON(true)),
				logger.New(logger.WithWriter(&b), logger.WithJSON(true)),
			).With("user", "u1").WithGroup("scan")
			l.Info("done", "status", "owned")

			for _, buf := range []*bytes.Buffer{&a, &b} {
				var parsed map[string]any
				Expect(json.Unmarshal(buf.Bytes(), &parsed)).To(Succeed())
				Expect(parsed["user"]).To(Equal("u1"))
				Expect(parsed["scan"]).To(HaveKeyWithValue("status", "owned"))
			}
		})

		It("keeps writing after one handler fails", func() {
			var buf bytes.Buffer
			good := logger.New(logger.WithWriter(&buf))
			l := logger.Multi(slog.New(failingHandler{}), good, nil)

			err := l.Handler().Handle(context.Background(), slog.NewRecord(timeZero, slog.LevelInfo, "still here", 0))
			Expect(err).To(MatchError("sink down"))
			Expect(buf.String()).To(ContainSubstring("still here"))
		})
	})

	Describe("NewWithFile", func() {
		It("returns the CLI logger when no path is given", func() {
			l, closer, err := logger.NewWithFile(false, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(l).NotTo(BeNil())
			Expect(closer.Close()).To(Succeed())
		})

		It("appends JSON records to the file", func() {
			path := filepath.Join(GinkgoT().TempDir(), "shelf.log")
			l, closer, err := logger.NewWithFile(false, path)
			Expect(err).NotTo(HaveOccurred())

			l.Info("server started", "listen", ":8081")
			Expect(closer.Close()).To(Succeed())

			data, err := os.ReadFile(path)
			Expect(err).NotTo(HaveOccurred())
			var parsed map[string]any
			Expect(json.Unmarshal(bytes.TrimSpace(data), &parsed)).To(Succeed())
			Expect(parsed["msg"]).To(Equal("server started"))
		})

		It("fails for an unwritable path", func() {
			_, _, err := logger.NewWithFile(false, filepath.Join(GinkgoT().TempDir(), "missing", "shelf.log"))
			Expect(err).To(MatchError(ContainSubstring("opening log file")))
		})
	})
})

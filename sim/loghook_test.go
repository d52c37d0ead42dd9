package sim

import (
	"bytes"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type namedDomain struct {
	HookableBase
}

func (d *namedDomain) Name() string {
	return "N1"
}

var _ = Describe("LogHook", func() {
	var (
		buf    *bytes.Buffer
		logger *slog.Logger
	)

	BeforeEach(func() {
		buf = new(bytes.Buffer)
		logger = slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	})

	It("should log the hook position with domain, item and detail", func() {
		h := NewLogHook(logger, slog.LevelInfo)

		h.Func(HookCtx{
			Domain: &namedDomain{},
			Pos:    samplePos,
			Item:   "pkt",
			Detail: "why",
		})

		Expect(buf.String()).To(ContainSubstring("msg=Sample"))
		Expect(buf.String()).To(ContainSubstring("domain=N1"))
		Expect(buf.String()).To(ContainSubstring("item=pkt"))
		Expect(buf.String()).To(ContainSubstring("detail=why"))
	})

	It("should skip positions it is not interested in", func() {
		other := &HookPos{Name: "Other"}
		h := NewLogHook(logger, slog.LevelInfo, other)

		h.Func(HookCtx{Pos: samplePos})

		Expect(buf.Len()).To(BeZero())
	})

	It("should skip when the level is disabled", func() {
		quiet := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{
			Level: slog.LevelWarn,
		}))
		h := NewLogHook(quiet, slog.LevelDebug)

		h.Func(HookCtx{Pos: samplePos})

		Expect(buf.Len()).To(BeZero())
	})
})

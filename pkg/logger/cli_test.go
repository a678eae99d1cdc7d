package logger

import (
	"bytes"
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("newCLI", func() {
	It("writes JSON with source locations when piped in debug mode", func() {
		var buf bytes.Buffer
		newCLI(&buf, false, true).Debug("piped")

		var parsed map[string]any
		Expect(json.Unmarshal(buf.Bytes(), &parsed)).To(Succeed())
		Expect(parsed["msg"]).To(Equal("piped"))
		Expect(parsed).To(HaveKey("source"))
	})

	It("writes charm output on a terminal", func() {
		var buf bytes.Buffer
		newCLI(&buf, true, false).Info("interactive")

		Expect(buf.String()).To(ContainSubstring("interactive"))
		Expect(json.Valid(buf.Bytes())).To(BeFalse())
	})
})

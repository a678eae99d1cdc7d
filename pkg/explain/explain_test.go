package explain_test

import (
	"context"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/shelf/pkg/explain"
	"github.com/papercomputeco/shelf/pkg/llm"
)

type stubBooks struct {
	volume *explain.Volume
	err    error
}

func (s *stubBooks) Lookup(context.Context, string) (*explain.Volume, error) {
	return s.volume, s.err
}

type stubProvider struct {
	reply  string
	err    error
	prompt string
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Chat(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	p.prompt = req.Messages[0].GetText()
	if p.err != nil {
		return nil, p.err
	}
	return &llm.ChatResponse{Message: llm.NewTextMessage("assistant", p.reply)}, nil
}

func (p *stubProvider) Close() error { return nil }

var _ = Describe("Explainer", func() {
	var (
		ctx    context.Context
		books  *stubBooks
		model  *stubProvider
		volume *explain.Volume
	)

	BeforeEach(func() {
		ctx = context.Background()
		volume = &explain.Volume{
			Title:         "Clean Code",
			Authors:       []string{"Robert C. Martin"},
			PublishedDate: "2008",
			Description:   "Even bad code can function. But if code isn't clean, it can bring an organization to its knees. Every year countless hours are lost.",
		}
		books = &stubBooks{volume: volume}
		model = &stubProvider{reply: "  It teaches you to write readable code.  "}
	})

	It("answers with the model using the metadata", func() {
		e := explain.New(explain.Options{Books: books, Provider: model, Model: "m"})
		got, err := e.Explain(ctx, "clean code", "why does naming matter?")
		Expect(err).NotTo(HaveOccurred())

		Expect(got.Source).To(Equal(explain.SourceModel))
		Expect(got.Text).To(Equal("It teaches you to write readable code."))
		Expect(got.Title).To(Equal("Clean Code"))
		Expect(model.prompt).To(ContainSubstring("AUTHOR: Robert C. Martin"))
		Expect(model.prompt).To(ContainSubstring("DESCRIPTION:"))
		Expect(model.prompt).To(ContainSubstring("why does naming matter?"))
	})

	It("asks the default question when none is given", func() {
		e := explain.New(explain.Options{Books: books, Provider: model})
		_, err := e.Explain(ctx, "clean code", " ")
		Expect(err).NotTo(HaveOccurred())
		Expect(model.prompt).To(ContainSubstring(explain.DefaultQuestion))
	})

	It("falls back to the metadata when the model fails", func() {
		model.err = llm.ErrUnavailable
		e := explain.New(explain.Options{Books: books, Provider: model})
		got, err := e.Explain(ctx, "clean code", "")
		Expect(err).NotTo(HaveOccurred())

		Expect(got.Source).To(Equal(explain.SourceFallback))
		Expect(got.Text).To(Equal(`"Clean Code" by Robert C. Martin (2008). Even bad code can function. But if code isn't clean, it can bring an organization to its knees.`))
	})

	It("falls back without a model", func() {
		e := explain.New(explain.Options{Books: books})
		got, err := e.Explain(ctx, "clean code", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Source).To(Equal(explain.SourceFallback))
	})

	It("uses the bare title when metadata is missing", func() {
		books.err = explain.ErrNotFound
		e := explain.New(explain.Options{Books: books, Provider: model})
		got, err := e.Explain(ctx, "obscure pamphlet", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Title).To(Equal("obscure pamphlet"))
		Expect(model.prompt).NotTo(ContainSubstring("DESCRIPTION:"))
	})

	It("says so when there is no description to summarize", func() {
		got := explain.Fallback(&explain.Volume{Title: "Zine"})
		Expect(got).To(Equal(`"Zine". No description is available for this book yet.`))
	})

	It("returns the caller's context error", func() {
		model.err = errors.New("boom")
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		e := explain.New(explain.Options{Books: books, Provider: model})
		_, err := e.Explain(cctx, "clean code", "")
		Expect(err).To(MatchError(context.Canceled))
	})

	It("requires a title", func() {
		e := explain.New(explain.Options{Books: books})
		_, err := e.Explain(ctx, "   ", "")
		Expect(err).To(HaveOccurred())
		Expect(strings.Contains(err.Error(), "title")).To(BeTrue())
	})
})

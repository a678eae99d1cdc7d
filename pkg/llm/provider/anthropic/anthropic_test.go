package anthropic_test

import (
	"context"
	"net/http"
	"net/http/httptest"

	"github.com/goccy/go-json"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/shelf/pkg/llm"
	"github.com/papercomputeco/shelf/pkg/llm/provider/anthropic"
)

var _ = Describe("Anthropic Provider", func() {
	var (
		server   *httptest.Server
		p        *anthropic.Provider
		received map[string]any
		header   http.Header
	)

	BeforeEach(func() {
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(Equal("/v1/messages"))
			header = r.Header.Clone()
			Expect(json.NewDecoder(r.Body).Decode(&received)).To(Succeed())
			_, _ = w.Write([]byte(`{
				"id": "msg_1",
				"role": "assistant",
				"model": "claude-sonnet-4-5",
				"content": [{"type": "text", "text": "A book about "}, {"type": "text", "text": "writing code."}],
				"stop_reason": "end_turn",
				"usage": {"input_tokens": 12, "output_tokens": 4}
			}`))
		}))
		p = anthropic.New(llm.ClientConfig{BaseURL: server.URL, APIKey: "key"})
	})

	AfterEach(func() {
		server.Close()
	})

	It("returns 'anthropic'", func() {
		Expect(p.Name()).To(Equal("anthropic"))
	})

	It("sends the system prompt top level and a default max_tokens", func() {
		resp, err := p.Chat(context.Background(), &llm.ChatRequest{
			Model:    "claude-sonnet-4-5",
			System:   "be brief",
			Messages: []llm.Message{llm.NewTextMessage("user", "explain clean code")},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Message.GetText()).To(Equal("A book about writing code."))
		Expect(resp.Usage.TotalTokens).To(Equal(16))

		Expect(header.Get("x-api-key")).To(Equal("key"))
		Expect(header.Get("anthropic-version")).NotTo(BeEmpty())
		Expect(received["system"]).To(Equal("be brief"))
		Expect(received["max_tokens"]).To(BeEquivalentTo(anthropic.DefaultMaxTokens))
	})

	It("sends images as base64 sources", func() {
		_, err := p.Chat(context.Background(), &llm.ChatRequest{
			Model:    "claude-sonnet-4-5",
			Messages: []llm.Message{llm.NewImageMessage("user", "title?", "image/webp", []byte("webp"))},
		})
		Expect(err).NotTo(HaveOccurred())

		content := received["messages"].([]any)[0].(map[string]any)["content"].([]any)
		source := content[0].(map[string]any)["source"].(map[string]any)
		Expect(source["type"]).To(Equal("base64"))
		Expect(source["media_type"]).To(Equal("image/webp"))
		Expect(source["data"]).To(Equal("d2VicA=="))
	})
})

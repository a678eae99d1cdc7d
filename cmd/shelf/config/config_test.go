package configcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	configcmder "github.com/papercomputeco/shelf/cmd/shelf/config"
)

var _ = Describe("NewConfigCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := configcmder.NewConfigCmd()
		Expect(cmd.Use).To(Equal("config"))
	})

	It("has set, get, and list subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		subcommands := make([]string, 0, len(cmd.Commands()))
		for _, sub := range cmd.Commands() {
			subcommands = append(subcommands, sub.Name())
		}
		Expect(subcommands).To(ContainElements("set", "get", "list"))
	})
})

var _ = Describe("Config command execution", func() {
	var (
		tmpDir  string
		origDir string
		out     *bytes.Buffer
	)

	run := func(args ...string) error {
		cmd := configcmder.NewConfigCmd()
		cmd.SetOut(out)
		cmd.SetErr(out)
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "shelf-config-test-*")
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		// A local .shelf dir makes the manager ignore ~/.shelf.
		Expect(os.MkdirAll(filepath.Join(tmpDir, ".shelf"), 0o755)).To(Succeed())
		Expect(os.Chdir(tmpDir)).To(Succeed())

		out = &bytes.Buffer{}
	})

	AfterEach(func() {
		Expect(os.Chdir(origDir)).To(Succeed())
		os.RemoveAll(tmpDir)
	})

	Describe("set subcommand", func() {
		It("sets a config value successfully", func() {
			Expect(run("set", "ocr.provider", "anthropic")).To(Succeed())

			data, err := os.ReadFile(filepath.Join(tmpDir, ".shelf", "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`provider = "anthropic"`))
		})

		It("rejects unknown keys", func() {
			Expect(run("set", "invalid_key", "value")).NotTo(Succeed())
		})

		It("rejects providers outside the allowed set", func() {
			Expect(run("set", "storage.ownership_provider", "mongodb")).NotTo(Succeed())
		})

		It("rejects thresholds outside [0, 1]", func() {
			Expect(run("set", "match.semantic_threshold", "1.5")).NotTo(Succeed())
		})

		It("rejects invalid durations", func() {
			Expect(run("set", "stability.idle_timeout", "soon")).NotTo(Succeed())
		})

		It("rejects invalid integers", func() {
			Expect(run("set", "stability.window", "not-a-number")).NotTo(Succeed())
		})

		It("requires exactly two arguments", func() {
			Expect(run("set", "ocr.provider")).NotTo(Succeed())
			Expect(run("set")).NotTo(Succeed())
		})
	})

	Describe("get subcommand", func() {
		It("gets a previously set value", func() {
			Expect(run("set", "match.semantic_threshold", "0.75")).To(Succeed())
			out.Reset()

			Expect(run("get", "match.semantic_threshold")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("0.75"))
		})

		It("reports the default for unset keys", func() {
			Expect(run("get", "storage.ownership_provider")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("sqlite"))
		})

		It("rejects unknown keys", func() {
			Expect(run("get", "invalid_key")).NotTo(Succeed())
		})

		It("requires exactly one argument", func() {
			Expect(run("get")).NotTo(Succeed())
		})
	})

	Describe("list subcommand", func() {
		It("lists every key when no config exists", func() {
			Expect(run("list")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("No config file found"))
			Expect(out.String()).To(ContainSubstring("ownership.fuzzy_threshold"))
			Expect(out.String()).To(ContainSubstring("stability.quorum"))
		})

		It("shows stored values", func() {
			Expect(run("set", "ocr.model", "llava:13b")).To(Succeed())
			out.Reset()

			Expect(run("list")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("Using config file"))
			Expect(out.String()).To(ContainSubstring(`"llava:13b"`))
		})

		It("rejects any arguments", func() {
			Expect(run("list", "extra")).NotTo(Succeed())
		})
	})
})

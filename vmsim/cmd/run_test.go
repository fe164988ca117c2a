package cmd

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/pflag"
)

var _ = Describe("Run options", func() {
	var (
		flags *pflag.FlagSet
		dir   string
	)

	BeforeEach(func() {
		flags = pflag.NewFlagSet("run", pflag.ContinueOnError)
		addRunFlags(flags)
		dir = GinkgoT().TempDir()
	})

	It("should use the defaults", func() {
		Expect(flags.Parse(nil)).To(Succeed())

		opts, err := parseRunOptions(flags)

		Expect(err).ToNot(HaveOccurred())
		Expect(opts.numFrames).To(Equal(32))
		Expect(opts.numSwapPages).To(Equal(uint64(1024)))
		Expect(opts.numProcesses).To(Equal(4))
		Expect(opts.swapFile).To(BeEmpty())
	})

	It("should reject an empty pool", func() {
		Expect(flags.Parse([]string{"--frames", "0"})).To(Succeed())

		_, err := parseRunOptions(flags)

		Expect(err).To(MatchError(ContainSubstring("--frames")))
	})

	It("should take defaults from the env file", func() {
		envFile := filepath.Join(dir, "vmsim.env")
		Expect(os.WriteFile(envFile,
			[]byte("VMSIM_FRAMES=7\nVMSIM_PAGES=3\n"), 0o644)).To(Succeed())
		DeferCleanup(os.Unsetenv, "VMSIM_FRAMES")
		DeferCleanup(os.Unsetenv, "VMSIM_PAGES")

		Expect(flags.Parse([]string{
			"--env-file", envFile,
			"--pages", "5",
		})).To(Succeed())

		Expect(loadEnvDefaults(flags)).To(Succeed())
		opts, err := parseRunOptions(flags)

		Expect(err).ToNot(HaveOccurred())
		Expect(opts.numFrames).To(Equal(7))
		Expect(opts.numPages).To(Equal(5))
	})

	It("should ignore a missing env file", func() {
		Expect(flags.Parse([]string{
			"--env-file", filepath.Join(dir, "missing.env"),
		})).To(Succeed())

		Expect(loadEnvDefaults(flags)).To(Succeed())
	})

	It("should reject malformed environment values", func() {
		GinkgoT().Setenv("VMSIM_PROCESSES", "many")
		Expect(flags.Parse([]string{
			"--env-file", filepath.Join(dir, "missing.env"),
		})).To(Succeed())

		Expect(loadEnvDefaults(flags)).
			To(MatchError(ContainSubstring("VMSIM_PROCESSES")))
	})

	It("should create a swap disk on the host", func() {
		swapFile := filepath.Join(dir, "swap.img")

		d, err := createSwapDisk(runOptions{
			numSwapPages: 4,
			swapFile:     swapFile,
		})

		Expect(err).ToNot(HaveOccurred())
		Expect(d.Size()).To(Equal(uint64(32)))
		Expect(swapFile).To(BeAnExistingFile())
	})
})

var _ = Describe("Commands", func() {
	var (
		out *bytes.Buffer
		dir string
	)

	BeforeEach(func() {
		out = new(bytes.Buffer)
		dir = GinkgoT().TempDir()
		rootCmd.SetOut(out)
		rootCmd.SetErr(out)
		DeferCleanup(rootCmd.SetArgs, []string(nil))
	})

	It("should print the version", func() {
		rootCmd.SetArgs([]string{"version"})

		Expect(rootCmd.Execute()).To(Succeed())
		Expect(out.String()).To(Equal("vmsim dev\n"))
	})

	It("should run the workload and read back the recording", func() {
		record := filepath.Join(dir, "rec")
		rootCmd.SetArgs([]string{
			"run",
			"--env-file", filepath.Join(dir, "missing.env"),
			"--frames", "8",
			"--swap-pages", "256",
			"--processes", "2",
			"--pages", "8",
			"--record", record,
		})

		Expect(rootCmd.Execute()).To(Succeed())
		Expect(out.String()).To(ContainSubstring("evictions:"))
		Expect(out.String()).To(ContainSubstring("PageFault:"))

		out.Reset()
		rootCmd.SetArgs([]string{
			"trace", record + ".sqlite3",
			"--pos", "PageFault",
			"--limit", "5",
		})

		Expect(rootCmd.Execute()).To(Succeed())
		Expect(out.String()).To(ContainSubstring("PageFault"))
		Expect(out.String()).To(MatchRegexp(`5 of \d+ events`))
	})

	It("should fail to trace a missing recording", func() {
		rootCmd.SetArgs([]string{"trace", filepath.Join(dir, "none.sqlite3")})

		Expect(rootCmd.Execute()).ToNot(Succeed())
	})
})

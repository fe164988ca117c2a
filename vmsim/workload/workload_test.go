package workload_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/vmkit/filesys"
	"github.com/sarchlab/vmkit/mem/disk"
	"github.com/sarchlab/vmkit/mem/vm/paging"
	"github.com/sarchlab/vmkit/mem/vm/swap"
	"github.com/sarchlab/vmkit/vmsim/workload"
)

type countingProgress struct {
	inProgress uint64
	finished   uint64
}

func (p *countingProgress) IncrementInProgress(amount uint64) {
	p.inProgress += amount
}

func (p *countingProgress) MoveInProgressToFinished(amount uint64) {
	p.inProgress -= amount
	p.finished += amount
}

var _ = Describe("Runner", func() {
	var (
		fs *filesys.MemFS
	)

	newManager := func(numFrames int, numSwapPages uint64) *paging.Manager {
		return paging.MakeBuilder().
			WithNumFrames(numFrames).
			WithSwapDisk(disk.NewMemDisk("swap",
				numSwapPages*swap.SectorsPerPage)).
			Build()
	}

	BeforeEach(func() {
		fs = filesys.NewMemFS()
	})

	It("should run a single process with plenty of memory", func() {
		mgr := newManager(128, 64)
		progress := &countingProgress{}

		res, err := workload.NewRunner(mgr, fs, workload.Config{
			NumProcesses: 1,
			NumPages:     4,
		}).WithProgress(progress).Run()

		Expect(err).ToNot(HaveOccurred())
		Expect(res.NumProcesses).To(Equal(1))
		Expect(res.NumPagesChecked).To(BeNumerically(">", 0))
		Expect(progress.finished).To(Equal(uint64(1)))
		Expect(progress.inProgress).To(Equal(uint64(0)))
		Expect(mgr.Stats().NumEvictions).To(Equal(uint64(0)))
	})

	It("should survive memory pressure from several processes", func() {
		mgr := newManager(8, 512)

		res, err := workload.NewRunner(mgr, fs, workload.Config{
			NumProcesses: 3,
			NumPages:     16,
		}).Run()

		Expect(err).ToNot(HaveOccurred())
		Expect(res.NumForks).To(Equal(3))

		stats := mgr.Stats()
		Expect(stats.NumEvictions).To(BeNumerically(">", 0))
		Expect(stats.NumProcesses).To(Equal(0))
		Expect(stats.NumResidentFrames).To(Equal(0))
		Expect(stats.NumFreeFrames).To(Equal(8))
		Expect(stats.NumUsedSwapSlots).To(Equal(0))
	})

	It("should leave no file handle open", func() {
		mgr := newManager(16, 256)

		_, err := workload.NewRunner(mgr, fs, workload.Config{
			NumProcesses: 2,
			NumPages:     2,
		}).Run()

		Expect(err).ToNot(HaveOccurred())
		for _, name := range fs.List() {
			Expect(fs.OpenCount(name)).To(Equal(0), name)
		}
	})

	It("should fail when swap runs out", func() {
		mgr := newManager(2, 1)

		_, err := workload.NewRunner(mgr, fs, workload.Config{
			NumProcesses: 1,
			NumPages:     8,
		}).Run()

		Expect(err).To(HaveOccurred())
		Expect(mgr.Stats().NumProcesses).To(Equal(0))
	})
})

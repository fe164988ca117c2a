package swap

import (
	"bytes"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/vmkit/mem/disk"
	"github.com/sarchlab/vmkit/mem/vm"
	"go.uber.org/mock/gomock"
)

func patternPage(seed byte) []byte {
	page := make([]byte, vm.PageSize)
	for i := range page {
		page[i] = seed + byte(i%251)
	}

	return page
}

var _ = Describe("Store", func() {
	var (
		d     *disk.MemDisk
		store *Store
	)

	BeforeEach(func() {
		d = disk.NewMemDisk("swap", 2*SectorsPerPage)
		store = NewStore(d)
	})

	It("should size the bitmap from the disk", func() {
		Expect(store.NumSlots()).To(Equal(2))
		Expect(store.NumUsed()).To(Equal(0))
	})

	It("should panic without a disk", func() {
		Expect(func() { NewStore(nil) }).To(Panic())
	})

	It("should allocate the first free slot", func() {
		a, err := store.Alloc()
		Expect(err).NotTo(HaveOccurred())
		b, err := store.Alloc()
		Expect(err).NotTo(HaveOccurred())

		Expect(a).To(Equal(Slot(0)))
		Expect(b).To(Equal(Slot(1)))

		store.Release(a)
		c, _ := store.Alloc()
		Expect(c).To(Equal(Slot(0)))
	})

	It("should report a full swap disk", func() {
		_, _ = store.Alloc()
		_, _ = store.Alloc()

		_, err := store.Alloc()
		Expect(err).To(MatchError(ErrSwapFull))
	})

	It("should round trip a page and free the slot on swap in", func() {
		page := patternPage(3)

		slot, err := store.SwapOut(page)
		Expect(err).NotTo(HaveOccurred())
		Expect(store.InUse(slot)).To(BeTrue())

		restored := make([]byte, vm.PageSize)
		Expect(store.SwapIn(slot, restored)).To(Succeed())
		Expect(bytes.Equal(restored, page)).To(BeTrue())
		Expect(store.InUse(slot)).To(BeFalse())
	})

	It("should keep the slot when only reading", func() {
		slot, _ := store.SwapOut(patternPage(9))

		buf := make([]byte, vm.PageSize)
		Expect(store.ReadPage(slot, buf)).To(Succeed())
		Expect(store.InUse(slot)).To(BeTrue())
	})

	It("should panic when releasing a free slot", func() {
		Expect(func() { store.Release(0) }).To(Panic())
	})
})

var _ = Describe("Store with a failing disk", func() {
	var (
		mockCtrl *gomock.Controller
		d        *MockDisk
		store    *Store
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		d = NewMockDisk(mockCtrl)
		d.EXPECT().Size().Return(uint64(SectorsPerPage)).AnyTimes()
		store = NewStore(d)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should write the page sector by sector", func() {
		for i := uint64(0); i < SectorsPerPage; i++ {
			d.EXPECT().Write(i, gomock.Len(disk.SectorSize)).Return(nil)
		}

		slot, err := store.SwapOut(patternPage(1))
		Expect(err).NotTo(HaveOccurred())
		Expect(slot).To(Equal(Slot(0)))
	})

	It("should release the slot when the write fails", func() {
		d.EXPECT().Write(uint64(0), gomock.Any()).Return(errors.New("io"))

		_, err := store.SwapOut(patternPage(1))
		Expect(err).To(HaveOccurred())
		Expect(store.NumUsed()).To(Equal(0))
	})
})

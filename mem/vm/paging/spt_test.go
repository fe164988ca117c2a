package paging

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/vmkit/mem/vm"
	"go.uber.org/mock/gomock"
)

var _ = Describe("SPT", func() {
	var (
		mgr *Manager
		as  *AddressSpace
		spt *SPT
	)

	newPage := func(vaddr uint64) *Page {
		return newUninitPage(as, KindAnon, vaddr, true, ZeroFill{})
	}

	BeforeEach(func() {
		mgr = newTestManager(4, 4)
		as, _ = mgr.NewAddressSpace(1)
		spt = NewSPT()
	})

	It("should find an inserted page from any address in it", func() {
		p := newPage(page(1))

		Expect(spt.Insert(p)).To(BeTrue())

		found, ok := spt.Find(page(1) + 0x123)
		Expect(ok).To(BeTrue())
		Expect(found).To(BeIdenticalTo(p))
	})

	It("should refuse a second page at the same address", func() {
		Expect(spt.Insert(newPage(page(1)))).To(BeTrue())
		Expect(spt.Insert(newPage(page(1)))).To(BeFalse())
		Expect(spt.Len()).To(Equal(1))
	})

	It("should forget removed pages", func() {
		p := newPage(page(1))
		spt.Insert(p)

		removed, err := spt.Remove(p)
		Expect(err).NotTo(HaveOccurred())
		Expect(removed).To(BeTrue())

		_, ok := spt.Find(page(1))
		Expect(ok).To(BeFalse())
		removed, _ = spt.Remove(p)
		Expect(removed).To(BeFalse())
	})

	It("should not remove a different page at the same address", func() {
		spt.Insert(newPage(page(1)))

		removed, _ := spt.Remove(newPage(page(1)))
		Expect(removed).To(BeFalse())
		Expect(spt.Len()).To(Equal(1))
	})

	It("should reuse the ids of removed pages", func() {
		a, b := newPage(page(1)), newPage(page(2))
		spt.Insert(a)
		spt.Insert(b)
		_, _ = spt.Remove(a)

		c := newPage(page(3))
		spt.Insert(c)

		Expect(c.id).To(Equal(a.id))
		found, _ := spt.Find(page(3))
		Expect(found).To(BeIdenticalTo(c))
	})

	It("should list pages by address", func() {
		spt.Insert(newPage(page(3)))
		spt.Insert(newPage(page(1)))
		spt.Insert(newPage(page(2)))

		pages := spt.Pages()

		Expect(pages).To(HaveLen(3))
		Expect(pages[0].VAddr()).To(Equal(page(1)))
		Expect(pages[1].VAddr()).To(Equal(page(2)))
		Expect(pages[2].VAddr()).To(Equal(page(3)))
	})

	It("should release frames and swap slots when destroying pages", func() {
		Expect(as.AllocPage(KindAnon, page(1), true)).To(Succeed())
		Expect(as.ClaimPage(page(1))).To(Succeed())
		Expect(mgr.Pool().NumFree()).To(Equal(3))

		Expect(as.SPT().DestroyAll()).To(Succeed())

		Expect(as.SPT().Len()).To(Equal(0))
		Expect(mgr.Pool().NumFree()).To(Equal(4))
		Expect(mgr.FrameTable().Len()).To(Equal(0))
		_, mapped := mgr.PageTable().Find(as.PID(), page(1))
		Expect(mapped).To(BeFalse())
	})

	It("should return the error of a failed write-back on removal", func() {
		mockCtrl := gomock.NewController(GinkgoT())
		defer mockCtrl.Finish()

		caller := NewMockFile(mockCtrl)
		handle := NewMockFile(mockCtrl)
		caller.EXPECT().Length().Return(int64(vm.PageSize), nil)
		caller.EXPECT().Reopen().Return(handle, nil)
		handle.EXPECT().Name().Return("data").AnyTimes()
		handle.EXPECT().ReadAt(gomock.Any(), int64(0)).
			Return(int(vm.PageSize), nil)
		handle.EXPECT().WriteAt(gomock.Any(), int64(0)).
			Return(0, errors.New("disk full"))

		_, err := as.Mmap(page(0), vm.PageSize, true, caller, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(as.Write(page(0), []byte{1})).To(Succeed())
		p, _ := as.SPT().Find(page(0))

		removed, err := as.SPT().Remove(p)

		Expect(removed).To(BeTrue())
		Expect(err).To(MatchError(ErrShortWrite))
		Expect(err).To(MatchError(ContainSubstring("disk full")))
		Expect(as.SPT().Len()).To(Equal(0))
		Expect(mgr.Pool().NumFree()).To(Equal(4))
		Expect(mgr.FrameTable().Len()).To(Equal(0))
	})

	It("should round addresses down when allocating", func() {
		Expect(as.AllocPage(KindAnon, page(1)+17, false)).To(Succeed())

		p, ok := as.SPT().Find(page(1))
		Expect(ok).To(BeTrue())
		Expect(p.VAddr()).To(Equal(page(1)))
		Expect(p.Kind()).To(Equal(KindUninit))
		Expect(p.Type()).To(Equal(KindAnon))
		Expect(p.Writable()).To(BeFalse())
	})

	It("should reject pages in kernel space", func() {
		err := as.AllocPage(KindAnon, vm.KernBase, true)
		Expect(err).To(MatchError(ErrKernelAddress))
	})

	It("should reject mismatched kinds and initializers", func() {
		Expect(as.AllocPage(KindUninit, page(1), true)).
			To(MatchError(ErrBadPageKind))
		Expect(as.AllocPage(KindFile, page(1), true)).
			To(MatchError(ErrBadPageKind))
		Expect(as.AllocPageWithInitializer(KindAnon, page(1), true,
			MappingLoad{Mapping: &Mapping{}})).
			To(MatchError(ErrBadPageKind))
	})
})

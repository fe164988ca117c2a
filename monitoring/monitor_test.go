package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/vmkit/mem/disk"
	"github.com/sarchlab/vmkit/mem/vm"
	"github.com/sarchlab/vmkit/mem/vm/frame"
	"github.com/sarchlab/vmkit/mem/vm/paging"
	"github.com/sarchlab/vmkit/mem/vm/swap"
	"github.com/sarchlab/vmkit/tracing"
)

const dataPage uint64 = 0x10000000

var _ = Describe("Monitor", func() {
	var (
		mgr     *paging.Manager
		counter *tracing.CountTracer
		monitor *Monitor
	)

	get := func(url string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, url, nil)
		rec := httptest.NewRecorder()
		monitor.Router().ServeHTTP(rec, req)

		return rec
	}

	BeforeEach(func() {
		mgr = paging.MakeBuilder().
			WithNumFrames(2).
			WithSwapDisk(disk.NewMemDisk("swap", 8*swap.SectorsPerPage)).
			Build()

		counter = tracing.NewCountTracer()
		tracing.CollectTrace(mgr, counter)

		monitor = NewMonitor()
		monitor.RegisterManager(mgr)
		monitor.RegisterCountTracer(counter)

		as, err := mgr.NewAddressSpace(1)
		Expect(err).ToNot(HaveOccurred())
		Expect(as.SetupStack()).To(Succeed())

		for i := uint64(0); i < 3; i++ {
			addr := dataPage + i*vm.PageSize
			Expect(as.AllocPage(paging.KindAnon, addr, true)).To(Succeed())
			Expect(as.Write(addr, []byte{byte(i + 1)})).To(Succeed())
		}
	})

	It("should report memory stats and event counts", func() {
		rec := get("/api/stats")

		Expect(rec.Code).To(Equal(http.StatusOK))

		rsp := statsRsp{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.Memory.NumFrames).To(Equal(2))
		Expect(rsp.Memory.NumProcesses).To(Equal(1))
		Expect(rsp.Memory.NumEvictions).To(BeNumerically(">", 0))
		Expect(rsp.Events).To(HaveKey("PageFault"))
	})

	It("should list resident frames", func() {
		rec := get("/api/frames")

		frames := []frame.Info{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &frames)).To(Succeed())
		Expect(frames).To(HaveLen(2))
		for _, f := range frames {
			Expect(f.PID).To(Equal(vm.PID(1)))
		}
	})

	It("should report swap usage", func() {
		rec := get("/api/swap")

		rsp := swapRsp{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.NumSlots).To(Equal(8))
		Expect(rsp.NumUsed).To(BeNumerically(">", 0))
		Expect(rsp.Used).To(HaveLen(rsp.NumUsed))
	})

	It("should list processes", func() {
		rec := get("/api/processes")

		rsp := []processRsp{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp).To(HaveLen(1))
		Expect(rsp[0].PID).To(Equal(uint32(1)))
		Expect(rsp[0].NumPages).To(Equal(4))
		Expect(rsp[0].NumResident).To(BeNumerically("<=", 2))
		Expect(rsp[0].StackBottom).To(Equal(vm.UserStack - vm.PageSize))
		Expect(rsp[0].Faults).To(BeNumerically(">=", 3))
	})

	It("should list the pages of a process", func() {
		rec := get("/api/process/1/pages")

		pages := []paging.PageInfo{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &pages)).To(Succeed())
		Expect(pages).To(HaveLen(4))
		Expect(pages[0].VAddr).To(Equal(dataPage))
	})

	It("should return 404 for unknown processes", func() {
		Expect(get("/api/process/7").Code).To(Equal(http.StatusNotFound))
	})

	It("should return 400 for malformed pids", func() {
		Expect(get("/api/process/abc").Code).To(Equal(http.StatusBadRequest))
	})

	It("should serialize an address space", func() {
		rec := get(`/api/field/{"pid":1}`)

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.Len()).To(BeNumerically(">", 0))
	})

	It("should reject malformed field requests", func() {
		Expect(get("/api/field/notjson").Code).
			To(Equal(http.StatusBadRequest))
	})

	It("should report resource usage", func() {
		rec := get("/api/resource")

		rsp := resourceRsp{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.MemorySize).To(BeNumerically(">", 0))
	})

	It("should track progress bars", func() {
		bar := monitor.CreateProgressBar("workload", 10)
		bar.IncrementInProgress(3)
		bar.MoveInProgressToFinished(2)

		rec := get("/api/progress")
		bars := []*ProgressBar{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &bars)).To(Succeed())
		Expect(bars).To(HaveLen(1))
		Expect(bars[0].Name).To(Equal("workload"))
		Expect(bars[0].Finished).To(Equal(uint64(2)))
		Expect(bars[0].InProgress).To(Equal(uint64(1)))

		monitor.CompleteProgressBar(bar)
		Expect(get("/api/progress").Body.String()).To(Equal("[]"))
	})

	It("should serve the web page", func() {
		rec := get("/")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(HavePrefix("<!DOCTYPE html>"))
	})
})

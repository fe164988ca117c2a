package tracing

import (
	"context"
	"errors"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/vmkit/datarecording"
	"github.com/sarchlab/vmkit/sim/hooking"
)

var _ = Describe("EventReader", func() {
	var reader *EventReader

	BeforeEach(func() {
		recorder := datarecording.New(filepath.Join(GinkgoT().TempDir(), "rec"))
		DeferCleanup(recorder.Close)

		tracer := NewDBTracer(recorder)
		for i := uint64(0); i < 6; i++ {
			tracer.RecordEvent(Event{
				Pos: hooking.HookPosPageFault,
				VM: hooking.VMEvent{
					PID:   uint32(1 + i%2),
					VAddr: i << 12,
					Kind:  "anon",
					What:  "fault",
					OK:    true,
				},
			})
		}
		tracer.RecordEvent(Event{
			Pos:   hooking.HookPosFrameEvict,
			VM:    hooking.VMEvent{PID: 2, VAddr: 0x3000, What: "evict"},
			Error: errors.New("swap is full"),
		})
		tracer.Terminate()

		var err error
		reader, err = OpenEventReader(recorder.Path())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(reader.Close)
	})

	It("should read every event in recording order", func() {
		events, total, err := reader.Query(context.Background(), EventFilter{})

		Expect(err).NotTo(HaveOccurred())
		Expect(total).To(Equal(7))
		Expect(events).To(HaveLen(7))
		for i, e := range events {
			Expect(e.Seq).To(Equal(uint64(i + 1)))
		}
		Expect(events[0]).To(Equal(EventEntry{
			ID:    events[0].ID,
			Seq:   1,
			Pos:   "PageFault",
			PID:   1,
			VAddr: 0,
			Kind:  "anon",
			What:  "fault",
			OK:    true,
		}))
	})

	It("should filter by process and position", func() {
		events, total, err := reader.Query(context.Background(),
			EventFilter{PID: 2, Pos: "PageFault"})

		Expect(err).NotTo(HaveOccurred())
		Expect(total).To(Equal(3))
		Expect(events).To(HaveLen(3))
		for _, e := range events {
			Expect(e.PID).To(Equal(uint32(2)))
			Expect(e.Pos).To(Equal("PageFault"))
		}
	})

	It("should only return failures when asked to", func() {
		events, total, err := reader.Query(context.Background(),
			EventFilter{Failed: true})

		Expect(err).NotTo(HaveOccurred())
		Expect(total).To(Equal(1))
		Expect(events).To(HaveLen(1))
		Expect(events[0].Pos).To(Equal("FrameEvict"))
		Expect(events[0].OK).To(BeFalse())
		Expect(events[0].Error).To(Equal("swap is full"))
	})

	It("should page through events and count them all", func() {
		events, total, err := reader.Query(context.Background(),
			EventFilter{Limit: 2, Offset: 3})

		Expect(err).NotTo(HaveOccurred())
		Expect(total).To(Equal(7))
		Expect(events).To(HaveLen(2))
		Expect(events[0].Seq).To(Equal(uint64(4)))
		Expect(events[1].Seq).To(Equal(uint64(5)))

		events, _, err = reader.Query(context.Background(),
			EventFilter{Offset: 5})

		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(2))
		Expect(events[0].Seq).To(Equal(uint64(6)))
	})
})

var _ = Describe("OpenEventReader", func() {
	It("should fail on a missing recording", func() {
		_, err := OpenEventReader(
			filepath.Join(GinkgoT().TempDir(), "none.sqlite3"))

		Expect(err).To(HaveOccurred())
	})
})

// Package workload drives a paging manager with a set of synthetic processes
// that exercise lazy loading, swapping, file mappings, stack growth and fork.
package workload

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sarchlab/vmkit/filesys"
	"github.com/sarchlab/vmkit/mem/vm"
	"github.com/sarchlab/vmkit/mem/vm/paging"
)

// ErrMismatch is returned when memory does not hold what was written to it.
var ErrMismatch = errors.New("memory content mismatch")

const (
	codeBase uint64 = 0x00400000
	heapBase uint64 = 0x10000000
	mmapBase uint64 = 0x20000000

	// Child PIDs are offset from their parent.
	childPIDOffset = 1000

	programName = "program"
)

// A ProgressReporter is notified as processes start and finish.
type ProgressReporter interface {
	IncrementInProgress(amount uint64)
	MoveInProgressToFinished(amount uint64)
}

// Config describes the workload.
type Config struct {
	NumProcesses int
	NumPages     int
}

// Result summarizes a finished workload.
type Result struct {
	NumProcesses    int
	NumForks        int
	NumPagesChecked uint64
}

// A Runner runs a workload against a manager.
type Runner struct {
	mgr      *paging.Manager
	fs       *filesys.MemFS
	cfg      Config
	program  []byte
	progress ProgressReporter

	pagesChecked atomic.Uint64
}

// NewRunner creates a runner. The files the processes load and map live in
// fs.
func NewRunner(mgr *paging.Manager, fs *filesys.MemFS, cfg Config) *Runner {
	if cfg.NumProcesses <= 0 {
		panic("the workload needs at least one process")
	}

	program := Pattern(0x5a, int(2*vm.PageSize+100))
	fs.Create(programName, program)

	return &Runner{
		mgr:     mgr,
		fs:      fs,
		cfg:     cfg,
		program: program,
	}
}

// WithProgress sets the reporter notified about process progress.
func (r *Runner) WithProgress(p ProgressReporter) *Runner {
	r.progress = p
	return r
}

// Run starts every process concurrently and waits for all of them.
func (r *Runner) Run() (Result, error) {
	var (
		wg   sync.WaitGroup
		errs = make([]error, r.cfg.NumProcesses)
	)

	for i := 0; i < r.cfg.NumProcesses; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			if r.progress != nil {
				r.progress.IncrementInProgress(1)
			}

			errs[i] = r.runProcess(vm.PID(i + 1))

			if r.progress != nil {
				r.progress.MoveInProgressToFinished(1)
			}
		}(i)
	}

	wg.Wait()

	res := Result{
		NumProcesses:    r.cfg.NumProcesses,
		NumForks:        r.cfg.NumProcesses,
		NumPagesChecked: r.pagesChecked.Load(),
	}

	return res, errors.Join(errs...)
}

func (r *Runner) runProcess(pid vm.PID) error {
	as, err := r.mgr.NewAddressSpace(pid)
	if err != nil {
		return err
	}

	err = r.exercise(as)
	if err != nil {
		_ = as.Exit()
		return fmt.Errorf("pid %d: %w", pid, err)
	}

	return as.Exit()
}

func (r *Runner) exercise(as *paging.AddressSpace) error {
	steps := []func(*paging.AddressSpace) error{
		r.loadProgram,
		r.fillHeap,
		r.growStack,
		r.checkMapping,
		r.checkHeap,
		r.fork,
	}

	for _, step := range steps {
		err := step(as)
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *Runner) loadProgram(as *paging.AddressSpace) error {
	err := as.SetupStack()
	if err != nil {
		return err
	}

	f, err := r.fs.Open(programName)
	if err != nil {
		return err
	}
	defer f.Close()

	readBytes := uint64(len(r.program))
	zeroBytes := vm.PageRoundUp(readBytes) - readBytes

	err = as.LoadSegment(f, 0, codeBase, readBytes, zeroBytes, false)
	if err != nil {
		return err
	}

	code, err := as.Read(codeBase, int(readBytes+zeroBytes))
	if err != nil {
		return err
	}

	expected := make([]byte, readBytes+zeroBytes)
	copy(expected, r.program)

	return r.compare(codeBase, code, expected)
}

func (r *Runner) heapPattern(pid vm.PID, page int) []byte {
	return Pattern(byte(pid)*31+byte(page), int(vm.PageSize))
}

func (r *Runner) fillHeap(as *paging.AddressSpace) error {
	for i := 0; i < r.cfg.NumPages; i++ {
		addr := heapBase + uint64(i)*vm.PageSize

		err := as.AllocPage(paging.KindAnon, addr, true)
		if err != nil {
			return err
		}

		err = as.Write(addr, r.heapPattern(as.PID(), i))
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *Runner) checkHeap(as *paging.AddressSpace) error {
	return r.checkHeapOf(as, as.PID())
}

func (r *Runner) growStack(as *paging.AddressSpace) error {
	addr := vm.UserStack - 3*vm.PageSize - 8
	as.SetStackPointer(addr)

	marker := []byte(fmt.Sprintf("stack of %d", as.PID()))

	err := as.Write(addr, marker)
	if err != nil {
		return err
	}

	if as.StackBottom() > vm.PageRoundDown(addr) {
		return fmt.Errorf("stack bottom 0x%x above 0x%x",
			as.StackBottom(), addr)
	}

	data, err := as.Read(addr, len(marker))
	if err != nil {
		return err
	}

	return r.compare(addr, data, marker)
}

func (r *Runner) checkMapping(as *paging.AddressSpace) error {
	name := fmt.Sprintf("data-%d", as.PID())
	content := Pattern(byte(as.PID()), int(vm.PageSize+vm.PageSize/2))
	r.fs.Create(name, content)

	f, err := r.fs.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	addr, err := as.Mmap(mmapBase, uint64(len(content)), true, f, 0)
	if err != nil {
		return err
	}

	data, err := as.Read(addr, len(content))
	if err != nil {
		return err
	}

	err = r.compare(addr, data, content)
	if err != nil {
		return err
	}

	marker := []byte(name)

	err = as.Write(addr+vm.PageSize, marker)
	if err != nil {
		return err
	}

	err = as.Munmap(addr)
	if err != nil {
		return err
	}

	written, err := r.fs.Contents(name)
	if err != nil {
		return err
	}

	return r.compare(addr+vm.PageSize,
		written[vm.PageSize:int(vm.PageSize)+len(marker)], marker)
}

func (r *Runner) fork(parent *paging.AddressSpace) error {
	child, err := r.mgr.NewAddressSpace(parent.PID() + childPIDOffset)
	if err != nil {
		return err
	}

	err = child.CopyFrom(parent)
	if err == nil {
		err = r.checkForkIsolation(parent, child)
	}

	if err != nil {
		_ = child.Destroy()
		return fmt.Errorf("fork: %w", err)
	}

	return child.Exit()
}

func (r *Runner) checkForkIsolation(parent, child *paging.AddressSpace) error {
	err := r.checkHeapOf(child, parent.PID())
	if err != nil {
		return err
	}

	if r.cfg.NumPages == 0 {
		return nil
	}

	err = child.Write(heapBase, Pattern(0xee, int(vm.PageSize)))
	if err != nil {
		return err
	}

	data, err := parent.Read(heapBase, int(vm.PageSize))
	if err != nil {
		return err
	}

	return r.compare(heapBase, data, r.heapPattern(parent.PID(), 0))
}

func (r *Runner) checkHeapOf(as *paging.AddressSpace, owner vm.PID) error {
	for i := 0; i < r.cfg.NumPages; i++ {
		addr := heapBase + uint64(i)*vm.PageSize

		data, err := as.Read(addr, int(vm.PageSize))
		if err != nil {
			return err
		}

		err = r.compare(addr, data, r.heapPattern(owner, i))
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *Runner) compare(addr uint64, got, expected []byte) error {
	r.pagesChecked.Add(uint64((len(got) + int(vm.PageSize) - 1) /
		int(vm.PageSize)))

	if !bytes.Equal(got, expected) {
		return fmt.Errorf("0x%x: %w", addr, ErrMismatch)
	}

	return nil
}

// Pattern returns n bytes that depend on seed and on the position.
func Pattern(seed byte, n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = seed + byte(i%251)
	}

	return data
}

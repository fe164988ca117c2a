// Package monitoring serves the live state of a paging manager over HTTP.
package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/sarchlab/vmkit/mem/vm"
	"github.com/sarchlab/vmkit/mem/vm/paging"
	"github.com/sarchlab/vmkit/monitoring/web"
	"github.com/sarchlab/vmkit/sim/id"
	"github.com/sarchlab/vmkit/tracing"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
)

// Monitor turns a running paging manager into a server that external tools
// can inspect.
type Monitor struct {
	manager    *paging.Manager
	counter    *tracing.CountTracer
	portNumber int
	idGen      id.IDGenerator

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{
		idGen: id.NewIDGenerator(),
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterManager sets the paging manager to be monitored.
func (m *Monitor) RegisterManager(mgr *paging.Manager) {
	m.manager = mgr
}

// RegisterCountTracer sets the tracer whose event counts are reported.
func (m *Monitor) RegisterCountTracer(t *tracing.CountTracer) {
	m.counter = t
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        m.idGen.Generate(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// Router returns the handler that serves the monitoring API and the web
// page.
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()

	fServer := http.FileServer(web.GetAssets())
	r.HandleFunc("/api/stats", m.stats)
	r.HandleFunc("/api/frames", m.listFrames)
	r.HandleFunc("/api/swap", m.swapUsage)
	r.HandleFunc("/api/processes", m.listProcesses)
	r.HandleFunc("/api/process/{pid}", m.processDetails)
	r.HandleFunc("/api/process/{pid}/pages", m.listPages)
	r.HandleFunc("/api/field/{json}", m.listFieldValue)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
	r.PathPrefix("/").Handler(fServer)

	return r
}

// StartServer starts the monitor as a web server and returns its URL.
func (m *Monitor) StartServer() string {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring paging with %s\n", url)

	r := m.Router()
	go func() {
		err := http.Serve(listener, r)
		dieOnErr(err)
	}()

	return url
}

type statsRsp struct {
	Memory paging.Stats      `json:"memory"`
	Events map[string]uint64 `json:"events,omitempty"`
}

func (m *Monitor) stats(w http.ResponseWriter, _ *http.Request) {
	rsp := statsRsp{Memory: m.manager.Stats()}
	if m.counter != nil {
		rsp.Events = m.counter.Counts()
	}

	writeJSON(w, rsp)
}

func (m *Monitor) listFrames(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, m.manager.FrameTable().Frames())
}

type swapRsp struct {
	NumSlots int   `json:"num_slots"`
	NumUsed  int   `json:"num_used"`
	Used     []int `json:"used"`
}

func (m *Monitor) swapUsage(w http.ResponseWriter, _ *http.Request) {
	store := m.manager.SwapStore()
	rsp := swapRsp{
		NumSlots: store.NumSlots(),
		NumUsed:  store.NumUsed(),
		Used:     []int{},
	}

	for _, p := range m.allPages() {
		if p.SwapSlot >= 0 {
			rsp.Used = append(rsp.Used, p.SwapSlot)
		}
	}

	writeJSON(w, rsp)
}

type processRsp struct {
	PID         uint32            `json:"pid"`
	NumPages    int               `json:"num_pages"`
	NumResident int               `json:"num_resident"`
	StackBottom uint64            `json:"stack_bottom"`
	Mappings    []*paging.Mapping `json:"mappings"`
	Faults      uint64            `json:"faults"`
}

func (m *Monitor) describeProcess(as *paging.AddressSpace) processRsp {
	pages := as.Pages()

	rsp := processRsp{
		PID:         uint32(as.PID()),
		NumPages:    len(pages),
		StackBottom: as.StackBottom(),
		Mappings:    as.Mappings(),
	}

	for _, p := range pages {
		if p.Resident {
			rsp.NumResident++
		}
	}

	if m.counter != nil {
		rsp.Faults = m.counter.FaultCount(uint32(as.PID()))
	}

	return rsp
}

func (m *Monitor) listProcesses(w http.ResponseWriter, _ *http.Request) {
	spaces := m.manager.AddressSpaces()

	rsp := make([]processRsp, 0, len(spaces))
	for _, as := range spaces {
		rsp = append(rsp, m.describeProcess(as))
	}

	writeJSON(w, rsp)
}

func (m *Monitor) processDetails(w http.ResponseWriter, r *http.Request) {
	as := m.findAddressSpaceOr404(w, mux.Vars(r)["pid"])
	if as == nil {
		return
	}

	writeJSON(w, m.describeProcess(as))
}

func (m *Monitor) listPages(w http.ResponseWriter, r *http.Request) {
	as := m.findAddressSpaceOr404(w, mux.Vars(r)["pid"])
	if as == nil {
		return
	}

	writeJSON(w, as.Pages())
}

type fieldReq struct {
	PID       uint32 `json:"pid"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) listFieldValue(w http.ResponseWriter, r *http.Request) {
	jsonString := mux.Vars(r)["json"]
	req := fieldReq{}

	err := json.Unmarshal([]byte(jsonString), &req)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	as := m.findAddressSpaceOr404(w, strconv.FormatUint(uint64(req.PID), 10))
	if as == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(as)
	serializer.SetMaxDepth(1)

	if req.FieldName != "" {
		err = serializer.SetEntryPoint(strings.Split(req.FieldName, "."))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, "Error: %s", err)
			return
		}
	}

	err = serializer.Serialize(w)
	dieOnErr(err)
}

func (m *Monitor) findAddressSpaceOr404(
	w http.ResponseWriter,
	pidStr string,
) *paging.AddressSpace {
	pid, err := strconv.ParseUint(pidStr, 10, 32)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)
		return nil
	}

	as, found := m.manager.AddressSpace(vm.PID(pid))
	if !found {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("Process not found"))
		dieOnErr(err)

		return nil
	}

	return as
}

func (m *Monitor) allPages() []paging.PageInfo {
	var pages []paging.PageInfo
	for _, as := range m.manager.AddressSpaces() {
		pages = append(pages, as.Pages()...)
	}

	return pages
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	bytes, err := json.Marshal(m.progressBars)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	rsp := resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	}

	writeJSON(w, rsp)
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	dieOnErr(err)

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}

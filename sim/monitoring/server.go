// Package monitoring serves a running simulation's counters over HTTP.
package monitoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/process"
	"github.com/sirupsen/logrus"

	"github.com/cxlmemsim/cxlmemsim/sim"
)

// Server exposes a controller's counters, aggregates and topology as JSON.
type Server struct {
	controller *sim.Controller
	portNumber int
}

// NewServer creates a server for c. Call StartServer to listen.
func NewServer(c *sim.Controller) *Server {
	return &Server{controller: c}
}

// WithPortNumber sets the listening port. Ports below 1000 are refused in
// favor of a random free port.
func (s *Server) WithPortNumber(portNumber int) *Server {
	if portNumber != 0 && portNumber < 1000 {
		logrus.Warnf("monitoring: port %d is not allowed, using a random port instead", portNumber)
		portNumber = 0
	}
	s.portNumber = portNumber
	return s
}

// Router returns the API routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/counters", s.counters).Methods(http.MethodGet)
	r.HandleFunc("/api/aggregates", s.aggregates).Methods(http.MethodGet)
	r.HandleFunc("/api/topology", s.topology).Methods(http.MethodGet)
	r.HandleFunc("/api/expander/{id}", s.expander).Methods(http.MethodGet)
	r.HandleFunc("/api/resource", s.resource).Methods(http.MethodGet)
	return r
}

// StartServer listens in the background and returns the bound port.
func (s *Server) StartServer() (int, error) {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(s.portNumber))
	if err != nil {
		return 0, fmt.Errorf("monitoring: listening on port %d: %w", s.portNumber, err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	logrus.Infof("monitoring simulation with http://localhost:%d", port)

	srv := &http.Server{Handler: s.Router()}
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("monitoring: server stopped: %v", err)
		}
	}()
	return port, nil
}

type switchCounters struct {
	ID int `json:"id"`
	sim.SwitchEvents
}

type expanderCounters struct {
	ID int `json:"id"`
	sim.ExpanderEvents
}

type countersRsp struct {
	Controller sim.ControllerEvents `json:"controller"`
	Switches   []switchCounters     `json:"switches"`
	Expanders  []expanderCounters   `json:"expanders"`
}

func (s *Server) counters(w http.ResponseWriter, _ *http.Request) {
	topo := s.controller.Topology()
	rsp := countersRsp{Controller: s.controller.Counter().Snapshot()}
	for _, sw := range topo.Switches {
		rsp.Switches = append(rsp.Switches, switchCounters{ID: sw.ID, SwitchEvents: sw.Counter().Snapshot()})
	}
	for _, e := range topo.Endpoints() {
		rsp.Expanders = append(rsp.Expanders, expanderCounters{ID: e.ID, ExpanderEvents: e.Counter().Snapshot()})
	}
	writeJSON(w, rsp)
}

func (s *Server) aggregates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.controller.Aggregates())
}

type nodeRsp struct {
	Kind     string `json:"kind"`
	ID       int    `json:"id"`
	Depth    int    `json:"depth"`
	Resident int    `json:"resident,omitempty"`
}

type topologyRsp struct {
	Description string    `json:"description"`
	Local       int       `json:"local"`
	Nodes       []nodeRsp `json:"nodes"`
}

func (s *Server) topology(w http.ResponseWriter, _ *http.Request) {
	topo := s.controller.Topology()
	rsp := topologyRsp{Description: topo.String(), Local: s.controller.Local().Len()}
	topo.Walk(func(sw *sim.Switch, depth int) {
		rsp.Nodes = append(rsp.Nodes, nodeRsp{Kind: "switch", ID: sw.ID, Depth: depth})
		for _, e := range sw.ChildExpanders() {
			rsp.Nodes = append(rsp.Nodes, nodeRsp{Kind: "expander", ID: e.ID, Depth: depth + 1, Resident: e.Occupancy().Len()})
		}
	})
	writeJSON(w, rsp)
}

type expanderRsp struct {
	ID             int                `json:"id"`
	ReadLatency    float64            `json:"read_latency"`
	WriteLatency   float64            `json:"write_latency"`
	ReadBandwidth  float64            `json:"read_bandwidth"`
	WriteBandwidth float64            `json:"write_bandwidth"`
	Capacity       float64            `json:"capacity"`
	UsedMiB        float64            `json:"used_mib"`
	Resident       int                `json:"resident"`
	LastTimestamp  uint64             `json:"last_timestamp"`
	Counters       sim.ExpanderEvents `json:"counters"`
}

func (s *Server) expander(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "expander id must be an integer", http.StatusBadRequest)
		return
	}
	e, ok := s.controller.Topology().Expander(id)
	if !ok {
		http.Error(w, fmt.Sprintf("expander %d not found", id), http.StatusNotFound)
		return
	}
	writeJSON(w, expanderRsp{
		ID:             e.ID,
		ReadLatency:    e.Latency.Read,
		WriteLatency:   e.Latency.Write,
		ReadBandwidth:  e.Bandwidth.Read,
		WriteBandwidth: e.Bandwidth.Write,
		Capacity:       e.Capacity,
		UsedMiB:        e.UsedMiB(s.controller.PageType()),
		Resident:       e.Occupancy().Len(),
		LastTimestamp:  e.LastTimestamp(),
		Counters:       e.Counter().Snapshot(),
	})
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (s *Server) resource(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, resourceRsp{CPUPercent: cpuPercent, MemorySize: mem.RSS})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("monitoring: encoding response: %v", err)
	}
}

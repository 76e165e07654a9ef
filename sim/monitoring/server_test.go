package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxlmemsim/cxlmemsim/sim"
)

func newTestServer(t *testing.T) (*sim.Controller, *httptest.Server) {
	t.Helper()
	cfg := sim.DefaultConfig()
	c, err := sim.NewControllerFromConfig(&cfg)
	require.NoError(t, err)
	for i := 0; i < 30; i++ {
		c.Access(uint64(i+1)*100, 1, uint64(i+1)*sim.PageSize, 0)
	}
	srv := httptest.NewServer(NewServer(c).Router())
	t.Cleanup(srv.Close)
	return c, srv
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	rsp, err := http.Get(url)
	require.NoError(t, err)
	defer rsp.Body.Close()
	if rsp.StatusCode == http.StatusOK && v != nil {
		require.NoError(t, json.NewDecoder(rsp.Body).Decode(v))
	}
	return rsp.StatusCode
}

func TestServer_Counters(t *testing.T) {
	// GIVEN 30 accesses with no local memory
	_, srv := newTestServer(t)

	// WHEN counters are requested
	var rsp countersRsp
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/counters", &rsp))

	// THEN every access went remote and each node is listed
	assert.Equal(t, uint64(30), rsp.Controller.Remote)
	assert.Len(t, rsp.Switches, 2)
	require.Len(t, rsp.Expanders, 3)
	total := uint64(0)
	for _, e := range rsp.Expanders {
		total += e.Store
	}
	assert.Equal(t, uint64(30), total)
}

func TestServer_Topology(t *testing.T) {
	_, srv := newTestServer(t)

	var rsp topologyRsp
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/topology", &rsp))

	assert.Equal(t, "(1,(2,3))", rsp.Description)
	assert.Equal(t, 0, rsp.Local)
	require.Len(t, rsp.Nodes, 5)
	assert.Equal(t, nodeRsp{Kind: "switch", ID: 0, Depth: 0}, rsp.Nodes[0])
	assert.Equal(t, "expander", rsp.Nodes[1].Kind)
	assert.Equal(t, 1, rsp.Nodes[1].Depth)
}

func TestServer_Expander(t *testing.T) {
	c, srv := newTestServer(t)

	var rsp expanderRsp
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/expander/1", &rsp))
	assert.Equal(t, 1, rsp.ID)
	assert.Equal(t, c.Expanders()[1].Occupancy().Len(), rsp.Resident)
	assert.Equal(t, 20.0, rsp.Capacity)

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/expander/7", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/expander/abc", nil))
}

func TestServer_Aggregates(t *testing.T) {
	c, srv := newTestServer(t)
	var lbrs [sim.LBRBatch]sim.LBR
	lbrs[0] = sim.LBR{From: 1, Flags: sim.NewLBRFlags(10, 1)}
	c.InsertLBR(3000, 1, lbrs, [sim.LBRBatch]sim.BranchCounter{})

	var rsp sim.Aggregates
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/aggregates", &rsp))
	assert.Equal(t, c.Aggregates(), rsp)
}

func TestServer_Resource(t *testing.T) {
	_, srv := newTestServer(t)

	var rsp resourceRsp
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/resource", &rsp))
	assert.Greater(t, rsp.MemorySize, uint64(0))
}

func TestServer_StartServerReturnsPort(t *testing.T) {
	cfg := sim.DefaultConfig()
	c, err := sim.NewControllerFromConfig(&cfg)
	require.NoError(t, err)

	port, err := NewServer(c).WithPortNumber(80).StartServer()
	require.NoError(t, err)
	assert.Greater(t, port, 0)
	assert.NotEqual(t, 80, port)
}

package sim

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

//go:generate mockgen -destination mock_monitor_test.go -package sim -write_package_comment=false github.com/cxlmemsim/cxlmemsim/sim Monitor

func TestSetProcessInfo_EnablesProcessSampling(t *testing.T) {
	// GIVEN a monitor expecting a process-wide enable with the PEBS period
	ctrl := gomock.NewController(t)
	mon := NewMockMonitor(ctrl)
	mon.EXPECT().Enable(uint32(100), uint32(100), true, uint64(1000), int32(0)).Return(nil)
	c, err := NewController(DefaultControllerConfig(), defaultTestPolicies(), WithMonitor(mon))
	require.NoError(t, err)

	// WHEN the tracer reports the process
	err = c.SetProcessInfo(ProcInfo{CurrentPID: 100, CurrentTID: 100})

	// THEN the monitor was enabled once
	assert.NoError(t, err)
}

func TestSetThreadInfo_EnablesThreadSampling(t *testing.T) {
	ctrl := gomock.NewController(t)
	mon := NewMockMonitor(ctrl)
	gomock.InOrder(
		mon.EXPECT().Enable(uint32(100), uint32(101), false, uint64(0), int32(0)).Return(nil),
		mon.EXPECT().Enable(uint32(100), uint32(102), false, uint64(0), int32(0)).Return(errors.New("no such thread")),
	)
	c, err := NewController(DefaultControllerConfig(), defaultTestPolicies(), WithMonitor(mon))
	require.NoError(t, err)

	assert.NoError(t, c.SetThreadInfo(ProcInfo{CurrentPID: 100, CurrentTID: 101}))
	err = c.SetThreadInfo(ProcInfo{CurrentPID: 100, CurrentTID: 102})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "100/102")
}

func TestNopMonitor_AcceptsEverything(t *testing.T) {
	c, err := NewController(DefaultControllerConfig(), defaultTestPolicies())
	require.NoError(t, err)
	assert.NoError(t, c.SetProcessInfo(ProcInfo{CurrentPID: 1}))
	assert.NoError(t, c.SetThreadInfo(ProcInfo{CurrentPID: 1, CurrentTID: 2}))
}

package fsm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/librescoot/ble-ota-peripheral/internal/ble"
	"github.com/librescoot/ble-ota-peripheral/internal/fsm"
)

func TestTransitionTable(t *testing.T) {
	def := fsm.NewDefinition(fsm.DefaultConfig())
	params := fsm.DefaultConfig().Params

	tests := []struct {
		name    string
		from    fsm.State
		sig     ble.Signal
		env     fsm.Env
		want    fsm.State
		effects []fsm.Effect
	}{
		{
			name: "stack ready starts fast advertising",
			from: fsm.Idle{},
			sig:  ble.StackReady{},
			want: fsm.Advertising{Phase: ble.AdvertisingFast},
			effects: []fsm.Effect{
				fsm.StartAdvertising{Profile: ble.AdvertisingFast, OnFailure: fsm.Idle{}},
			},
		},
		{
			name: "slow connection requests params",
			from: fsm.Advertising{},
			sig:  ble.LinkConnected{Handle: 7, Interval: 0x0010},
			want: fsm.Connected{Handle: 7, Interval: 0x0010, ParamsRequested: true},
			effects: []fsm.Effect{
				fsm.RequestConnParams{Handle: 7, Params: params},
			},
		},
		{
			name: "connection at threshold keeps params",
			from: fsm.Advertising{Phase: ble.AdvertisingSlow},
			sig:  ble.LinkConnected{Handle: 3, Interval: 0x0006},
			want: fsm.Connected{Handle: 3, Interval: 0x0006},
		},
		{
			name:    "window closed while disconnected hibernates",
			from:    fsm.Advertising{Phase: ble.AdvertisingSlow},
			sig:     ble.AdvertisingWindowClosed{},
			env:     fsm.Env{LinkDisconnected: true},
			want:    fsm.Hibernating{},
			effects: []fsm.Effect{fsm.EnterHibernation{}},
		},
		{
			name: "fast window closed moves to slow",
			from: fsm.Advertising{Phase: ble.AdvertisingFast},
			sig:  ble.AdvertisingWindowClosed{},
			want: fsm.Advertising{Phase: ble.AdvertisingSlow},
		},
		{
			name: "slow window closed while still advertising stays",
			from: fsm.Advertising{Phase: ble.AdvertisingSlow},
			sig:  ble.AdvertisingWindowClosed{},
			want: fsm.Advertising{Phase: ble.AdvertisingSlow},
		},
		{
			name: "disconnect restarts advertising",
			from: fsm.Connected{Handle: 7, Interval: 0x0010, ParamsRequested: true},
			sig:  ble.LinkDisconnected{Reason: 0x13},
			want: fsm.Advertising{Phase: ble.AdvertisingFast},
			effects: []fsm.Effect{
				fsm.StartAdvertising{Profile: ble.AdvertisingFast, OnFailure: fsm.Disconnecting{}},
			},
		},
		{
			name: "disconnecting retries on stack ready",
			from: fsm.Disconnecting{},
			sig:  ble.StackReady{},
			want: fsm.Advertising{Phase: ble.AdvertisingFast},
			effects: []fsm.Effect{
				fsm.StartAdvertising{Profile: ble.AdvertisingFast, OnFailure: fsm.Disconnecting{}},
			},
		},
		{
			name:    "duplicate connect is an anomaly",
			from:    fsm.Connected{Handle: 7, Interval: 0x0010},
			sig:     ble.LinkConnected{Handle: 9, Interval: 0x0006},
			want:    fsm.Connected{Handle: 7, Interval: 0x0010},
			effects: []fsm.Effect{fsm.ReportAnomaly{Detail: "connect on handle 9 while connected on handle 7"}},
		},
		{
			name:    "connect while idle is an anomaly",
			from:    fsm.Idle{},
			sig:     ble.LinkConnected{Handle: 1},
			want:    fsm.Idle{},
			effects: []fsm.Effect{fsm.ReportAnomaly{Detail: "connect on handle 1 while idle"}},
		},
		{
			name:    "hardware fault keeps state",
			from:    fsm.Connected{Handle: 7},
			sig:     ble.HardwareFault{Code: 2},
			want:    fsm.Connected{Handle: 7},
			effects: []fsm.Effect{fsm.ReportFault{Code: 2}},
		},
		{
			name:    "prepared write rejected",
			from:    fsm.Connected{Handle: 7},
			sig:     ble.PrepWriteUnsupportedNotice{},
			want:    fsm.Connected{Handle: 7},
			effects: []fsm.Effect{fsm.RejectPreparedWrites{}},
		},
		{
			name: "unclassified ignored",
			from: fsm.Advertising{},
			sig:  ble.Unclassified{Tag: ble.EvtHCIStatus},
			want: fsm.Advertising{},
		},
		{
			name: "hibernating ignores stack ready",
			from: fsm.Hibernating{},
			sig:  ble.StackReady{},
			want: fsm.Hibernating{},
		},
		{
			name: "window closed outside advertising ignored",
			from: fsm.Connected{Handle: 7},
			sig:  ble.AdvertisingWindowClosed{},
			env:  fsm.Env{LinkDisconnected: true},
			want: fsm.Connected{Handle: 7},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, effects := def.Transition(tt.from, tt.sig, tt.env)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.effects, effects)
		})
	}
}

func TestKindString(t *testing.T) {
	names := make([]string, 0, len(fsm.Kinds))
	for _, k := range fsm.Kinds {
		names = append(names, k.String())
	}
	assert.Equal(t, []string{"idle", "advertising", "connected", "disconnecting", "hibernating"}, names)
}

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/boost"
	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/climate"
	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/core"
	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/providers/daikin"
	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/providers/netatmo"
)

var errUnauthorized = &core.UpstreamError{StatusCode: http.StatusUnauthorized, Body: "Token expired"}

type fakeTokens struct {
	forceRefreshCalls int
	forceRefreshErr   error
}

func (f *fakeTokens) GetValidToken(_ context.Context, _ core.Provider) (string, error) {
	return "access", nil
}

func (f *fakeTokens) ForceRefresh(_ context.Context, _ core.Provider) (string, error) {
	f.forceRefreshCalls++
	if f.forceRefreshErr != nil {
		return "", f.forceRefreshErr
	}
	return "access-fresh", nil
}

// fakeDaikin fails each operation with the queued errors before succeeding.
type fakeDaikin struct {
	listCalls int
	listErrs  []error
	list      json.RawMessage

	getCalls int
	getErrs  []error
	device   json.RawMessage

	sendCalls          int
	sendErrs           []error
	lastCharacteristic string
	lastBody           any
}

func popErr(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (f *fakeDaikin) ListDevices(_ context.Context) (json.RawMessage, error) {
	f.listCalls++
	if err := popErr(&f.listErrs); err != nil {
		return nil, err
	}
	return f.list, nil
}

func (f *fakeDaikin) GetDevice(_ context.Context, _ string) (json.RawMessage, error) {
	f.getCalls++
	if err := popErr(&f.getErrs); err != nil {
		return nil, err
	}
	return f.device, nil
}

func (f *fakeDaikin) SendCharacteristic(_ context.Context, _, characteristic string, body any) error {
	f.sendCalls++
	if err := popErr(&f.sendErrs); err != nil {
		return err
	}
	f.lastCharacteristic = characteristic
	f.lastBody = body
	return nil
}

type fakeNetatmo struct {
	setStateCalls int
	setStateErrs  []error
	lastState     netatmo.RoomState

	homes      json.RawMessage
	homeStatus json.RawMessage
}

func (f *fakeNetatmo) GetHomes(_ context.Context) (json.RawMessage, error) {
	return f.homes, nil
}

func (f *fakeNetatmo) GetHomeStatus(_ context.Context, _ string) (json.RawMessage, error) {
	return f.homeStatus, nil
}

func (f *fakeNetatmo) SetRoomState(_ context.Context, state netatmo.RoomState) (json.RawMessage, error) {
	f.setStateCalls++
	if err := popErr(&f.setStateErrs); err != nil {
		return nil, err
	}
	f.lastState = state
	return json.RawMessage(`{"status": "ok"}`), nil
}

func (f *fakeNetatmo) SwitchSchedule(_ context.Context, _, _ string) (json.RawMessage, error) {
	return json.RawMessage(`{"status": "ok"}`), nil
}

func (f *fakeNetatmo) SyncSchedule(_ context.Context, _ netatmo.SyncScheduleRequest) (json.RawMessage, error) {
	return json.RawMessage(`{"status": "ok"}`), nil
}

func (f *fakeNetatmo) CreateSchedule(_ context.Context, _ netatmo.CreateScheduleRequest) (json.RawMessage, error) {
	return json.RawMessage(`{"status": "ok"}`), nil
}

func (f *fakeNetatmo) SwitchHomeSchedule(_ context.Context, _, _ string, _ *bool) (json.RawMessage, error) {
	return json.RawMessage(`{"status": "ok"}`), nil
}

type fakeSequencer struct {
	next int64
	err  error
}

func (f *fakeSequencer) NextBoostIndex(_ context.Context, _, _ string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	index := f.next
	f.next++
	return index, nil
}

const testDevice = `{
	"id": "dev-1",
	"managementPoints": [{
		"managementPointType": "climateControl",
		"name": {"value": "Living room"},
		"onOffMode": {"value": "on"},
		"operationMode": {"value": "heating", "values": ["heating", "cooling"]}
	}]
}`

func newTestGateway() (*Gateway, *fakeTokens, *fakeDaikin, *fakeNetatmo, *fakeSequencer) {
	tokens := &fakeTokens{}
	dk := &fakeDaikin{
		list:   json.RawMessage(`[{"id": "dev-1"}]`),
		device: json.RawMessage(testDevice),
	}
	nt := &fakeNetatmo{
		homes:      json.RawMessage(`{"homes": [{"id": "home-1"}]}`),
		homeStatus: json.RawMessage(`{"home": {"id": "home-1"}}`),
	}
	seq := &fakeSequencer{}
	g := New(tokens, dk, nt, seq, slog.New(slog.DiscardHandler))
	g.now = func() time.Time { return time.Unix(1700000000, 0) }
	return g, tokens, dk, nt, seq
}

func TestListDevices_RetriesOnceAfter401(t *testing.T) {
	g, tokens, dk, _, _ := newTestGateway()
	dk.listErrs = []error{errUnauthorized}

	raw, err := g.ListDevices(context.Background(), core.ProviderDaikin)
	require.NoError(t, err)

	assert.JSONEq(t, `[{"id": "dev-1"}]`, string(raw))
	assert.Equal(t, 2, dk.listCalls)
	assert.Equal(t, 1, tokens.forceRefreshCalls)
}

func TestListDevices_GivesUpAfterSecond401(t *testing.T) {
	g, tokens, dk, _, _ := newTestGateway()
	dk.listErrs = []error{errUnauthorized, errUnauthorized}

	_, err := g.ListDevices(context.Background(), core.ProviderDaikin)

	var upstream *core.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusUnauthorized, upstream.StatusCode)
	assert.Equal(t, 2, dk.listCalls)
	assert.Equal(t, 1, tokens.forceRefreshCalls)
}

func TestListDevices_RefreshFailureWins(t *testing.T) {
	g, tokens, dk, _, _ := newTestGateway()
	dk.listErrs = []error{errUnauthorized}
	tokens.forceRefreshErr = &core.RefreshFailedError{Provider: core.ProviderDaikin, Err: errors.New("invalid_grant")}

	_, err := g.ListDevices(context.Background(), core.ProviderDaikin)

	var refreshErr *core.RefreshFailedError
	assert.ErrorAs(t, err, &refreshErr)
	assert.Equal(t, 1, dk.listCalls)
}

func TestListDevices_NoRetryOnOtherErrors(t *testing.T) {
	g, tokens, dk, _, _ := newTestGateway()
	dk.listErrs = []error{&core.UpstreamError{StatusCode: http.StatusBadGateway, Body: "upstream down"}}

	_, err := g.ListDevices(context.Background(), core.ProviderDaikin)

	var upstream *core.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusBadGateway, upstream.StatusCode)
	assert.Equal(t, 1, dk.listCalls)
	assert.Equal(t, 0, tokens.forceRefreshCalls)
}

func TestListDevices_Netatmo(t *testing.T) {
	g, _, _, _, _ := newTestGateway()

	raw, err := g.ListDevices(context.Background(), core.ProviderNetatmo)
	require.NoError(t, err)
	assert.JSONEq(t, `{"homes": [{"id": "home-1"}]}`, string(raw))
}

func TestListDevices_UnknownProvider(t *testing.T) {
	g, _, _, _, _ := newTestGateway()

	_, err := g.ListDevices(context.Background(), core.Provider("tado"))
	assert.Error(t, err)
}

func TestGetStatus_DaikinFlattens(t *testing.T) {
	g, _, _, _, _ := newTestGateway()

	result, err := g.GetStatus(context.Background(), core.ProviderDaikin, Target{DeviceID: "dev-1"})
	require.NoError(t, err)

	status, ok := result.(*climate.Status)
	require.True(t, ok)
	assert.Equal(t, "dev-1", status.ID)
	assert.Equal(t, "heating", status.Mode)
	assert.Equal(t, "on", status.OnOff)
}

func TestGetStatus_NetatmoRaw(t *testing.T) {
	g, _, _, _, _ := newTestGateway()

	result, err := g.GetStatus(context.Background(), core.ProviderNetatmo, Target{HomeID: "home-1"})
	require.NoError(t, err)

	raw, ok := result.(json.RawMessage)
	require.True(t, ok)
	assert.JSONEq(t, `{"home": {"id": "home-1"}}`, string(raw))
}

func TestSendCommand_DaikinOnOff(t *testing.T) {
	g, _, dk, _, _ := newTestGateway()

	err := g.SendCommand(context.Background(), core.ProviderDaikin, Target{DeviceID: "dev-1"},
		core.DeviceCommand{Kind: core.CommandOnOff, On: true})
	require.NoError(t, err)

	assert.Equal(t, daikin.CharacteristicOnOffMode, dk.lastCharacteristic)
	assert.Equal(t, map[string]any{"value": "on"}, dk.lastBody)
	// on/off needs no device lookup
	assert.Equal(t, 0, dk.getCalls)
}

func TestSendCommand_DaikinTemperatureUsesActiveMode(t *testing.T) {
	g, _, dk, _, _ := newTestGateway()

	err := g.SendCommand(context.Background(), core.ProviderDaikin, Target{DeviceID: "dev-1"},
		core.DeviceCommand{Kind: core.CommandTemperature, Temperature: 22})
	require.NoError(t, err)

	assert.Equal(t, 1, dk.getCalls)
	assert.Equal(t, daikin.CharacteristicTemperatureControl, dk.lastCharacteristic)
	assert.Equal(t, map[string]any{
		"value": 22.0,
		"path":  "/operationModes/heating/setpoints/roomTemperature",
	}, dk.lastBody)
}

func TestSendCommand_DaikinRetriesPatchAfter401(t *testing.T) {
	g, tokens, dk, _, _ := newTestGateway()
	dk.sendErrs = []error{errUnauthorized}

	err := g.SendCommand(context.Background(), core.ProviderDaikin, Target{DeviceID: "dev-1"},
		core.DeviceCommand{Kind: core.CommandMode, Mode: "cooling"})
	require.NoError(t, err)

	assert.Equal(t, 2, dk.sendCalls)
	assert.Equal(t, 1, tokens.forceRefreshCalls)
}

func TestSendCommand_DaikinMissingDeviceID(t *testing.T) {
	g, _, _, _, _ := newTestGateway()

	err := g.SendCommand(context.Background(), core.ProviderDaikin, Target{},
		core.DeviceCommand{Kind: core.CommandOnOff, On: true})

	var missing *core.MissingParametersError
	assert.ErrorAs(t, err, &missing)
}

func TestSendCommand_NetatmoMode(t *testing.T) {
	g, _, _, nt, _ := newTestGateway()

	err := g.SendCommand(context.Background(), core.ProviderNetatmo,
		Target{HomeID: "home-1", RoomID: "room-9"},
		core.DeviceCommand{Kind: core.CommandMode, Mode: netatmo.ModeAway})
	require.NoError(t, err)

	assert.Equal(t, netatmo.ModeAway, nt.lastState.Mode)
	assert.Equal(t, "home-1", nt.lastState.HomeID)
	assert.Equal(t, "room-9", nt.lastState.RoomID)
	assert.Nil(t, nt.lastState.Temperature)
}

func TestSendCommand_NetatmoTemperatureImpliesManual(t *testing.T) {
	g, _, _, nt, _ := newTestGateway()

	err := g.SendCommand(context.Background(), core.ProviderNetatmo,
		Target{HomeID: "home-1", RoomID: "room-9"},
		core.DeviceCommand{Kind: core.CommandTemperature, Temperature: 19.5})
	require.NoError(t, err)

	assert.Equal(t, netatmo.ModeManual, nt.lastState.Mode)
	require.NotNil(t, nt.lastState.Temperature)
	assert.Equal(t, 19.5, *nt.lastState.Temperature)
}

func TestSendCommand_NetatmoRejectsFanSpeed(t *testing.T) {
	g, _, _, _, _ := newTestGateway()

	err := g.SendCommand(context.Background(), core.ProviderNetatmo,
		Target{HomeID: "home-1", RoomID: "room-9"},
		core.DeviceCommand{Kind: core.CommandFanSpeed, FanSpeed: 2})
	assert.Error(t, err)
}

func TestBoostRoom_CyclesThroughSteps(t *testing.T) {
	g, _, _, nt, _ := newTestGateway()

	expected := []struct {
		step    boost.Step
		minutes int
	}{
		{boost.StepBoost30, 30},
		{boost.StepBoost60, 60},
		{boost.StepBoost90, 90},
		{boost.StepReset, 0},
		{boost.StepBoost30, 30},
	}

	for i, want := range expected {
		result, err := g.BoostRoom(context.Background(), "home-1", "room-9", nil)
		require.NoError(t, err)

		assert.Equal(t, want.step, result.Step, "call %d", i)
		assert.Equal(t, want.minutes, result.DurationMinutes, "call %d", i)
		assert.Equal(t, int64(i), result.CallIndex, "call %d", i)

		if want.step == boost.StepReset {
			assert.Equal(t, netatmo.ModeHome, nt.lastState.Mode)
			assert.Nil(t, nt.lastState.Temperature)
			assert.Nil(t, nt.lastState.EndTime)
			assert.Contains(t, result.Message, "home schedule")
		} else {
			assert.Equal(t, netatmo.ModeManual, nt.lastState.Mode)
			require.NotNil(t, nt.lastState.Temperature)
			assert.Equal(t, boost.DefaultTemperature, *nt.lastState.Temperature)
			require.NotNil(t, nt.lastState.EndTime)
			assert.Equal(t, int64(1700000000+want.minutes*60), *nt.lastState.EndTime)
			assert.Contains(t, result.Message, "boosted")
		}
	}
}

func TestBoostRoom_RequestedTemperatureClamped(t *testing.T) {
	g, _, _, nt, _ := newTestGateway()

	high := 45.0
	_, err := g.BoostRoom(context.Background(), "home-1", "room-9", &high)
	require.NoError(t, err)

	require.NotNil(t, nt.lastState.Temperature)
	assert.Equal(t, boost.MaxTemperature, *nt.lastState.Temperature)
}

func TestBoostRoom_MissingParams(t *testing.T) {
	g, _, _, nt, _ := newTestGateway()

	_, err := g.BoostRoom(context.Background(), "", "", nil)

	var missing *core.MissingParametersError
	require.ErrorAs(t, err, &missing)
	assert.ElementsMatch(t, []string{"homeId", "roomId"}, missing.Params)
	assert.Equal(t, 0, nt.setStateCalls)
}

func TestBoostRoom_RetriesAfter401(t *testing.T) {
	g, tokens, _, nt, seq := newTestGateway()
	nt.setStateErrs = []error{errUnauthorized}

	result, err := g.BoostRoom(context.Background(), "home-1", "room-9", nil)
	require.NoError(t, err)

	assert.Equal(t, 2, nt.setStateCalls)
	assert.Equal(t, 1, tokens.forceRefreshCalls)
	// The counter advanced exactly once despite the retry.
	assert.Equal(t, int64(0), result.CallIndex)
	assert.Equal(t, int64(1), seq.next)
}

func TestScheduleOperationsPassThrough(t *testing.T) {
	g, _, _, _, _ := newTestGateway()
	ctx := context.Background()

	raw, err := g.SwitchSchedule(ctx, "home-1", "sched-2")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status": "ok"}`, string(raw))

	raw, err = g.SyncSchedule(ctx, netatmo.SyncScheduleRequest{HomeID: "home-1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status": "ok"}`, string(raw))

	raw, err = g.CreateSchedule(ctx, netatmo.CreateScheduleRequest{HomeID: "home-1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status": "ok"}`, string(raw))

	raw, err = g.SwitchHomeSchedule(ctx, "home-1", "sched-2", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status": "ok"}`, string(raw))
}

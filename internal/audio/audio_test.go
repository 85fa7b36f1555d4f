package audio

import (
	"context"
	"io"
	"reflect"
	"testing"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
	"github.com/stretchr/testify/require"
)

func TestSelectDeviceFromListDefault(t *testing.T) {
	devices := []Device{
		{ID: "usb-cam-mic", Description: "Webcam C920", Available: true, Default: true},
		{ID: "headset", Description: "Jabra Evolve", Available: true},
	}

	selection, err := selectDeviceFromList(devices, "default", "")
	require.NoError(t, err)
	require.Equal(t, "usb-cam-mic", selection.Device.ID)
	require.Empty(t, selection.Warning)
}

func TestSelectDeviceFromListMutedPrimaryUsesFallback(t *testing.T) {
	devices := []Device{
		{ID: "usb-cam-mic", Description: "Webcam C920", Available: true, Muted: true, Default: true},
		{ID: "headset", Description: "Jabra Evolve", Available: true},
	}

	selection, err := selectDeviceFromList(devices, "c920", "jabra")
	require.NoError(t, err)
	require.Equal(t, "headset", selection.Device.ID)
	require.Contains(t, selection.Warning, "muted")
	require.True(t, selection.Fallback)
}

func TestSelectDeviceFromListUnusableFallback(t *testing.T) {
	devices := []Device{
		{ID: "usb-cam-mic", Description: "Webcam C920", Available: true, Muted: true, Default: true},
	}

	_, err := selectDeviceFromList(devices, "", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not usable")
}

func TestSelectDeviceFromListUnknownInput(t *testing.T) {
	devices := []Device{{ID: "usb-cam-mic", Available: true, Default: true}}

	_, err := selectDeviceFromList(devices, "missing", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "did not match")
}

func TestSelectDeviceFromListEmpty(t *testing.T) {
	_, err := selectDeviceFromList(nil, "", "")
	require.Error(t, err)
}

func TestDevicesFromInfosSkipsMonitors(t *testing.T) {
	infos := pulseproto.GetSourceInfoListReply{
		{SourceName: "alsa_output.pci.analog-stereo.monitor", Device: "Monitor"},
		{SourceName: "alsa_input.usb-webcam", Device: "Webcam", Mute: true},
		nil,
	}

	devices := devicesFromInfos(infos, "alsa_input.usb-webcam")
	require.Len(t, devices, 1)
	require.Equal(t, "alsa_input.usb-webcam", devices[0].ID)
	require.True(t, devices[0].Default)
	require.True(t, devices[0].Muted)
}

func TestListDevicesFailsWhenPulseUnavailable(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")
	_, err := ListDevices(context.Background())
	require.Error(t, err)
}

func TestSourceStateString(t *testing.T) {
	require.Equal(t, "running", sourceStateString(0))
	require.Equal(t, "suspended", sourceStateString(2))
	require.Equal(t, "unknown(7)", sourceStateString(7))
}

func TestSourceAvailable(t *testing.T) {
	require.False(t, sourceAvailable(nil))
	require.True(t, sourceAvailable(&pulseproto.GetSourceInfoReply{}))

	unplugged := &pulseproto.GetSourceInfoReply{ActivePortName: "mic"}
	setSourcePorts(t, unplugged, "mic", 1)
	require.False(t, sourceAvailable(unplugged))

	plugged := &pulseproto.GetSourceInfoReply{ActivePortName: "mic"}
	setSourcePorts(t, plugged, "mic", 2)
	require.True(t, sourceAvailable(plugged))
}

func TestCaptureBroadcastsChunksAndFlushesOnStop(t *testing.T) {
	capture := newCapture(Device{ID: "mic"}, CaptureOptions{KeepRaw: true})
	first, _ := capture.Subscribe()
	second, unsubscribe := capture.Subscribe()

	input := make([]byte, chunkSizeBytes+100)
	for i := range input {
		input[i] = byte(i%250) + 1
	}
	n, err := capture.onPCM(input)
	require.NoError(t, err)
	require.Equal(t, len(input), n)
	require.Equal(t, int64(len(input)), capture.BytesCaptured())
	require.Len(t, capture.RawPCM(), len(input))

	require.Len(t, <-first, chunkSizeBytes)
	require.Len(t, <-second, chunkSizeBytes)

	unsubscribe()
	_, ok := <-second
	require.False(t, ok)

	require.NoError(t, capture.Stop())
	tail, ok := <-first
	require.True(t, ok)
	require.Len(t, tail, 100)
	_, ok = <-first
	require.False(t, ok)

	require.NoError(t, capture.Stop())
}

func TestCaptureMutedEmitsSilence(t *testing.T) {
	capture := newCapture(Device{ID: "mic"}, CaptureOptions{})
	chunks, _ := capture.Subscribe()
	capture.SetMuted(true)
	require.True(t, capture.Muted())

	input := make([]byte, chunkSizeBytes)
	for i := range input {
		input[i] = 0x7f
	}
	_, err := capture.onPCM(input)
	require.NoError(t, err)
	require.Equal(t, make([]byte, chunkSizeBytes), <-chunks)
	require.Equal(t, byte(0x7f), input[0])
}

func TestCaptureSlowSubscriberDropsChunks(t *testing.T) {
	capture := newCapture(Device{ID: "mic"}, CaptureOptions{})
	_, _ = capture.Subscribe()

	input := make([]byte, chunkSizeBytes*(subscriberBuf+3))
	_, err := capture.onPCM(input)
	require.NoError(t, err)
	require.Equal(t, int64(3), capture.DroppedChunks())
}

func TestCaptureOnPCMReturnsEOFAfterStop(t *testing.T) {
	capture := newCapture(Device{ID: "mic"}, CaptureOptions{})
	require.NoError(t, capture.Stop())

	n, err := capture.onPCM([]byte{1, 2})
	require.Equal(t, 0, n)
	require.ErrorIs(t, err, io.EOF)

	ch, _ := capture.Subscribe()
	_, ok := <-ch
	require.False(t, ok)
}

func TestSampleFeederStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	feed := sampleFeeder(ctx, []int16{1, 2, 3, 4, 5})

	buf := make([]int16, 2)
	n, err := feed(buf)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	cancel()
	n, err = feed(buf)
	require.Equal(t, 0, n)
	require.ErrorIs(t, err, pulse.EndOfData)
}

func TestSampleFeederSignalsEnd(t *testing.T) {
	feed := sampleFeeder(context.Background(), []int16{1, 2, 3})
	buf := make([]int16, 8)
	n, err := feed(buf)
	require.Equal(t, 3, n)
	require.ErrorIs(t, err, pulse.EndOfData)
}

func TestDecodePCM16LE(t *testing.T) {
	got := DecodePCM16LE([]byte{0x01, 0x00, 0xff, 0xff, 0x09})
	require.Equal(t, []int16{1, -1}, got)
}

func TestPlayPCMEmptyIsNoop(t *testing.T) {
	require.NoError(t, PlayPCM(context.Background(), nil, SampleRate, "test"))
}

func setSourcePorts(t *testing.T, reply *pulseproto.GetSourceInfoReply, name string, available uint32) {
	t.Helper()

	sliceValue := reflect.MakeSlice(reflect.TypeOf(reply.Ports), 1, 1)
	item := sliceValue.Index(0)
	item.FieldByName("Name").SetString(name)
	item.FieldByName("Available").SetUint(uint64(available))
	reflect.ValueOf(reply).Elem().FieldByName("Ports").Set(sliceValue)
}

package recovery

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FL0WL0W/ESPRecovery/flash"
	"github.com/FL0WL0W/ESPRecovery/internal/format"
	"github.com/FL0WL0W/ESPRecovery/partition"
	"github.com/FL0WL0W/ESPRecovery/pkg/types"
)

// -----------------------------------------------------------------------------
// test helpers
// -----------------------------------------------------------------------------

func testRegions() []types.Region {
	return []types.Region{
		{Label: "bootdata", Kind: types.KindData, SubKind: types.SubKindBootData, Offset: 0x9000, Size: 0x2000},
		{Label: "nvs", Kind: types.KindData, SubKind: types.SubKindKVStore, Offset: 0xB000, Size: 0x5000},
		{Label: "factory", Kind: types.KindApplication, SubKind: types.SubKindFactory, Offset: 0x10000, Size: 0x100000},
		{Label: "ota_0", Kind: types.KindApplication, SubKind: types.SubKindOTA(0), Offset: 0x110000, Size: 0x100000},
		{Label: "spiffs", Kind: types.KindData, SubKind: types.SubKindFS, Offset: 0x210000, Size: 0x10000},
	}
}

func testSystem(t *testing.T) (*System, *flash.MemDevice) {
	t.Helper()
	dev := flash.NewMemDevice(4<<20, 4096)
	table, err := partition.EncodeTable(testRegions())
	require.NoError(t, err)
	dev.Load(format.TableDefaultOffset, table)

	sys, err := OpenDevice(dev, Options{})
	require.NoError(t, err)
	return sys, dev
}

// -----------------------------------------------------------------------------
// Status
// -----------------------------------------------------------------------------

func TestSystem_Status(t *testing.T) {
	sys, _ := testSystem(t)

	status := sys.Status()
	require.Len(t, status.Regions, 5)
	require.Equal(t, "factory", status.Running)
	require.Equal(t, "factory", status.BootTarget)

	first := status.Regions[0]
	require.Equal(t, "bootdata", first.Label)
	require.Equal(t, "0x9000", first.Address, "addresses render as hex text")
	require.Equal(t, int64(0x2000), first.Size)
	require.Equal(t, uint8(types.KindData), first.Kind)
}

// -----------------------------------------------------------------------------
// Label resolution
// -----------------------------------------------------------------------------

func TestSystem_UnknownLabelFailsWithoutStorageAccess(t *testing.T) {
	sys, dev := testSystem(t)
	dev.ResetStats()

	_, err := sys.Write("missing", 100, bytes.NewReader(make([]byte, 100)))
	require.ErrorIs(t, err, types.ErrRegionNotFound)
	require.ErrorIs(t, sys.Clear("missing"), types.ErrRegionNotFound)
	_, err = sys.Download("missing", &bytes.Buffer{})
	require.ErrorIs(t, err, types.ErrRegionNotFound)
	_, err = sys.KVList("missing")
	require.ErrorIs(t, err, types.ErrRegionNotFound)
	_, err = sys.FileList("missing")
	require.ErrorIs(t, err, types.ErrRegionNotFound)

	require.Equal(t, flash.MemStats{}, dev.Stats(),
		"failed resolution must not touch storage")
}

// -----------------------------------------------------------------------------
// Write / Download / Clear
// -----------------------------------------------------------------------------

func TestSystem_WriteDownloadRoundTrip(t *testing.T) {
	sys, _ := testSystem(t)

	payload := make([]byte, 10000)
	for i := range payload {
		payload[i] = byte(i)
	}
	report, err := sys.Write("ota_0", int64(len(payload)), bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, int64(10000), report.BytesReceived)
	require.Equal(t, 3, report.PagesWritten)

	var out bytes.Buffer
	n, err := sys.Download("ota_0", &out)
	require.NoError(t, err)
	require.Equal(t, int64(0x100000), n, "download streams the whole region")
	require.Equal(t, payload, out.Bytes()[:10000])
	require.Equal(t, byte(0xFF), out.Bytes()[12288], "unwritten pages read erased")
}

func TestSystem_ClearResetsStores(t *testing.T) {
	sys, _ := testSystem(t)

	require.NoError(t, sys.KVSet("nvs", "n", "k", types.TypeU8, "1"))
	require.NoError(t, sys.Clear("nvs"))

	_, err := sys.KVGet("nvs", "n", "k")
	require.ErrorIs(t, err, types.ErrNotFound)
	entries, err := sys.KVList("nvs")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestSystem_BusyRegionRejectsSecondOperation(t *testing.T) {
	sys, _ := testSystem(t)

	release, err := sys.Registry().Acquire("ota_0")
	require.NoError(t, err)
	defer release()

	_, err = sys.Write("ota_0", 100, bytes.NewReader(make([]byte, 100)))
	require.ErrorIs(t, err, types.ErrBusy)
	require.ErrorIs(t, sys.Clear("ota_0"), types.ErrBusy)

	// A different region stays available.
	_, err = sys.Write("factory", 100, bytes.NewReader(make([]byte, 100)))
	require.NoError(t, err)
}

// -----------------------------------------------------------------------------
// Boot target
// -----------------------------------------------------------------------------

func TestSystem_BootTargetLifecycle(t *testing.T) {
	sys, _ := testSystem(t)

	require.Equal(t, "factory", sys.BootTarget())
	require.NoError(t, sys.SetBootTarget("ota_0"))
	require.Equal(t, "ota_0", sys.BootTarget())

	require.ErrorIs(t, sys.SetBootTarget("nvs"), types.ErrInvalidTarget)
	require.Equal(t, "ota_0", sys.BootTarget(), "rejected selection keeps the prior target")
}

// -----------------------------------------------------------------------------
// Store wrappers
// -----------------------------------------------------------------------------

func TestSystem_KVOperations(t *testing.T) {
	sys, _ := testSystem(t)

	require.NoError(t, sys.KVSet("nvs", "wifi", "ssid", types.TypeString, "net"))
	require.NoError(t, sys.KVSet("nvs", "wifi", "chan", types.TypeU8, "6"))

	e, err := sys.KVGet("nvs", "wifi", "chan")
	require.NoError(t, err)
	require.Equal(t, "6", e.Value)

	entries, err := sys.KVList("nvs")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.NoError(t, sys.KVDelete("nvs", "wifi", "chan"))
	_, err = sys.KVGet("nvs", "wifi", "chan")
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestSystem_FileOperations(t *testing.T) {
	sys, _ := testSystem(t)
	content := []byte("hello flash")

	require.NoError(t, sys.FileUpload("spiffs", "greeting.txt", int64(len(content)), bytes.NewReader(content)))

	files, err := sys.FileList("spiffs")
	require.NoError(t, err)
	require.Equal(t, []types.FileInfo{{Name: "greeting.txt", Size: int64(len(content))}}, files)

	got, err := sys.FileDownload("spiffs", "greeting.txt")
	require.NoError(t, err)
	require.Equal(t, content, got)

	require.NoError(t, sys.FileDelete("spiffs", "greeting.txt"))
	_, err = sys.FileDownload("spiffs", "greeting.txt")
	require.ErrorIs(t, err, types.ErrNotFound)
}

package partition

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FL0WL0W/ESPRecovery/flash"
	"github.com/FL0WL0W/ESPRecovery/internal/format"
	"github.com/FL0WL0W/ESPRecovery/pkg/types"
)

func openRegistry(t *testing.T, opts Options) (*Registry, *flash.MemDevice) {
	t.Helper()
	dev := testDevice(t, standardRegions())
	reg, err := Open(dev, opts)
	require.NoError(t, err)
	return reg, dev
}

// -----------------------------------------------------------------------------
// Running region resolution
// -----------------------------------------------------------------------------

func TestRegistry_RunningDefaultsToFactory(t *testing.T) {
	reg, _ := openRegistry(t, Options{})

	running, ok := reg.Running()
	require.True(t, ok)
	require.Equal(t, "factory", running.Label)
	require.Equal(t, "factory", reg.BootTarget(),
		"no persisted record: factory is the implicit target")
}

func TestRegistry_RunningLabelOverride(t *testing.T) {
	reg, _ := openRegistry(t, Options{RunningLabel: "ota_1"})

	running, ok := reg.Running()
	require.True(t, ok)
	require.Equal(t, "ota_1", running.Label)
}

func TestRegistry_RunningLabelMustBeApplication(t *testing.T) {
	dev := testDevice(t, standardRegions())
	_, err := Open(dev, Options{RunningLabel: "nvs"})
	require.ErrorIs(t, err, types.ErrInvalidTarget)
}

func TestRegistry_RunningLabelMustExist(t *testing.T) {
	dev := testDevice(t, standardRegions())
	_, err := Open(dev, Options{RunningLabel: "nope"})
	require.ErrorIs(t, err, types.ErrRegionNotFound)
}

// -----------------------------------------------------------------------------
// Enumerate / Find
// -----------------------------------------------------------------------------

func TestRegistry_EnumerateIsRestartableCopy(t *testing.T) {
	reg, _ := openRegistry(t, Options{})

	first := reg.Enumerate()
	first[0].Label = "clobbered"
	second := reg.Enumerate()
	require.Equal(t, "bootdata", second[0].Label)
	require.Equal(t, standardRegions(), second)
}

func TestRegistry_FindUnknownLabel(t *testing.T) {
	reg, _ := openRegistry(t, Options{})

	_, err := reg.Find("missing")
	require.ErrorIs(t, err, types.ErrRegionNotFound)
}

// -----------------------------------------------------------------------------
// Boot target
// -----------------------------------------------------------------------------

func TestRegistry_SetBootTargetPersistsAcrossReopen(t *testing.T) {
	dev := testDevice(t, standardRegions())
	reg, err := Open(dev, Options{})
	require.NoError(t, err)

	require.NoError(t, reg.SetBootTarget("ota_0"))
	require.Equal(t, "ota_0", reg.BootTarget())

	// Same device, fresh registry: the selection survived.
	reg2, err := Open(dev, Options{})
	require.NoError(t, err)
	require.Equal(t, "ota_0", reg2.BootTarget())

	running, ok := reg2.Running()
	require.True(t, ok)
	require.Equal(t, "ota_0", running.Label, "running follows the persisted target")
}

func TestRegistry_SetBootTargetAlternatesSlots(t *testing.T) {
	dev := testDevice(t, standardRegions())
	reg, err := Open(dev, Options{})
	require.NoError(t, err)

	// Repeated updates cycle both slots; the newest sequence always wins.
	for _, label := range []string{"ota_0", "ota_1", "factory", "ota_0"} {
		require.NoError(t, reg.SetBootTarget(label))
		reg2, err := Open(dev, Options{})
		require.NoError(t, err)
		require.Equal(t, label, reg2.BootTarget())
	}
}

func TestRegistry_SetBootTargetRejectsDataRegion(t *testing.T) {
	dev := testDevice(t, standardRegions())
	reg, err := Open(dev, Options{})
	require.NoError(t, err)
	require.NoError(t, reg.SetBootTarget("ota_1"))

	err = reg.SetBootTarget("nvs")
	require.ErrorIs(t, err, types.ErrInvalidTarget)
	require.Equal(t, "ota_1", reg.BootTarget(), "failed selection leaves the prior target")

	err = reg.SetBootTarget("missing")
	require.ErrorIs(t, err, types.ErrRegionNotFound)
	require.Equal(t, "ota_1", reg.BootTarget())
}

func TestRegistry_SetBootTargetNeedsBootdataRegion(t *testing.T) {
	dev := testDevice(t, []types.Region{
		{Label: "factory", Kind: types.KindApplication, SubKind: types.SubKindFactory, Offset: 0x10000, Size: 0x100000},
	})
	reg, err := Open(dev, Options{})
	require.NoError(t, err)

	require.ErrorIs(t, reg.SetBootTarget("factory"), types.ErrRegionNotFound)
}

func TestRegistry_TornBootRecordFallsBack(t *testing.T) {
	dev := testDevice(t, standardRegions())
	reg, err := Open(dev, Options{})
	require.NoError(t, err)
	require.NoError(t, reg.SetBootTarget("ota_0"))
	require.NoError(t, reg.SetBootTarget("ota_1"))

	// Simulate a torn update of the newest slot: corrupt its CRC. The
	// previous selection must come back.
	state, err := readBootState(dev, mustFind(t, reg, "bootdata"))
	require.NoError(t, err)
	require.Equal(t, "ota_1", state.label)
	slotOff := mustFind(t, reg, "bootdata").Offset + int64(state.slot)*dev.EraseSize()
	dev.Load(slotOff+format.BootCRCOff, []byte{0x00, 0x00, 0x00, 0x00})

	reg2, err := Open(dev, Options{})
	require.NoError(t, err)
	require.Equal(t, "ota_0", reg2.BootTarget())
}

func mustFind(t *testing.T, reg *Registry, label string) types.Region {
	t.Helper()
	r, err := reg.Find(label)
	require.NoError(t, err)
	return r
}

// -----------------------------------------------------------------------------
// Region guards
// -----------------------------------------------------------------------------

func TestRegistry_AcquireBusy(t *testing.T) {
	reg, _ := openRegistry(t, Options{})

	release, err := reg.Acquire("ota_0")
	require.NoError(t, err)

	_, err = reg.Acquire("ota_0")
	require.ErrorIs(t, err, types.ErrBusy)

	// Distinct regions are independent.
	release2, err := reg.Acquire("ota_1")
	require.NoError(t, err)
	release2()

	release()
	release3, err := reg.Acquire("ota_0")
	require.NoError(t, err)
	release3()
}

func TestRegistry_AcquireUnknownLabel(t *testing.T) {
	reg, _ := openRegistry(t, Options{})

	_, err := reg.Acquire("missing")
	require.ErrorIs(t, err, types.ErrRegionNotFound)
}

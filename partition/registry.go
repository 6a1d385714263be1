// Package partition discovers the regions of a flash device and tracks
// which Application region boots next.
//
// The region table is static: it is parsed once when the registry opens and
// regions are never created or destroyed at runtime. The boot target is the
// only mutable state, persisted durably in the bootdata region before
// SetBootTarget returns.
package partition

import (
	"fmt"
	"sync"

	"github.com/FL0WL0W/ESPRecovery/flash"
	"github.com/FL0WL0W/ESPRecovery/internal/format"
	"github.com/FL0WL0W/ESPRecovery/pkg/types"
)

// Options controls registry opening.
type Options struct {
	// TableOffset is the device offset of the partition table.
	// Zero selects the conventional default (0x8000).
	TableOffset int64

	// RunningLabel names the Application region the current image executes
	// from. When empty, the persisted boot target is assumed, falling back
	// to the factory region.
	RunningLabel string
}

// Registry holds the parsed region table, the running region, and the
// persisted boot target. It also arbitrates region access: every mutating
// operation in the system holds a region's guard for its duration.
type Registry struct {
	dev     flash.Device
	regions []types.Region
	running types.Region
	hasRun  bool

	bootRegion types.Region
	hasBoot    bool

	mu   sync.Mutex
	boot bootState

	guards map[string]*sync.Mutex
}

// Open parses the partition table and resolves the running region and boot
// target. The running region is computed once here and is immutable for
// the registry's lifetime.
func Open(dev flash.Device, opts Options) (*Registry, error) {
	tableOff := opts.TableOffset
	if tableOff == 0 {
		tableOff = format.TableDefaultOffset
	}
	regions, err := ParseTable(dev, tableOff)
	if err != nil {
		return nil, err
	}

	r := &Registry{
		dev:     dev,
		regions: regions,
		guards:  make(map[string]*sync.Mutex, len(regions)),
	}
	for _, reg := range regions {
		r.guards[reg.Label] = &sync.Mutex{}
		if reg.Kind == types.KindData && reg.SubKind == types.SubKindBootData && !r.hasBoot {
			r.bootRegion = reg
			r.hasBoot = true
		}
	}

	if r.hasBoot {
		state, err := readBootState(dev, r.bootRegion)
		if err != nil {
			return nil, err
		}
		r.boot = state
	} else {
		r.boot = bootState{slot: -1}
	}
	if r.boot.slot == -1 {
		// No persisted record yet: the factory image boots by default.
		if f, ok := r.factory(); ok {
			r.boot.label = f.Label
		}
	}

	if err := r.resolveRunning(opts.RunningLabel); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) factory() (types.Region, bool) {
	for _, reg := range r.regions {
		if reg.Kind == types.KindApplication && reg.SubKind == types.SubKindFactory {
			return reg, true
		}
	}
	return types.Region{}, false
}

func (r *Registry) resolveRunning(label string) error {
	if label != "" {
		reg, err := r.Find(label)
		if err != nil {
			return err
		}
		if !reg.IsApplication() {
			return types.WrapErr(types.ErrInvalidTarget,
				fmt.Errorf("running region %q is %s-kind", label, reg.Kind))
		}
		r.running, r.hasRun = reg, true
		return nil
	}
	if r.boot.label != "" {
		if reg, err := r.Find(r.boot.label); err == nil && reg.IsApplication() {
			r.running, r.hasRun = reg, true
			return nil
		}
	}
	if f, ok := r.factory(); ok {
		r.running, r.hasRun = f, true
	}
	// An image without Application regions has no running region; callers
	// that need one observe the ok=false return from Running.
	return nil
}

// Enumerate returns the regions in physical table order. The slice is a
// fresh copy, so iteration is restartable and callers cannot disturb the
// registry.
func (r *Registry) Enumerate() []types.Region {
	out := make([]types.Region, len(r.regions))
	copy(out, r.regions)
	return out
}

// Find resolves a label to its region.
func (r *Registry) Find(label string) (types.Region, error) {
	for _, reg := range r.regions {
		if reg.Label == label {
			return reg, nil
		}
	}
	return types.Region{}, types.WrapErr(types.ErrRegionNotFound, fmt.Errorf("label %q", label))
}

// Running returns the Application region the current image executes from.
func (r *Registry) Running() (types.Region, bool) {
	return r.running, r.hasRun
}

// BootTarget returns the label of the Application region selected for the
// next restart.
func (r *Registry) BootTarget() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.boot.label
}

// SetBootTarget durably points the next restart at label. The label must
// resolve to an Application region; validation failures leave the prior
// target untouched with zero storage side effects.
func (r *Registry) SetBootTarget(label string) error {
	reg, err := r.Find(label)
	if err != nil {
		return err
	}
	if !reg.IsApplication() {
		return types.WrapErr(types.ErrInvalidTarget,
			fmt.Errorf("region %q is %s-kind", label, reg.Kind))
	}
	if !r.hasBoot {
		return types.WrapErr(types.ErrRegionNotFound, fmt.Errorf("image has no bootdata region"))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	next, err := writeBootState(r.dev, r.bootRegion, r.boot, label)
	if err != nil {
		return err
	}
	r.boot = next
	return nil
}

// Acquire takes the exclusive guard for label's region, failing ErrBusy
// when another operation is in flight there. The returned release func must
// be called on every exit path. Operations on distinct regions proceed in
// parallel.
func (r *Registry) Acquire(label string) (func(), error) {
	g, ok := r.guards[label]
	if !ok {
		return nil, types.WrapErr(types.ErrRegionNotFound, fmt.Errorf("label %q", label))
	}
	if !g.TryLock() {
		return nil, types.WrapErr(types.ErrBusy, fmt.Errorf("region %q", label))
	}
	return g.Unlock, nil
}

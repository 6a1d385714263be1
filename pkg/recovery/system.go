package recovery

import (
	"fmt"
	"io"

	"github.com/FL0WL0W/ESPRecovery/pkg/types"
)

// Status reports every region plus the running and boot-target labels.
func (s *System) Status() types.SystemStatus {
	regions := s.reg.Enumerate()
	out := types.SystemStatus{
		Regions:    make([]types.RegionStatus, 0, len(regions)),
		BootTarget: s.reg.BootTarget(),
	}
	if running, ok := s.reg.Running(); ok {
		out.Running = running.Label
	}
	for _, r := range regions {
		out.Regions = append(out.Regions, types.RegionStatus{
			Label:   r.Label,
			Address: fmt.Sprintf("0x%x", r.Offset),
			Size:    r.Size,
			Kind:    uint8(r.Kind),
			SubKind: r.SubKind,
		})
	}
	return out
}

// Write streams total bytes from src into the labeled region through the
// differential writer.
func (s *System) Write(label string, total int64, src io.Reader) (types.WriteReport, error) {
	region, release, err := s.acquire(label)
	if err != nil {
		return types.WriteReport{}, err
	}
	defer release()

	s.log.Info("write started", "region", label, "length", total)
	report, err := s.writer.WriteStream(region, total, src)
	if err != nil {
		s.log.Error("write failed", "region", label, "received", report.BytesReceived, "err", err)
		return report, err
	}
	s.log.Info("write complete", "region", label,
		"received", report.BytesReceived,
		"pages_compared", report.PagesCompared,
		"pages_written", report.PagesWritten)
	return report, nil
}

// Clear erases the labeled region wholesale.
func (s *System) Clear(label string) error {
	region, release, err := s.acquire(label)
	if err != nil {
		return err
	}
	defer release()

	s.log.Info("clearing region", "region", label, "size", region.Size)
	if err := s.dev.EraseRange(region.Offset, region.Size); err != nil {
		return types.WrapErr(types.ErrEraseFailed, err)
	}
	if err := s.dev.Sync(); err != nil {
		return types.WrapErr(types.ErrEraseFailed, fmt.Errorf("sync: %w", err))
	}
	return nil
}

// Download copies the labeled region's full content to w and returns the
// byte count.
func (s *System) Download(label string, w io.Writer) (int64, error) {
	region, release, err := s.acquire(label)
	if err != nil {
		return 0, err
	}
	defer release()

	chunk := make([]byte, 4096)
	sent := int64(0)
	for sent < region.Size {
		n := int64(len(chunk))
		if region.Size-sent < n {
			n = region.Size - sent
		}
		if _, err := s.dev.ReadAt(chunk[:n], region.Offset+sent); err != nil {
			return sent, types.WrapErr(types.ErrReadFailed, err)
		}
		if _, err := w.Write(chunk[:n]); err != nil {
			return sent, fmt.Errorf("write to sink: %w", err)
		}
		sent += n
	}
	return sent, nil
}

// BootTarget returns the label booting after the next restart.
func (s *System) BootTarget() string { return s.reg.BootTarget() }

// SetBootTarget durably selects the Application region booting after the
// next restart.
func (s *System) SetBootTarget(label string) error {
	if err := s.reg.SetBootTarget(label); err != nil {
		return err
	}
	s.log.Info("boot target set", "region", label)
	return nil
}

// Running returns the label of the region the current image executes from.
func (s *System) Running() string {
	if r, ok := s.reg.Running(); ok {
		return r.Label
	}
	return ""
}

// KVList returns every live entry of the labeled region.
func (s *System) KVList(label string) ([]types.KVEntry, error) {
	region, release, err := s.acquire(label)
	if err != nil {
		return nil, err
	}
	defer release()

	var out []types.KVEntry
	it := s.kv.All(region)
	for {
		entry, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, entry)
	}
}

// KVGet returns one entry.
func (s *System) KVGet(label, namespace, key string) (types.KVEntry, error) {
	region, release, err := s.acquire(label)
	if err != nil {
		return types.KVEntry{}, err
	}
	defer release()
	return s.kv.Get(region, namespace, key)
}

// KVSet durably writes one entry.
func (s *System) KVSet(label, namespace, key string, typ types.KVType, value string) error {
	region, release, err := s.acquire(label)
	if err != nil {
		return err
	}
	defer release()
	return s.kv.Set(region, namespace, key, typ, value)
}

// KVDelete removes one entry.
func (s *System) KVDelete(label, namespace, key string) error {
	region, release, err := s.acquire(label)
	if err != nil {
		return err
	}
	defer release()
	return s.kv.Delete(region, namespace, key)
}

// FileList returns the labeled region's files.
func (s *System) FileList(label string) ([]types.FileInfo, error) {
	region, release, err := s.acquire(label)
	if err != nil {
		return nil, err
	}
	defer release()
	return s.files.List(region)
}

// FileUpload streams a file into the labeled region.
func (s *System) FileUpload(label, name string, total int64, src io.Reader) error {
	region, release, err := s.acquire(label)
	if err != nil {
		return err
	}
	defer release()

	s.log.Info("file upload", "region", label, "name", name, "length", total)
	return s.files.Upload(region, name, total, src)
}

// FileDownload returns a file's exact content.
func (s *System) FileDownload(label, name string) ([]byte, error) {
	region, release, err := s.acquire(label)
	if err != nil {
		return nil, err
	}
	defer release()
	return s.files.Download(region, name)
}

// FileDelete removes a file.
func (s *System) FileDelete(label, name string) error {
	region, release, err := s.acquire(label)
	if err != nil {
		return err
	}
	defer release()
	return s.files.Delete(region, name)
}

func (s *System) acquire(label string) (types.Region, func(), error) {
	region, err := s.reg.Find(label)
	if err != nil {
		return types.Region{}, nil, err
	}
	release, err := s.reg.Acquire(label)
	if err != nil {
		return types.Region{}, nil, err
	}
	return region, release, nil
}

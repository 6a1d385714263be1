package flash

import (
	"fmt"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"
)

// FileDevice is a flash device backed by an image file through a shared
// read-write mapping. Program emulates NOR semantics (new = old & incoming)
// so an image file behaves exactly like the medium it was dumped from.
type FileDevice struct {
	mu        sync.Mutex
	f         *os.File
	data      mmap.MMap
	eraseSize int64
	closed    bool
}

// OpenFile maps the image at path. A missing or short file is created or
// grown to size (erased filler); an existing file larger than size is used
// at its current length. size and eraseSize follow MemDevice's rules.
func OpenFile(path string, size, eraseSize int64) (*FileDevice, error) {
	if eraseSize <= 0 || size <= 0 || size%eraseSize != 0 {
		return nil, fmt.Errorf("flash: invalid image geometry size=%d eraseSize=%d", size, eraseSize)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("flash: open image: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() < size {
		if err := growErased(f, fi.Size(), size); err != nil {
			f.Close()
			return nil, fmt.Errorf("flash: grow image: %w", err)
		}
	} else if fi.Size() > size {
		size = fi.Size()
		if size%eraseSize != 0 {
			f.Close()
			return nil, fmt.Errorf("flash: image size %d not a multiple of erase size %d", size, eraseSize)
		}
	}
	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("flash: mmap image: %w", err)
	}
	return &FileDevice{f: f, data: data, eraseSize: eraseSize}, nil
}

// growErased extends f from oldSize to newSize with erased filler. Truncate
// alone would zero-fill, which reads as fully programmed flash.
func growErased(f *os.File, oldSize, newSize int64) error {
	if err := f.Truncate(newSize); err != nil {
		return err
	}
	fill := make([]byte, 64*1024)
	for i := range fill {
		fill[i] = ErasedByte
	}
	for off := oldSize; off < newSize; {
		n := int64(len(fill))
		if newSize-off < n {
			n = newSize - off
		}
		if _, err := f.WriteAt(fill[:n], off); err != nil {
			return err
		}
		off += n
	}
	return nil
}

func (d *FileDevice) ReadAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, ErrClosed
	}
	if err := checkSpan(int64(len(d.data)), off, len(p)); err != nil {
		return 0, err
	}
	return copy(p, d.data[off:]), nil
}

func (d *FileDevice) Program(off int64, p []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if err := checkSpan(int64(len(d.data)), off, len(p)); err != nil {
		return err
	}
	for i, b := range p {
		d.data[off+int64(i)] &= b
	}
	return nil
}

func (d *FileDevice) EraseRange(off, length int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if err := checkErase(int64(len(d.data)), d.eraseSize, off, length); err != nil {
		return err
	}
	for i := off; i < off+length; i++ {
		d.data[i] = ErasedByte
	}
	return nil
}

func (d *FileDevice) EraseSize() int64 { return d.eraseSize }

func (d *FileDevice) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.data))
}

// Sync flushes the mapping and syncs the file descriptor so programmed data
// survives power loss.
func (d *FileDevice) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if err := d.data.Flush(); err != nil {
		return err
	}
	return fdatasync(d.f)
}

func (d *FileDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	var err error
	if e := d.data.Flush(); e != nil {
		err = e
	}
	if e := d.data.Unmap(); e != nil && err == nil {
		err = e
	}
	if e := d.f.Close(); e != nil && err == nil {
		err = e
	}
	return err
}

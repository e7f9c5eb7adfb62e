package watvm

import (
	"encoding/binary"
	"io"
)

// WASI errno values.
const (
	errnoSuccess = 0
	errnoBadf    = 8
	errnoFault   = 21
)

var hostFuncs = map[string]func(m *Machine, args []uint64) (uint64, error){
	"wasi_snapshot_preview1.fd_write":  (*Machine).fdWrite,
	"wasi_snapshot_preview1.proc_exit": (*Machine).procExit,
}

// fdWrite implements fd_write(fd, iovs, iovs_len, nwritten) -> errno.
func (m *Machine) fdWrite(args []uint64) (uint64, error) {
	fd, iovs, n, nwritten := asU32(args[0]), asU32(args[1]), asU32(args[2]), asU32(args[3])
	var w io.Writer
	switch fd {
	case 1:
		w = m.stdout
	case 2:
		w = m.stderr
	default:
		return errnoBadf, nil
	}
	total := uint32(0)
	for i := uint32(0); i < n; i++ {
		vec, ok := m.slice(iovs+8*i, 8)
		if !ok {
			return errnoFault, nil
		}
		data, ok := m.slice(binary.LittleEndian.Uint32(vec), binary.LittleEndian.Uint32(vec[4:]))
		if !ok {
			return errnoFault, nil
		}
		if _, err := w.Write(data); err != nil {
			return 0, err
		}
		total += uint32(len(data))
	}
	out, ok := m.slice(nwritten, 4)
	if !ok {
		return errnoFault, nil
	}
	binary.LittleEndian.PutUint32(out, total)
	return errnoSuccess, nil
}

func (m *Machine) procExit(args []uint64) (uint64, error) {
	return 0, &exit{code: int(asI32(args[0]))}
}

func (m *Machine) slice(addr, size uint32) ([]byte, bool) {
	if uint64(addr)+uint64(size) > uint64(len(m.mem)) {
		return nil, false
	}
	return m.mem[addr : addr+size], true
}

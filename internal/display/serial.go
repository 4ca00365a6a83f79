package display

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	serial "github.com/tarm/goserial"
)

// Command opcodes understood by the panel firmware.
const (
	cmdFill     = 0x01
	cmdFillRect = 0x02
	cmdText     = 0x03
	cmdDrawIcon = 0x04
)

// SerialDriver drives the panel over a serial link. Each draw call is a
// single length-prefixed frame; the panel applies frames in order, so no
// acknowledgement is read back.
type SerialDriver struct {
	mu   sync.Mutex
	port io.ReadWriteCloser
}

// OpenSerial opens the panel port, e.g. "/dev/ttyS1" at 921600 baud.
func OpenSerial(device string, baud int) (*SerialDriver, error) {
	port, err := serial.OpenPort(&serial.Config{Name: device, Baud: baud})
	if err != nil {
		return nil, fmt.Errorf("could not open display port %s: %w", device, err)
	}
	return &SerialDriver{port: port}, nil
}

func (d *SerialDriver) writeFrame(opcode byte, payload []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	frame := make([]byte, 0, len(payload)+3)
	frame = append(frame, opcode)
	frame = binary.BigEndian.AppendUint16(frame, uint16(len(payload)))
	frame = append(frame, payload...)

	if _, err := d.port.Write(frame); err != nil {
		return fmt.Errorf("display write failed: %w", err)
	}
	return nil
}

func (d *SerialDriver) Fill(c Color) error {
	payload := binary.BigEndian.AppendUint16(nil, uint16(c))
	return d.writeFrame(cmdFill, payload)
}

func (d *SerialDriver) FillRect(x, y, w, h int, c Color) error {
	payload := make([]byte, 0, 10)
	for _, v := range []int{x, y, w, h} {
		payload = binary.BigEndian.AppendUint16(payload, uint16(v))
	}
	payload = binary.BigEndian.AppendUint16(payload, uint16(c))
	return d.writeFrame(cmdFillRect, payload)
}

func (d *SerialDriver) Text(f Font, s string, x, y int, fg Color) error {
	payload := make([]byte, 0, len(s)+8)
	payload = append(payload, byte(f))
	payload = binary.BigEndian.AppendUint16(payload, uint16(x))
	payload = binary.BigEndian.AppendUint16(payload, uint16(y))
	payload = binary.BigEndian.AppendUint16(payload, uint16(fg))
	payload = append(payload, byte(len(s)))
	payload = append(payload, s...)
	return d.writeFrame(cmdText, payload)
}

func (d *SerialDriver) DrawIcon(name string, x, y, w, h int) error {
	payload := make([]byte, 0, len(name)+9)
	for _, v := range []int{x, y, w, h} {
		payload = binary.BigEndian.AppendUint16(payload, uint16(v))
	}
	payload = append(payload, byte(len(name)))
	payload = append(payload, name...)
	return d.writeFrame(cmdDrawIcon, payload)
}

// Close releases the serial port.
func (d *SerialDriver) Close() error {
	return d.port.Close()
}

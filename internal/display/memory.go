package display

import (
	"fmt"
	"strings"
	"sync"
)

// MemoryDriver records draw operations for tests instead of driving
// hardware.
type MemoryDriver struct {
	mu  sync.Mutex
	ops []string
}

func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{}
}

func (m *MemoryDriver) record(op string) {
	m.mu.Lock()
	m.ops = append(m.ops, op)
	m.mu.Unlock()
}

func (m *MemoryDriver) Fill(c Color) error {
	m.record(fmt.Sprintf("fill %04x", uint16(c)))
	return nil
}

func (m *MemoryDriver) FillRect(x, y, w, h int, c Color) error {
	m.record(fmt.Sprintf("rect %d,%d %dx%d %04x", x, y, w, h, uint16(c)))
	return nil
}

func (m *MemoryDriver) Text(f Font, s string, x, y int, fg Color) error {
	m.record(fmt.Sprintf("text f%d %q %d,%d", f, s, x, y))
	return nil
}

func (m *MemoryDriver) DrawIcon(name string, x, y, w, h int) error {
	m.record(fmt.Sprintf("icon %s %d,%d %dx%d", name, x, y, w, h))
	return nil
}

// Ops returns a copy of the recorded operations in order.
func (m *MemoryDriver) Ops() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.ops))
	copy(out, m.ops)
	return out
}

// Reset clears the recorded operations.
func (m *MemoryDriver) Reset() {
	m.mu.Lock()
	m.ops = nil
	m.mu.Unlock()
}

// Contains reports whether any recorded op contains the substring.
func (m *MemoryDriver) Contains(sub string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range m.ops {
		if strings.Contains(op, sub) {
			return true
		}
	}
	return false
}

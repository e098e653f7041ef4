package minicode

import (
	"fmt"
)

func (m *Minicode) acquire() error {
	m.shutdown.Lock()
	defer m.shutdown.Unlock()

	if m.shutdownFlag {
		return fmt.Errorf("acquire: minicode has been shutdown")
	}

	m.activeStreams.Add(1)

	return nil
}

func (m *Minicode) release() {
	m.activeStreams.Add(-1)
}

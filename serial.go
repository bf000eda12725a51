// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package blockserver

import "code.hybscloud.com/atomix"

// Serial identifies a session for its whole lifetime.
// Serials increase monotonically within one [SessionManager] and are never
// reused there, so a stale serial can never name a newer session.
type Serial = uint32

// serialSource hands out the serials of one manager.
type serialSource struct {
	last atomix.Uint32
}

// next returns the next monotonically increasing serial.
func (src *serialSource) next() Serial {
	return src.last.Add(1)
}

package hd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/glinharesb/cxemu/internal/cxerr"
)

// Hardened marks a hardened path element.
const Hardened uint32 = 0x80000000

// Path is a derivation path as the device receives it: one big-endian u32 per
// level with Hardened set on hardened levels.
type Path []uint32

// ParsePath parses textual paths such as "m/44'/0'/0/5". Both ' and h mark a
// hardened level. "m" alone is the empty path.
func ParsePath(s string) (Path, error) {
	s = strings.TrimSpace(s)
	if s != "m" && !strings.HasPrefix(s, "m/") {
		return nil, fmt.Errorf("path %q must start with m: %w", s, cxerr.ErrInvalidParameter)
	}
	elems := strings.Split(s, "/")[1:]
	p := make(Path, 0, len(elems))
	for _, e := range elems {
		var flag uint32
		if t, ok := strings.CutSuffix(e, "'"); ok {
			e, flag = t, Hardened
		} else if t, ok := strings.CutSuffix(e, "h"); ok {
			e, flag = t, Hardened
		}
		v, err := strconv.ParseUint(e, 10, 31)
		if err != nil {
			return nil, fmt.Errorf("path element %q: %w", e, cxerr.ErrInvalidParameter)
		}
		p = append(p, uint32(v)|flag)
	}
	return p, nil
}

func (p Path) String() string {
	var b strings.Builder
	b.WriteString("m")
	for _, idx := range p {
		b.WriteByte('/')
		b.WriteString(strconv.FormatUint(uint64(idx&^Hardened), 10))
		if idx&Hardened != 0 {
			b.WriteByte('\'')
		}
	}
	return b.String()
}

// AllHardened reports whether every level of p is hardened.
func (p Path) AllHardened() bool {
	for _, idx := range p {
		if idx&Hardened == 0 {
			return false
		}
	}
	return true
}

package cache

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sarchlab/akita/v4/mem/vm"
)

// SaveCacheState writes one line per non-Invalid tag-array cell, in
// (set, way) order, each followed by its reconstructed original address,
// then a terminating "DONE" token. The address suffix is appended here
// rather than inside LineState.SaveTagArrayState because computing it
// requires the cache's own address layout, not just the line's fields.
func (c *Cache[T, D]) SaveCacheState(w io.Writer, shifted bool) error {
	for s := 0; s < c.numSets; s++ {
		for wy := 0; wy < c.numWays; wy++ {
			line := c.tags.at(s, wy)
			wrote, err := line.SaveTagArrayState(s, wy, w)
			if err != nil {
				return err
			}
			if !wrote {
				continue
			}
			var pa uint64
			if shifted {
				pa, err = c.addr.ShiftedOriginal(uint64(s), line.GetTag())
			} else {
				pa, err = c.addr.ClassicalOriginal(uint64(s), line.GetTag())
			}
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, ", PA=0x%x\n", pa); err != nil {
				return err
			}
		}
	}
	_, err := fmt.Fprintln(w, "DONE")
	return err
}

// RestoreCacheState parses the grammar SaveCacheState produces, tokenizing
// on any of " ,:=\t" and dispatching on the previous token, matching the
// original's single-pass streaming parser. A RESERVED status on restore is
// remapped to a fully cleared, rewayed line rather than trusted verbatim:
// a reservation is a transient in-flight state that a checkpoint can never
// legitimately capture.
func (c *Cache[T, D]) RestoreCacheState(r *bufio.Reader) error {
	tok := newTokenizer(r)

	var index, way int
	var tag uint64
	var status Status
	var valid, dirty []bool
	var ownerID vm.PID
	prev := ""

	commit := func() error {
		c.checkIndex(index)
		c.checkWay(way)
		line := c.tags.at(index, way)
		if status == Reserved {
			line.Clear()
			if err := line.SetWay(way); err != nil {
				return err
			}
			return nil
		}
		line.SetTag(tag)
		line.SetStatus(status)
		for i := 0; i < c.numObjectsPerLine && i < len(valid); i++ {
			if valid[i] {
				line.SetValidBit(i)
			} else {
				line.ClearValidBit(i)
			}
			if dirty[i] {
				line.SetDirtyBit(i)
			}
		}
		line.SetOwnerID(ownerID)
		return nil
	}

	for {
		t, err := tok.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if t == "DONE" {
			break
		}

		switch prev {
		case "S:":
			n, err := strconv.Atoi(t)
			if err != nil {
				return fmt.Errorf("cache: restore: bad set index %q: %w", t, err)
			}
			index = n
		case "W:":
			n, err := strconv.Atoi(t)
			if err != nil {
				return fmt.Errorf("cache: restore: bad way %q: %w", t, err)
			}
			way = n
		case "tag":
			n, err := parseHex(t)
			if err != nil {
				return err
			}
			tag = n
		case "status":
			s, ok := ParseStatus(t)
			if !ok {
				return fmt.Errorf("cache: restore: unknown status %q", t)
			}
			status = s
		case "valid":
			valid = parseBitString(t)
		case "dirty":
			dirty = parseBitString(t)
		case "ownerId":
			n, err := strconv.Atoi(t)
			if err != nil {
				return fmt.Errorf("cache: restore: bad ownerId %q: %w", t, err)
			}
			ownerID = vm.PID(n)
		case "PA":
			if err := commit(); err != nil {
				return err
			}
		}
		prev = t
	}
	return nil
}

// tokenizer splits a reader on any of " ,:=\t", matching the original's
// delimiter set. A colon that ends a token is kept as part of it, while
// '=' and the other delimiters are dropped, so the dispatch switch above
// can key on "S:", "W:", "tag", etc.
type tokenizer struct {
	r *bufio.Reader
}

func newTokenizer(r *bufio.Reader) *tokenizer { return &tokenizer{r: r} }

func isDelim(b byte) bool {
	switch b {
	case ' ', ',', ':', '=', '\t', '\n', '\r':
		return true
	}
	return false
}

func (t *tokenizer) next() (string, error) {
	var buf strings.Builder
	sawAny := false
	for {
		b, err := t.r.ReadByte()
		if err != nil {
			if sawAny {
				return buf.String(), nil
			}
			return "", err
		}
		if isDelim(b) {
			if sawAny {
				if b == ':' {
					buf.WriteByte(b)
				}
				return buf.String(), nil
			}
			continue
		}
		buf.WriteByte(b)
		sawAny = true
	}
}

func parseHex(s string) (uint64, error) {
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	n, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("cache: restore: bad hex %q: %w", s, err)
	}
	return n, nil
}

func parseBitString(s string) []bool {
	s = strings.TrimPrefix(s, "0b")
	bits := make([]bool, len(s))
	for i, ch := range s {
		bits[i] = ch == '1'
	}
	return bits
}

// SaveLRUState writes "S: <index> " then delegates to the policy's own
// SaveState for the set's replacement metadata.
func (c *Cache[T, D]) SaveLRUState(index int, w io.Writer) error {
	if _, err := fmt.Fprintf(w, "S: %d ", index); err != nil {
		return err
	}
	return c.policy.SaveState(index, w)
}

// RestoreLRUState consumes the "S: <index>" prefix and delegates the rest
// to the policy's RestoreState.
func (c *Cache[T, D]) RestoreLRUState(r *bufio.Reader) error {
	tok := newTokenizer(r)
	sTok, err := tok.next()
	if err != nil {
		return err
	}
	if sTok != "S:" {
		return fmt.Errorf("cache: restore LRU: expected \"S:\", got %q", sTok)
	}
	idxTok, err := tok.next()
	if err != nil {
		return err
	}
	index, err := strconv.Atoi(idxTok)
	if err != nil {
		return fmt.Errorf("cache: restore LRU: bad set index %q: %w", idxTok, err)
	}
	return c.policy.RestoreState(index, r)
}

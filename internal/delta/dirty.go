package delta

import (
	"github.com/energizer-project/combatlens/internal/gamedata"
	"github.com/energizer-project/combatlens/internal/protocol"
	"github.com/energizer-project/combatlens/internal/state"
	"github.com/energizer-project/combatlens/internal/tracker"
)

// Dirty-data blobs are little-endian. Every block opens with an
// identifier: 0xFFFFFFFE, an int32, 0xFFFFFFFD, an int32. A field is then
// addressed by a uint32 index followed by an int32.
const (
	dirtyMarkerHead = 0xfffffffe
	dirtyMarkerTail = 0xfffffffd
)

// Root block indices. They match the CharSerialize field numbers.
const (
	blockCharBase  = 2
	blockScene     = 3
	blockFightAttr = 16
	blockProfList  = 61
)

// maxPlausibleScene bounds ids accepted from the scene probe.
const maxPlausibleScene = 1_000_000

type fieldHandler func(in *Interpreter, uid uint64, c *protocol.Cursor) error

// dirtyBlocks maps a root block to the handlers of its fields. Indices not
// listed are ignored.
var dirtyBlocks = map[uint32]map[uint32]fieldHandler{
	blockCharBase: {
		5:  dirtyName,
		35: dirtyFightPoint,
	},
	blockFightAttr: {
		1: dirtyAttr(state.AttrHP),
		2: dirtyAttr(state.AttrMaxHP),
	},
	blockProfList: {
		1: dirtyProfession,
	},
}

// readIdentifier consumes a block identifier. On mismatch the cursor is
// left where it was.
func readIdentifier(c *protocol.Cursor) bool {
	start := c.Pos()
	ok := func() bool {
		head, err := c.ReadUint32LE()
		if err != nil || head != dirtyMarkerHead {
			return false
		}
		if _, err := c.ReadInt32LE(); err != nil {
			return false
		}
		tail, err := c.ReadUint32LE()
		if err != nil || tail != dirtyMarkerTail {
			return false
		}
		_, err = c.ReadInt32LE()
		return err == nil
	}()
	if !ok {
		c.Seek(start)
	}
	return ok
}

// readIndex reads a field index and its trailing int32.
func readIndex(c *protocol.Cursor) (uint32, error) {
	idx, err := c.ReadUint32LE()
	if err != nil {
		return 0, err
	}
	_, err = c.ReadInt32LE()
	return idx, err
}

func readValue(c *protocol.Cursor) (uint32, error) {
	v, err := c.ReadUint32LE()
	if err != nil {
		return 0, err
	}
	_, err = c.ReadInt32LE()
	return v, err
}

// readDirtyString reads [len:u32][i32][bytes][i32].
func readDirtyString(c *protocol.Cursor) (string, error) {
	n, err := c.ReadUint32LE()
	if err != nil {
		return "", err
	}
	if _, err := c.ReadInt32LE(); err != nil {
		return "", err
	}
	b, err := c.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	if _, err := c.ReadInt32LE(); err != nil {
		return "", err
	}
	return string(b), nil
}

func dirtyName(in *Interpreter, uid uint64, c *protocol.Cursor) error {
	name, err := readDirtyString(c)
	if err != nil {
		return err
	}
	in.store.SetName(uid, name)
	return nil
}

func dirtyFightPoint(in *Interpreter, uid uint64, c *protocol.Cursor) error {
	v, err := readValue(c)
	if err != nil {
		return err
	}
	in.store.SetFightPoint(uid, int64(v))
	return nil
}

func dirtyAttr(key string) fieldHandler {
	return func(in *Interpreter, uid uint64, c *protocol.Cursor) error {
		v, err := readValue(c)
		if err != nil {
			return err
		}
		in.store.SetAttr(uid, key, int64(v))
		return nil
	}
}

func dirtyProfession(in *Interpreter, uid uint64, c *protocol.Cursor) error {
	v, err := readValue(c)
	if err != nil {
		return err
	}
	if name, ok := gamedata.ProfessionName(int64(v)); ok {
		in.store.SetProfession(uid, name)
	}
	return nil
}

// applyDirty walks one blob of the local player.
func (in *Interpreter) applyDirty(uid uint64, blob []byte) {
	c := protocol.NewCursor(blob)
	if !readIdentifier(c) {
		return
	}
	root, err := readIndex(c)
	if err != nil {
		return
	}
	fields, ok := dirtyBlocks[root]
	if !ok {
		in.logger.Trace().Uint32("block", root).Msg("dirty block ignored")
		return
	}
	if !readIdentifier(c) {
		return
	}
	idx, err := readIndex(c)
	if err != nil {
		return
	}
	h, ok := fields[idx]
	if !ok {
		in.logger.Trace().Uint32("block", root).Uint32("field", idx).Msg("dirty field ignored")
		return
	}
	if err := h(in, uid, c); err != nil {
		in.logger.Debug().Err(err).Uint32("block", root).Uint32("field", idx).Msg("truncated dirty field")
	}
}

// probeScene looks for a scene record in a blob. A scene block with a
// plausible id in field 1 is a high-confidence hit. Otherwise, for blocks
// this decoder does not understand, any nested record whose field 1 holds
// a plausible id is reported with low confidence.
func probeScene(blob []byte) (uint64, tracker.Confidence, bool) {
	c := protocol.NewCursor(blob)
	if !readIdentifier(c) {
		return 0, tracker.ConfidenceLow, false
	}
	root, err := readIndex(c)
	if err != nil {
		return 0, tracker.ConfidenceLow, false
	}
	if _, known := dirtyBlocks[root]; known {
		return 0, tracker.ConfidenceLow, false
	}

	if root == blockScene {
		mark := c.Pos()
		if id, ok := sceneField(c); ok {
			return id, tracker.ConfidenceHigh, true
		}
		c.Seek(mark)
	}

	for off := c.Pos(); off+28 <= c.Len(); off++ {
		c.Seek(off)
		if id, ok := sceneField(c); ok {
			return id, tracker.ConfidenceLow, true
		}
	}
	return 0, tracker.ConfidenceLow, false
}

func sceneField(c *protocol.Cursor) (uint64, bool) {
	if !readIdentifier(c) {
		return 0, false
	}
	idx, err := readIndex(c)
	if err != nil || idx != 1 {
		return 0, false
	}
	v, err := c.ReadUint32LE()
	if err != nil || v == 0 || v > maxPlausibleScene {
		return 0, false
	}
	return uint64(v), true
}

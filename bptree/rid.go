package bptree

import "encoding/binary"

// RIDSize is the on-disk width of an encoded RID.
const RIDSize = 10

// RID identifies a tuple's physical location: file, page and slot. It is
// the value half of every leaf entry.
type RID struct {
	FileID uint32
	PageID uint32
	SlotID uint16
}

// Encode writes r into dst, which must be at least RIDSize bytes.
func (r RID) Encode(dst []byte) {
	binary.LittleEndian.PutUint32(dst[0:4], r.FileID)
	binary.LittleEndian.PutUint32(dst[4:8], r.PageID)
	binary.LittleEndian.PutUint16(dst[8:10], r.SlotID)
}

// DecodeRID reads an RID back out of src.
func DecodeRID(src []byte) RID {
	return RID{
		FileID: binary.LittleEndian.Uint32(src[0:4]),
		PageID: binary.LittleEndian.Uint32(src[4:8]),
		SlotID: binary.LittleEndian.Uint16(src[8:10]),
	}
}

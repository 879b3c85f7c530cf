package par2

import (
	"crypto/md5" //nolint:gosec
	"encoding/binary"
	"fmt"
	"unicode/utf16"
)

// framePacket wraps body in a complete, checksummed 64-byte packet header:
// magic, length, MD5 hash (from setID through the end of body), setID, and
// packetType. body must already be padded to a 4-byte boundary, as every
// packet body defined by the format is.
func framePacket(setID Hash, packetType []byte, body []byte) ([]byte, error) {
	if len(body)%4 != 0 {
		return nil, fmt.Errorf("%w: body length %d not aligned to 4 bytes", errInvalidAlignment, len(body))
	}

	total := packetHeaderSize + len(body)
	packet := make([]byte, total)

	copy(packet[0:8], packetMagic)
	binary.LittleEndian.PutUint64(packet[8:16], uint64(total)) //nolint:gosec
	copy(packet[32:48], setID[:])
	copy(packet[48:64], packetType)
	copy(packet[64:], body)

	hasher := md5.New() //nolint:gosec
	hasher.Write(packet[packetHashOffset:])
	copy(packet[16:32], hasher.Sum(nil))

	return packet, nil
}

// MarshalMainPacket serializes p as a complete PAR2 main packet.
func MarshalMainPacket(p *MainPacket) ([]byte, error) {
	body := make([]byte, mainSizeFixed+(len(p.RecoveryIDs)+len(p.NonRecoveryIDs))*HashSize)

	binary.LittleEndian.PutUint64(body[0:8], p.SliceSize)
	binary.LittleEndian.PutUint32(body[8:12], uint32(len(p.RecoveryIDs))) //nolint:gosec

	curr := mainSizeFixed
	for _, id := range p.RecoveryIDs {
		copy(body[curr:curr+HashSize], id[:])
		curr += HashSize
	}
	for _, id := range p.NonRecoveryIDs {
		copy(body[curr:curr+HashSize], id[:])
		curr += HashSize
	}

	return framePacket(p.SetID, mainType, body)
}

// MarshalFilePacket serializes p as a complete PAR2 file description packet.
// The name is padded with null bytes to a 4-byte boundary; per spec, a name
// whose length is already a multiple of 4 carries no padding at all.
func MarshalFilePacket(p *FilePacket) ([]byte, error) {
	nameBytes := []byte(p.Name)
	padding := (4 - len(nameBytes)%4) % 4

	body := make([]byte, fileDescSizeFixed+len(nameBytes)+padding)

	copy(body[0:16], p.FileID[:])
	copy(body[16:32], p.Hash[:])
	copy(body[32:48], p.Hash16k[:])
	binary.LittleEndian.PutUint64(body[48:56], uint64(p.Size)) //nolint:gosec
	copy(body[fileDescSizeFixed:], nameBytes)

	return framePacket(p.SetID, fileDescType, body)
}

// MarshalUnicodePacket serializes p as a complete PAR2 unicode filename
// packet: the name is encoded as null-terminated UTF-16LE, padded to a
// 4-byte boundary.
func MarshalUnicodePacket(p *UnicodePacket) ([]byte, error) {
	u16 := utf16.Encode([]rune(p.Name))
	nameBytes := make([]byte, (len(u16)+1)*2) // +1 unit for the null terminator

	for i, v := range u16 {
		binary.LittleEndian.PutUint16(nameBytes[i*2:], v)
	}

	padding := (4 - (HashSize+len(nameBytes))%4) % 4
	body := make([]byte, HashSize+len(nameBytes)+padding)

	copy(body[0:HashSize], p.FileID[:])
	copy(body[HashSize:], nameBytes)

	return framePacket(p.SetID, unicodeDescType, body)
}

// MarshalIFSCPacket serializes p as a complete PAR2 Input File Slice
// Checksum packet.
func MarshalIFSCPacket(p *IFSCPacket) ([]byte, error) {
	body := make([]byte, ifscSizeFixed+len(p.Slices)*ifscEntrySize)

	copy(body[0:HashSize], p.FileID[:])

	curr := ifscSizeFixed
	for _, s := range p.Slices {
		copy(body[curr:curr+HashSize], s.MD5[:])
		binary.LittleEndian.PutUint32(body[curr+HashSize:curr+ifscEntrySize], s.CRC32)
		curr += ifscEntrySize
	}

	return framePacket(p.SetID, ifscType, body)
}

// MarshalCreatorPacket serializes p as a complete PAR2 creator packet: a
// null-terminated, null-padded free-form string.
func MarshalCreatorPacket(p *CreatorPacket) ([]byte, error) {
	textBytes := []byte(p.Text)
	contentLen := len(textBytes) + 1 // null terminator
	padding := (4 - contentLen%4) % 4

	body := make([]byte, contentLen+padding) // zero-valued padding and terminator
	copy(body, textBytes)

	return framePacket(p.SetID, creatorType, body)
}

// MarshalRecoverySlicePacket serializes a recovery slice packet from its
// exponent and payload. Unlike the other Marshal* functions this one does
// not take a [RecoverySliceRef] directly: the parser never keeps a
// recovery slice's payload in memory (see [RecoverySliceRef]), so callers
// that need to re-emit one must supply the payload bytes themselves
// (typically read back from the ref's SourceVol/Offset/Length on disk).
func MarshalRecoverySlicePacket(setID Hash, exponent uint32, payload []byte) ([]byte, error) {
	body := make([]byte, recvSlicSizeFixed+len(payload))

	binary.LittleEndian.PutUint32(body[0:recvSlicSizeFixed], exponent)
	copy(body[recvSlicSizeFixed:], payload)

	return framePacket(setID, recvSlicType, body)
}

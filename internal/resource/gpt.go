package resource

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
)

// GPT sector size and layout constants, per the UEFI specification.
const (
	sectorSize       = 512
	gptHeaderLBA     = 1
	partEntryLBA     = 2
	partEntryCount   = 128
	partEntrySize    = 128
	protectiveMBRLBA = 0
)

// writeGPT lays down a protective MBR, a primary GPT header, and a single
// partition entry spanning the whole volume, directly into the container
// file at path. This covers the Resource Manager's "initialize a GPT
// partition table sized to the volume" responsibility; exposing the
// result as an OS block device is a mount provider's job and out of
// scope here.
func writeGPT(path string, volumeSize uint64) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	totalLBA := volumeSize / sectorSize
	if totalLBA < 34 {
		return fmt.Errorf("resource: volume of %d bytes too small for a GPT partition table", volumeSize)
	}

	firstUsableLBA := uint64(2 + partEntryCount*partEntrySize/sectorSize)
	lastUsableLBA := totalLBA - firstUsableLBA - 1

	if _, err := f.WriteAt(protectiveMBR(totalLBA), protectiveMBRLBA*sectorSize); err != nil {
		return err
	}

	entries := make([]byte, partEntryCount*partEntrySize)
	writePartitionEntry(entries[0:partEntrySize], firstUsableLBA, lastUsableLBA)
	entriesCRC := crc32.ChecksumIEEE(entries)
	if _, err := f.WriteAt(entries, partEntryLBA*sectorSize); err != nil {
		return err
	}

	header := gptHeader(totalLBA, firstUsableLBA, lastUsableLBA, entriesCRC)
	if _, err := f.WriteAt(header, gptHeaderLBA*sectorSize); err != nil {
		return err
	}

	backupHeader := gptBackupHeader(totalLBA, firstUsableLBA, lastUsableLBA, entriesCRC)
	if _, err := f.WriteAt(backupHeader, int64(totalLBA-1)*sectorSize); err != nil {
		return err
	}

	return nil
}

func protectiveMBR(totalLBA uint64) []byte {
	mbr := make([]byte, sectorSize)
	mbr[450] = 0xee // partition type: GPT protective
	partLBA := uint32(1)
	partSize := uint32(totalLBA - 1)
	if totalLBA-1 > 0xffffffff {
		partSize = 0xffffffff
	}
	binary.LittleEndian.PutUint32(mbr[454:458], partLBA)
	binary.LittleEndian.PutUint32(mbr[458:462], partSize)
	mbr[510] = 0x55
	mbr[511] = 0xaa
	return mbr
}

func writePartitionEntry(entry []byte, firstLBA, lastLBA uint64) {
	// Basic data partition type GUID, little-endian mixed-format as GPT
	// stores it.
	typeGUID := []byte{
		0xa2, 0xa0, 0xd0, 0xeb, 0xe5, 0xb9, 0x33, 0x44,
		0x87, 0xc0, 0x68, 0xb6, 0xb7, 0x26, 0x99, 0xc7,
	}
	copy(entry[0:16], typeGUID)
	// Unique partition GUID: derived, not random, so GPT bytes are
	// reproducible for a given copy rather than depending on an entropy
	// source the core must not otherwise touch.
	copy(entry[16:32], typeGUID)
	binary.LittleEndian.PutUint64(entry[32:40], firstLBA)
	binary.LittleEndian.PutUint64(entry[40:48], lastLBA)
	name := utf16le("volumebackup")
	copy(entry[56:56+len(name)], name)
}

func utf16le(s string) []byte {
	out := make([]byte, 0, len(s)*2)
	for _, r := range s {
		out = append(out, byte(r), byte(r>>8))
	}
	return out
}

func gptHeader(totalLBA, firstUsable, lastUsable uint64, entriesCRC uint32) []byte {
	return buildHeader(gptHeaderLBA, totalLBA-1, totalLBA, firstUsable, lastUsable, entriesCRC, partEntryLBA)
}

func gptBackupHeader(totalLBA, firstUsable, lastUsable uint64, entriesCRC uint32) []byte {
	backupEntriesLBA := totalLBA - 1 - partEntryCount*partEntrySize/sectorSize
	return buildHeader(totalLBA-1, gptHeaderLBA, totalLBA, firstUsable, lastUsable, entriesCRC, backupEntriesLBA)
}

func buildHeader(myLBA, altLBA, totalLBA, firstUsable, lastUsable uint64, entriesCRC uint32, entriesLBA uint64) []byte {
	h := make([]byte, sectorSize)
	copy(h[0:8], []byte("EFI PART"))
	binary.LittleEndian.PutUint32(h[8:12], 0x00010000) // revision 1.0
	binary.LittleEndian.PutUint32(h[12:16], 92)         // header size
	binary.LittleEndian.PutUint64(h[24:32], myLBA)
	binary.LittleEndian.PutUint64(h[32:40], altLBA)
	binary.LittleEndian.PutUint64(h[40:48], firstUsable)
	binary.LittleEndian.PutUint64(h[48:56], lastUsable)
	binary.LittleEndian.PutUint64(h[72:80], entriesLBA)
	binary.LittleEndian.PutUint32(h[80:84], partEntryCount)
	binary.LittleEndian.PutUint32(h[84:88], partEntrySize)
	binary.LittleEndian.PutUint32(h[88:92], entriesCRC)

	crc := crc32.ChecksumIEEE(h[0:92])
	binary.LittleEndian.PutUint32(h[16:20], crc)
	return h
}

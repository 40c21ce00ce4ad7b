// SPDX-License-Identifier: MIT

package decrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/hlsgate/hlsgate/internal/proxyerr"
)

// SAMPLE-AES walks the MPEG-TS container in place: elementary-stream bytes
// are gathered per PES packet, sample bodies are decrypted, and the plain
// bytes are scattered back into their original packet positions. The PMT is
// rewritten so the private SAMPLE-AES stream types become their clear
// equivalents.

const tsPacketSize = 188

// Private stream types used by SAMPLE-AES playlists and their clear
// counterparts.
const (
	streamTypeEncAVC = 0xdb
	streamTypeAVC    = 0x1b
	streamTypeEncAAC = 0xcf
	streamTypeAAC    = 0x0f
	streamTypeEncAC3 = 0xc1
	streamTypeAC3    = 0x81
)

type esKind int

const (
	esAudio esKind = iota
	esVideo
)

type span struct {
	off int
	n   int
}

type esStream struct {
	kind  esKind
	spans []span
}

// DecryptTS decrypts a SAMPLE-AES MPEG-TS segment with the given 16-byte key
// and IV, returning a cleartext TS stream of identical length.
func DecryptTS(data, key, iv []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%tsPacketSize != 0 {
		return nil, fmt.Errorf("segment is not aligned MPEG-TS: %w", proxyerr.ErrUnprocessable)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("bad AES key: %w", proxyerr.ErrBadRequest)
	}

	out := make([]byte, len(data))
	copy(out, data)

	pmtPID := -1
	streams := make(map[int]*esStream)

	for off := 0; off < len(out); off += tsPacketSize {
		pkt := out[off : off+tsPacketSize]
		if pkt[0] != 0x47 {
			return nil, fmt.Errorf("lost TS sync at offset %d: %w", off, proxyerr.ErrUnprocessable)
		}
		pid := int(pkt[1]&0x1f)<<8 | int(pkt[2])
		pusi := pkt[1]&0x40 != 0
		afc := pkt[3] >> 4 & 0x3

		p := 4
		if afc&0x2 != 0 {
			p += 1 + int(pkt[4])
		}
		if afc&0x1 == 0 || p >= tsPacketSize {
			continue
		}
		payload := pkt[p:]

		switch {
		case pid == 0:
			if v := parsePAT(payload, pusi); v >= 0 {
				pmtPID = v
			}
		case pid == pmtPID:
			parsePMT(payload, pusi, streams)
		default:
			s, ok := streams[pid]
			if !ok {
				continue
			}
			if pusi {
				if err := s.flush(out, block, iv); err != nil {
					return nil, err
				}
				esOff := pesPayloadOffset(payload)
				if esOff < 0 || esOff >= len(payload) {
					continue
				}
				s.spans = append(s.spans, span{off: off + p + esOff, n: len(payload) - esOff})
			} else {
				s.spans = append(s.spans, span{off: off + p, n: len(payload)})
			}
		}
	}

	for _, s := range streams {
		if err := s.flush(out, block, iv); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DecryptADTS decrypts a raw SAMPLE-AES ADTS audio segment.
func DecryptADTS(data, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("bad AES key: %w", proxyerr.ErrBadRequest)
	}
	out := make([]byte, len(data))
	copy(out, data)
	if err := decryptADTSFrames(out, block, iv); err != nil {
		return nil, err
	}
	return out, nil
}

// parsePAT returns the PID of the first program's PMT, or -1.
func parsePAT(payload []byte, pusi bool) int {
	sec := sectionBytes(payload, pusi, 0x00)
	if sec == nil {
		return -1
	}
	sectionLen := int(sec[1]&0x0f)<<8 | int(sec[2])
	end := 3 + sectionLen - 4 // exclude CRC
	if end > len(sec) {
		return -1
	}
	for i := 8; i+4 <= end; i += 4 {
		program := int(sec[i])<<8 | int(sec[i+1])
		pid := int(sec[i+2]&0x1f)<<8 | int(sec[i+3])
		if program != 0 {
			return pid
		}
	}
	return -1
}

// parsePMT registers elementary streams carrying SAMPLE-AES stream types and
// rewrites those types to their clear equivalents, fixing up the section CRC.
func parsePMT(payload []byte, pusi bool, streams map[int]*esStream) {
	sec := sectionBytes(payload, pusi, 0x02)
	if sec == nil {
		return
	}
	sectionLen := int(sec[1]&0x0f)<<8 | int(sec[2])
	end := 3 + sectionLen - 4
	if end > len(sec) || end < 16 {
		return
	}
	programInfoLen := int(sec[10]&0x0f)<<8 | int(sec[11])
	i := 12 + programInfoLen

	rewritten := false
	for i+5 <= end {
		streamType := sec[i]
		esPID := int(sec[i+1]&0x1f)<<8 | int(sec[i+2])
		esInfoLen := int(sec[i+3]&0x0f)<<8 | int(sec[i+4])

		switch streamType {
		case streamTypeEncAVC:
			streams[esPID] = &esStream{kind: esVideo}
			sec[i] = streamTypeAVC
			rewritten = true
		case streamTypeEncAAC:
			streams[esPID] = &esStream{kind: esAudio}
			sec[i] = streamTypeAAC
			rewritten = true
		case streamTypeEncAC3:
			streams[esPID] = &esStream{kind: esAudio}
			sec[i] = streamTypeAC3
			rewritten = true
		}
		i += 5 + esInfoLen
	}

	if rewritten && end+4 <= len(sec) {
		crc := mpegCRC32(sec[:end])
		sec[end] = byte(crc >> 24)
		sec[end+1] = byte(crc >> 16)
		sec[end+2] = byte(crc >> 8)
		sec[end+3] = byte(crc)
	}
}

// sectionBytes skips the pointer field and checks the table id. PSI sections
// are assumed to fit in a single packet, which holds for the PAT/PMT sizes
// seen in HLS streams.
func sectionBytes(payload []byte, pusi bool, tableID byte) []byte {
	if !pusi || len(payload) < 1 {
		return nil
	}
	ptr := int(payload[0])
	if 1+ptr+3 > len(payload) {
		return nil
	}
	sec := payload[1+ptr:]
	if sec[0] != tableID {
		return nil
	}
	return sec
}

// pesPayloadOffset returns the offset of the elementary stream inside a PES
// packet that starts at payload[0], or -1.
func pesPayloadOffset(payload []byte) int {
	if len(payload) < 9 || payload[0] != 0 || payload[1] != 0 || payload[2] != 1 {
		return -1
	}
	return 9 + int(payload[8])
}

// flush gathers the buffered ES spans, decrypts the sample bodies and
// scatters the plaintext back.
func (s *esStream) flush(buf []byte, block cipher.Block, iv []byte) error {
	if len(s.spans) == 0 {
		return nil
	}
	total := 0
	for _, sp := range s.spans {
		total += sp.n
	}
	es := make([]byte, 0, total)
	for _, sp := range s.spans {
		es = append(es, buf[sp.off:sp.off+sp.n]...)
	}

	var err error
	switch s.kind {
	case esAudio:
		err = decryptADTSFrames(es, block, iv)
	case esVideo:
		decryptAVCStream(es, block, iv)
	}
	if err != nil {
		return err
	}

	pos := 0
	for _, sp := range s.spans {
		copy(buf[sp.off:sp.off+sp.n], es[pos:pos+sp.n])
		pos += sp.n
	}
	s.spans = s.spans[:0]
	return nil
}

// decryptADTSFrames decrypts each ADTS frame in place. Per frame the header
// and the first 16 bytes of the AAC payload stay clear, the rest is CBC with
// the IV reset per frame; a trailing partial block stays clear.
func decryptADTSFrames(es []byte, block cipher.Block, iv []byte) error {
	for i := 0; i+7 <= len(es); {
		if es[i] != 0xFF || es[i+1]&0xF0 != 0xF0 {
			return fmt.Errorf("lost ADTS sync at %d: %w", i, proxyerr.ErrUnprocessable)
		}
		hdrLen := 7
		if es[i+1]&0x01 == 0 {
			hdrLen = 9 // CRC present
		}
		frameLen := int(es[i+3]&0x03)<<11 | int(es[i+4])<<3 | int(es[i+5])>>5
		if frameLen < hdrLen || i+frameLen > len(es) {
			return fmt.Errorf("truncated ADTS frame at %d: %w", i, proxyerr.ErrUnprocessable)
		}
		body := es[i+hdrLen : i+frameLen]
		if len(body) > 16 {
			enc := body[16:]
			if n := len(enc) &^ 15; n > 0 {
				cipher.NewCBCDecrypter(block, iv).CryptBlocks(enc[:n], enc[:n])
			}
		}
		i += frameLen
	}
	return nil
}

// decryptAVCStream decrypts type 1 and 5 NAL units larger than 48 bytes in
// place: a 32-byte clear leader, then a 10% pattern of one encrypted block
// per ten, CBC state carried across the encrypted blocks of one NAL.
func decryptAVCStream(es []byte, block cipher.Block, iv []byte) {
	for _, nal := range splitNALUnits(es) {
		if len(nal) <= 48 {
			continue
		}
		nalType := nal[0] & 0x1f
		if nalType != 1 && nalType != 5 {
			continue
		}
		mode := cipher.NewCBCDecrypter(block, iv)
		for pos := 32; pos+16 <= len(nal); pos += 16 * 10 {
			mode.CryptBlocks(nal[pos:pos+16], nal[pos:pos+16])
		}
	}
}

// splitNALUnits returns the NAL payloads between Annex B start codes.
func splitNALUnits(es []byte) [][]byte {
	var nals [][]byte
	start := -1
	i := 0
	for i+3 <= len(es) {
		if es[i] == 0 && es[i+1] == 0 && es[i+2] == 1 {
			if start >= 0 {
				end := i
				if end > start && es[end-1] == 0 {
					end-- // four-byte start code
				}
				nals = append(nals, es[start:end])
			}
			start = i + 3
			i += 3
			continue
		}
		i++
	}
	if start >= 0 && start < len(es) {
		nals = append(nals, es[start:])
	}
	return nals
}

// mpegCRC32 is the MPEG-2 PSI CRC: polynomial 0x04C11DB7, MSB-first, init
// 0xFFFFFFFF, no final xor.
func mpegCRC32(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc ^= uint32(b) << 24
		for i := 0; i < 8; i++ {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

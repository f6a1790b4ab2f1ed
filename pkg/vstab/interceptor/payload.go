package interceptor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
)

const (
	// frameHeaderSize prefixes a marshalled frame: width u16 | height u16.
	frameHeaderSize = 4

	// packetHeaderSize prefixes every RTP payload:
	// width u16 | height u16 | offset u32.
	packetHeaderSize = 8
)

// Payload errors.
var (
	ErrShortPayload  = errors.New("vstab: luma payload shorter than its header")
	ErrFrameGeometry = errors.New("vstab: luma payload outside frame bounds")
)

// MarshalLumaFrame encodes a grayscale image as width, height and tightly
// packed rows. Frames larger than 65535 pixels in either dimension cannot
// be represented.
func MarshalLumaFrame(img *image.Gray) []byte {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := make([]byte, frameHeaderSize+w*h)
	binary.BigEndian.PutUint16(out[0:], uint16(w))
	binary.BigEndian.PutUint16(out[2:], uint16(h))
	for y := 0; y < h; y++ {
		i := img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y)
		copy(out[frameHeaderSize+y*w:], img.Pix[i:i+w])
	}
	return out
}

// UnmarshalLumaFrame decodes a MarshalLumaFrame buffer.
func UnmarshalLumaFrame(b []byte) (*image.Gray, error) {
	if len(b) < frameHeaderSize {
		return nil, ErrShortPayload
	}
	w := int(binary.BigEndian.Uint16(b[0:]))
	h := int(binary.BigEndian.Uint16(b[2:]))
	if len(b)-frameHeaderSize != w*h {
		return nil, fmt.Errorf("%w: %dx%d frame with %d bytes", ErrFrameGeometry, w, h, len(b)-frameHeaderSize)
	}
	img := image.NewGray(image.Rect(0, 0, w, h))
	copy(img.Pix, b[frameHeaderSize:])
	return img, nil
}

// LumaPayloader splits a MarshalLumaFrame buffer into RTP payloads.
// It implements rtp.Payloader.
type LumaPayloader struct{}

// Payload fragments a marshalled frame so that every payload, header
// included, fits in mtu bytes. Returns nil when the input is malformed or
// the mtu cannot hold a header and one byte of luma.
func (LumaPayloader) Payload(mtu uint16, payload []byte) [][]byte {
	if len(payload) < frameHeaderSize || int(mtu) <= packetHeaderSize {
		return nil
	}
	luma := payload[frameHeaderSize:]
	chunk := int(mtu) - packetHeaderSize
	out := make([][]byte, 0, (len(luma)+chunk-1)/chunk)
	for offset := 0; offset < len(luma); offset += chunk {
		end := min(offset+chunk, len(luma))
		p := make([]byte, packetHeaderSize+end-offset)
		copy(p[0:4], payload[0:4])
		binary.BigEndian.PutUint32(p[4:], uint32(offset))
		copy(p[packetHeaderSize:], luma[offset:end])
		out = append(out, p)
	}
	return out
}

// LumaDepacketizer parses luma RTP payloads. It implements
// rtp.Depacketizer; the geometry of the last payload is kept in its fields.
type LumaDepacketizer struct {
	Width, Height int
	Offset        int
}

// Unmarshal parses the payload header and returns the luma bytes.
func (d *LumaDepacketizer) Unmarshal(packet []byte) ([]byte, error) {
	if len(packet) < packetHeaderSize {
		return nil, ErrShortPayload
	}
	d.Width = int(binary.BigEndian.Uint16(packet[0:]))
	d.Height = int(binary.BigEndian.Uint16(packet[2:]))
	d.Offset = int(binary.BigEndian.Uint32(packet[4:]))
	luma := packet[packetHeaderSize:]
	if d.Offset+len(luma) > d.Width*d.Height {
		return nil, fmt.Errorf("%w: %d bytes at offset %d in %dx%d frame",
			ErrFrameGeometry, len(luma), d.Offset, d.Width, d.Height)
	}
	return luma, nil
}

// IsPartitionHead reports whether payload starts a frame.
func (d *LumaDepacketizer) IsPartitionHead(payload []byte) bool {
	return len(payload) >= packetHeaderSize && binary.BigEndian.Uint32(payload[4:]) == 0
}

// IsPartitionTail reports whether the packet closes a frame. The RTP
// marker bit is authoritative.
func (d *LumaDepacketizer) IsPartitionTail(marker bool, _ []byte) bool {
	return marker
}

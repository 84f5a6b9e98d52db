package uci

import "bytes"

// Packet is one logical control message: the concatenated payload of a
// complete fragment chain, tagged with the chain's header identity.
type Packet struct {
	Type    MessageType
	GID     GroupID
	OID     uint8
	Payload []byte
}

// Opcode returns the GID/OID pair of the packet.
func (p Packet) Opcode() Opcode {
	return Opcode{GID: p.GID, OID: p.OID}
}

// Equal reports whether two packets carry the same header identity and payload.
func (p Packet) Equal(o Packet) bool {
	return p.Type == o.Type && p.GID == o.GID && p.OID == o.OID && bytes.Equal(p.Payload, o.Payload)
}

// Fragments splits the packet into wire fragments of at most maxPayload bytes
// of payload each. Every fragment but the last has PBF set. A packet with an
// empty payload yields exactly one header-only fragment.
func (p Packet) Fragments(maxPayload int) [][]byte {
	if maxPayload <= 0 || maxPayload > MaxPayloadSize {
		maxPayload = MaxPayloadSize
	}

	count := (len(p.Payload) + maxPayload - 1) / maxPayload
	if count == 0 {
		count = 1
	}
	out := make([][]byte, 0, count)

	rest := p.Payload
	for {
		n := len(rest)
		if n > maxPayload {
			n = maxPayload
		}
		h := Header{
			Type:       p.Type,
			PBF:        len(rest) > n,
			GID:        p.GID,
			OID:        p.OID,
			PayloadLen: uint8(n),
		}
		frag := make([]byte, 0, HeaderSize+n)
		frag = h.AppendTo(frag)
		frag = append(frag, rest[:n]...)
		out = append(out, frag)

		rest = rest[n:]
		if len(rest) == 0 {
			return out
		}
	}
}

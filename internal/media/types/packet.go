package types

// Packet is one encoded unit of a single stream.
type Packet struct {
	Data        []byte
	PTS         int64 // Presentation timestamp in TimeBase units, or NoTimestamp
	DTS         int64 // Decode timestamp in TimeBase units, or NoTimestamp
	Duration    int64 // Duration in TimeBase units; negative when unknown
	Base        Rational
	StreamIndex int
	Keyframe    bool
	Complete    bool

	// MediaType is the media kind of the stream the packet belongs to.
	MediaType MediaKind
}

// NewPacket returns an empty packet with absent timestamps.
func NewPacket() *Packet {
	return &Packet{
		PTS:      NoTimestamp,
		DTS:      NoTimestamp,
		Duration: -1,
	}
}

// Kind implements MediaUnit.
func (p *Packet) Kind() MediaKind { return p.MediaType }

// TimeBase implements MediaUnit.
func (p *Packet) TimeBase() Rational { return p.Base }

// Timestamp implements MediaUnit. PTS wins, DTS is the fallback.
func (p *Packet) Timestamp() int64 {
	if p.PTS != NoTimestamp {
		return p.PTS
	}
	return p.DTS
}

// IsComplete implements MediaUnit.
func (p *Packet) IsComplete() bool {
	return p.Complete && len(p.Data) > 0
}

// Reset clears the packet for reuse, keeping its data capacity.
func (p *Packet) Reset() {
	p.Data = p.Data[:0]
	p.PTS = NoTimestamp
	p.DTS = NoTimestamp
	p.Duration = -1
	p.Base = Rational{}
	p.StreamIndex = 0
	p.Keyframe = false
	p.Complete = false
	p.MediaType = MediaKindUnknown
}

// Clone returns a deep copy.
func (p *Packet) Clone() *Packet {
	c := *p
	c.Data = append([]byte(nil), p.Data...)
	return &c
}

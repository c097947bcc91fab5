package aos

// VirtualChannel holds one virtual channel's frame-sequence tracking
// and packet reassembly state.
type VirtualChannel struct {
	Synchronizer Synchronizer
	Defragmenter Defragmenter
}

// Demuxer routes incoming transfer frames to their virtual channel's
// state by VCID, creating it on first use. Grounded on
// gaia-ccsds-c2a/src/ccsds_c2a/aos/virtual_channel.rs.
type Demuxer struct {
	channels map[uint8]*VirtualChannel
}

// Demux returns the VirtualChannel for vcid, creating it if this is
// the first frame seen on it.
func (d *Demuxer) Demux(vcid uint8) *VirtualChannel {
	if d.channels == nil {
		d.channels = make(map[uint8]*VirtualChannel)
	}
	vc, ok := d.channels[vcid]
	if !ok {
		vc = &VirtualChannel{}
		d.channels[vcid] = vc
	}
	return vc
}

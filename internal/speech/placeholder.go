package speech

// PlaceholderAudio is a minimal valid MPEG-1 Layer III frame of silence.
// It is stored in place of real audio when synthesis is unavailable or
// fails, keeping the Summary's audio reference resolvable.
func PlaceholderAudio() []byte {
	frame := make([]byte, 417)
	// MPEG-1 Layer III, 128 kbit/s, 44.1 kHz, no CRC.
	frame[0] = 0xFF
	frame[1] = 0xFB
	frame[2] = 0x90
	frame[3] = 0x00
	return frame
}

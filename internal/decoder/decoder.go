// Package decoder implements the table driven downsampling and line code
// classification of oversampled ISO14443A subcarrier windows.
//
// A window holds 32 samples of one 106 kbps bit period (3.39 MHz), first
// sample in the most significant bit. Each window byte is reduced to a 2-bit
// symbol (one bit per nibble, set when at least three of the four samples are
// high), giving an 8-bit ClassCode where every bit stands for 4 samples.
//
// Line model:
//
//	Reader (modified Miller), field idles high, pauses are low for 7..11 samples
//	  Z  pause at bit start           0^9 1^23       code 0x3F
//	  X  pause at half bit (1)        1^16 0^9 1^7   code 0xF3
//	  Y  no pause (0)                 1^32           code 0xFF
//	Tag (Manchester), subcarrier modulation reads high, tag idles low
//	  D  modulated first half (1)     1^16 0^16      code 0xF0
//	  E  modulated second half (0)    0^16 1^16      code 0x0F
//	  F  no modulation                0^32           code 0x00
//
// A frame start aligned on a falling edge looks like 0^k 1^(8-k) with k in
// 1..3 (Miller Z), one aligned on a rising edge like 1^k 0^(8-k) with k in
// 3..5 (Manchester D). Anything else is unknown.
package decoder

import "firestige.xyz/nfcsniff/internal/core"

// Downsample reduces a window to its ClassCode, most significant byte first.
func Downsample(w core.SampleWindow) core.ClassCode {
	return core.ClassCode(downsampleTable[byte(w>>24)]<<6 |
		downsampleTable[byte(w>>16)]<<4 |
		downsampleTable[byte(w>>8)]<<2 |
		downsampleTable[byte(w)])
}

// ClassifyStart returns the modulation whose start symbol matches code.
func ClassifyStart(code core.ClassCode) core.Modulation {
	return startTable[code]
}

// DecodeBit returns the data bit carried by code under modulation m.
// Unknown modulations always decode to 0.
func DecodeBit(code core.ClassCode, m core.Modulation) uint8 {
	switch m {
	case core.ModulationMiller:
		return millerTable[code]
	case core.ModulationManchester:
		return manchesterTable[code]
	}
	return 0
}

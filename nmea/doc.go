// Package nmea builds NMEA 0183 sentences sent to the concentrator.
//
// A Frame is a complete sentence: talker delimiter ('$' or '!'), comma separated
// fields, '*', two uppercase hex digits of XOR checksum, CR LF.
// Checksum covers the bytes strictly between delimiter and '*'.
package nmea

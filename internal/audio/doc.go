// Package audio converts between capture samples, the PCM16 wire format
// and playable buffers.
package audio

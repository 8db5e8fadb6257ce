package main

// PCM and WAV helpers for the audio served to Twilio.
//
// Twilio <Play> accepts 16-bit linear PCM WAV natively; everything served by
// /voice-file is mono, 16 kHz, signed 16-bit little-endian.

import (
	"bytes"
	"encoding/binary"
	"time"
)

const (
	telephonySampleRate = 16000
	wavHeaderSize       = 44
)

// resampleLinear converts mono samples from inRate to outRate, interpolating
// between the two nearest input samples. ElevenLabs streams at 22.05 or
// 24 kHz; Twilio gets 16 kHz.
func resampleLinear(in []int16, inRate, outRate int) []int16 {
	if len(in) == 0 || inRate == outRate {
		return in
	}
	n := len(in) * outRate / inRate
	if n == 0 {
		return nil
	}
	out := make([]int16, n)
	last := len(in) - 1
	step := float64(inRate) / float64(outRate)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = in[last]
			continue
		}
		w := pos - float64(j)
		out[i] = int16(float64(in[j]) + w*float64(int(in[j+1])-int(in[j])))
	}
	return out
}

// pcmToBytes encodes samples as PCM16 LE.
func pcmToBytes(samples []int16) []byte {
	buf := make([]byte, 2*len(samples))
	for i, v := range samples {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(v))
	}
	return buf
}

// bytesToPCM decodes PCM16 LE, ignoring a trailing odd byte.
func bytesToPCM(raw []byte) []int16 {
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
	}
	return samples
}

// encodeWAV wraps raw mono PCM16 LE data in a canonical 44-byte RIFF header.
func encodeWAV(pcm []byte, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	blockAlign := channels * bitsPerSample / 8

	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + len(pcm))
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// telephonyWAV converts raw PCM16 at inRate into a 16 kHz WAV file body.
func telephonyWAV(raw []byte, inRate int) []byte {
	if inRate != telephonySampleRate {
		raw = pcmToBytes(resampleLinear(bytesToPCM(raw), inRate, telephonySampleRate))
	}
	return encodeWAV(raw, telephonySampleRate)
}

// silenceWAV returns d of digital silence, used when no audio is ready yet.
func silenceWAV(d time.Duration) []byte {
	samples := int(d.Seconds() * telephonySampleRate)
	return encodeWAV(make([]byte, samples*2), telephonySampleRate)
}

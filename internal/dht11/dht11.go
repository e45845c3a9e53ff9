// Package dht11 implements the DHT11 single-wire readout protocol: the host
// handshake, pulse-width sampling of the 40-bit frame, checksum validation
// and conversion to physical values. The package talks to hardware only
// through the Pin and Timing capabilities, so the protocol logic runs
// unchanged against a real GPIO backend or a simulated one in tests.
package dht11

import "errors"

// Protocol timing constants, per the sensor datasheet.
const (
	// startSignalMicros is the minimum time the host must hold the line
	// low to request a readout.
	startSignalMicros = 20 * 1000

	// releaseMicros is how long the host drives the line high before
	// handing control over to the sensor.
	releaseMicros = 10

	// levelTimeoutMicros bounds every wait for a level transition. The
	// sensor answers within microseconds; a transition that takes longer
	// than a second means the sensor is absent or the line is stuck.
	levelTimeoutMicros = 1000 * 1000

	// bitOneThresholdMicros separates the sensor's short (0) and long (1)
	// high pulses. A pulse at or above the threshold reads as 1.
	bitOneThresholdMicros = 50
)

// frameBits is the size of one transmission: four data bytes plus checksum.
const frameBits = 40

var (
	// ErrTimeout means a required level transition did not happen within
	// levelTimeoutMicros. The readout attempt is abandoned.
	ErrTimeout = errors.New("dht11: timed out waiting for level change")

	// ErrChecksum means a full frame was captured but its checksum byte
	// does not match the sum of the data bytes. The frame is discarded.
	ErrChecksum = errors.New("dht11: checksum mismatch")
)

// Pin is the single-wire data line. Level and mode writes are assumed
// infallible at this layer; a faulty line surfaces as ErrTimeout.
type Pin interface {
	IsLow() bool
	IsHigh() bool
	SetLow()
	SetHigh()
	SetModeInput()
	SetModeOutput()
}

// Timing provides the blocking wait and the monotonic clock the protocol
// measures pulses with.
type Timing interface {
	// Wait blocks the caller for the given number of microseconds.
	Wait(microseconds uint32)

	// Now returns the current time in microseconds. The clock must be
	// monotonic; the absolute origin does not matter.
	Now() uint64
}

// Reading is one decoded measurement.
type Reading struct {
	// Humidity is relative humidity in percent.
	Humidity float64

	// Temperature is in Celsius degrees.
	Temperature float64
}

// rawFrame is the 5-byte payload recovered from 40 sampled bits.
type rawFrame struct {
	integralRH uint8
	decimalRH  uint8
	integralT  uint8
	decimalT   uint8
	checksum   uint8
}

// packByte folds eight bits into a byte, most significant bit first.
func packByte(bits []bool) uint8 {
	var b uint8
	for _, bit := range bits {
		b <<= 1
		if bit {
			b |= 1
		}
	}
	return b
}

func newRawFrame(bits *[frameBits]bool) rawFrame {
	return rawFrame{
		integralRH: packByte(bits[0:8]),
		decimalRH:  packByte(bits[8:16]),
		integralT:  packByte(bits[16:24]),
		decimalT:   packByte(bits[24:32]),
		checksum:   packByte(bits[32:40]),
	}
}

// checksumOK reports whether the checksum byte equals the low byte of the
// sum of the four data bytes. This is the frame's only integrity check.
func (f rawFrame) checksumOK() bool {
	sum := uint32(f.integralRH) + uint32(f.decimalRH) + uint32(f.integralT) + uint32(f.decimalT)
	return f.checksum == uint8(sum%256)
}

// reading converts a validated frame. The decimal bytes carry a tenths
// digit, not a binary fraction.
func (f rawFrame) reading() Reading {
	return Reading{
		Humidity:    float64(f.integralRH) + float64(f.decimalRH)/10.0,
		Temperature: float64(f.integralT) + float64(f.decimalT)/10.0,
	}
}

// bitFromPulse classifies a high-pulse duration in microseconds.
func bitFromPulse(elapsedMicros uint64) bool {
	return elapsedMicros >= bitOneThresholdMicros
}

// waitForLevel polls the pin until it reports the wanted level or the
// timeout elapses. The loop is deliberately tight: callers measure pulse
// widths around it, so it must not sleep between polls.
func waitForLevel(high bool, pin Pin, timing Timing) error {
	deadline := timing.Now() + levelTimeoutMicros
	for {
		if high {
			if pin.IsHigh() {
				return nil
			}
		} else if pin.IsLow() {
			return nil
		}
		if timing.Now() > deadline {
			return ErrTimeout
		}
	}
}

// handshake drives the start sequence and waits out the sensor's 80µs+80µs
// acknowledgement. On return the line sits at the start of the first data
// bit's high pulse.
func handshake(pin Pin, timing Timing) error {
	pin.SetModeOutput()
	pin.SetHigh()
	pin.SetLow()
	timing.Wait(startSignalMicros)
	pin.SetHigh()
	timing.Wait(releaseMicros)

	pin.SetModeInput()
	if err := waitForLevel(false, pin, timing); err != nil {
		return err
	}
	if err := waitForLevel(true, pin, timing); err != nil {
		return err
	}
	return waitForLevel(false, pin, timing)
}

// readBit measures one high pulse and classifies it.
func readBit(pin Pin, timing Timing) (bool, error) {
	if err := waitForLevel(true, pin, timing); err != nil {
		return false, err
	}
	start := timing.Now()
	if err := waitForLevel(false, pin, timing); err != nil {
		return false, err
	}
	return bitFromPulse(timing.Now() - start), nil
}

// Read performs exactly one readout attempt: handshake, 40 sampled bits,
// checksum validation, conversion. It borrows the pin and timing
// capabilities for the duration of the call and must be the line's only
// user while it runs. The first failure aborts the attempt; retrying (no
// more often than the sensor's ~2s sampling interval) is the caller's
// business.
func Read(pin Pin, timing Timing) (Reading, error) {
	if err := handshake(pin, timing); err != nil {
		return Reading{}, err
	}

	var bits [frameBits]bool
	for i := range bits {
		bit, err := readBit(pin, timing)
		if err != nil {
			return Reading{}, err
		}
		bits[i] = bit
	}

	frame := newRawFrame(&bits)
	if !frame.checksumOK() {
		return Reading{}, ErrChecksum
	}
	return frame.reading(), nil
}

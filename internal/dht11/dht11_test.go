package dht11

import (
	"errors"
	"testing"
)

// simClock is a virtual microsecond clock shared by the fake pin and the
// fake timing source. Wait jumps it forward; every pin poll costs pollCost
// so tight wait loops make progress.
type simClock struct {
	nowMicros uint64
	waits     []uint32
}

const pollCost = 1

func (c *simClock) Wait(microseconds uint32) {
	c.waits = append(c.waits, microseconds)
	c.nowMicros += uint64(microseconds)
}

func (c *simClock) Now() uint64 {
	return c.nowMicros
}

// segment is one stretch of the sensor-driven waveform.
type segment struct {
	high   bool
	micros uint64
}

// simPin replays a scripted sensor waveform. The waveform's origin is the
// moment the host switches the pin to input mode; past the last segment the
// line holds the final level forever. Host-side calls are recorded so tests
// can check the handshake drive sequence.
type simPin struct {
	clock    *simClock
	waveform []segment
	startAt  uint64
	calls    []string
}

func newSimPin(clock *simClock, waveform []segment) *simPin {
	return &simPin{clock: clock, waveform: waveform}
}

func (p *simPin) levelAt(now uint64) bool {
	offset := now - p.startAt
	for _, seg := range p.waveform {
		if offset < seg.micros {
			return seg.high
		}
		offset -= seg.micros
	}
	if len(p.waveform) == 0 {
		return true
	}
	return p.waveform[len(p.waveform)-1].high
}

func (p *simPin) IsLow() bool {
	p.clock.nowMicros += pollCost
	return !p.levelAt(p.clock.nowMicros)
}

func (p *simPin) IsHigh() bool {
	p.clock.nowMicros += pollCost
	return p.levelAt(p.clock.nowMicros)
}

func (p *simPin) SetLow()  { p.calls = append(p.calls, "SetLow") }
func (p *simPin) SetHigh() { p.calls = append(p.calls, "SetHigh") }

func (p *simPin) SetModeInput() {
	p.calls = append(p.calls, "SetModeInput")
	p.startAt = p.clock.nowMicros
}

func (p *simPin) SetModeOutput() { p.calls = append(p.calls, "SetModeOutput") }

// sensorWaveform builds the line activity a healthy sensor produces for the
// given data bits: the 80µs+80µs acknowledgement preamble, then per bit a
// 50µs low gap followed by a short (26µs, bit 0) or long (70µs, bit 1) high
// pulse, then the line released low.
func sensorWaveform(bits []bool) []segment {
	segs := []segment{
		{high: false, micros: 80},
		{high: true, micros: 80},
	}
	for _, bit := range bits {
		segs = append(segs, segment{high: false, micros: 50})
		if bit {
			segs = append(segs, segment{high: true, micros: 70})
		} else {
			segs = append(segs, segment{high: true, micros: 26})
		}
	}
	return append(segs, segment{high: false, micros: 1000})
}

// bytesToBits expands bytes into bits, most significant bit first.
func bytesToBits(bytes ...uint8) []bool {
	bits := make([]bool, 0, len(bytes)*8)
	for _, b := range bytes {
		for i := 7; i >= 0; i-- {
			bits = append(bits, b&(1<<uint(i)) != 0)
		}
	}
	return bits
}

func TestPackByte(t *testing.T) {
	bits := []bool{true, false, true, false, true, false, true, false}
	if got := packByte(bits); got != 128+32+8+2 {
		t.Fatalf("packByte = %d, want %d", got, 128+32+8+2)
	}
}

func TestPackByte_Extremes(t *testing.T) {
	if got := packByte(make([]bool, 8)); got != 0 {
		t.Errorf("packByte(all zero) = %d, want 0", got)
	}
	ones := []bool{true, true, true, true, true, true, true, true}
	if got := packByte(ones); got != 255 {
		t.Errorf("packByte(all one) = %d, want 255", got)
	}
}

func TestChecksum(t *testing.T) {
	frame := rawFrame{integralRH: 48, decimalRH: 0, integralT: 23, decimalT: 8, checksum: 79}
	if !frame.checksumOK() {
		t.Fatal("checksumOK = false for matching checksum 79")
	}

	for sum := 0; sum < 256; sum++ {
		if sum == 79 {
			continue
		}
		frame.checksum = uint8(sum)
		if frame.checksumOK() {
			t.Fatalf("checksumOK = true for checksum %d, want false", sum)
		}
	}
}

func TestChecksum_Wraparound(t *testing.T) {
	// 200+200+200+200 = 800 → 800 mod 256 = 32.
	frame := rawFrame{integralRH: 200, decimalRH: 200, integralT: 200, decimalT: 200, checksum: 32}
	if !frame.checksumOK() {
		t.Fatal("checksumOK = false, want true for mod-256 wrapped sum")
	}
}

func TestReadingConversion(t *testing.T) {
	frame := rawFrame{integralRH: 48, decimalRH: 0, integralT: 23, decimalT: 8}
	got := frame.reading()
	if got.Humidity != 48.0 {
		t.Errorf("Humidity = %v, want 48.0", got.Humidity)
	}
	if got.Temperature != 23.8 {
		t.Errorf("Temperature = %v, want 23.8", got.Temperature)
	}
}

func TestBitFromPulse_ThresholdBoundary(t *testing.T) {
	if bitFromPulse(49) {
		t.Error("bitFromPulse(49) = true, want false")
	}
	if !bitFromPulse(50) {
		t.Error("bitFromPulse(50) = false, want true")
	}
}

func TestWaitForLevel_Timeout(t *testing.T) {
	clock := &simClock{}
	pin := newSimPin(clock, []segment{{high: true, micros: 1}})

	entry := clock.Now()
	err := waitForLevel(false, pin, clock)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("waitForLevel error = %v, want ErrTimeout", err)
	}

	elapsed := clock.Now() - entry
	if elapsed < levelTimeoutMicros {
		t.Errorf("returned after %dµs, before the %dµs timeout", elapsed, levelTimeoutMicros)
	}
	if elapsed > levelTimeoutMicros+2*pollCost {
		t.Errorf("returned after %dµs, more than one poll past the timeout", elapsed)
	}
}

func TestWaitForLevel_ImmediateMatch(t *testing.T) {
	clock := &simClock{}
	pin := newSimPin(clock, []segment{{high: true, micros: 100}})

	if err := waitForLevel(true, pin, clock); err != nil {
		t.Fatalf("waitForLevel error = %v, want nil", err)
	}
	if clock.Now() > 2*pollCost {
		t.Errorf("clock advanced %dµs on an immediate match", clock.Now())
	}
}

func TestRead_ValidFrame(t *testing.T) {
	clock := &simClock{}
	bits := bytesToBits(48, 0, 23, 8, 79)
	pin := newSimPin(clock, sensorWaveform(bits))

	got, err := Read(pin, clock)
	if err != nil {
		t.Fatalf("Read error = %v, want nil", err)
	}
	if got.Humidity != 48.0 {
		t.Errorf("Humidity = %v, want 48.0", got.Humidity)
	}
	if got.Temperature != 23.8 {
		t.Errorf("Temperature = %v, want 23.8", got.Temperature)
	}
}

func TestRead_AllFrameValues(t *testing.T) {
	tests := []struct {
		name            string
		frame           [4]uint8
		wantHumidity    float64
		wantTemperature float64
	}{
		{name: "zero", frame: [4]uint8{0, 0, 0, 0}, wantHumidity: 0.0, wantTemperature: 0.0},
		{name: "typical", frame: [4]uint8{65, 3, 21, 9}, wantHumidity: 65.3, wantTemperature: 21.9},
		{name: "max integral", frame: [4]uint8{99, 9, 50, 0}, wantHumidity: 99.9, wantTemperature: 50.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sum := int(tt.frame[0]) + int(tt.frame[1]) + int(tt.frame[2]) + int(tt.frame[3])
			checksum := uint8(sum % 256)

			clock := &simClock{}
			bits := bytesToBits(tt.frame[0], tt.frame[1], tt.frame[2], tt.frame[3], checksum)
			pin := newSimPin(clock, sensorWaveform(bits))

			got, err := Read(pin, clock)
			if err != nil {
				t.Fatalf("Read error = %v, want nil", err)
			}
			if got.Humidity != tt.wantHumidity {
				t.Errorf("Humidity = %v, want %v", got.Humidity, tt.wantHumidity)
			}
			if got.Temperature != tt.wantTemperature {
				t.Errorf("Temperature = %v, want %v", got.Temperature, tt.wantTemperature)
			}
		})
	}
}

func TestRead_ChecksumMismatch(t *testing.T) {
	clock := &simClock{}
	bits := bytesToBits(48, 0, 23, 8, 80) // correct checksum would be 79
	pin := newSimPin(clock, sensorWaveform(bits))

	_, err := Read(pin, clock)
	if !errors.Is(err, ErrChecksum) {
		t.Fatalf("Read error = %v, want ErrChecksum", err)
	}
}

func TestRead_NoSensorResponse(t *testing.T) {
	clock := &simClock{}
	// Line stays high: the acknowledgement low never arrives.
	pin := newSimPin(clock, []segment{{high: true, micros: 1}})

	_, err := Read(pin, clock)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Read error = %v, want ErrTimeout", err)
	}
}

func TestRead_TruncatedTransmission(t *testing.T) {
	clock := &simClock{}
	// Sensor acknowledges and sends a handful of bits, then the line
	// sticks low. The next bit's rising edge never comes.
	bits := bytesToBits(48, 0, 23, 8, 79)
	truncated := sensorWaveform(bits[:10])
	pin := newSimPin(clock, truncated)

	_, err := Read(pin, clock)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Read error = %v, want ErrTimeout", err)
	}
}

func TestRead_HandshakeSequence(t *testing.T) {
	clock := &simClock{}
	bits := bytesToBits(48, 0, 23, 8, 79)
	pin := newSimPin(clock, sensorWaveform(bits))

	if _, err := Read(pin, clock); err != nil {
		t.Fatalf("Read error = %v, want nil", err)
	}

	wantCalls := []string{"SetModeOutput", "SetHigh", "SetLow", "SetHigh", "SetModeInput"}
	if len(pin.calls) != len(wantCalls) {
		t.Fatalf("pin calls = %v, want %v", pin.calls, wantCalls)
	}
	for i, call := range wantCalls {
		if pin.calls[i] != call {
			t.Fatalf("pin call %d = %q, want %q (full sequence %v)", i, pin.calls[i], call, pin.calls)
		}
	}

	wantWaits := []uint32{startSignalMicros, releaseMicros}
	if len(clock.waits) != len(wantWaits) {
		t.Fatalf("waits = %v, want %v", clock.waits, wantWaits)
	}
	for i, w := range wantWaits {
		if clock.waits[i] != w {
			t.Fatalf("wait %d = %dµs, want %dµs", i, clock.waits[i], w)
		}
	}
}

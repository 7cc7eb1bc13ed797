// Package capture records pulse batches to CBOR files and replays them.
package capture

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/vevorbus/vevor-bus/internal/protocol"
)

// Version is the recording format version.
const Version = 1

// Recording is a captured session.
type Recording struct {
	Version   int       `cbor:"version"`
	StartedAt time.Time `cbor:"started_at"`
	Batches   []Batch   `cbor:"batches"`
}

// Batch is one capture batch. Each pulse is [level0, duration0, level1, duration1]
// with levels encoded as 0 or 1.
type Batch struct {
	OffsetUs int64       `cbor:"offset_us"`
	Pulses   [][4]uint32 `cbor:"pulses"`
}

// Time returns the wall time the batch was captured.
func (r *Recording) Time(b Batch) time.Time {
	return r.StartedAt.Add(time.Duration(b.OffsetUs) * time.Microsecond)
}

// PulseCount returns the total number of pulses in the recording.
func (r *Recording) PulseCount() int {
	n := 0
	for _, b := range r.Batches {
		n += len(b.Pulses)
	}
	return n
}

var encMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Save writes rec to w.
func Save(w io.Writer, rec *Recording) error {
	if err := encMode.NewEncoder(w).Encode(rec); err != nil {
		return fmt.Errorf("encode recording: %w", err)
	}
	return nil
}

// Load reads a recording from r.
func Load(r io.Reader) (*Recording, error) {
	var rec Recording
	if err := cbor.NewDecoder(r).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode recording: %w", err)
	}
	if rec.Version != Version {
		return nil, fmt.Errorf("unsupported recording version %d", rec.Version)
	}
	return &rec, nil
}

// SaveFile writes rec to path.
func SaveFile(path string, rec *Recording) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Save(f, rec); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadFile reads a recording from path.
func LoadFile(path string) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

func level(l protocol.Level) uint32 {
	if l == protocol.High {
		return 1
	}
	return 0
}

// EncodePulses converts pulses to their recorded form.
func EncodePulses(pulses []protocol.Pulse) [][4]uint32 {
	out := make([][4]uint32, len(pulses))
	for i, p := range pulses {
		out[i] = [4]uint32{level(p.Level0), p.Duration0, level(p.Level1), p.Duration1}
	}
	return out
}

// DecodePulses converts recorded pulses back. Any non-zero level is high.
func DecodePulses(raw [][4]uint32) []protocol.Pulse {
	out := make([]protocol.Pulse, len(raw))
	for i, r := range raw {
		out[i] = protocol.Pulse{
			Level0:    protocol.Level(r[0] != 0),
			Duration0: r[1],
			Level1:    protocol.Level(r[2] != 0),
			Duration1: r[3],
		}
	}
	return out
}

package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Event is one line of a JSONL export: the record kind plus the record itself.
type Event struct {
	Kind   string `json:"kind"`
	Record any    `json:"record"`
}

// ExportJSONL writes every record of st as zstd-compressed JSON lines, plans
// first, then deaths, plants, reports and arrests.
func ExportJSONL(path string, st *SimulationTrace) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteJSONL(f, st); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// WriteJSONL is ExportJSONL to an arbitrary writer.
func WriteJSONL(w io.Writer, st *SimulationTrace) error {
	st = st.Snapshot()
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(enc)
	je := json.NewEncoder(bw)

	write := func(kind string, rec any) error {
		if err := je.Encode(Event{Kind: kind, Record: rec}); err != nil {
			return fmt.Errorf("encode %s: %w", kind, err)
		}
		return nil
	}
	for _, r := range st.Plans {
		if err := write("plan", r); err != nil {
			return err
		}
	}
	for _, r := range st.Deaths {
		if err := write("death", r); err != nil {
			return err
		}
	}
	for _, r := range st.Plants {
		if err := write("plant", r); err != nil {
			return err
		}
	}
	for _, r := range st.Reports {
		if err := write("report", r); err != nil {
			return err
		}
	}
	for _, r := range st.Arrests {
		if err := write("arrest", r); err != nil {
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

// ReadJSONL decodes an export into raw events, in file order.
func ReadJSONL(r io.Reader) ([]json.RawMessage, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []json.RawMessage
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := append(json.RawMessage(nil), sc.Bytes()...)
		out = append(out, line)
	}
	return out, sc.Err()
}

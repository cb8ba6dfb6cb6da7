package cmd

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/austindbirch/logframe/internal/delivery"
	"github.com/austindbirch/logframe/internal/transform"
)

// openInput returns the named file, or stdin when no file or "-" is given.
func openInput(cmd *cobra.Command, args []string) (io.ReadCloser, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}

// readRecords decodes a stream of JSON objects, one per line or simply
// concatenated. Numbers stay json.Number so large integers are not rounded.
func readRecords(r io.Reader) ([]transform.Record, error) {
	dec := json.NewDecoder(bufio.NewReader(r))
	dec.UseNumber()

	var recs []transform.Record
	for n := 1; ; n++ {
		var rec transform.Record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return recs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", n, err)
		}
		if rec == nil {
			return nil, fmt.Errorf("record %d: null is not a record", n)
		}
		recs = append(recs, rec)
	}
}

// chunk splits recs into batches of at most size records, preserving order.
func chunk(recs []transform.Record, size int) []delivery.Batch {
	if size <= 0 {
		size = len(recs)
	}
	var out []delivery.Batch
	for start := 0; start < len(recs); start += size {
		end := min(start+size, len(recs))
		out = append(out, delivery.Batch(recs[start:end]))
	}
	return out
}

func loadRecords(cmd *cobra.Command, args []string) ([]transform.Record, error) {
	in, err := openInput(cmd, args)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	return readRecords(in)
}

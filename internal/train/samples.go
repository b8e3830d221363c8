package train

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Sample is one training pair.
type Sample struct {
	Input  []float64 `json:"input"`
	Output []float64 `json:"output"`
}

// LoadSamples reads samples from a JSON array or a JSONL file.
func LoadSamples(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening samples: %w", err)
	}
	defer f.Close()

	samples, err := ReadSamples(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return samples, nil
}

// ReadSamples decodes a JSON array of samples, or one sample per line.
func ReadSamples(r io.Reader) ([]Sample, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading samples: %w", err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var samples []Sample
		if err := json.Unmarshal(trimmed, &samples); err != nil {
			return nil, fmt.Errorf("parsing sample array: %w", err)
		}
		return samples, checkShapes(samples)
	}

	var samples []Sample
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var s Sample
		if err := json.Unmarshal(text, &s); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		samples = append(samples, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning samples: %w", err)
	}
	return samples, checkShapes(samples)
}

// checkShapes requires every sample to match the first one's sizes.
func checkShapes(samples []Sample) error {
	if len(samples) == 0 {
		return nil
	}
	in, out := len(samples[0].Input), len(samples[0].Output)
	for i, s := range samples {
		if len(s.Input) != in || len(s.Output) != out {
			return fmt.Errorf("sample %d has shape %d->%d, want %d->%d",
				i, len(s.Input), len(s.Output), in, out)
		}
	}
	return nil
}

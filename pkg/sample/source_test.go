package sample

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestStdinSourceReadsUntilEOF(t *testing.T) {
	data := make([]byte, 1000)
	for i := range data {
		data[i] = byte(i)
	}

	src := NewStdinSource(bytes.NewReader(data), CU8, func() uint64 { return 42 })
	if src.Format() != CU8 {
		t.Errorf("Expected CU8, got %v", src.Format())
	}

	var got []byte
	err := src.Run(context.Background(), func(b Block) {
		if b.Timestamp != 42 {
			t.Errorf("Expected clock timestamp 42, got %d", b.Timestamp)
		}
		got = append(got, b.Data...)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Expected all %d bytes delivered, got %d", len(data), len(got))
	}
}

func TestStdinSourceStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := NewStdinSource(bytes.NewReader(make([]byte, 10)), CU8, nil)
	delivered := false
	if err := src.Run(ctx, func(Block) { delivered = true }); err != nil {
		t.Fatalf("Expected nil error on cancellation, got %v", err)
	}
	if delivered {
		t.Error("Expected no blocks after cancellation")
	}
}

func TestFileSourceSynthesizesTimestamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.cu8")
	// Two full blocks plus a partial one.
	data := make([]byte, blockSize*2+100)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	src := NewFileSource(path, CU8, false, func() uint64 { return 1000000 })

	var stamps []uint64
	var total int
	err := src.Run(context.Background(), func(b Block) {
		stamps = append(stamps, b.Timestamp)
		total += len(b.Data)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if total != len(data) {
		t.Errorf("Expected %d bytes delivered, got %d", len(data), total)
	}
	if len(stamps) != 3 {
		t.Fatalf("Expected 3 blocks, got %d", len(stamps))
	}
	if stamps[0] != 1000000 {
		t.Errorf("Expected first block at the start time, got %d", stamps[0])
	}
	// Later blocks advance by the block duration at the sample rate,
	// regardless of how fast the file was read.
	wantSecond := uint64(1000000 + (blockSize/2)*1000/Rate)
	if stamps[1] != wantSecond {
		t.Errorf("Expected second block at %d, got %d", wantSecond, stamps[1])
	}
	if stamps[2] <= stamps[1] {
		t.Errorf("Expected monotonic timestamps, got %v", stamps)
	}
}

func TestFileSourceMissingFile(t *testing.T) {
	src := NewFileSource(filepath.Join(t.TempDir(), "missing.cu8"), CU8, false, nil)
	if err := src.Run(context.Background(), func(Block) {}); err == nil {
		t.Error("Expected error for missing file")
	}
}

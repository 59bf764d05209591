package checksum

import (
	"sync"
	"testing"
)

func TestKnownVectors(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want uint32
	}{
		{"empty", "", 0x00000000},
		{"a", "a", 0x19939B6B},
		{"abc", "abc", 0x648CBB73},
		{"fox", "The quick brown fox jumps over the lazy dog", 0x459DEE61},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Compute([]byte(c.in))
			if got != c.want {
				t.Errorf("Compute(%q) = 0x%08X, want 0x%08X", c.in, got, c.want)
			}
		})
	}
}

func TestIncrementalMatchesOneShot(t *testing.T) {
	data := []byte("The quick brown fox jumps over the lazy dog")
	oneShot := Compute(data)

	crc := Init()
	crc = Update(crc, data[:10])
	crc = Update(crc, data[10:])
	incremental := Finalize(crc)

	if oneShot != incremental {
		t.Errorf("incremental CRC 0x%08X != one-shot CRC 0x%08X", incremental, oneShot)
	}
}

func TestDeterministic(t *testing.T) {
	data := []byte("repeatable input")
	first := Compute(data)
	second := Compute(data)
	if first != second {
		t.Errorf("Compute is not deterministic: 0x%08X != 0x%08X", first, second)
	}
}

// TestConcurrentFirstUse exercises the lazy, once-only table build under
// concurrent first callers — the primitive must never race or panic.
func TestConcurrentFirstUse(t *testing.T) {
	tableOnce = sync.Once{}
	table = [256]uint32{}

	var wg sync.WaitGroup
	results := make([]uint32, 50)
	for i := range results {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = Compute([]byte("abc"))
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		if r != 0x648CBB73 {
			t.Fatalf("concurrent Compute returned 0x%08X, want 0x648CBB73", r)
		}
	}
}

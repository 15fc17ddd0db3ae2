package pathbuilder

import (
	"regexp"
	"testing"
)

func TestRenderDefaultLayout(t *testing.T) {
	p, err := New("s3://bucket/prefix", "t", []string{"dt=2014-05-13"}, 0, 3, 100, "", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got := p.Render()
	want := "s3://bucket/prefix/t/dt=2014-05-13/0_3_00000000000000000100"
	if got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
}

func TestRenderWithExtension(t *testing.T) {
	p, err := New("prefix", "t", []string{"dt=2014-05-14"}, 0, 3, 101, ".gz", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	want := "prefix/t/dt=2014-05-14/0_3_00000000000000000101.gz"
	if got := p.Render(); got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
}

func TestRenderPattern(t *testing.T) {
	p, err := New("prefix", "t", []string{"dt=2024-01-02"}, 0, 7, 42, "", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.Pattern = "{partition}-{currentTimestamp}.json"
	got := p.Render()
	re := regexp.MustCompile(`^prefix/dt=2024-01-02-\d+\.json$`)
	if !re.MatchString(got) {
		t.Fatalf("Render() = %q, does not match expected pattern shape", got)
	}
}

func TestRenderPatternFrozenTimestampMatchesScenario(t *testing.T) {
	p, err := New("prefix", "t", []string{"dt=2024-01-02"}, 0, 7, 42, "", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.Pattern = "{partition}-1700000000000.json"
	got := p.Render()
	want := "prefix/dt=2024-01-02-1700000000000.json"
	if got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
}

func TestRoundTripSinglePartition(t *testing.T) {
	orig, err := New("prefix", "t", []string{"dt=2014-05-13"}, 2, 5, 999, "", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rendered := orig.Render()
	parsed, err := Parse("prefix", rendered)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Prefix != orig.Prefix || parsed.Topic != orig.Topic ||
		len(parsed.Partitions) != 1 || parsed.Partitions[0] != orig.Partitions[0] ||
		parsed.Generation != orig.Generation ||
		parsed.KafkaPartitions[0] != orig.KafkaPartitions[0] ||
		parsed.Offsets[0] != orig.Offsets[0] ||
		parsed.Extension != orig.Extension {
		t.Fatalf("round trip mismatch: orig=%+v parsed=%+v", orig, parsed)
	}
}

func TestParseRejectsMultiPartitionBasename(t *testing.T) {
	orig, err := NewMerged("prefix", "t", []string{"dt=2014-05-13"}, 0, []int32{3, 4}, []int64{10, 20}, "", nil)
	if err != nil {
		t.Fatalf("NewMerged: %v", err)
	}
	rendered := orig.Render()
	if _, err := Parse("prefix", rendered); err == nil {
		t.Fatalf("expected ErrMalformedPath for multi-partition basename")
	}
}

func TestBasenameFormats(t *testing.T) {
	single, err := New("prefix", "t", []string{"dt=x"}, 0, 3, 100, "", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	singleRe := regexp.MustCompile(`^\d+_\d+_\d{20}$`)
	if !singleRe.MatchString(single.basename()) {
		t.Fatalf("single-kp basename %q does not match expected format", single.basename())
	}

	multi, err := NewMerged("prefix", "t", []string{"dt=x"}, 0, []int32{3, 4, 5}, []int64{10, 20, 30}, "", nil)
	if err != nil {
		t.Fatalf("NewMerged: %v", err)
	}
	multiRe := regexp.MustCompile(`^\d+_\d+-\d+_[A-Za-z0-9_-]+$`)
	if !multiRe.MatchString(multi.basename()) {
		t.Fatalf("multi-kp basename %q does not match expected format", multi.basename())
	}
}

func TestNewMergedRejectsNonConsecutivePartitions(t *testing.T) {
	if _, err := NewMerged("prefix", "t", []string{"dt=x"}, 0, []int32{3, 5}, []int64{10, 20}, "", nil); err == nil {
		t.Fatalf("expected error for non-consecutive kafka partitions")
	}
}

func TestCrcPath(t *testing.T) {
	p, err := New("prefix", "t", []string{"dt=x"}, 0, 3, 100, ".gz", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	want := "prefix/t/dt=x/.0_3_00000000000000000100.crc"
	if got := p.CrcPath(); got != want {
		t.Fatalf("CrcPath() = %q, want %q", got, want)
	}
}

func TestUnknownPlaceholderLeftLiteral(t *testing.T) {
	p, err := New("prefix", "t", []string{"dt=x"}, 0, 3, 100, "", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.Pattern = "{topic}/{notaplaceholder}/out"
	got := p.Render()
	want := "prefix/t/{notaplaceholder}/out"
	if got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
}

package download

import "testing"

func TestByteCountString(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{13_338_327_179, "12.4 GB"},
	}
	for _, tt := range tests {
		if got := byteCountString(tt.n); got != tt.want {
			t.Errorf("byteCountString(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestProgressString(t *testing.T) {
	if got, want := progressString(1536, 10240), "1.5 KB / 10.0 KB"; got != want {
		t.Errorf("progressString = %q, want %q", got, want)
	}
	if got, want := progressString(1536, 0), "1.5 KB"; got != want {
		t.Errorf("progressString with unknown total = %q, want %q", got, want)
	}
}

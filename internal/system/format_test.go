package system

import "testing"

func TestFormatBytes(t *testing.T) {
	t.Parallel()
	cases := map[int64]string{
		0:             "0 B",
		1023:          "1023 B",
		1024:          "1.0 KiB",
		4608:          "4.5 KiB",
		1048576:       "1.0 MiB",
		1073741824:    "1.0 GiB",
		2199023255552: "2.0 TiB",
	}
	for in, want := range cases {
		if got := FormatBytes(in); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}

package symbolizer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDemangler_Modes(t *testing.T) {
	tests := []struct {
		mode DemangleMode
		in   string
		want string
	}{
		{DemangleDefault, "_Z3fooi", "foo(int)"},
		{DemangleDefault, "_ZN2ns3barEv", "ns::bar()"},
		{DemangleDefault, "_Z3fooi.cold", "foo(int) [clone .cold]"},
		{DemangleFull, "_Z3fooi.cold", "foo(int)"},
		{DemangleSimplified, "_ZN2ns3barEv", "ns::bar"},
		{DemangleNone, "_Z3fooi", "_Z3fooi"},
		{DemangleDefault, "main", "main"},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode)+"/"+tt.in, func(t *testing.T) {
			require.Equal(t, tt.want, NewDemangler(tt.mode).Demangle(tt.in))
		})
	}
}

func TestDemangler_IdempotentAndTotal(t *testing.T) {
	d := NewDemangler(DemangleDefault)
	inputs := []string{
		"", "_Z", "_Z3", "_ZN", "_Z3fooi", "foo(int)", "bar", "_R", "?foo@@YAXXZ",
		"\xff\xfe", "_ZZZZZZ", "__cxa_finalize", "_Z1fIiEvT_",
	}
	for _, in := range inputs {
		once := d.Demangle(in)
		require.Equal(t, once, d.Demangle(once), "input %q", in)
	}
}

func TestParseDemangleMode(t *testing.T) {
	for _, m := range DemangleModes {
		got, err := ParseDemangleMode(string(m))
		require.NoError(t, err)
		require.Equal(t, m, got)
	}
	_, err := ParseDemangleMode("fancy")
	require.Error(t, err)
}

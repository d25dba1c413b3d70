package gge

import "testing"

func TestEncodeParams(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		params Params
		want   string
	}{
		{
			name:   "ranking window",
			params: Params{}.With("LT", 6).With("LID", 1).With("SV", "1"),
			want:   `{%22LT%22:6,%22LID%22:1,%22SV%22:%221%22}`,
		},
		{
			name:   "empty",
			params: nil,
			want:   `{}`,
		},
		{
			name:   "string escaping",
			params: Params{}.With("N", `a "b" c`),
			want:   `{%22N%22:%22a%20%5C%22b%5C%22%20c%22}`,
		},
		{
			name:   "negative and bool",
			params: Params{}.With("AX1", int64(-5)).With("F", true),
			want:   `{%22AX1%22:-5,%22F%22:1}`,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := EncodeParams(tc.params)
			if err != nil {
				t.Fatalf("encode params: %v", err)
			}
			if got != tc.want {
				t.Fatalf("unexpected encoding:\nwant: %s\ngot:  %s", tc.want, got)
			}
		})
	}
}

func TestEncodeParams_RejectsBadInput(t *testing.T) {
	t.Parallel()

	if _, err := EncodeParams(Params{}.With("bad key", 1)); err == nil {
		t.Fatalf("expected error for key with space")
	}
	if _, err := EncodeParams(Params{}.With("LT", 1.5)); err == nil {
		t.Fatalf("expected error for float value")
	}
}

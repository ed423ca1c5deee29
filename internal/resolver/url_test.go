package resolver

import "testing"

func TestParseURL(t *testing.T) {
	cases := []struct {
		name    string
		url     string
		want    ParsedURL
		wantErr bool
	}{
		{
			name: "bare name",
			url:  "foo",
			want: ParsedURL{Channel: Segment{Name: "foo"}},
		},
		{
			name: "lbry scheme prefix",
			url:  "lbry://foo",
			want: ParsedURL{Channel: Segment{Name: "foo"}},
		},
		{
			name: "claim id prefix with hash qualifier",
			url:  "foo#abc123",
			want: ParsedURL{Channel: Segment{Name: "foo", ClaimIDPrefix: "abc123"}},
		},
		{
			name: "claim id prefix with colon qualifier",
			url:  "foo:abc123",
			want: ParsedURL{Channel: Segment{Name: "foo", ClaimIDPrefix: "abc123"}},
		},
		{
			name: "amount order qualifier",
			url:  "foo$2",
			want: ParsedURL{Channel: Segment{Name: "foo", AmountOrder: 2}},
		},
		{
			name: "channel and stream",
			url:  "@channel/video",
			want: ParsedURL{
				Channel: Segment{Name: "@channel"},
				Stream:  &Segment{Name: "video"},
			},
		},
		{
			name: "channel with claim id and stream with amount order",
			url:  "@channel#ab/video$1",
			want: ParsedURL{
				Channel: Segment{Name: "@channel", ClaimIDPrefix: "ab"},
				Stream:  &Segment{Name: "video", AmountOrder: 1},
			},
		},
		{
			name:    "empty url",
			url:     "",
			wantErr: true,
		},
		{
			name:    "empty channel segment",
			url:     "/video",
			wantErr: true,
		},
		{
			name:    "empty stream segment",
			url:     "foo/",
			wantErr: true,
		},
		{
			name:    "invalid amount order",
			url:     "foo$0",
			wantErr: true,
		},
		{
			name:    "non-numeric amount order",
			url:     "foo$bar",
			wantErr: true,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := ParseURL(c.url)
			if c.wantErr {
				if err == nil {
					t.Fatalf("ParseURL(%q): expected error, got %+v", c.url, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseURL(%q): unexpected error: %v", c.url, err)
			}
			if got.Channel != c.want.Channel {
				t.Errorf("ParseURL(%q).Channel = %+v, want %+v", c.url, got.Channel, c.want.Channel)
			}
			if (got.Stream == nil) != (c.want.Stream == nil) {
				t.Fatalf("ParseURL(%q).Stream presence mismatch: got %v, want %v", c.url, got.Stream, c.want.Stream)
			}
			if got.Stream != nil && *got.Stream != *c.want.Stream {
				t.Errorf("ParseURL(%q).Stream = %+v, want %+v", c.url, *got.Stream, *c.want.Stream)
			}
		})
	}
}

package cache

import (
	"testing"
	"time"
)

func TestDefaultEffective(t *testing.T) {
	got := DefaultEffective()
	want := Effective{CacheGets: true, CacheInserts: true, UncacheUpdates: true}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestOptions_Resolve(t *testing.T) {
	defaults := DefaultEffective()

	tests := []struct {
		name      string
		opts      Options
		projected bool
		want      Effective
	}{
		{
			name: "empty options keep defaults",
			want: defaults,
		},
		{
			name:      "projection disables cache gets",
			projected: true,
			want:      Effective{CacheGets: false, CacheInserts: true, UncacheUpdates: true},
		},
		{
			name:      "explicit cache gets wins over projection",
			opts:      Options{CacheGets: Bool(true)},
			projected: true,
			want:      defaults,
		},
		{
			name: "every field overridden",
			opts: Options{
				CacheGets:      Bool(false),
				CacheSkip:      Bool(true),
				ReadCacheOnly:  Bool(true),
				CacheExpire:    Duration(time.Minute),
				CacheInserts:   Bool(false),
				UncacheUpdates: Bool(false),
			},
			want: Effective{CacheSkip: true, ReadCacheOnly: true, CacheExpire: time.Minute},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.opts.Resolve(defaults, tt.projected)
			if got != tt.want {
				t.Errorf("Resolve() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestOptions_ResolveDoesNotMutateDefaults(t *testing.T) {
	defaults := DefaultEffective()
	_ = Options{CacheSkip: Bool(true)}.Resolve(defaults, false)

	if defaults.CacheSkip {
		t.Error("expected defaults to be untouched")
	}
}

func TestOptions_Merge(t *testing.T) {
	base := Options{CacheGets: Bool(false), CacheExpire: Duration(time.Second)}
	top := Options{CacheExpire: Duration(time.Minute), CacheSkip: Bool(true)}

	got := top.Merge(base)

	if got.CacheGets == nil || *got.CacheGets {
		t.Error("expected CacheGets to come from base")
	}
	if got.CacheExpire == nil || *got.CacheExpire != time.Minute {
		t.Error("expected CacheExpire to come from top")
	}
	if got.CacheSkip == nil || !*got.CacheSkip {
		t.Error("expected CacheSkip to come from top")
	}
	if got.ReadCacheOnly != nil {
		t.Error("expected unset fields to stay nil")
	}
}

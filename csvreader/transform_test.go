package csvreader

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestMap_Render(t *testing.T) {
	tests := []struct {
		name     string
		template string
		values   []string
		want     string
	}{
		{"two fields", "%0 (%1)", []string{"300", "2007"}, "300 (2007)"},
		{"repeated placeholder", "%0, %0", []string{"138"}, "138, 138"},
		{"more placeholders than values", "%0-%1-%2", []string{"a"}, "a-%1-%2"},
		{"more values than placeholders", "%0", []string{"a", "b", "c"}, "a"},
		{
			"two digit placeholders",
			"%0,%1,%2,%3,%4,%5,%6,%7,%8,%9,%10",
			[]string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k"},
			"a,b,c,d,e,f,g,h,i,j,k",
		},
		{
			"unmatched two digit placeholder takes the one digit prefix",
			"%1 %10",
			[]string{"x", "y"},
			"y y0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMap("col", tt.template, make([]string, len(tt.values))...)
			if got := m.Render(tt.values); got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFilter(t *testing.T) {
	if _, err := NewFilter("SKU", nil); !errors.Is(err, ErrNotInvocable) {
		t.Errorf("NewFilter(nil) error = %v, want ErrNotInvocable", err)
	}

	f, err := StringFilter("tags", func(s string) any { return strings.Split(s, "|") })
	if err != nil {
		t.Fatalf("StringFilter() error = %v", err)
	}
	v := "300|test"
	got := f.Apply(&v)
	if !reflect.DeepEqual(got, []string{"300", "test"}) {
		t.Errorf("Apply() = %v, want [300 test]", got)
	}

	nilSeen := false
	f, _ = NewFilter("x", func(v *string) any {
		nilSeen = v == nil
		return nil
	})
	f.Apply(nil)
	if !nilSeen {
		t.Error("filter should receive nil for a missing value")
	}
}

type movie struct {
	ID    string
	Title string
}

func TestLink_Resolve(t *testing.T) {
	values := Fields{"id": "138", "title": "300"}

	plain := NewLink("movie", []string{"id", "title"}, nil)
	got, ok := plain.Resolve(values).(Fields)
	if !ok {
		t.Fatalf("Resolve() without constructor returned %T, want Fields", plain.Resolve(values))
	}
	if !reflect.DeepEqual(got, values) {
		t.Errorf("Resolve() = %v, want %v", got, values)
	}

	built := NewLink("movie", []string{"id", "title"}, func(f Fields) any {
		return movie{ID: f["id"].(string), Title: f["title"].(string)}
	})
	if m := built.Resolve(values); m != (movie{ID: "138", Title: "300"}) {
		t.Errorf("Resolve() with constructor = %v", m)
	}

	if _, err := NewLinkFunc("movie", nil, nil); !errors.Is(err, ErrNotInvocable) {
		t.Errorf("NewLinkFunc(nil) error = %v, want ErrNotInvocable", err)
	}
}

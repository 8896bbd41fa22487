package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseContextRefs(t *testing.T) {
	known := map[string]bool{"Waypoint#1": true, "Field": true, "North Ridge": true, "A.B": true}
	exists := func(n string) bool { return known[n] }

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"none", "fly the mission", nil},
		{"single", "survey @Field now", []string{"Field"}},
		{"trailing punctuation", "use @Waypoint#1, then @Field.", []string{"Waypoint#1", "Field"}},
		{"dedupe keeps first order", "@Field and @Waypoint#1 and @Field", []string{"Field", "Waypoint#1"}},
		{"quoted with spaces", `avoid @"North Ridge" please`, []string{"North Ridge"}},
		{"unknown dropped", "@Ghost @Field", []string{"Field"}},
		{"dot inside name", "check @A.B", []string{"A.B"}},
		{"bare at", "email me @ home", nil},
		{"unterminated quote", `@"North Ridge`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseContextRefs(tt.text, exists))
		})
	}
}

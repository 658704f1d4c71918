package store

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsConflict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"busy text", errors.New("exec: SQLITE_BUSY"), true},
		{"locked text", fmt.Errorf("append message: %w", errors.New("database is locked (5)")), true},
		{"constraint", errors.New("UNIQUE constraint failed: sessions.id"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConflict(tt.err); got != tt.want {
				t.Fatalf("isConflict(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

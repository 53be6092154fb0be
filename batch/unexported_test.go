package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_parsePath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name         string
		path         string
		wantResource string
		wantID       int64
		wantHasID    bool
		wantErr      bool
	}{
		{name: "collection", path: "/Orders", wantResource: "Orders"},
		{name: "entity", path: "/Orders(42)", wantResource: "Orders", wantID: 42, wantHasID: true},
		{name: "missing-leading-slash", path: "Orders(1)", wantErr: true},
		{name: "non-numeric-id", path: "/Orders(abc)", wantErr: true},
		{name: "trailing-segment", path: "/Orders(1)/customer", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resource, id, hasID, err := parsePath(tt.path)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantResource, resource)
			assert.Equal(t, tt.wantID, id)
			assert.Equal(t, tt.wantHasID, hasID)
		})
	}
}

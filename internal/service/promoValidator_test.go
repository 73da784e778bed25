package service

import (
	"context"
	"testing"

	"github.com/ds124wfegd/bookit/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromoValidator(t *testing.T) {
	f := newFixture(t, 1000, 10)
	validator := f.promoValidator()

	tests := []struct {
		name    string
		code    string
		want    string
		wantErr error
	}{
		{name: "exact", code: "SAVE10", want: "SAVE10"},
		{name: "lower case", code: "save10", want: "SAVE10"},
		{name: "surrounding spaces", code: "  flat100 ", want: "FLAT100"},
		{name: "unknown", code: "NOPE", wantErr: entity.ErrPromoNotFound},
		{name: "inactive", code: "OLD50", wantErr: entity.ErrPromoNotFound},
		{name: "empty", code: "   ", wantErr: entity.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			promo, err := validator.Validate(context.Background(), tt.code)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, promo)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, promo.Code)
			assert.True(t, promo.IsActive)
		})
	}
}

package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/nfe-xlsx-converter/internal/types"
)

const validKey = "35200114200166000119550010000123451234567892"

func TestAccessKeyCheckDigit(t *testing.T) {
	assert.Equal(t, 2, AccessKeyCheckDigit(validKey[:43]))
}

func TestValidate(t *testing.T) {
	t.Run("should accept a well-formed record", func(t *testing.T) {
		rec := &types.FiscalRecord{
			ChaveNF:             validKey,
			CNPJCPFEmitente:     "14200166000119",
			CNPJCPFDestinatario: "12345678909",
			CFOP:                "5102",
			UFEmitente:          "SP",
		}
		assert.Empty(t, Validate(rec))
	})

	t.Run("should skip empty fields", func(t *testing.T) {
		assert.Empty(t, Validate(&types.FiscalRecord{}))
		assert.Nil(t, Validate(nil))
	})

	t.Run("should flag a wrong check digit", func(t *testing.T) {
		errs := Validate(&types.FiscalRecord{ChaveNF: validKey[:43] + "7"})
		require.Len(t, errs, 1)
		assert.Equal(t, "access_key_digit", errs[0].Rule)
		assert.Contains(t, errs[0].Error(), "should be 2")
	})

	t.Run("should flag malformed fields", func(t *testing.T) {
		errs := Validate(&types.FiscalRecord{
			ChaveNF:         "123",
			CNPJCPFEmitente: "14.200.166/0001-19",
			CFOP:            "51020",
			UFDestinatario:  "S1",
		})
		rules := make([]string, 0, len(errs))
		for _, e := range errs {
			rules = append(rules, e.Rule)
		}
		assert.ElementsMatch(t, []string{"access_key_length", "tax_id_length", "digits", "uf"}, rules)
		assert.Len(t, Messages(errs), 4)
	})
}

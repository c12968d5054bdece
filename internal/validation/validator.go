// =============================================================================
// NFe to XLSX Converter - Validation Engine
// =============================================================================
//
// This module runs lightweight checks on an extracted FiscalRecord:
//   - Access key: 44 digits with a valid mod-11 check digit
//   - CNPJ/CPF: 14 or 11 digits
//   - CFOP: 4 digits
//   - UF: two letters
//
// VALIDATION STRATEGY:
//   Every check yields a warning. Warnings are attached to the processing
//   outcome and logged; they never turn a processed file into an error.
//   Full schema and signature validation are out of scope.
//
// =============================================================================

package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ginjaninja78/nfe-xlsx-converter/internal/types"
)

// =============================================================================
// VALIDATION ERROR TYPES
// =============================================================================

// ValidationError represents a single failed check.
type ValidationError struct {
	// Field is the record field that failed the check.
	Field string

	// Value is the actual value that failed.
	Value string

	// Rule names the check, e.g. "access_key_digit".
	Rule string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("field '%s': %s (value: '%s')", e.Field, e.Message, e.Value)
}

// =============================================================================
// MAIN VALIDATION FUNCTION
// =============================================================================

// Validate checks rec and returns every failed check. An empty field is never
// reported here; absence is already visible in the exported sheet.
func Validate(rec *types.FiscalRecord) []*ValidationError {
	if rec == nil {
		return nil
	}

	var errs []*ValidationError
	add := func(e *ValidationError) {
		if e != nil {
			errs = append(errs, e)
		}
	}

	add(checkAccessKey(rec.ChaveNF))
	add(checkTaxID("cnpjCpfEmitente", rec.CNPJCPFEmitente))
	add(checkTaxID("cnpjCpfDestinatario", rec.CNPJCPFDestinatario))
	add(checkDigits("cfop", rec.CFOP, 4))
	add(checkUF("ufEmitente", rec.UFEmitente))
	add(checkUF("ufDestinatario", rec.UFDestinatario))

	return errs
}

// Messages flattens errs into their messages.
func Messages(errs []*ValidationError) []string {
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Error()
	}
	return out
}

// =============================================================================
// FIELD CHECKS
// =============================================================================

func checkAccessKey(key string) *ValidationError {
	if key == "" {
		return nil
	}
	if len(key) != 44 || !isDigits(key) {
		return &ValidationError{
			Field:   "chaveNF",
			Value:   key,
			Rule:    "access_key_length",
			Message: "access key must have 44 digits",
		}
	}
	if want := AccessKeyCheckDigit(key[:43]); int(key[43]-'0') != want {
		return &ValidationError{
			Field:   "chaveNF",
			Value:   key,
			Rule:    "access_key_digit",
			Message: fmt.Sprintf("access key check digit should be %d", want),
		}
	}
	return nil
}

// AccessKeyCheckDigit computes the mod-11 check digit of the first 43 digits
// of an access key. Weights 2..9 cycle from the rightmost digit.
func AccessKeyCheckDigit(body string) int {
	sum, weight := 0, 2
	for i := len(body) - 1; i >= 0; i-- {
		sum += int(body[i]-'0') * weight
		weight++
		if weight > 9 {
			weight = 2
		}
	}
	dv := 11 - sum%11
	if dv >= 10 {
		return 0
	}
	return dv
}

func checkTaxID(field, value string) *ValidationError {
	if value == "" {
		return nil
	}
	if isDigits(value) && (len(value) == 14 || len(value) == 11) {
		return nil
	}
	return &ValidationError{
		Field:   field,
		Value:   value,
		Rule:    "tax_id_length",
		Message: "CNPJ must have 14 digits and CPF 11 digits",
	}
}

func checkDigits(field, value string, n int) *ValidationError {
	if value == "" || (len(value) == n && isDigits(value)) {
		return nil
	}
	return &ValidationError{
		Field:   field,
		Value:   value,
		Rule:    "digits",
		Message: fmt.Sprintf("must have %d digits", n),
	}
}

func checkUF(field, value string) *ValidationError {
	if value == "" {
		return nil
	}
	if len(value) == 2 && strings.IndexFunc(value, func(r rune) bool { return !unicode.IsLetter(r) }) < 0 {
		return nil
	}
	return &ValidationError{
		Field:   field,
		Value:   value,
		Rule:    "uf",
		Message: "state code must have two letters",
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
